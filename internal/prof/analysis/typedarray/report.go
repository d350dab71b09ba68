package typedarray

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/kolkov/dynprof/internal/prof/source"
)

// Reason printed for sites that stored a non-number.
const reasonNonNumeric = "array stores non-numeric elements"

// SiteReport is the merged shape of every array created at one site.
type SiteReport struct {
	Site     source.GIID
	Location string

	// Count sums the operation counts of all instances.
	Count     int64
	Instances int

	// ReadOnly holds when no instance was ever mutated.
	ReadOnly bool

	// MaxIndices are the distinct maximum indices of instances that had an
	// indexed write, ascending.
	MaxIndices []int

	// Kinds are the containers eligible for every instance.
	Kinds Kinds

	Methods  []string
	PropsSet []string
	PropsGet []string
	Typeof   bool
}

// Rejected is a site that cannot be narrowed.
type Rejected struct {
	Site     source.GIID
	Location string
	Reason   string
}

// Report is the result of the analysis.
type Report struct {
	Threshold int64

	// Sites are the narrowing candidates above the threshold, by descending
	// Count, then site.
	Sites []SiteReport

	// Rejected are sites where an instance stored a non-number, by site.
	Rejected []Rejected
}

// Report merges the records of every site.
//
// Merge rules per site: counts are summed; a kind is eligible only when it
// is eligible for every instance; methods, property names and typeof are
// unioned; the site is read-only only if every instance is. A site with any
// non-numeric instance is rejected regardless of its count.
func (a *Analysis) Report() *Report {
	rep := &Report{Threshold: a.threshold}

	sites := make([]source.GIID, 0, len(a.sites))
	for site := range a.sites {
		sites = append(sites, site)
	}
	slices.SortFunc(sites, source.GIID.Compare)

	for _, site := range sites {
		s, ok := merge(site, a.sites[site])
		if !ok {
			rep.Rejected = append(rep.Rejected, Rejected{
				Site:     site,
				Location: a.location(site),
				Reason:   reasonNonNumeric,
			})
			continue
		}
		if s.Count <= a.threshold {
			continue
		}
		s.Location = a.location(site)
		rep.Sites = append(rep.Sites, s)
	}

	slices.SortStableFunc(rep.Sites, func(x, y SiteReport) int {
		if x.Count != y.Count {
			if x.Count > y.Count {
				return -1
			}
			return 1
		}
		return x.Site.Compare(y.Site)
	})
	return rep
}

// merge folds the instances of one site. It returns false when an instance
// stored a non-number.
func merge(site source.GIID, recs []*Record) (SiteReport, bool) {
	s := SiteReport{
		Site:      site,
		Instances: len(recs),
		ReadOnly:  true,
		Kinds:     AllKinds,
	}
	methods := make(map[string]struct{})
	set := make(map[string]struct{})
	get := make(map[string]struct{})
	indices := make(map[int]struct{})

	for _, r := range recs {
		if r.NonNumeric {
			return SiteReport{}, false
		}
		s.Count += r.Count
		s.ReadOnly = s.ReadOnly && r.ReadOnly
		s.Kinds = s.Kinds.Intersect(r.Kinds)
		s.Typeof = s.Typeof || r.Typeof
		if r.HasIndexedWrite {
			indices[r.MaxIndex] = struct{}{}
		}
		for m := range r.Methods {
			methods[m] = struct{}{}
		}
		for p := range r.PropsSet {
			set[p] = struct{}{}
		}
		for p := range r.PropsGet {
			get[p] = struct{}{}
		}
	}

	for i := range indices {
		s.MaxIndices = append(s.MaxIndices, i)
	}
	slices.Sort(s.MaxIndices)
	s.Methods = sortedSet(methods)
	s.PropsSet = sortedSet(set)
	s.PropsGet = sortedSet(get)
	return s, true
}

// Format writes the report in a human-readable format.
//
// Output format:
//
//	-------------Fix Array Refactor Report-------------
//	Array created at the following locations may be special-typed:
//	location: (main.js:3:9:3:11)
//		[Oper-Count]:	3001
//		[Max-Indices]:	[999]
//		[Refactor-Opts]: ["Uint16Array","Uint32Array","Int32Array","Float32Array","Float64Array"]
//		[Func-Used]: ["push"]
//	[****]typedArray: 1
//	---------------------------------------------------
//	Following arrays can not be typed:
//	[x]	(main.js:9:9:9:11)	array stores non-numeric elements
//
//nolint:errcheck // Error handling omitted for report output formatting
func (r *Report) Format(w io.Writer) {
	fmt.Fprintf(w, "-------------Fix Array Refactor Report-------------\n")
	fmt.Fprintf(w, "Array created at the following locations may be special-typed:\n")

	for _, s := range r.Sites {
		fmt.Fprintf(w, "location: %s\n", s.Location)
		fmt.Fprintf(w, "\t[Oper-Count]:\t%d\n", s.Count)

		if s.ReadOnly {
			fmt.Fprintf(w, "\t[READONLY]\n")
		} else {
			fmt.Fprintf(w, "\t[Max-Indices]:\t%s\n", jsonList(s.MaxIndices))
			fmt.Fprintf(w, "\t[Refactor-Opts]: %s\n", jsonList(s.Kinds.Names()))
		}

		if len(s.Methods) > 0 {
			fmt.Fprintf(w, "\t[Func-Used]: %s\n", jsonList(s.Methods))
		}
		if len(s.PropsSet) > 0 {
			fmt.Fprintf(w, "\t[Prop-Set]: %s\n", jsonList(s.PropsSet))
		}
		if len(s.PropsGet) > 0 {
			fmt.Fprintf(w, "\t[Prop-Get]: %s\n", jsonList(s.PropsGet))
		}
		if s.Typeof {
			fmt.Fprintf(w, "\t[Typeof]: 'typeof' applied\n")
		}
	}
	fmt.Fprintf(w, "[****]typedArray: %d\n", len(r.Sites))

	fmt.Fprintf(w, "---------------------------------------------------\n")
	fmt.Fprintf(w, "Following arrays can not be typed:\n")
	for _, x := range r.Rejected {
		fmt.Fprintf(w, "[x]\t%s\t%s\n", x.Location, x.Reason)
	}
}

// String returns the formatted report.
func (r *Report) String() string {
	var buf strings.Builder
	r.Format(&buf)
	return buf.String()
}

func jsonList[T any](items []T) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Sprint(items)
	}
	return string(b)
}
