package source

import (
	"cmp"
	"fmt"
	"path/filepath"
	"strings"
)

// GIID is a global instruction id: an instruction id qualified by the unit it
// belongs to. Analyses use it as the identity of a code site.
type GIID struct {
	Unit ID
	IID  int
}

// String returns "unit:iid".
func (g GIID) String() string {
	return fmt.Sprintf("%d:%d", g.Unit, g.IID)
}

// Compare orders sites by unit, then iid.
func (g GIID) Compare(o GIID) int {
	if c := cmp.Compare(g.Unit, o.Unit); c != 0 {
		return c
	}
	return cmp.Compare(g.IID, o.IID)
}

// Span is a 1-based source range.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// IsModuleStart reports whether the span starts at line 1, column 1, which is
// where the producer places the synthetic module wrapper.
func (s Span) IsModuleStart() bool {
	return s.StartLine == 1 && s.StartCol == 1
}

// AddLocation records the span of a site.
func (r *Registry) AddLocation(site GIID, span Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations[site] = span
}

// Span returns the recorded span of a site.
func (r *Registry) Span(site GIID) (Span, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.locations[site]
	return s, ok
}

// Location formats a site as "(file:startLine:startCol:endLine:endCol)".
//
// The file is the unit path, or its name when no path was given. Sites
// without a recorded span format as "(file:iid:<iid>)" and sites of unknown
// units as "(unknown)".
func (r *Registry) Location(site GIID) string {
	u, ok := r.Lookup(site.Unit)
	if !ok {
		return "(unknown)"
	}

	file := u.Path
	if file == "" {
		file = u.Name
	}

	span, ok := r.Span(site)
	if !ok {
		return fmt.Sprintf("(%s:iid:%d)", file, site.IID)
	}
	return fmt.Sprintf("(%s:%d:%d:%d:%d)", file, span.StartLine, span.StartCol, span.EndLine, span.EndCol)
}

// ShortLocation is like Location but uses only the base name of the file.
func (r *Registry) ShortLocation(site GIID) string {
	u, ok := r.Lookup(site.Unit)
	if !ok {
		return "(unknown)"
	}
	span, ok := r.Span(site)
	if !ok {
		return fmt.Sprintf("(%s:iid:%d)", u.Name, site.IID)
	}
	name := u.Name
	if name == "" {
		name = filepath.Base(u.Path)
	}
	return fmt.Sprintf("(%s:%d:%d)", name, span.StartLine, span.StartCol)
}

// Snippet returns the source text covered by a site's span.
func (r *Registry) Snippet(site GIID) (string, bool) {
	u, ok := r.Lookup(site.Unit)
	if !ok {
		return "", false
	}
	span, ok := r.Span(site)
	if !ok {
		return "", false
	}
	start, ok1 := offset(u.Text, span.StartLine, span.StartCol)
	end, ok2 := offset(u.Text, span.EndLine, span.EndCol)
	if !ok1 || !ok2 || end < start {
		return "", false
	}
	return u.Text[start:end], true
}

// offset converts a 1-based line/column pair to a byte offset. A column one
// past the end of a line is accepted so that end positions are exclusive.
func offset(text string, line, col int) (int, bool) {
	if line < 1 || col < 1 {
		return 0, false
	}
	cur := 1
	start := 0
	for cur < line {
		i := strings.IndexByte(text[start:], '\n')
		if i < 0 {
			return 0, false
		}
		start += i + 1
		cur++
	}
	lineEnd := strings.IndexByte(text[start:], '\n')
	if lineEnd < 0 {
		lineEnd = len(text) - start
	}
	if col-1 > lineEnd {
		return 0, false
	}
	return start + col - 1, true
}
