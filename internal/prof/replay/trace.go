// Package replay plays recorded event traces into a Dispatcher.
//
// A trace is a YAML document standing in for a live event producer. It
// declares the source units, the spans of their sites and the sequence of
// intercepted operations:
//
//	sources:
//	  - id: 1
//	    name: main.js
//	    text: "var a = [];\n"
//	locations:
//	  - {unit: 1, iid: 3, span: [1, 9, 1, 11]}
//	events:
//	  - {hook: literal, unit: 1, iid: 3, val: {new: 1, kind: array}}
//	  - {hook: putFieldPre, unit: 1, iid: 5, base: {ref: 1}, offset: 0, val: 255}
//	  - {hook: invokeFun, unit: 1, iid: 6, f: {builtin: Array.prototype.push}, base: {ref: 1}, args: [7], repeat: 100}
//
// Values are YAML scalars or one of the reference forms:
//
//	{new: N, kind: array|object|function, elements: [...], props: {...}, name: f}
//	{ref: N}
//	{builtin: Array.prototype.push}
//	{undefined: true}
//
// Each event is one synchronous turn of the target program: deferred work
// queued with NextTick runs after it.
package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Trace is a decoded trace file.
type Trace struct {
	Sources   []SourceSpec   `yaml:"sources"`
	Locations []LocationSpec `yaml:"locations"`
	Events    []EventSpec    `yaml:"events"`

	// File is the path the trace was loaded from.
	File string `yaml:"-"`
}

// SourceSpec declares a source unit. ID is local to the trace.
type SourceSpec struct {
	ID       int    `yaml:"id"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path,omitempty"`
	Internal bool   `yaml:"internal,omitempty"`
	Text     string `yaml:"text,omitempty"`

	// URL loads the text through afs when Text is empty.
	URL string `yaml:"url,omitempty"`

	Line int `yaml:"-"`
}

// UnmarshalYAML records the declaration line.
func (s *SourceSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain SourceSpec
	if err := n.Decode((*plain)(s)); err != nil {
		return err
	}
	s.Line = n.Line
	return nil
}

// LocationSpec maps a site to its span: [startLine, startCol, endLine, endCol].
type LocationSpec struct {
	Unit int   `yaml:"unit"`
	IID  int   `yaml:"iid"`
	Span []int `yaml:"span"`

	Line int `yaml:"-"`
}

// UnmarshalYAML records the declaration line.
func (l *LocationSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain LocationSpec
	if err := n.Decode((*plain)(l)); err != nil {
		return err
	}
	l.Line = n.Line
	return nil
}

// EventSpec is one intercepted operation. Value fields stay raw YAML nodes
// until replay, when references are resolved in order.
type EventSpec struct {
	Hook   string `yaml:"hook"`
	Unit   int    `yaml:"unit"`
	IID    int    `yaml:"iid"`
	Repeat int    `yaml:"repeat,omitempty"`

	Base      yaml.Node `yaml:"base"`
	Offset    yaml.Node `yaml:"offset"`
	Val       yaml.Node `yaml:"val"`
	F         yaml.Node `yaml:"f"`
	Args      yaml.Node `yaml:"args"`
	Result    yaml.Node `yaml:"result"`
	Left      yaml.Node `yaml:"left"`
	Right     yaml.Node `yaml:"right"`
	Exception yaml.Node `yaml:"exception"`

	Name string `yaml:"name,omitempty"`
	Op   string `yaml:"op,omitempty"`
	Kind string `yaml:"kind,omitempty"`

	IsComputed      bool `yaml:"isComputed,omitempty"`
	IsOpAssign      bool `yaml:"isOpAssign,omitempty"`
	IsMethodCall    bool `yaml:"isMethodCall,omitempty"`
	IsConstructor   bool `yaml:"isConstructor,omitempty"`
	IsMethod        bool `yaml:"isMethod,omitempty"`
	IsGlobal        bool `yaml:"isGlobal,omitempty"`
	IsForIn         bool `yaml:"isForIn,omitempty"`
	IsRejected      bool `yaml:"isRejected,omitempty"`
	HasGetterSetter bool `yaml:"hasGetterSetter,omitempty"`

	// Source declares the unit announced by a newSource event.
	Source *SourceSpec `yaml:"source,omitempty"`

	Line int `yaml:"-"`
}

// UnmarshalYAML records the event line.
func (e *EventSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain EventSpec
	if err := n.Decode((*plain)(e)); err != nil {
		return err
	}
	e.Line = n.Line
	return nil
}

// Decode reads a trace from r.
func Decode(r io.Reader) (*Trace, error) {
	var tr Trace
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tr); err != nil {
		if errors.Is(err, io.EOF) {
			return &tr, nil
		}
		return nil, &TraceError{Event: -1, Message: err.Error(), Suggestion: "Check the trace against the documented format"}
	}
	return &tr, nil
}

// LoadFile reads and decodes the trace at url. Any afs-supported URL works;
// plain paths are local files.
func LoadFile(ctx context.Context, url string) (*Trace, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace %s: %w", url, err)
	}
	tr, err := Decode(bytes.NewReader(data))
	if err != nil {
		if te, ok := err.(*TraceError); ok {
			te.File = url
		}
		return nil, err
	}
	tr.File = url
	return tr, nil
}
