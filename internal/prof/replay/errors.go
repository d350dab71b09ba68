package replay

import (
	"errors"
	"fmt"
)

// ErrInvalidTrace is wrapped by every TraceError.
var ErrInvalidTrace = errors.New("invalid trace")

// TraceError is a problem in a trace file, positioned at the offending event
// or declaration.
//
// Example output:
//
//	trace.yaml:14: event 3: unknown unit 7
//
//	Suggestion: Declare the unit under "sources"
type TraceError struct {
	File       string // Trace file path, empty when decoded from a reader
	Line       int    // Line number (1-indexed), 0 when unknown
	Event      int    // Event index (0-indexed), -1 outside events
	Message    string
	Suggestion string
}

// Error implements the error interface.
func (e *TraceError) Error() string {
	file := e.File
	if file == "" {
		file = "<trace>"
	}
	result := file
	if e.Line > 0 {
		result += fmt.Sprintf(":%d", e.Line)
	}
	if e.Event >= 0 {
		result += fmt.Sprintf(": event %d", e.Event)
	}
	result += ": " + e.Message
	if e.Suggestion != "" {
		result += fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion)
	}
	return result
}

// Unwrap lets errors.Is match ErrInvalidTrace.
func (e *TraceError) Unwrap() error {
	return ErrInvalidTrace
}

func eventError(file string, index, line int, msg, suggestion string) *TraceError {
	return &TraceError{File: file, Line: line, Event: index, Message: msg, Suggestion: suggestion}
}

func declError(file string, line int, msg, suggestion string) *TraceError {
	return &TraceError{File: file, Line: line, Event: -1, Message: msg, Suggestion: suggestion}
}
