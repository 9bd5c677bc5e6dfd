// Package diag implements the diagnostic taxonomy and rendering shared by
// every phase of the pipeline: scanner, parser, resolver, compiler, and VM
// all report through the same Diagnostic shape so the driver can print them
// uniformly.
package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	multierror "github.com/hashicorp/go-multierror"
)

// Kind distinguishes the error taxonomy described for the source pipeline.
type Kind int

const (
	KindIO Kind = iota
	KindLex
	KindParse
	KindResolve
	KindRuntime
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "I/O error"
	case KindLex:
		return "Lex error"
	case KindParse:
		return "Parse error"
	case KindResolve:
		return "Resolve error"
	case KindRuntime:
		return "Runtime error"
	case KindInternal:
		return "Internal unexpected"
	default:
		return "error"
	}
}

// Position is a one-based row, zero-based column location. The zero value
// (0, 0) denotes a position-less diagnostic (I/O, internal).
type Position struct {
	Line   int
	Column int
}

// Diagnostic is a single reportable problem from any pipeline phase.
type Diagnostic struct {
	Kind    Kind
	Pos     Position
	Lexeme  string
	AtEnd   bool
	Message string
}

// Error renders the diagnostic as "[<row>, <col>] LoxError[ at '<lexeme>' |
// at end]: <message>", matching the wire format every phase agrees on.
func (d Diagnostic) Error() string {
	var loc string
	switch {
	case d.AtEnd:
		loc = " at end"
	case d.Lexeme != "":
		loc = fmt.Sprintf(" at '%s'", d.Lexeme)
	}
	return fmt.Sprintf("[%d, %d] LoxError[%s]: %s", d.Pos.Line, d.Pos.Column, loc, d.Message)
}

// New builds a Diagnostic carrying a source position.
func New(kind Kind, pos Position, message string) Diagnostic {
	return Diagnostic{Kind: kind, Pos: pos, Message: message}
}

// AtToken builds a Diagnostic anchored to an offending lexeme.
func AtToken(kind Kind, pos Position, lexeme string, atEnd bool, message string) Diagnostic {
	return Diagnostic{Kind: kind, Pos: pos, Lexeme: lexeme, AtEnd: atEnd, Message: message}
}

// Sink accumulates diagnostics for phases that report every error found in
// one pass (scanner, parser, resolver) rather than stopping at the first.
type Sink struct {
	errs     *multierror.Error
	warnings []Diagnostic
}

// NewSink returns an empty accumulator.
func NewSink() *Sink {
	return &Sink{}
}

// Report records a diagnostic.
func (s *Sink) Report(d Diagnostic) {
	s.errs = multierror.Append(s.errs, d)
}

// HasErrors reports whether any diagnostic was recorded.
func (s *Sink) HasErrors() bool {
	return s.errs != nil && s.errs.Len() > 0
}

// Err returns the accumulated diagnostics as a single error, or nil.
func (s *Sink) Err() error {
	return s.errs.ErrorOrNil()
}

// Warn records an advisory diagnostic (e.g. an unused variable) that does
// not count toward HasErrors/Err and is rendered separately.
func (s *Sink) Warn(d Diagnostic) {
	s.warnings = append(s.warnings, d)
}

// Warnings returns every recorded warning in report order.
func (s *Sink) Warnings() []Diagnostic {
	return s.warnings
}

// Diagnostics returns every recorded diagnostic in report order.
func (s *Sink) Diagnostics() []Diagnostic {
	if s.errs == nil {
		return nil
	}
	out := make([]Diagnostic, 0, len(s.errs.Errors))
	for _, e := range s.errs.Errors {
		if d, ok := e.(Diagnostic); ok {
			out = append(out, d)
		}
	}
	return out
}

var errColor = color.New(color.FgRed)
var warnColor = color.New(color.FgYellow)

// Print renders err in red to w. A *multierror.Error is expanded one
// diagnostic per line; any other error (single Diagnostic, or a plain Go
// error from a phase that stops at its first failure) prints as one line.
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	if me, ok := err.(*multierror.Error); ok {
		for _, e := range me.Errors {
			errColor.Fprintln(w, e.Error())
		}
		return
	}
	errColor.Fprintln(w, err.Error())
}

// PrintWarnings renders accumulated warnings in yellow.
func PrintWarnings(w io.Writer, warnings []Diagnostic) {
	for _, d := range warnings {
		warnColor.Fprintln(w, d.Error())
	}
}
