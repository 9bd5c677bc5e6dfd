package vm

import (
	"fmt"
	"strings"

	"github.com/kristofer/lox/internal/diag"
)

// frameTrace is one entry of a runtime error's call-frame stack trace.
type frameTrace struct {
	name   string
	line   int
	column int
}

// RuntimeError is a runtime diagnostic paired with the call-frame stack
// active when it was raised, outermost frame first in Trace; Error renders
// the frames innermost first.
type RuntimeError struct {
	Diag  diag.Diagnostic
	Trace []frameTrace
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Diag.Error())
	for i := len(e.Trace) - 1; i >= 0; i-- {
		t := e.Trace[i]
		fmt.Fprintf(&b, "\n    at %s (%d:%d)", t.name, t.line, t.column)
	}
	return b.String()
}
