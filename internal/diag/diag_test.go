package diag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticErrorFormat(t *testing.T) {
	d := AtToken(KindParse, Position{Line: 3, Column: 5}, "+", false, "expect expression")
	assert.Equal(t, "[3, 5] LoxError[ at '+']: expect expression", d.Error())
}

func TestDiagnosticErrorFormatAtEnd(t *testing.T) {
	d := AtToken(KindParse, Position{Line: 1, Column: 0}, "", true, "expect ')'")
	assert.Equal(t, "[1, 0] LoxError[ at end]: expect ')'", d.Error())
}

func TestDiagnosticErrorFormatNoLocation(t *testing.T) {
	d := New(KindIO, Position{}, "file not found")
	assert.Equal(t, "[0, 0] LoxError[]: file not found", d.Error())
}

func TestSinkAccumulatesAndReports(t *testing.T) {
	s := NewSink()
	assert.False(t, s.HasErrors())
	s.Report(New(KindLex, Position{Line: 1}, "bad token"))
	s.Report(New(KindLex, Position{Line: 2}, "another"))
	assert.True(t, s.HasErrors())
	assert.Len(t, s.Diagnostics(), 2)
}

func TestSinkWarningsAreSeparateFromErrors(t *testing.T) {
	s := NewSink()
	s.Warn(AtToken(KindResolve, Position{Line: 1}, "x", false, "unused variable 'x'"))
	assert.False(t, s.HasErrors())
	assert.Len(t, s.Warnings(), 1)
}

func TestPrintExpandsMultierror(t *testing.T) {
	s := NewSink()
	s.Report(New(KindLex, Position{Line: 1}, "first"))
	s.Report(New(KindLex, Position{Line: 2}, "second"))

	var buf bytes.Buffer
	Print(&buf, s.Err())
	out := buf.String()
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
}
