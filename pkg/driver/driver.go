// Package driver wires the pipeline stages together — scan, parse,
// resolve, compile, run — for both one-shot file execution and an
// interactive REPL that keeps a single VM's globals alive across lines.
package driver

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"

	"github.com/kristofer/lox/internal/diag"
	"github.com/kristofer/lox/pkg/compiler"
	"github.com/kristofer/lox/pkg/parser"
	"github.com/kristofer/lox/pkg/resolver"
	"github.com/kristofer/lox/pkg/scanner"
	"github.com/kristofer/lox/pkg/vm"
)

// Driver owns the streams a run is reported against and recovers any
// internal invariant panic raised deep in the pipeline (logrus.Panicln in
// the compiler, for instance) into a returned error, logged through
// logrus, rather than letting it crash the process.
type Driver struct {
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Driver reporting to the given streams.
func New(stdout, stderr io.Writer) *Driver {
	return &Driver{Stdout: stdout, Stderr: stderr}
}

// RunFile compiles and executes a single source file to completion. It
// returns a non-nil error if any pipeline stage failed; diagnostics have
// already been printed to Stderr by the time it returns.
func (d *Driver) RunFile(path string) (err error) {
	defer d.recoverInternal(&err)

	src, readErr := os.ReadFile(path)
	if readErr != nil {
		ioErr := diag.New(diag.KindIO, diag.Position{}, readErr.Error())
		diag.Print(d.Stderr, ioErr)
		return readErr
	}

	os.Setenv("RLOX_RUN_MODE", "F")
	m := vm.New(vm.ModeFile, d.Stdout)
	return d.runSource(string(src), m, resolver.ModeFile)
}

// RunREPL starts an interactive read-compile-run loop over stdin, sharing
// one VM (and therefore one set of globals) across every line until EOF
// or an explicit exit.
func (d *Driver) RunREPL() (err error) {
	defer d.recoverInternal(&err)

	os.Setenv("RLOX_RUN_MODE", "R")
	rl, rlErr := readline.New("lox> ")
	if rlErr != nil {
		return d.runREPLPlain(bufio.NewScanner(os.Stdin))
	}
	defer rl.Close()

	m := vm.New(vm.ModeREPL, d.Stdout)
	for {
		line, readErr := rl.Readline()
		if readErr == readline.ErrInterrupt {
			continue
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
		if line == "" {
			continue
		}
		d.runLine(line, m)
	}
}

func (d *Driver) runREPLPlain(scan *bufio.Scanner) error {
	m := vm.New(vm.ModeREPL, d.Stdout)
	fmt.Fprint(d.Stdout, "lox> ")
	for scan.Scan() {
		line := scan.Text()
		if line != "" {
			d.runLine(line, m)
		}
		fmt.Fprint(d.Stdout, "lox> ")
	}
	return scan.Err()
}

// runLine compiles and runs a single REPL line against the shared VM,
// printing any diagnostics without aborting the loop.
func (d *Driver) runLine(src string, m *vm.VM) {
	_ = d.runSource(src, m, resolver.ModeREPL)
}

// runSource drives one source string through scan -> parse -> resolve ->
// compile -> execute, printing diagnostics from whichever stage fails
// first.
func (d *Driver) runSource(src string, m *vm.VM, mode resolver.Mode) error {
	sink := diag.NewSink()

	tokens := scanner.Scan(src, sink)
	if sink.HasErrors() {
		diag.Print(d.Stderr, sink.Err())
		return sink.Err()
	}

	stmts := parser.Parse(tokens, sink)
	if sink.HasErrors() {
		diag.Print(d.Stderr, sink.Err())
		return sink.Err()
	}

	resolver.Resolve(stmts, sink, mode)
	diag.PrintWarnings(d.Stderr, sink.Warnings())
	if sink.HasErrors() {
		diag.Print(d.Stderr, sink.Err())
		return sink.Err()
	}

	fn, err := compiler.Compile(stmts)
	if err != nil {
		diag.Print(d.Stderr, err)
		return err
	}

	if err := m.Run(fn); err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return err
	}
	return nil
}

// recoverInternal turns a logrus.Panicln-raised internal invariant
// violation into a returned error instead of a crash.
func (d *Driver) recoverInternal(err *error) {
	if r := recover(); r != nil {
		logrus.Errorf("internal error: %v", r)
		*err = fmt.Errorf("internal error: %v", r)
	}
}
