package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/lox/internal/diag"
	"github.com/kristofer/lox/pkg/compiler"
	"github.com/kristofer/lox/pkg/parser"
	"github.com/kristofer/lox/pkg/scanner"
)

func runSource(t *testing.T, src string) (string, error) {
	t.Helper()
	sink := diag.NewSink()
	tokens := scanner.Scan(src, sink)
	require.False(t, sink.HasErrors())
	stmts := parser.Parse(tokens, sink)
	require.False(t, sink.HasErrors())
	fn, err := compiler.Compile(stmts)
	require.NoError(t, err)

	var out bytes.Buffer
	m := New(ModeFile, &out)
	runErr := m.Run(fn)
	return out.String(), runErr
}

func TestPrintLiteral(t *testing.T) {
	out, err := runSource(t, `print "hello";`)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestArithmetic(t *testing.T) {
	out, err := runSource(t, `print 1 + 2 * 3;`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestStringConcatenationCoercesRight(t *testing.T) {
	out, err := runSource(t, `print "n=" + 1;`)
	require.NoError(t, err)
	assert.Equal(t, "n=1\n", out)
}

func TestDivisionByZeroIsRuntimeError(t *testing.T) {
	_, err := runSource(t, `print 1 / 0;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "divisor cannot be 0")
}

func TestModTruncatesOperands(t *testing.T) {
	out, err := runSource(t, `print 7.9 % 2.9;`)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestComparisonAndEquality(t *testing.T) {
	out, err := runSource(t, `print 1 < 2; print 2 == 2; print "a" == "b";`)
	require.NoError(t, err)
	assert.Equal(t, "true\ntrue\nfalse\n", out)
}

func TestGlobalVariableLifecycle(t *testing.T) {
	out, err := runSource(t, `
		let x = 1;
		x = x + 1;
		print x;
	`)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestUndefinedGlobalIsRuntimeError(t *testing.T) {
	_, err := runSource(t, `print undefined;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined variable")
}

func TestLocalVariableInBlock(t *testing.T) {
	out, err := runSource(t, `{ let x = 10; print x; }`)
	require.NoError(t, err)
	assert.Equal(t, "10\n", out)
}

func TestIfElse(t *testing.T) {
	out, err := runSource(t, `if (1 < 2) { print "yes"; } else { print "no"; }`)
	require.NoError(t, err)
	assert.Equal(t, "yes\n", out)
}

func TestWhileLoop(t *testing.T) {
	out, err := runSource(t, `
		let i = 0;
		while (i < 3) {
			print i;
			i = i + 1;
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestForLoopWithBreakAndContinue(t *testing.T) {
	out, err := runSource(t, `
		for (let i = 0; i < 5; i = i + 1) {
			if (i == 1) { continue; }
			if (i == 3) { break; }
			print i;
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "0\n2\n", out)
}

func TestFunctionCallAndReturn(t *testing.T) {
	out, err := runSource(t, `
		func add(a, b) { return a + b; }
		print add(2, 3);
	`)
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)
}

func TestRecursiveGlobalFunction(t *testing.T) {
	out, err := runSource(t, `
		func fact(n) {
			if (n <= 1) { return 1; }
			return n * fact(n - 1);
		}
		print fact(5);
	`)
	require.NoError(t, err)
	assert.Equal(t, "120\n", out)
}

func TestCallArityMismatchIsRuntimeError(t *testing.T) {
	_, err := runSource(t, `
		func f(a, b) { return a; }
		f(1);
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 arguments but got 1")
}

func TestCallingNonFunctionIsRuntimeError(t *testing.T) {
	_, err := runSource(t, `
		let x = 1;
		x();
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can only call functions")
}

func TestTernaryExpression(t *testing.T) {
	out, err := runSource(t, `print 1 < 2 ? "yes" : "no";`)
	require.NoError(t, err)
	assert.Equal(t, "yes\n", out)
}

func TestLogicalShortCircuit(t *testing.T) {
	out, err := runSource(t, `
		func boom() { print "boom"; return true; }
		print false and boom();
		print true or boom();
	`)
	require.NoError(t, err)
	assert.Equal(t, "false\ntrue\n", out)
}

func TestFusedCompoundAssignmentGlobal(t *testing.T) {
	out, err := runSource(t, `
		let x = 10;
		x += 5;
		x -= 2;
		x *= 3;
		x /= 3;
		print x;
	`)
	require.NoError(t, err)
	assert.Equal(t, "13\n", out)
}

func TestFusedCompoundAssignmentLocal(t *testing.T) {
	out, err := runSource(t, `{ let x = 10; x += 5; print x; }`)
	require.NoError(t, err)
	assert.Equal(t, "15\n", out)
}

func TestLambdaClosureOverParams(t *testing.T) {
	out, err := runSource(t, `
		let square = func(x) { return x * x; };
		print square(4);
	`)
	require.NoError(t, err)
	assert.Equal(t, "16\n", out)
}

func TestRuntimeErrorIncludesCallStackTrace(t *testing.T) {
	_, err := runSource(t, `
		func inner() { return 1 / 0; }
		func outer() { return inner(); }
		outer();
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at <fn inner>")
	assert.Contains(t, err.Error(), "at <fn outer>")
}

func TestVMResetsAfterRuntimeErrorForREPLReuse(t *testing.T) {
	var out bytes.Buffer
	m := New(ModeREPL, &out)

	sink := diag.NewSink()
	tokens := scanner.Scan(`print 1 / 0;`, sink)
	stmts := parser.Parse(tokens, sink)
	fn, err := compiler.Compile(stmts)
	require.NoError(t, err)
	require.Error(t, m.Run(fn))

	sink2 := diag.NewSink()
	tokens2 := scanner.Scan(`print "ok";`, sink2)
	stmts2 := parser.Parse(tokens2, sink2)
	fn2, err := compiler.Compile(stmts2)
	require.NoError(t, err)
	require.NoError(t, m.Run(fn2))
	assert.Equal(t, "[REPL]: ok\n", out.String())
}
