package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/lox/internal/diag"
	"github.com/kristofer/lox/pkg/bytecode"
	"github.com/kristofer/lox/pkg/parser"
	"github.com/kristofer/lox/pkg/scanner"
)

func compile(t *testing.T, src string) (*bytecode.Function, error) {
	t.Helper()
	sink := diag.NewSink()
	tokens := scanner.Scan(src, sink)
	require.False(t, sink.HasErrors())
	stmts := parser.Parse(tokens, sink)
	require.False(t, sink.HasErrors())
	return Compile(stmts)
}

func opsOf(fn *bytecode.Function) []bytecode.OpCode {
	ops := make([]bytecode.OpCode, len(fn.Chunk.Code))
	for i, instr := range fn.Chunk.Code {
		ops[i] = instr.Op
	}
	return ops
}

func TestCompileGlobalDeclarationAndImplicitReturn(t *testing.T) {
	fn, err := compile(t, "let x = 1;")
	require.NoError(t, err)
	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpLoad, bytecode.OpDefineGlobal, bytecode.OpLoad, bytecode.OpReturn,
	}, opsOf(fn))
}

func TestCompileLocalDoesNotEmitGlobalOps(t *testing.T) {
	fn, err := compile(t, "{ let x = 1; print x; }")
	require.NoError(t, err)
	for _, op := range opsOf(fn) {
		assert.NotEqual(t, bytecode.OpDefineGlobal, op)
		assert.NotEqual(t, bytecode.OpGetGlobal, op)
	}
}

func TestCompileFusedCompoundAssignGlobal(t *testing.T) {
	fn, err := compile(t, "let x = 1; x += 2;")
	require.NoError(t, err)
	found := false
	for _, op := range opsOf(fn) {
		if op == bytecode.OpAddIGlobal {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompileFusedCompoundAssignLocal(t *testing.T) {
	fn, err := compile(t, "{ let x = 1; x += 2; }")
	require.NoError(t, err)
	found := false
	for _, op := range opsOf(fn) {
		if op == bytecode.OpAddILocal {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompileDuplicateLocalDeclarationFails(t *testing.T) {
	_, err := compile(t, "{ let x = 1; let x = 2; }")
	assert.Error(t, err)
}

func TestCompileWhileWithBreakAndContinue(t *testing.T) {
	fn, err := compile(t, "while (true) { if (true) { break; } continue; }")
	require.NoError(t, err)
	hasJump := false
	for _, op := range opsOf(fn) {
		if op == bytecode.OpJump {
			hasJump = true
		}
	}
	assert.True(t, hasJump)
}

func TestCompileForLoopEmitsOneBackwardJump(t *testing.T) {
	fn, err := compile(t, "for (let i = 0; i < 1; i = i + 1) {}")
	require.NoError(t, err)
	count := 0
	for _, op := range opsOf(fn) {
		if op == bytecode.OpJumpForward {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCompileFunctionDeclaration(t *testing.T) {
	fn, err := compile(t, "func add(a, b) { return a + b; }")
	require.NoError(t, err)
	ops := opsOf(fn)
	assert.Contains(t, ops, bytecode.OpLoad)
	assert.Contains(t, ops, bytecode.OpDefineGlobal)
}

func TestCompileLambda(t *testing.T) {
	fn, err := compile(t, "let f = func(x) { return x; };")
	require.NoError(t, err)
	assert.Contains(t, opsOf(fn), bytecode.OpLoad)
}

func TestCompileClassIsRejected(t *testing.T) {
	_, err := compile(t, "class C {}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classes are not supported")
}

func TestCompileSelfOutsideClassIsRejectedByCompilerToo(t *testing.T) {
	sink := diag.NewSink()
	tokens := scanner.Scan("print self;", sink)
	require.False(t, sink.HasErrors())
	stmts := parser.Parse(tokens, sink)
	require.False(t, sink.HasErrors())
	_, err := Compile(stmts)
	assert.Error(t, err)
}

func TestCompilePropertyAccessIsRejected(t *testing.T) {
	_, err := compile(t, "print a.b;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "property access requires class support")
}

func TestCompilePropertyAssignmentIsRejected(t *testing.T) {
	_, err := compile(t, "a.b = 1;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "property assignment requires class support")
}
