// Package compiler implements the single-pass tree-to-bytecode compiler:
// one bytecode.Function is produced per textual func/lambda/script body,
// while a compile-time scope stack tracks which names are locals (by
// slot) versus globals (by name), and forward jumps are patched once
// their targets are known.
package compiler

import (
	"fmt"

	"github.com/kristofer/lox/internal/diag"
	"github.com/kristofer/lox/pkg/ast"
	"github.com/kristofer/lox/pkg/bytecode"
	"github.com/kristofer/lox/pkg/token"
	"github.com/sirupsen/logrus"
)

type local struct {
	name  string
	depth int
}

// loopState tracks the back-patch lists and unwind depth for the loop
// currently being compiled.
type loopState struct {
	bodyDepth         int
	breakPositions    []int
	continuePositions []int
}

// funcCompiler is the per-function compile-time state: its own local
// table, lexical depth, and loop stack. Bytecode functions never close
// over enclosing locals (no upvalues), so resolveLocal only ever searches
// the current funcCompiler's own table.
type funcCompiler struct {
	enclosing  *funcCompiler
	function   *bytecode.Function
	locals     []local
	depth      int
	loops      []*loopState
	isReturned bool
}

func newFuncCompiler(enclosing *funcCompiler, name string, kind bytecode.FuncKind) *funcCompiler {
	fc := &funcCompiler{enclosing: enclosing, function: bytecode.NewFunction(name, kind)}
	// In a function body, slot 0 is reserved for the callee itself, named
	// after the function, so a recursive call by name resolves to it. The
	// script body reserves no slot: its frame's base sits just above the
	// script sentinel, so its first block local is slot 0.
	if kind != bytecode.FuncMain {
		fc.locals = append(fc.locals, local{name: name, depth: 0})
		fc.depth = 1
	}
	return fc
}

// Compiler walks a parsed program and produces the main script Function.
type Compiler struct {
	current     *funcCompiler
	lambdaCount int
}

// Compile produces the top-level script Function from a parsed program.
// It stops at the first error, as compile errors are rare once the
// resolver has accepted the tree.
func Compile(stmts []ast.Stmt) (*bytecode.Function, error) {
	c := &Compiler{current: newFuncCompiler(nil, "<script>", bytecode.FuncMain)}
	for _, s := range stmts {
		if err := c.compileStmt(s); err != nil {
			return nil, err
		}
	}
	c.finishFunction()
	return c.current.function, nil
}

func (c *Compiler) finishFunction() {
	if !c.current.isReturned {
		c.emit(bytecode.OpLoad, nil, bytecode.Position{})
		c.emit(bytecode.OpReturn, nil, bytecode.Position{})
	}
}

func posOf(tok token.Token) bytecode.Position { return bytecode.Position(tok.Pos) }

func (c *Compiler) emit(op bytecode.OpCode, operand any, pos bytecode.Position) int {
	return c.current.function.Chunk.Write(op, operand, pos)
}

func (c *Compiler) patchJump(idx int) {
	chunk := c.current.function.Chunk
	offset := chunk.Len() - (idx + 1)
	chunk.Patch(idx, offset)
}

func (c *Compiler) errorAt(tok token.Token, msg string) error {
	return diag.AtToken(diag.KindResolve, diag.Position(tok.Pos), tok.Lexeme, tok.Type == token.EOF, msg)
}

// --- scope / variable resolution ---

func (c *Compiler) beginScope() { c.current.depth++ }

func (c *Compiler) endScope() {
	fc := c.current
	fc.depth--
	for len(fc.locals) > 0 && fc.locals[len(fc.locals)-1].depth > fc.depth {
		fc.locals = fc.locals[:len(fc.locals)-1]
		c.emit(bytecode.OpPop, nil, bytecode.Position{})
	}
}

// declareLocal registers name as a local at the current depth, rejecting
// a redeclaration of the same name at the same depth.
func (c *Compiler) declareLocal(name token.Token) error {
	fc := c.current
	for i := len(fc.locals) - 1; i >= 0; i-- {
		l := fc.locals[i]
		if l.depth < fc.depth {
			break
		}
		if l.depth == fc.depth && l.name == name.Lexeme {
			return c.errorAt(name, fmt.Sprintf("variable '%s' already declared in this scope", name.Lexeme))
		}
	}
	if len(fc.locals) >= 256 {
		logrus.Panicln("too many local variables in one function")
	}
	fc.locals = append(fc.locals, local{name: name.Lexeme, depth: fc.depth})
	return nil
}

// resolveLocal finds the most recent same-name binding in the current
// function's own local table only — there are no upvalues.
func (c *Compiler) resolveLocal(name token.Token) (int, bool) {
	fc := c.current
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name.Lexeme {
			return i, true
		}
	}
	return -1, false
}

// --- statements ---

func (c *Compiler) compileStmt(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.ExpressionStmt:
		if err := c.compileExpr(s.Expression); err != nil {
			return err
		}
		c.emit(bytecode.OpPop, nil, bytecode.Position{})
		return nil
	case *ast.PrintStmt:
		if err := c.compileExpr(s.Expression); err != nil {
			return err
		}
		c.emit(bytecode.OpPrint, nil, posOf(s.Keyword))
		return nil
	case *ast.VarStmt:
		return c.compileVarStmt(s)
	case *ast.Block:
		c.beginScope()
		for _, st := range s.Statements {
			if err := c.compileStmt(st); err != nil {
				return err
			}
		}
		c.endScope()
		return nil
	case *ast.IfStmt:
		return c.compileIf(s)
	case *ast.WhileStmt:
		return c.compileWhile(s)
	case *ast.ReturnStmt:
		return c.compileReturn(s)
	case *ast.BreakStmt:
		return c.compileJumpOut(true, posOf(s.Keyword))
	case *ast.ContinueStmt:
		return c.compileJumpOut(false, posOf(s.Keyword))
	case *ast.FunctionStmt:
		return c.compileFunctionStmt(s)
	case *ast.ClassStmt:
		return c.errorAt(s.Name, "classes are not supported by the bytecode compiler")
	default:
		logrus.Panicln("internal: unhandled statement node in compiler")
		return nil
	}
}

func (c *Compiler) compileVarStmt(s *ast.VarStmt) error {
	for i, name := range s.Names {
		if s.Initializers[i] != nil {
			if err := c.compileExpr(s.Initializers[i]); err != nil {
				return err
			}
		} else {
			c.emit(bytecode.OpLoad, nil, posOf(name))
		}
		if c.current.depth == 0 {
			c.emit(bytecode.OpDefineGlobal, name.Lexeme, posOf(name))
		} else if err := c.declareLocal(name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileIf(s *ast.IfStmt) error {
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	thenJump := c.emit(bytecode.OpJumpIfFalse, 0, bytecode.Position{})
	c.emit(bytecode.OpPop, nil, bytecode.Position{})
	if err := c.compileStmt(s.Then); err != nil {
		return err
	}
	elseJump := c.emit(bytecode.OpJump, 0, bytecode.Position{})
	c.patchJump(thenJump)
	c.emit(bytecode.OpPop, nil, bytecode.Position{})
	if s.Else != nil {
		if err := c.compileStmt(s.Else); err != nil {
			return err
		}
	}
	c.patchJump(elseJump)
	return nil
}

func (c *Compiler) compileWhile(s *ast.WhileStmt) error {
	fc := c.current
	loop := &loopState{bodyDepth: fc.depth}
	fc.loops = append(fc.loops, loop)

	loopStart := fc.function.Chunk.Len()
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	exitJump := c.emit(bytecode.OpJumpIfFalse, 0, bytecode.Position{})
	c.emit(bytecode.OpPop, nil, bytecode.Position{})
	if err := c.compileStmt(s.Body); err != nil {
		return err
	}
	// continue jumps land here, before the (possibly absent) increment, so
	// a desugared for-loop's increment still runs on `continue`.
	for _, idx := range loop.continuePositions {
		c.patchJump(idx)
	}
	if s.Increment != nil {
		if err := c.compileExpr(s.Increment); err != nil {
			return err
		}
		c.emit(bytecode.OpPop, nil, bytecode.Position{})
	}
	backOffset := fc.function.Chunk.Len() - loopStart + 1
	c.emit(bytecode.OpJumpForward, backOffset, bytecode.Position{})
	c.patchJump(exitJump)
	c.emit(bytecode.OpPop, nil, bytecode.Position{})
	for _, idx := range loop.breakPositions {
		c.patchJump(idx)
	}

	fc.loops = fc.loops[:len(fc.loops)-1]
	return nil
}

// compileJumpOut handles break (isBreak) and continue, unwinding any
// locals declared deeper than the loop's body depth before jumping.
func (c *Compiler) compileJumpOut(isBreak bool, pos bytecode.Position) error {
	fc := c.current
	if len(fc.loops) == 0 {
		logrus.Panicln("internal: break/continue reached the compiler outside a loop; the resolver should have rejected this")
	}
	loop := fc.loops[len(fc.loops)-1]
	for i := len(fc.locals) - 1; i >= 0 && fc.locals[i].depth > loop.bodyDepth; i-- {
		c.emit(bytecode.OpPop, nil, pos)
	}
	idx := c.emit(bytecode.OpJump, 0, pos)
	if isBreak {
		loop.breakPositions = append(loop.breakPositions, idx)
	} else {
		loop.continuePositions = append(loop.continuePositions, idx)
	}
	return nil
}

func (c *Compiler) compileReturn(s *ast.ReturnStmt) error {
	if s.Value != nil {
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
	} else {
		c.emit(bytecode.OpLoad, nil, posOf(s.Keyword))
	}
	c.emit(bytecode.OpReturn, nil, posOf(s.Keyword))
	c.current.isReturned = true
	return nil
}

func (c *Compiler) compileFunctionStmt(s *ast.FunctionStmt) error {
	fn, err := c.compileFunctionBody(s.Name.Lexeme, s.Params, s.Body, bytecode.FuncNormal)
	if err != nil {
		return err
	}
	c.emit(bytecode.OpLoad, fn, posOf(s.Name))
	if c.current.depth == 0 {
		c.emit(bytecode.OpDefineGlobal, s.Name.Lexeme, posOf(s.Name))
		return nil
	}
	return c.declareLocal(s.Name)
}

// compileFunctionBody compiles params/body in a fresh sub-compiler and
// returns the resulting Function, leaving c.current restored to the
// enclosing compiler.
func (c *Compiler) compileFunctionBody(name string, params []token.Token, body []ast.Stmt, kind bytecode.FuncKind) (*bytecode.Function, error) {
	enclosing := c.current
	c.current = newFuncCompiler(enclosing, name, kind)
	c.current.function.Arity = len(params)
	for _, p := range params {
		if err := c.declareLocal(p); err != nil {
			c.current = enclosing
			return nil, err
		}
	}
	for _, st := range body {
		if err := c.compileStmt(st); err != nil {
			c.current = enclosing
			return nil, err
		}
	}
	c.finishFunction()
	fn := c.current.function
	c.current = enclosing
	return fn, nil
}

// --- expressions ---

func (c *Compiler) compileExpr(expr ast.Expr) error {
	switch e := expr.(type) {
	case *ast.Literal:
		c.emit(bytecode.OpLoad, e.Value, bytecode.Position{})
		return nil
	case *ast.Variable:
		if slot, ok := c.resolveLocal(e.Name); ok {
			c.emit(bytecode.OpGetLocal, slot, posOf(e.Name))
		} else {
			c.emit(bytecode.OpGetGlobal, e.Name.Lexeme, posOf(e.Name))
		}
		return nil
	case *ast.Assign:
		return c.compileAssign(e)
	case *ast.Unary:
		return c.compileUnary(e)
	case *ast.Binary:
		return c.compileBinary(e)
	case *ast.Logical:
		return c.compileLogical(e)
	case *ast.Ternary:
		return c.compileTernary(e)
	case *ast.Grouping:
		return c.compileExpr(e.Expression)
	case *ast.Call:
		return c.compileCall(e)
	case *ast.Lambda:
		return c.compileLambda(e)
	case *ast.Get:
		return c.errorAt(e.Name, "property access requires class support, which the bytecode compiler does not provide")
	case *ast.Set:
		return c.errorAt(e.Name, "property assignment requires class support, which the bytecode compiler does not provide")
	case *ast.Self:
		return c.errorAt(e.Keyword, "'self' requires class support, which the bytecode compiler does not provide")
	case *ast.Super:
		return c.errorAt(e.Keyword, "'super' requires class support, which the bytecode compiler does not provide")
	default:
		logrus.Panicln("internal: unhandled expression node in compiler")
		return nil
	}
}

var globalFused = map[token.Type]bytecode.OpCode{
	token.PlusEqual: bytecode.OpAddIGlobal, token.MinusEqual: bytecode.OpSubIGlobal,
	token.StarEqual: bytecode.OpMulIGlobal, token.SlashEqual: bytecode.OpDivIGlobal,
	token.PercentEqual: bytecode.OpModIGlobal,
}

var localFused = map[token.Type]bytecode.OpCode{
	token.PlusEqual: bytecode.OpAddILocal, token.MinusEqual: bytecode.OpSubILocal,
	token.StarEqual: bytecode.OpMulILocal, token.SlashEqual: bytecode.OpDivILocal,
	token.PercentEqual: bytecode.OpModILocal,
}

func (c *Compiler) compileAssign(e *ast.Assign) error {
	if err := c.compileExpr(e.Value); err != nil {
		return err
	}
	slot, isLocal := c.resolveLocal(e.Name)
	if e.Op == token.Equal {
		if isLocal {
			c.emit(bytecode.OpSetLocal, slot, posOf(e.Name))
		} else {
			c.emit(bytecode.OpSetGlobal, e.Name.Lexeme, posOf(e.Name))
		}
		return nil
	}
	if isLocal {
		c.emit(localFused[e.Op], slot, posOf(e.Name))
	} else {
		c.emit(globalFused[e.Op], e.Name.Lexeme, posOf(e.Name))
	}
	return nil
}

func (c *Compiler) compileUnary(e *ast.Unary) error {
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	switch e.Op.Type {
	case token.Minus:
		c.emit(bytecode.OpNegate, nil, posOf(e.Op))
	case token.Bang:
		c.emit(bytecode.OpNot, nil, posOf(e.Op))
	case token.Plus:
		// unary plus is numeric identity; no opcode needed
	}
	return nil
}

func (c *Compiler) compileBinary(e *ast.Binary) error {
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	pos := posOf(e.Op)
	switch e.Op.Type {
	case token.Plus:
		c.emit(bytecode.OpAdd, nil, pos)
	case token.Minus:
		c.emit(bytecode.OpSub, nil, pos)
	case token.Star:
		c.emit(bytecode.OpMul, nil, pos)
	case token.Slash:
		c.emit(bytecode.OpDiv, nil, pos)
	case token.Percent:
		c.emit(bytecode.OpMod, nil, pos)
	case token.EqualEqual:
		c.emit(bytecode.OpEq, nil, pos)
	case token.BangEqual:
		c.emit(bytecode.OpEq, nil, pos)
		c.emit(bytecode.OpNot, nil, pos)
	case token.Less:
		c.emit(bytecode.OpLess, nil, pos)
	case token.Greater:
		c.emit(bytecode.OpGreater, nil, pos)
	case token.LessEqual:
		c.emit(bytecode.OpGreater, nil, pos)
		c.emit(bytecode.OpNot, nil, pos)
	case token.GreaterEqual:
		c.emit(bytecode.OpLess, nil, pos)
		c.emit(bytecode.OpNot, nil, pos)
	}
	return nil
}

func (c *Compiler) compileLogical(e *ast.Logical) error {
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	pos := posOf(e.Op)
	var jumpOp bytecode.OpCode
	if e.Op.Type == token.And {
		jumpOp = bytecode.OpJumpIfFalse
	} else {
		jumpOp = bytecode.OpJumpIfTrue
	}
	jump := c.emit(jumpOp, 0, pos)
	c.emit(bytecode.OpPop, nil, pos)
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	c.patchJump(jump)
	return nil
}

func (c *Compiler) compileTernary(e *ast.Ternary) error {
	if err := c.compileExpr(e.Cond); err != nil {
		return err
	}
	elseJump := c.emit(bytecode.OpJumpIfFalse, 0, bytecode.Position{})
	c.emit(bytecode.OpPop, nil, bytecode.Position{})
	if err := c.compileExpr(e.Then); err != nil {
		return err
	}
	endJump := c.emit(bytecode.OpJump, 0, bytecode.Position{})
	c.patchJump(elseJump)
	c.emit(bytecode.OpPop, nil, bytecode.Position{})
	if err := c.compileExpr(e.Else); err != nil {
		return err
	}
	c.patchJump(endJump)
	return nil
}

func (c *Compiler) compileCall(e *ast.Call) error {
	if err := c.compileExpr(e.Callee); err != nil {
		return err
	}
	for _, a := range e.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	c.emit(bytecode.OpCall, len(e.Args), posOf(e.Paren))
	return nil
}

func (c *Compiler) compileLambda(e *ast.Lambda) error {
	c.lambdaCount++
	name := fmt.Sprintf("lambda$%d", c.lambdaCount)
	fn, err := c.compileFunctionBody(name, e.Params, e.Body, bytecode.FuncLambda)
	if err != nil {
		return err
	}
	c.emit(bytecode.OpLoad, fn, posOf(e.Keyword))
	return nil
}
