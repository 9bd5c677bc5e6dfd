// Package resolver implements the single static top-down pass over the
// parsed tree that checks `self`/`return`/`break`/`continue` legality and
// warns about unused variables in file mode. Duplicate declaration at the
// same lexical depth is flagged by the compiler (see pkg/compiler), which
// is where spec.md places that check.
package resolver

import (
	"fmt"

	"github.com/kristofer/lox/internal/diag"
	"github.com/kristofer/lox/pkg/ast"
	"github.com/kristofer/lox/pkg/token"
)

// FunctionType tracks what kind of function body is currently being
// resolved, used to validate `return` and `self`.
type FunctionType int

const (
	FuncMain FunctionType = iota
	FuncNormal
	FuncMethod
	FuncLambda
	FuncInitializer
	FuncStaticMethod
)

// ClassType tracks whether resolution is currently inside a class body.
type ClassType int

const (
	ClassNone ClassType = iota
	ClassInClass
)

// Mode selects whether unused-variable warnings are produced: only in
// file mode, never in the REPL, where each line's locals vanish by design.
type Mode int

const (
	ModeFile Mode = iota
	ModeREPL
)

type binding struct {
	tok  token.Token
	used bool
}

type resolver struct {
	sink         *diag.Sink
	mode         Mode
	functionType FunctionType
	classType    ClassType
	loopDepth    int
	scopes       []map[string]*binding
}

// Resolve runs the static pass over a parsed program, reporting legality
// errors to sink and (file mode only) unused-variable warnings to
// sink.Warn.
func Resolve(stmts []ast.Stmt, sink *diag.Sink, mode Mode) {
	r := &resolver{sink: sink, mode: mode, functionType: FuncMain}
	r.beginScope()
	r.resolveStmts(stmts)
	r.endScope()
}

func (r *resolver) beginScope() {
	r.scopes = append(r.scopes, map[string]*binding{})
}

func (r *resolver) endScope() {
	scope := r.scopes[len(r.scopes)-1]
	r.scopes = r.scopes[:len(r.scopes)-1]
	if r.mode != ModeFile {
		return
	}
	for name, b := range scope {
		if !b.used {
			r.sink.Warn(diag.AtToken(diag.KindResolve, diag.Position(b.tok.Pos), name, false,
				fmt.Sprintf("unused variable '%s'", name)))
		}
	}
}

func (r *resolver) declare(name token.Token) {
	if len(r.scopes) == 0 {
		return
	}
	r.scopes[len(r.scopes)-1][name.Lexeme] = &binding{tok: name}
}

func (r *resolver) use(name token.Token) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if b, ok := r.scopes[i][name.Lexeme]; ok {
			b.used = true
			return
		}
	}
}

func (r *resolver) reportError(tok token.Token, msg string) {
	r.sink.Report(diag.AtToken(diag.KindResolve, diag.Position(tok.Pos), tok.Lexeme, tok.Type == token.EOF, msg))
}

func (r *resolver) resolveStmts(stmts []ast.Stmt) {
	for _, s := range stmts {
		r.resolveStmt(s)
	}
}

func (r *resolver) resolveStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.ExpressionStmt:
		r.resolveExpr(s.Expression)
	case *ast.PrintStmt:
		r.resolveExpr(s.Expression)
	case *ast.VarStmt:
		for i, name := range s.Names {
			if s.Initializers[i] != nil {
				r.resolveExpr(s.Initializers[i])
			}
			r.declare(name)
		}
	case *ast.Block:
		r.beginScope()
		r.resolveStmts(s.Statements)
		r.endScope()
	case *ast.IfStmt:
		r.resolveExpr(s.Cond)
		r.resolveStmt(s.Then)
		if s.Else != nil {
			r.resolveStmt(s.Else)
		}
	case *ast.WhileStmt:
		r.resolveExpr(s.Cond)
		r.loopDepth++
		r.resolveStmt(s.Body)
		if s.Increment != nil {
			r.resolveExpr(s.Increment)
		}
		r.loopDepth--
	case *ast.ReturnStmt:
		if r.functionType == FuncMain {
			r.reportError(s.Keyword, "can't return from top-level code")
		}
		if s.Value != nil {
			if r.functionType == FuncInitializer {
				r.reportError(s.Keyword, "can't return a value from an initializer")
			}
			r.resolveExpr(s.Value)
		}
	case *ast.BreakStmt:
		if r.loopDepth == 0 {
			r.reportError(s.Keyword, "can't use 'break' outside a loop")
		}
	case *ast.ContinueStmt:
		if r.loopDepth == 0 {
			r.reportError(s.Keyword, "can't use 'continue' outside a loop")
		}
	case *ast.FunctionStmt:
		r.declare(s.Name)
		r.resolveFunction(s, FuncNormal)
	case *ast.ClassStmt:
		r.resolveClass(s)
	}
}

func (r *resolver) resolveFunction(fn *ast.FunctionStmt, kind FunctionType) {
	enclosingFn, enclosingLoop := r.functionType, r.loopDepth
	r.functionType, r.loopDepth = kind, 0
	r.beginScope()
	for _, p := range fn.Params {
		r.declare(p)
	}
	r.resolveStmts(fn.Body)
	r.endScope()
	r.functionType, r.loopDepth = enclosingFn, enclosingLoop
}

func (r *resolver) resolveClass(c *ast.ClassStmt) {
	enclosingClass := r.classType
	r.classType = ClassInClass
	r.declare(c.Name)
	if c.Superclass != nil {
		if c.Superclass.Name.Lexeme == c.Name.Lexeme {
			r.reportError(c.Superclass.Name, "a class can't extend itself")
		}
		r.use(c.Superclass.Name)
	}
	for _, m := range c.Methods {
		kind := FuncMethod
		switch {
		case m.IsStatic:
			kind = FuncStaticMethod
		case m.IsInitializer:
			kind = FuncInitializer
		}
		r.resolveFunction(m, kind)
	}
	r.classType = enclosingClass
}

func (r *resolver) resolveExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.Literal:
		// no identifiers to resolve
	case *ast.Variable:
		r.use(e.Name)
	case *ast.Assign:
		r.use(e.Name)
		r.resolveExpr(e.Value)
	case *ast.Unary:
		r.resolveExpr(e.Right)
	case *ast.Binary:
		r.resolveExpr(e.Left)
		r.resolveExpr(e.Right)
	case *ast.Logical:
		r.resolveExpr(e.Left)
		r.resolveExpr(e.Right)
	case *ast.Ternary:
		r.resolveExpr(e.Cond)
		r.resolveExpr(e.Then)
		r.resolveExpr(e.Else)
	case *ast.Grouping:
		r.resolveExpr(e.Expression)
	case *ast.Call:
		r.resolveExpr(e.Callee)
		for _, a := range e.Args {
			r.resolveExpr(a)
		}
	case *ast.Lambda:
		enclosingFn, enclosingLoop := r.functionType, r.loopDepth
		r.functionType, r.loopDepth = FuncLambda, 0
		r.beginScope()
		for _, p := range e.Params {
			r.declare(p)
		}
		r.resolveStmts(e.Body)
		r.endScope()
		r.functionType, r.loopDepth = enclosingFn, enclosingLoop
	case *ast.Get:
		r.resolveExpr(e.Object)
	case *ast.Set:
		r.resolveExpr(e.Object)
		r.resolveExpr(e.Value)
	case *ast.Self:
		if r.classType == ClassNone || r.functionType == FuncStaticMethod {
			r.reportError(e.Keyword, "can't use 'self' outside a method")
		}
	case *ast.Super:
		if r.classType == ClassNone {
			r.reportError(e.Keyword, "can't use 'super' outside a method")
		}
	}
}
