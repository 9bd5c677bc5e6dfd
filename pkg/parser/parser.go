// Package parser implements the recursive-descent, precedence-climbing
// parser that turns a token stream into an expression/statement tree,
// synchronizing at statement boundaries on error so a single parse run
// surfaces every error it can find.
package parser

import (
	"fmt"

	"github.com/kristofer/lox/internal/diag"
	"github.com/kristofer/lox/pkg/ast"
	"github.com/kristofer/lox/pkg/token"
)

type parser struct {
	tokens  []token.Token
	current int
	sink    *diag.Sink
}

// parseError unwinds the current declaration via panic/recover; the
// diagnostic itself is already reported to the sink by the time it's
// raised, so recover() only needs to trigger synchronize().
type parseError struct{}

// Parse builds a program (a sequence of top-level declarations) from
// tokens, reporting every parse error found to sink rather than stopping
// at the first.
func Parse(tokens []token.Token, sink *diag.Sink) []ast.Stmt {
	p := &parser{tokens: tokens, sink: sink}
	var stmts []ast.Stmt
	for !p.isAtEnd() {
		if s := p.safeDeclaration(); s != nil {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func (p *parser) safeDeclaration() (stmt ast.Stmt) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(parseError); ok {
				p.synchronize()
				stmt = nil
				return
			}
			panic(r)
		}
	}()
	return p.declaration()
}

// --- token navigation ---

func (p *parser) peek() token.Token     { return p.tokens[p.current] }
func (p *parser) previous() token.Token { return p.tokens[p.current-1] }
func (p *parser) isAtEnd() bool         { return p.peek().Type == token.EOF }

func (p *parser) advance() token.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.previous()
}

func (p *parser) check(t token.Type) bool {
	if p.isAtEnd() {
		return t == token.EOF
	}
	return p.peek().Type == t
}

func (p *parser) match(types ...token.Type) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *parser) consume(t token.Type, msg string) token.Token {
	if p.check(t) {
		return p.advance()
	}
	panic(p.error(p.peek(), msg))
}

func (p *parser) error(tok token.Token, msg string) parseError {
	atEnd := tok.Type == token.EOF
	lexeme := tok.Lexeme
	if atEnd {
		lexeme = ""
	}
	p.sink.Report(diag.AtToken(diag.KindParse, diag.Position(tok.Pos), lexeme, atEnd, msg))
	return parseError{}
}

// synchronize discards tokens until a likely statement boundary so parsing
// can resume after an error instead of cascading more errors from it.
func (p *parser) synchronize() {
	p.advance()
	for !p.isAtEnd() {
		if p.previous().Type == token.Semicolon {
			return
		}
		switch p.peek().Type {
		case token.Class, token.Func, token.Let, token.For, token.If,
			token.While, token.Print, token.Return, token.Break, token.Continue:
			return
		}
		p.advance()
	}
}

// --- declarations ---

func (p *parser) declaration() ast.Stmt {
	switch {
	case p.match(token.Let):
		return p.varDecl()
	case p.match(token.Func):
		return p.funcDecl("function")
	case p.match(token.Class):
		return p.classDecl()
	default:
		return p.statement()
	}
}

func (p *parser) varDecl() ast.Stmt {
	var names []token.Token
	var inits []ast.Expr
	for {
		name := p.consume(token.Identifier, "expect variable name")
		var init ast.Expr
		if p.match(token.Equal) {
			init = p.ternary()
		}
		names = append(names, name)
		inits = append(inits, init)
		if !p.match(token.Comma) {
			break
		}
	}
	p.consume(token.Semicolon, "expect ';' after variable declaration")
	return &ast.VarStmt{Names: names, Initializers: inits}
}

func (p *parser) funcDecl(kind string) *ast.FunctionStmt {
	name := p.consume(token.Identifier, fmt.Sprintf("expect %s name", kind))
	p.consume(token.LeftParen, fmt.Sprintf("expect '(' after %s name", kind))
	params := p.paramList()
	p.consume(token.LeftBrace, fmt.Sprintf("expect '{' before %s body", kind))
	body := p.block()
	return &ast.FunctionStmt{Name: name, Params: params, Body: body}
}

func (p *parser) paramList() []token.Token {
	var params []token.Token
	if !p.check(token.RightParen) {
		for {
			if len(params) >= 256 {
				p.error(p.peek(), "can't have more than 256 parameters")
			}
			params = append(params, p.consume(token.Identifier, "expect parameter name"))
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.consume(token.RightParen, "expect ')' after parameters")
	return params
}

func (p *parser) block() []ast.Stmt {
	var stmts []ast.Stmt
	for !p.check(token.RightBrace) && !p.isAtEnd() {
		if s := p.safeDeclaration(); s != nil {
			stmts = append(stmts, s)
		}
	}
	p.consume(token.RightBrace, "expect '}' after block")
	return stmts
}

func (p *parser) classDecl() ast.Stmt {
	name := p.consume(token.Identifier, "expect class name")
	var superclass *ast.Variable
	if p.match(token.Extend) {
		superName := p.consume(token.Identifier, "expect superclass name")
		superclass = &ast.Variable{Name: superName}
	}
	p.consume(token.LeftBrace, "expect '{' before class body")
	var methods []*ast.FunctionStmt
	for !p.check(token.RightBrace) && !p.isAtEnd() {
		isStatic := p.match(token.Hash)
		m := p.funcDecl("method")
		m.IsStatic = isStatic
		m.IsInitializer = !isStatic && m.Name.Lexeme == "init"
		methods = append(methods, m)
	}
	p.consume(token.RightBrace, "expect '}' after class body")
	return &ast.ClassStmt{Name: name, Superclass: superclass, Methods: methods}
}

// --- statements ---

func (p *parser) statement() ast.Stmt {
	switch {
	case p.match(token.Print):
		return p.printStmt()
	case p.match(token.LeftBrace):
		return &ast.Block{Statements: p.block()}
	case p.match(token.If):
		return p.ifStmt()
	case p.match(token.While):
		return p.whileStmt()
	case p.match(token.For):
		return p.forStmt()
	case p.match(token.Return):
		return p.returnStmt()
	case p.match(token.Break):
		return p.breakStmt()
	case p.match(token.Continue):
		return p.continueStmt()
	default:
		return p.exprStmt()
	}
}

func (p *parser) printStmt() ast.Stmt {
	keyword := p.previous()
	expr := p.expression()
	p.consume(token.Semicolon, "expect ';' after value")
	return &ast.PrintStmt{Keyword: keyword, Expression: expr}
}

func (p *parser) exprStmt() ast.Stmt {
	expr := p.expression()
	p.consume(token.Semicolon, "expect ';' after expression")
	return &ast.ExpressionStmt{Expression: expr}
}

func (p *parser) ifStmt() ast.Stmt {
	p.consume(token.LeftParen, "expect '(' after 'if'")
	cond := p.expression()
	p.consume(token.RightParen, "expect ')' after condition")
	then := p.statement()
	var els ast.Stmt
	if p.match(token.Else) {
		els = p.statement()
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: els}
}

func (p *parser) whileStmt() ast.Stmt {
	p.consume(token.LeftParen, "expect '(' after 'while'")
	cond := p.expression()
	p.consume(token.RightParen, "expect ')' after condition")
	body := p.statement()
	return &ast.WhileStmt{Cond: cond, Body: body}
}

// forStmt desugars `for (init; cond; inc) body` into `{ init; while(cond) {
// body; inc; } }`, keeping the increment on the WhileStmt itself (rather
// than appended into Body) so `continue` still runs it.
func (p *parser) forStmt() ast.Stmt {
	p.consume(token.LeftParen, "expect '(' after 'for'")

	var init ast.Stmt
	switch {
	case p.match(token.Semicolon):
		init = nil
	case p.match(token.Let):
		init = p.varDecl()
	default:
		init = p.exprStmt()
	}

	var cond ast.Expr
	if !p.check(token.Semicolon) {
		cond = p.expression()
	}
	p.consume(token.Semicolon, "expect ';' after loop condition")

	var increment ast.Expr
	if !p.check(token.RightParen) {
		increment = p.expression()
	}
	p.consume(token.RightParen, "expect ')' after for clauses")

	body := p.statement()

	if cond == nil {
		cond = &ast.Literal{Value: true}
	}
	loop := ast.Stmt(&ast.WhileStmt{Cond: cond, Body: body, Increment: increment})

	if init == nil {
		return loop
	}
	return &ast.Block{Statements: []ast.Stmt{init, loop}}
}

func (p *parser) returnStmt() ast.Stmt {
	keyword := p.previous()
	var value ast.Expr
	if !p.check(token.Semicolon) {
		value = p.expression()
	}
	p.consume(token.Semicolon, "expect ';' after return value")
	return &ast.ReturnStmt{Keyword: keyword, Value: value}
}

func (p *parser) breakStmt() ast.Stmt {
	keyword := p.previous()
	p.consume(token.Semicolon, "expect ';' after 'break'")
	return &ast.BreakStmt{Keyword: keyword}
}

func (p *parser) continueStmt() ast.Stmt {
	keyword := p.previous()
	p.consume(token.Semicolon, "expect ';' after 'continue'")
	return &ast.ContinueStmt{Keyword: keyword}
}

// --- expressions, in precedence order lowest to highest ---
//
// Precedence here follows spec's explicit design note (ternary is
// right-associative and binds *looser* than and/or) rather than the
// nesting that a literal top-to-bottom reading of the grammar table would
// otherwise produce; see the design ledger for the reasoning.

var assignOps = map[token.Type]bool{
	token.Equal: true, token.PlusEqual: true, token.MinusEqual: true,
	token.StarEqual: true, token.SlashEqual: true, token.PercentEqual: true,
}

func (p *parser) expression() ast.Expr { return p.assignment() }

func (p *parser) assignment() ast.Expr {
	expr := p.ternary()
	if assignOps[p.peek().Type] {
		opTok := p.advance()
		value := p.assignment()
		switch target := expr.(type) {
		case *ast.Variable:
			return &ast.Assign{Name: target.Name, Op: opTok.Type, Value: value}
		case *ast.Get:
			if opTok.Type != token.Equal {
				p.error(opTok, "invalid assignment target")
				return expr
			}
			return &ast.Set{Object: target.Object, Name: target.Name, Value: value}
		}
		p.error(opTok, "invalid assignment target")
		return expr
	}
	return expr
}

func (p *parser) ternary() ast.Expr {
	expr := p.logicOr()
	if p.match(token.Question) {
		then := p.ternary()
		p.consume(token.Colon, "expect ':' after then-branch of ternary")
		els := p.ternary()
		return &ast.Ternary{Cond: expr, Then: then, Else: els}
	}
	return expr
}

func (p *parser) logicOr() ast.Expr {
	expr := p.logicAnd()
	for p.match(token.Or) {
		op := p.previous()
		right := p.logicAnd()
		expr = &ast.Logical{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *parser) logicAnd() ast.Expr {
	expr := p.equality()
	for p.match(token.And) {
		op := p.previous()
		right := p.equality()
		expr = &ast.Logical{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *parser) equality() ast.Expr {
	expr := p.comparison()
	for p.match(token.BangEqual, token.EqualEqual) {
		op := p.previous()
		right := p.comparison()
		expr = &ast.Binary{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *parser) comparison() ast.Expr {
	expr := p.term()
	for p.match(token.Greater, token.GreaterEqual, token.Less, token.LessEqual) {
		op := p.previous()
		right := p.term()
		expr = &ast.Binary{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *parser) term() ast.Expr {
	expr := p.factor()
	for p.match(token.Plus, token.Minus) {
		op := p.previous()
		right := p.factor()
		expr = &ast.Binary{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *parser) factor() ast.Expr {
	expr := p.unary()
	for p.match(token.Star, token.Slash, token.Percent) {
		op := p.previous()
		right := p.unary()
		expr = &ast.Binary{Left: expr, Op: op, Right: right}
	}
	return expr
}

func (p *parser) unary() ast.Expr {
	if p.match(token.Bang, token.Minus, token.Plus) {
		op := p.previous()
		right := p.unary()
		return &ast.Unary{Op: op, Right: right}
	}
	return p.call()
}

// call is deliberately not chainable (`f()()` does not parse): the
// grammar gives it a single optional call suffix on a primary, though any
// number of `.name` property accesses may precede that call.
func (p *parser) call() ast.Expr {
	expr := p.primary()
	for p.match(token.Dot) {
		name := p.consume(token.Identifier, "expect property name after '.'")
		expr = &ast.Get{Object: expr, Name: name}
	}
	if p.match(token.LeftParen) {
		expr = p.finishCall(expr)
	}
	return expr
}

func (p *parser) finishCall(callee ast.Expr) ast.Expr {
	var args []ast.Expr
	if !p.check(token.RightParen) {
		for {
			if len(args) >= 256 {
				p.error(p.peek(), "can't have more than 256 arguments")
			}
			args = append(args, p.ternary())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	paren := p.consume(token.RightParen, "expect ')' after arguments")
	return &ast.Call{Callee: callee, Paren: paren, Args: args}
}

func (p *parser) primary() ast.Expr {
	switch {
	case p.match(token.False):
		return &ast.Literal{Value: false}
	case p.match(token.True):
		return &ast.Literal{Value: true}
	case p.match(token.Nil):
		return &ast.Literal{Value: nil}
	case p.match(token.Number, token.String):
		return &ast.Literal{Value: p.previous().Literal}
	case p.match(token.Self):
		return &ast.Self{Keyword: p.previous()}
	case p.match(token.Super):
		keyword := p.previous()
		p.consume(token.Dot, "expect '.' after 'super'")
		method := p.consume(token.Identifier, "expect superclass method name")
		return &ast.Super{Keyword: keyword, Method: method}
	case p.match(token.Identifier):
		return &ast.Variable{Name: p.previous()}
	case p.match(token.LeftParen):
		expr := p.expression()
		p.consume(token.RightParen, "expect ')' after expression")
		return &ast.Grouping{Expression: expr}
	case p.match(token.Func):
		return p.lambda()
	default:
		panic(p.error(p.peek(), "expect expression"))
	}
}

func (p *parser) lambda() ast.Expr {
	keyword := p.previous()
	p.consume(token.LeftParen, "expect '(' after 'func'")
	params := p.paramList()
	p.consume(token.LeftBrace, "expect '{' before lambda body")
	body := p.block()
	return &ast.Lambda{Keyword: keyword, Params: params, Body: body}
}
