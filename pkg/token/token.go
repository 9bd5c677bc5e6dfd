// Package token defines the lexical token model shared by the scanner,
// parser, compiler, and VM.
package token

import "github.com/josharian/intern"

// Type identifies the lexical category of a token.
type Type int

const (
	EOF Type = iota
	Illegal

	// single-character
	LeftParen
	RightParen
	LeftBrace
	RightBrace
	Comma
	Dot
	Minus
	Plus
	Semicolon
	Slash
	Star
	Percent
	Question
	Colon
	Hash // the whole bracketed modifier, e.g. "#[static]"; Literal carries the modifier name

	// one or two character
	Bang
	BangEqual
	Equal
	EqualEqual
	Greater
	GreaterEqual
	Less
	LessEqual
	PlusEqual
	MinusEqual
	StarEqual
	SlashEqual
	PercentEqual

	// literals
	Identifier
	String
	Number

	// keywords
	And
	Class
	Else
	False
	Func
	For
	If
	Nil
	Or
	Print
	Return
	Super
	Self
	True
	Let
	While
	Continue
	Break
	Extend
)

var names = map[Type]string{
	EOF: "EOF", Illegal: "ILLEGAL",
	LeftParen: "(", RightParen: ")", LeftBrace: "{", RightBrace: "}",
	Comma: ",", Dot: ".", Minus: "-", Plus: "+", Semicolon: ";",
	Slash: "/", Star: "*", Percent: "%", Question: "?", Colon: ":",
	Hash: "#[...]",
	Bang: "!", BangEqual: "!=", Equal: "=", EqualEqual: "==",
	Greater: ">", GreaterEqual: ">=", Less: "<", LessEqual: "<=",
	PlusEqual: "+=", MinusEqual: "-=", StarEqual: "*=", SlashEqual: "/=",
	PercentEqual: "%=",
	Identifier:   "IDENT", String: "STRING", Number: "NUMBER",
	And: "and", Class: "class", Else: "else", False: "false",
	Func: "func", For: "for", If: "if", Nil: "nil", Or: "or",
	Print: "print", Return: "return", Super: "super", Self: "self",
	True: "true", Let: "let", While: "while", Continue: "continue",
	Break: "break", Extend: "extend",
}

func (t Type) String() string {
	if s, ok := names[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Keywords maps a recognized identifier lexeme to its keyword Type.
var Keywords = map[string]Type{
	"and": And, "class": Class, "else": Else, "false": False,
	"func": Func, "for": For, "if": If, "nil": Nil, "or": Or,
	"print": Print, "return": Return, "super": Super, "self": Self,
	"true": True, "let": Let, "while": While, "continue": Continue,
	"break": Break, "extend": Extend,
}

// Position is a one-based row, zero-based column source location.
type Position struct {
	Line   int
	Column int
}

// Token is an occurrence of a lexical category at a source position,
// carrying an interned lexeme and an optional literal immediate value
// (the parsed number or unescaped string content).
type Token struct {
	Type    Type
	Lexeme  string
	Literal any
	Pos     Position
}

// New builds a Token, interning its lexeme so repeated identifiers and
// keywords across a source file share one backing string.
func New(t Type, lexeme string, literal any, pos Position) Token {
	return Token{Type: t, Lexeme: intern.String(lexeme), Literal: literal, Pos: pos}
}
