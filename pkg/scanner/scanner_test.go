package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/lox/internal/diag"
	"github.com/kristofer/lox/pkg/token"
)

func typesOf(tokens []token.Token) []token.Type {
	out := make([]token.Type, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Type
	}
	return out
}

func TestScanBasicTokens(t *testing.T) {
	sink := diag.NewSink()
	tokens := Scan("(){},.-+;*/%?:", sink)
	require.False(t, sink.HasErrors())
	assert.Equal(t, []token.Type{
		token.LeftParen, token.RightParen, token.LeftBrace, token.RightBrace,
		token.Comma, token.Dot, token.Minus, token.Plus, token.Semicolon,
		token.Star, token.Slash, token.Percent, token.Question, token.Colon,
		token.EOF,
	}, typesOf(tokens))
}

func TestScanTwoCharOperators(t *testing.T) {
	sink := diag.NewSink()
	tokens := Scan("== != <= >= += -= *= /= %=", sink)
	require.False(t, sink.HasErrors())
	assert.Equal(t, []token.Type{
		token.EqualEqual, token.BangEqual, token.LessEqual, token.GreaterEqual,
		token.PlusEqual, token.MinusEqual, token.StarEqual, token.SlashEqual,
		token.PercentEqual, token.EOF,
	}, typesOf(tokens))
}

func TestScanStringLiteral(t *testing.T) {
	sink := diag.NewSink()
	tokens := Scan(`"hello world"`, sink)
	require.False(t, sink.HasErrors())
	require.Len(t, tokens, 2)
	assert.Equal(t, token.String, tokens[0].Type)
	assert.Equal(t, "hello world", tokens[0].Literal)
}

func TestScanUnterminatedStringReportsError(t *testing.T) {
	sink := diag.NewSink()
	Scan(`"never closed`, sink)
	assert.True(t, sink.HasErrors())
}

func TestScanMultilineStringPosition(t *testing.T) {
	sink := diag.NewSink()
	src := "\"line1\nline2\"\nidentifier"
	tokens := Scan(src, sink)
	require.False(t, sink.HasErrors())
	require.Len(t, tokens, 3)
	assert.Equal(t, token.String, tokens[0].Type)
	assert.Equal(t, 1, tokens[0].Pos.Line)
	// the identifier after the multi-line string must be seen on line 3,
	// not on whatever line the string's closing quote left `s.line` at
	// before position tracking was fixed to snapshot the start position.
	assert.Equal(t, 3, tokens[1].Pos.Line)
}

func TestScanNumberLiteral(t *testing.T) {
	sink := diag.NewSink()
	tokens := Scan("3.14 42", sink)
	require.False(t, sink.HasErrors())
	require.Len(t, tokens, 3)
	assert.Equal(t, 3.14, tokens[0].Literal)
	assert.Equal(t, float64(42), tokens[1].Literal)
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	sink := diag.NewSink()
	tokens := Scan("let x = nil and false", sink)
	require.False(t, sink.HasErrors())
	assert.Equal(t, []token.Type{
		token.Let, token.Identifier, token.Equal, token.Nil, token.And, token.False, token.EOF,
	}, typesOf(tokens))
}

func TestScanModifier(t *testing.T) {
	sink := diag.NewSink()
	tokens := Scan("#[static]", sink)
	require.False(t, sink.HasErrors())
	require.Len(t, tokens, 2)
	assert.Equal(t, token.Hash, tokens[0].Type)
	assert.Equal(t, "static", tokens[0].Literal)
}

func TestScanIllegalCharacter(t *testing.T) {
	sink := diag.NewSink()
	Scan("@", sink)
	assert.True(t, sink.HasErrors())
}
