package grammar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wabznasm "github.com/wabznasm/go-wabznasm"
	"github.com/wabznasm/go-wabznasm/grammar"
)

func collectTokens(ts *grammar.TokenSource) []wabznasm.Token {
	var out []wabznasm.Token
	for {
		tok := ts.Next()
		if tok.Symbol == wabznasm.SymbolEOF {
			return out
		}
		out = append(out, tok)
	}
}

func TestTokenSourceStream(t *testing.T) {
	lang := grammar.Language()
	src := []byte("x: 42 \\ hi")
	toks := collectTokens(grammar.NewTokenSource(src))

	require.Len(t, toks, 4)
	wantKinds := []string{"identifier", ":", "number", "comment"}
	wantTexts := []string{"x", ":", "42", "\\ hi"}
	for i, tok := range toks {
		assert.Equal(t, wantKinds[i], lang.SymbolName(tok.Symbol), "token %d", i)
		assert.Equal(t, wantTexts[i], tok.Text, "token %d", i)
	}
	assert.Equal(t, uint32(6), toks[3].StartByte)
	assert.Equal(t, uint32(10), toks[3].EndByte)
}

func TestTokenSourcePoints(t *testing.T) {
	toks := collectTokens(grammar.NewTokenSource([]byte("1\n 22")))
	require.Len(t, toks, 2)

	assert.Equal(t, wabznasm.Point{Row: 0, Column: 0}, toks[0].StartPoint)
	assert.Equal(t, wabznasm.Point{Row: 1, Column: 1}, toks[1].StartPoint)
	assert.Equal(t, wabznasm.Point{Row: 1, Column: 3}, toks[1].EndPoint)
}

func TestTokenSourceErrorTokens(t *testing.T) {
	toks := collectTokens(grammar.NewTokenSource([]byte("1 @ 2")))
	require.Len(t, toks, 3)
	assert.Equal(t, wabznasm.SymbolError, toks[1].Symbol)
	assert.Equal(t, "@", toks[1].Text)

	// An unterminated block comment becomes one error token for the tail.
	toks = collectTokens(grammar.NewTokenSource([]byte("1 /* open")))
	require.Len(t, toks, 2)
	assert.Equal(t, wabznasm.SymbolError, toks[1].Symbol)
	assert.Equal(t, "/* open", toks[1].Text)
}

func TestTokenSourceNestedBlockComment(t *testing.T) {
	lang := grammar.Language()
	toks := collectTokens(grammar.NewTokenSource([]byte("/* a /* b */ c */ 9")))
	require.Len(t, toks, 2)
	assert.Equal(t, "block_comment", lang.SymbolName(toks[0].Symbol))
	assert.Equal(t, "/* a /* b */ c */", toks[0].Text)
	assert.Equal(t, "number", lang.SymbolName(toks[1].Symbol))
}

func TestTokenSourceSkipToByte(t *testing.T) {
	src := []byte("aa: 1\nbb: 2\n")
	ts := grammar.NewTokenSource(src)

	tok := ts.SkipToByte(6)
	assert.Equal(t, "bb", tok.Text)
	assert.Equal(t, wabznasm.Point{Row: 1, Column: 0}, tok.StartPoint)

	// Rewinding re-lexes from the start.
	tok = ts.SkipToByte(0)
	assert.Equal(t, "aa", tok.Text)

	tok = ts.SkipToByte(uint32(len(src)))
	assert.Equal(t, wabznasm.SymbolEOF, tok.Symbol)
}

func TestTokenSourceMatchesTableLexer(t *testing.T) {
	p, err := wabznasm.NewParser(grammar.Language())
	require.NoError(t, err)

	programs := []string{
		"",
		"42",
		"1+2*3",
		"x: 42",
		"f: {x+1}",
		"add: {[x;y] x+y} add[2; 3]",
		"\\ comment only",
		"1 /* note */ 2",
		"(2+3)! / 5^2",
	}
	for _, src := range programs {
		fromTable, err := p.Parse([]byte(src))
		require.NoError(t, err, "table parse %q", src)
		fromHand, err := p.ParseWithTokenSource([]byte(src), grammar.NewTokenSource([]byte(src)))
		require.NoError(t, err, "hand parse %q", src)
		assert.True(t,
			wabznasm.StructurallyEqual(fromTable.RootNode(), fromHand.RootNode()),
			"parse %q diverged:\n table %s\n hand  %s", src, fromTable.String(), fromHand.String())
	}
}
