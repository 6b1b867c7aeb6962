package grammar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wabznasm "github.com/wabznasm/go-wabznasm"
	"github.com/wabznasm/go-wabznasm/grammar"
)

func TestLanguageSingleton(t *testing.T) {
	first := grammar.Language()
	require.NotNil(t, first)
	assert.Same(t, first, grammar.Language())
	assert.NoError(t, first.Validate())
}

func TestLanguageSymbols(t *testing.T) {
	lang := grammar.Language()

	assert.Equal(t, "source_file", lang.SymbolName(lang.RootSymbol()))

	for _, name := range []string{"number", "identifier", "comment", "block_comment"} {
		sym, ok := lang.SymbolByName(name)
		require.True(t, ok, "symbol %q missing", name)
		assert.True(t, lang.IsNamed(sym), "symbol %q should be named", name)
	}
	for _, name := range []string{":", ";", "+", "-", "*", "/", "%", "^", "!", "(", ")", "{", "}", "[", "]"} {
		sym, ok := lang.SymbolByName(name)
		require.True(t, ok, "symbol %q missing", name)
		assert.False(t, lang.IsNamed(sym), "symbol %q should be anonymous", name)
	}
	for _, name := range []string{"left", "right", "operator", "base", "exponent", "operand", "name", "value", "params", "body", "function", "args"} {
		_, ok := lang.FieldByName(name)
		assert.True(t, ok, "field %q missing", name)
	}
}

func TestLanguageExternals(t *testing.T) {
	lang := grammar.Language()
	require.NotNil(t, lang.Scanner)
	require.Len(t, lang.ExternalTokens, 2)

	comment, ok := lang.SymbolByName("comment")
	require.True(t, ok)
	block, ok := lang.SymbolByName("block_comment")
	require.True(t, ok)
	assert.True(t, lang.IsExternal(comment))
	assert.True(t, lang.IsExternal(block))
	assert.True(t, lang.IsExtra(comment))
	assert.True(t, lang.IsExtra(block))
}

func TestLanguageParsesCalculatorPrograms(t *testing.T) {
	p, err := wabznasm.NewParser(grammar.Language())
	require.NoError(t, err)

	programs := []string{
		"1+2",
		"6*7",
		"10%3",
		"2^10",
		"5!",
		"-3 + 4",
		"(1+2)*(3+4)",
		"x: 42",
		"y: x + 1",
		"f: {x+1}",
		"add: {[x;y] x+y}",
		"add[2; 3]",
		"compose[f; g]",
		"area: {[w;h] w*h} area[3; 4]",
		"x: 1 \\ the answer minus 41",
		"/* setup */ x: 1",
	}
	for _, src := range programs {
		tree, err := p.Parse([]byte(src))
		require.NoError(t, err, "parse %q", src)
		assert.False(t, tree.HasError(), "parse %q: %s", src, tree.String())
	}
}

func TestLanguageConcurrentParsers(t *testing.T) {
	lang := grammar.Language()
	done := make(chan string, 8)
	for i := 0; i < 8; i++ {
		go func() {
			p, err := wabznasm.NewParser(lang)
			if err != nil {
				done <- err.Error()
				return
			}
			tree, err := p.Parse([]byte("total: price * count"))
			if err != nil {
				done <- err.Error()
				return
			}
			done <- tree.String()
		}()
	}
	first := <-done
	for i := 1; i < 8; i++ {
		assert.Equal(t, first, <-done)
	}
}
