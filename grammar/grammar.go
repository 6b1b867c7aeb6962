// Package grammar compiles the wabznasm language into a parse table. The
// language is a small calculator DSL: arithmetic with factorial and
// exponentiation, `name: value` assignments, `name: {[x;y] body}` function
// definitions, and `f[args]` calls. Backslash line comments and nested block
// comments are recognized by the external scanner.
package grammar

import (
	"fmt"
	"sync"

	wabznasm "github.com/wabznasm/go-wabznasm"
	"github.com/wabznasm/go-wabznasm/tablegen"
)

var (
	once sync.Once
	lang *wabznasm.Language
)

// Language returns the compiled wabznasm table. The table is built once,
// lives for the process lifetime, is immutable, and is safe to share across
// any number of parsers.
func Language() *wabznasm.Language {
	once.Do(func() {
		var err error
		lang, err = build()
		if err != nil {
			panic(fmt.Sprintf("grammar: %v", err))
		}
	})
	return lang
}

func build() (*wabznasm.Language, error) {
	sc := newCommentScanner()
	g := &tablegen.Grammar{
		Name:    "wabznasm",
		Scanner: sc,
		Tokens: []tablegen.Token{
			{Name: "ws", Pattern: tablegen.Plus(tablegen.Chars(" \t\r\n")), Skip: true},
			{Name: "number", Pattern: tablegen.Plus(tablegen.Class(tablegen.R('0', '9'))), Named: true},
			{Name: "identifier", Named: true, Pattern: tablegen.Seq(
				tablegen.Class(tablegen.R('a', 'z'), tablegen.R('A', 'Z'), tablegen.R('_', '_')),
				tablegen.Star(tablegen.Class(
					tablegen.R('a', 'z'), tablegen.R('A', 'Z'),
					tablegen.R('0', '9'), tablegen.R('_', '_'))),
			)},
			{Name: ":", Pattern: tablegen.Lit(":")},
			{Name: ";", Pattern: tablegen.Lit(";")},
			{Name: "+", Pattern: tablegen.Lit("+")},
			{Name: "-", Pattern: tablegen.Lit("-")},
			{Name: "*", Pattern: tablegen.Lit("*")},
			{Name: "/", Pattern: tablegen.Lit("/")},
			{Name: "%", Pattern: tablegen.Lit("%")},
			{Name: "^", Pattern: tablegen.Lit("^")},
			{Name: "!", Pattern: tablegen.Lit("!")},
			{Name: "(", Pattern: tablegen.Lit("(")},
			{Name: ")", Pattern: tablegen.Lit(")")},
			{Name: "{", Pattern: tablegen.Lit("{")},
			{Name: "}", Pattern: tablegen.Lit("}")},
			{Name: "[", Pattern: tablegen.Lit("[")},
			{Name: "]", Pattern: tablegen.Lit("]")},
		},
		Externals: []tablegen.External{
			{Name: "comment", Named: true, Extra: true},
			{Name: "block_comment", Named: true, Extra: true},
		},
		Rules: rules(),
	}

	built, err := tablegen.Build(g)
	if err != nil {
		return nil, err
	}

	lineSym, ok := built.SymbolByName("comment")
	if !ok {
		return nil, fmt.Errorf("comment symbol missing from table")
	}
	blockSym, ok := built.SymbolByName("block_comment")
	if !ok {
		return nil, fmt.Errorf("block_comment symbol missing from table")
	}
	if err := sc.bind(lineSym, blockSym); err != nil {
		return nil, err
	}
	return built, nil
}

func rules() []tablegen.Rule {
	el := tablegen.El
	f := tablegen.F

	// Binary and postfix alternatives carry dynamic precedence so the
	// single-expression reading of `1 - 2` beats the two-statement reading
	// when both survive to the end of input.
	binary := func(left, op, right string, lf, rf string) tablegen.Choice {
		return tablegen.Choice{
			Elements: []tablegen.Element{f(lf, left), f("operator", op), f(rf, right)},
			Dynamic:  1,
		}
	}
	chain := func(sym string) tablegen.Choice {
		return tablegen.Choice{Elements: []tablegen.Element{el(sym)}, Inline: true}
	}

	return []tablegen.Rule{
		{Name: "source_file", Named: true, Choices: []tablegen.Choice{
			{},
			{Elements: []tablegen.Element{el("_statements")}},
		}},
		{Name: "_statements", Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{el("statement")}},
			{Elements: []tablegen.Element{el("_statements"), el("statement")}},
			{Elements: []tablegen.Element{el("_statements"), el(";")}},
		}},
		{Name: "statement", Named: true, Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{el("expression")}},
		}},
		{Name: "expression", Named: true, Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{el("assignment")}},
			{Elements: []tablegen.Element{el("additive")}},
		}},
		{Name: "assignment", Named: true, Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{f("name", "identifier"), el(":"), f("value", "expression")}},
			{Elements: []tablegen.Element{f("name", "identifier"), el(":"), f("value", "function_body")}},
		}},
		{Name: "function_body", Named: true, Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{el("{"), f("body", "expression"), el("}")}},
			{Elements: []tablegen.Element{el("{"), f("params", "params"), f("body", "expression"), el("}")}},
		}},
		{Name: "params", Named: true, Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{el("["), el("]")}},
			{Elements: []tablegen.Element{el("["), el("_params"), el("]")}},
		}},
		{Name: "_params", Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{el("identifier")}},
			{Elements: []tablegen.Element{el("_params"), el(";"), el("identifier")}},
		}},
		{Name: "additive", Named: true, Choices: []tablegen.Choice{
			binary("additive", "+", "multiplicative", "left", "right"),
			binary("additive", "-", "multiplicative", "left", "right"),
			chain("multiplicative"),
		}},
		{Name: "multiplicative", Named: true, Choices: []tablegen.Choice{
			binary("multiplicative", "*", "power", "left", "right"),
			binary("multiplicative", "/", "power", "left", "right"),
			binary("multiplicative", "%", "power", "left", "right"),
			chain("power"),
		}},
		{Name: "power", Named: true, Choices: []tablegen.Choice{
			// Right recursion makes exponentiation right-associative.
			binary("postfix", "^", "power", "base", "exponent"),
			chain("postfix"),
		}},
		{Name: "postfix", Named: true, Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{f("operand", "postfix"), f("operator", "!")}, Dynamic: 1},
			chain("unary"),
		}},
		{Name: "unary", Named: true, Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{f("operator", "-"), f("operand", "unary")}},
			chain("primary"),
		}},
		{Name: "primary", Named: true, Choices: []tablegen.Choice{
			chain("number"),
			chain("identifier"),
			chain("function_call"),
			{Elements: []tablegen.Element{el("("), el("expression"), el(")")}},
		}},
		{Name: "function_call", Named: true, Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{f("function", "identifier"), el("["), el("]")}},
			{Elements: []tablegen.Element{f("function", "identifier"), el("["), f("args", "args"), el("]")}},
		}},
		{Name: "args", Named: true, Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{el("_args")}},
		}},
		{Name: "_args", Choices: []tablegen.Choice{
			{Elements: []tablegen.Element{el("expression")}},
			{Elements: []tablegen.Element{el("_args"), el(";"), el("expression")}},
		}},
	}
}
