package tablegen

import (
	"errors"
	"fmt"

	wabznasm "github.com/wabznasm/go-wabznasm"
)

// ErrInvalidGrammar reports a grammar the compiler cannot turn into tables.
var ErrInvalidGrammar = errors.New("tablegen: invalid grammar")

// Assoc is the associativity of a terminal or production, used to resolve
// shift/reduce conflicts the way yacc does.
type Assoc uint8

const (
	AssocNone Assoc = iota
	AssocLeft
	AssocRight
)

// Token declares one lexical terminal.
type Token struct {
	Name    string
	Pattern Pattern
	// Named tokens appear in trees under Name; anonymous tokens are
	// literal punctuation.
	Named bool
	// Extra tokens (comments) may appear anywhere in the input.
	Extra bool
	// Skip tokens (whitespace) are matched and discarded.
	Skip bool
	// Word tokens are keywords: they are compiled into the keyword DFA and
	// recognized by re-checking matches of the word-capture token.
	Word bool
	// Prec breaks ties when two tokens match the same text, and doubles as
	// the terminal's conflict-resolution precedence. Higher wins.
	Prec  int
	Assoc Assoc
}

// External declares a terminal produced by the grammar's external scanner
// instead of the lexer DFA.
type External struct {
	Name  string
	Named bool
	Extra bool
}

// Element is one right-hand-side position, optionally bound to a field.
type Element struct {
	Sym   string
	Field string
}

// El is an unbound right-hand-side element.
func El(sym string) Element { return Element{Sym: sym} }

// F binds a right-hand-side element to a field name.
func F(field, sym string) Element { return Element{Sym: sym, Field: field} }

// Choice is one alternative of a rule.
type Choice struct {
	Elements []Element
	// Prec and Assoc resolve shift/reduce conflicts; zero Prec inherits the
	// precedence of the last terminal in the alternative.
	Prec  int
	Assoc Assoc
	// Dynamic is added to a parse stack's score when this alternative
	// reduces; it arbitrates between surviving ambiguous parses.
	Dynamic int32
	// Inline alternatives are chain rules that produce no tree node.
	Inline bool
}

// Rule declares one nonterminal. The first rule is the grammar's root.
type Rule struct {
	Name    string
	Named   bool
	Choices []Choice
}

// Grammar is the complete declarative input to Build.
type Grammar struct {
	Name      string
	Tokens    []Token
	Externals []External
	Rules     []Rule
	// WordToken names the identifier-shaped token whose matches are
	// re-checked against the keyword DFA. Empty when no Word tokens exist.
	WordToken string
	// Scanner services the Externals; required when any are declared.
	Scanner wabznasm.ExternalScanner
}

func (g *Grammar) validate() error {
	if len(g.Rules) == 0 {
		return fmt.Errorf("%w: no rules", ErrInvalidGrammar)
	}
	if len(g.Tokens) == 0 {
		return fmt.Errorf("%w: no tokens", ErrInvalidGrammar)
	}
	seen := map[string]bool{"end": true}
	declare := func(name, what string) error {
		if name == "" {
			return fmt.Errorf("%w: empty %s name", ErrInvalidGrammar, what)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate symbol %q", ErrInvalidGrammar, name)
		}
		seen[name] = true
		return nil
	}
	hasWord := false
	for _, t := range g.Tokens {
		if err := declare(t.Name, "token"); err != nil {
			return err
		}
		if t.Pattern == nil {
			return fmt.Errorf("%w: token %q has no pattern", ErrInvalidGrammar, t.Name)
		}
		if t.Word {
			hasWord = true
		}
		if t.Skip && (t.Named || t.Extra || t.Word) {
			return fmt.Errorf("%w: skip token %q cannot be named, extra, or word", ErrInvalidGrammar, t.Name)
		}
	}
	for _, e := range g.Externals {
		if err := declare(e.Name, "external"); err != nil {
			return err
		}
	}
	if len(g.Externals) > 0 && g.Scanner == nil {
		return fmt.Errorf("%w: externals declared without a scanner", ErrInvalidGrammar)
	}
	if hasWord && g.WordToken == "" {
		return fmt.Errorf("%w: word tokens declared without a word-capture token", ErrInvalidGrammar)
	}
	for _, r := range g.Rules {
		if err := declare(r.Name, "rule"); err != nil {
			return err
		}
		if len(r.Choices) == 0 {
			return fmt.Errorf("%w: rule %q has no alternatives", ErrInvalidGrammar, r.Name)
		}
	}
	for _, r := range g.Rules {
		for ci, c := range r.Choices {
			if c.Inline && len(c.Elements) > 1 {
				return fmt.Errorf("%w: rule %q alternative %d: inline alternatives take at most one element",
					ErrInvalidGrammar, r.Name, ci)
			}
			for _, el := range c.Elements {
				if !seen[el.Sym] {
					return fmt.Errorf("%w: rule %q references unknown symbol %q",
						ErrInvalidGrammar, r.Name, el.Sym)
				}
			}
		}
	}
	return nil
}
