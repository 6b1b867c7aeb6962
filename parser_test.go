package wabznasm_test

import (
	"context"
	"strings"
	"testing"

	wabznasm "github.com/wabznasm/go-wabznasm"
	"github.com/wabznasm/go-wabznasm/grammar"
)

func newTestParser(t *testing.T) *wabznasm.Parser {
	t.Helper()
	p, err := wabznasm.NewParser(grammar.Language())
	if err != nil {
		t.Fatalf("NewParser failed: %v", err)
	}
	return p
}

func mustParse(t *testing.T, src string) *wabznasm.Tree {
	t.Helper()
	tree, err := newTestParser(t).Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	if tree == nil || tree.RootNode() == nil {
		t.Fatalf("Parse(%q) returned nil tree", src)
	}
	return tree
}

func TestParseTrees(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"number", "42",
			"(source_file (statement (expression (number))))"},
		{"addition", "1+2",
			"(source_file (statement (expression (additive left: (number) right: (number)))))"},
		{"precedence", "1+2*3",
			"(source_file (statement (expression (additive left: (number) right: (multiplicative left: (number) right: (number))))))"},
		{"power right assoc", "2^3^2",
			"(source_file (statement (expression (power base: (number) exponent: (power base: (number) exponent: (number))))))"},
		{"double factorial", "2!!",
			"(source_file (statement (expression (postfix operand: (postfix operand: (number))))))"},
		{"double negation", "--5",
			"(source_file (statement (expression (unary operand: (unary operand: (number))))))"},
		{"parens factorial division", "(2+3)! / 5^2",
			"(source_file (statement (expression (multiplicative left: (postfix operand: (primary (expression (additive left: (number) right: (number))))) right: (power base: (number) exponent: (number))))))"},
		{"assignment", "x: 42",
			"(source_file (statement (expression (assignment name: (identifier) value: (expression (number))))))"},
		{"function definition", "f: {x+1}",
			"(source_file (statement (expression (assignment name: (identifier) value: (function_body body: (expression (additive left: (identifier) right: (number))))))))"},
		{"function with params", "add: {[x;y] x+y}",
			"(source_file (statement (expression (assignment name: (identifier) value: (function_body params: (params (identifier) (identifier)) body: (expression (additive left: (identifier) right: (identifier))))))))"},
		{"function call", "add[2; 3]",
			"(source_file (statement (expression (function_call function: (identifier) args: (args (expression (number)) (expression (number)))))))"},
		{"two statements", "1 2",
			"(source_file (statement (expression (number))) (statement (expression (number))))"},
		{"semicolon separator", "1; 2",
			"(source_file (statement (expression (number))) (statement (expression (number))))"},
		{"empty input", "",
			"(source_file)"},
		{"whitespace only", "  \n",
			"(source_file)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tree := mustParse(t, tc.src)
			if tree.HasError() {
				t.Errorf("parse of %q reported errors: %s", tc.src, tree.String())
			}
			if got := tree.String(); got != tc.want {
				t.Errorf("parse of %q:\n got  %s\n want %s", tc.src, got, tc.want)
			}
		})
	}
}

func TestRootSpansWholeInput(t *testing.T) {
	for _, src := range []string{"", "  \n", "42", "1 + ", "x: 42 \n", "@"} {
		tree := mustParse(t, src)
		root := tree.RootNode()
		if root.StartByte() != 0 || root.EndByte() != uint32(len(src)) {
			t.Errorf("root of %q spans [%d,%d), want [0,%d)",
				src, root.StartByte(), root.EndByte(), len(src))
		}
	}
}

// A space-separated subtraction must parse as one expression, not as a
// number statement followed by a unary-minus statement.
func TestJuxtapositionPrefersSingleExpression(t *testing.T) {
	tree := mustParse(t, "1 - 2")
	want := "(source_file (statement (expression (additive left: (number) right: (number)))))"
	if got := tree.String(); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestParseDeterministic(t *testing.T) {
	src := "1 - 2 - 3 neg: {-x} neg[4]"
	first := mustParse(t, src).String()
	for i := 0; i < 5; i++ {
		if got := mustParse(t, src).String(); got != first {
			t.Fatalf("parse %d diverged:\n got  %s\n want %s", i, got, first)
		}
	}
}

func TestLineComment(t *testing.T) {
	tree := mustParse(t, "\\ lead\n1+2")
	want := "(source_file (comment) (statement (expression (additive left: (number) right: (number)))))"
	if got := tree.String(); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestCommentOnlyInput(t *testing.T) {
	tree := mustParse(t, "\\ hi")
	if tree.HasError() {
		t.Fatalf("comment-only input reported errors: %s", tree.String())
	}
	if got, want := tree.String(), "(source_file (comment))"; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestBlockCommentBetweenStatements(t *testing.T) {
	tree := mustParse(t, "1 /* note */ 2")
	if tree.HasError() {
		t.Fatalf("unexpected errors: %s", tree.String())
	}
	want := "(source_file (statement (expression (number))) (block_comment) (statement (expression (number))))"
	if got := tree.String(); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

// A comment after a statement belongs to the enclosing statement list, not
// to whatever subexpression happened to reduce last.
func TestTrailingCommentAttachesAtStatementLevel(t *testing.T) {
	tree := mustParse(t, "x: 1 \\ note")
	if tree.HasError() {
		t.Fatalf("unexpected errors: %s", tree.String())
	}
	want := "(source_file (statement (expression (assignment name: (identifier) value: (expression (number))))) (comment))"
	if got := tree.String(); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNestedBlockComment(t *testing.T) {
	tree := mustParse(t, "1 /* a /* b */ c */ + 2")
	if tree.HasError() {
		t.Fatalf("nested block comment broke the parse: %s", tree.String())
	}
	if !strings.Contains(tree.String(), "(block_comment)") {
		t.Fatalf("block comment missing from tree: %s", tree.String())
	}
}

func TestTrailingOperatorRecovery(t *testing.T) {
	tree := mustParse(t, "1 + ")
	if !tree.HasError() {
		t.Fatal("expected errors for trailing operator")
	}
	want := "(source_file (statement (expression (number) (ERROR))))"
	if got := tree.String(); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	root := tree.RootNode()
	if root.StartByte() != 0 || root.EndByte() != 4 {
		t.Fatalf("root spans [%d,%d), want [0,4)", root.StartByte(), root.EndByte())
	}
	if n := tree.ErrorCount(); n != 1 {
		t.Fatalf("ErrorCount = %d, want 1", n)
	}
}

// A token no state can act on at the very first position kills every stack
// version at once; recovery must still produce a full-span tree.
func TestLeadingUnexpectedToken(t *testing.T) {
	for _, src := range []string{")", "]", "} 1"} {
		tree := mustParse(t, src)
		if !tree.HasError() {
			t.Errorf("parse of %q reported no errors: %s", src, tree.String())
		}
		root := tree.RootNode()
		if root.StartByte() != 0 || root.EndByte() != uint32(len(src)) {
			t.Errorf("root of %q spans [%d,%d), want [0,%d)",
				src, root.StartByte(), root.EndByte(), len(src))
		}
	}
}

func TestMissingClosingParen(t *testing.T) {
	tree := mustParse(t, "(2+3 ;")
	if !tree.HasError() {
		t.Fatal("expected errors for unclosed paren")
	}
	errs := tree.ErrorNodes()
	if len(errs) != 1 {
		t.Fatalf("ErrorNodes = %d nodes, want 1: %s", len(errs), tree.String())
	}
	n := errs[0]
	if !n.IsMissing() || n.Kind() != ")" {
		t.Fatalf("expected a missing \")\", got missing=%v kind=%q", n.IsMissing(), n.Kind())
	}
	if n.StartByte() != n.EndByte() {
		t.Fatalf("missing token must be zero width, spans [%d,%d)", n.StartByte(), n.EndByte())
	}
}

func TestLexicalErrorTokens(t *testing.T) {
	tree := mustParse(t, "@")
	if !tree.HasError() {
		t.Fatal("expected errors for unlexable input")
	}
	if got, want := tree.String(), "(source_file (ERROR))"; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}

	tree = mustParse(t, "1 @ 2")
	if !tree.HasError() {
		t.Fatal("expected errors")
	}
	if got := tree.ErrorCount(); got != 1 {
		t.Fatalf("ErrorCount = %d, want 1: %s", got, tree.String())
	}
	root := tree.RootNode()
	if root.NamedChildCount() != 2 {
		t.Fatalf("expected both statements to survive, got %d named children: %s",
			root.NamedChildCount(), tree.String())
	}
}

func TestFieldAccess(t *testing.T) {
	tree := mustParse(t, "x: 1+2")
	assignment := tree.RootNode().Child(0).Child(0).Child(0)
	if assignment.Kind() != "assignment" {
		t.Fatalf("expected assignment node, got %q", assignment.Kind())
	}
	name := assignment.ChildByFieldName("name")
	if name == nil || name.Kind() != "identifier" {
		t.Fatalf("name field = %v", name)
	}
	value := assignment.ChildByFieldName("value")
	if value == nil || value.Kind() != "expression" {
		t.Fatalf("value field = %v", value)
	}
	add := value.Child(0)
	if add.ChildByFieldName("left") == nil || add.ChildByFieldName("right") == nil {
		t.Fatalf("binary fields missing: %s", tree.String())
	}
	if op := add.ChildByFieldName("operator"); op == nil || op.Kind() != "+" {
		t.Fatalf("operator field = %v", op)
	}
	if got := string(name.Text(tree.Source())); got != "x" {
		t.Fatalf("name text = %q, want %q", got, "x")
	}
}

func TestParseContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tree, err := newTestParser(t).ParseContext(ctx, []byte("1+2"), nil)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if tree != nil {
		t.Fatal("cancelled parse must not return a tree")
	}
}

func TestParserReuseAcrossParses(t *testing.T) {
	p := newTestParser(t)
	inputs := []string{"1+2", "x: 42", "", "1 + ", "f: {x+1}"}
	for _, src := range inputs {
		for i := 0; i < 3; i++ {
			tree, err := p.Parse([]byte(src))
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", src, err)
			}
			fresh := mustParse(t, src)
			if !wabznasm.StructurallyEqual(tree.RootNode(), fresh.RootNode()) {
				t.Fatalf("reused parser diverged on %q:\n got  %s\n want %s",
					src, tree.String(), fresh.String())
			}
		}
	}
}
