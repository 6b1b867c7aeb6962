package wabznasm

import (
	"encoding/binary"
	"testing"
	"unicode/utf8"
)

// lineCommentProgram mirrors the grammar's backslash-comment scanner: match
// a backslash, then consume to end of line, marking the token end before
// the newline.
func lineCommentProgram(sym Symbol) ExternalVMProgram {
	return ExternalVMProgram{
		Code: []ExternalVMInstr{
			0:  VMRequireValid(0, 10),
			1:  VMIfRuneEq('\\', 10),
			2:  VMAdvance(false),
			3:  VMMarkEnd(),
			4:  VMIfRuneEq('\n', 6),
			5:  VMJump(9),
			6:  VMIfRuneInRange(0, utf8.MaxRune, 9),
			7:  VMAdvance(false),
			8:  VMJump(3),
			9:  VMEmit(sym),
			10: VMFail(),
		},
	}
}

// nestedCommentProgram mirrors the grammar's block-comment scanner: consume
// a balanced /* ... */ region, counting nesting depth in the state slot.
func nestedCommentProgram(sym Symbol) ExternalVMProgram {
	return ExternalVMProgram{
		Code: []ExternalVMInstr{
			0:  VMIfRuneEq('/', 24),
			1:  VMAdvance(false),
			2:  VMIfRuneEq('*', 24),
			3:  VMAdvance(false),
			4:  VMSetState(1),
			5:  VMRequireStateEq(0, 8),
			6:  VMMarkEnd(),
			7:  VMEmit(sym),
			8:  VMIfRuneEq(-1, 10),
			9:  VMFail(),
			10: VMIfRuneEq('/', 16),
			11: VMAdvance(false),
			12: VMIfRuneEq('*', 5),
			13: VMAdvance(false),
			14: VMAddState(1),
			15: VMJump(5),
			16: VMIfRuneEq('*', 22),
			17: VMAdvance(false),
			18: VMIfRuneEq('/', 5),
			19: VMAdvance(false),
			20: VMAddState(-1),
			21: VMJump(5),
			22: VMAdvance(false),
			23: VMJump(5),
			24: VMFail(),
		},
	}
}

func TestExternalVMLineCommentProgram(t *testing.T) {
	scanner := MustNewExternalVMScanner(lineCommentProgram(Symbol(5)))
	payload := scanner.Create()

	lexer := newExternalLexer([]byte("\\ hi\nx: 1"), 0, 0, 0)
	if !scanner.Scan(payload, lexer, []bool{true}) {
		t.Fatal("line comment scan failed")
	}
	tok, ok := lexer.token()
	if !ok {
		t.Fatal("no token after successful scan")
	}
	if tok.Symbol != Symbol(5) || tok.Text != "\\ hi" {
		t.Fatalf("token = %d %q, want %d %q", tok.Symbol, tok.Text, Symbol(5), "\\ hi")
	}

	// The valid-symbol gate must stop the scan before any cursor movement.
	gated := newExternalLexer([]byte("\\ hi"), 0, 0, 0)
	if scanner.Scan(scanner.Create(), gated, []bool{false}) {
		t.Fatal("scan ignored the valid-symbol gate")
	}
	if _, ok := gated.token(); ok {
		t.Fatal("gated scan produced a token")
	}
}

func TestExternalVMNestedCommentDepth(t *testing.T) {
	scanner := MustNewExternalVMScanner(nestedCommentProgram(Symbol(6)))
	payload := scanner.Create()

	lexer := newExternalLexer([]byte("/* a /* b */ c */9"), 0, 0, 0)
	if !scanner.Scan(payload, lexer, nil) {
		t.Fatal("nested comment scan failed")
	}
	tok, ok := lexer.token()
	if !ok {
		t.Fatal("no token after successful scan")
	}
	if tok.Text != "/* a /* b */ c */" {
		t.Fatalf("token text = %q", tok.Text)
	}

	// Depth unwinds to zero by the emit, so serialized state is empty and
	// subtrees containing the token stay eligible for incremental reuse.
	buf := make([]byte, 8)
	n := scanner.Serialize(payload, buf)
	if n != 4 || binary.LittleEndian.Uint32(buf[:4]) != 0 {
		t.Fatalf("state after scan = %d bytes %v, want zeroed", n, buf[:n])
	}

	unterminated := newExternalLexer([]byte("/* open"), 0, 0, 0)
	if scanner.Scan(scanner.Create(), unterminated, nil) {
		t.Fatal("unterminated comment must fail the scan")
	}
}

func TestExternalVMAddStateClampsAtZero(t *testing.T) {
	scanner := MustNewExternalVMScanner(ExternalVMProgram{
		Code: []ExternalVMInstr{
			0: VMSetState(2),
			1: VMAddState(3),
			2: VMAddState(-10),
			3: VMRequireStateEq(0, 7),
			4: VMAdvance(false),
			5: VMMarkEnd(),
			6: VMEmit(Symbol(3)),
			7: VMFail(),
		},
	})
	lexer := newExternalLexer([]byte("x"), 0, 0, 0)
	if !scanner.Scan(scanner.Create(), lexer, nil) {
		t.Fatal("underflowing AddState must clamp to zero, not wrap")
	}
}

func TestExternalVMDepthSerializeRoundTrip(t *testing.T) {
	// '<' opens a level, '>' closes one; closing at depth zero fails.
	open, closing := Symbol(7), Symbol(8)
	scanner := MustNewExternalVMScanner(ExternalVMProgram{
		Code: []ExternalVMInstr{
			0:  VMIfRuneEq('<', 5),
			1:  VMAdvance(false),
			2:  VMMarkEnd(),
			3:  VMAddState(1),
			4:  VMEmit(open),
			5:  VMIfRuneEq('>', 12),
			6:  VMRequireStateEq(0, 8),
			7:  VMFail(),
			8:  VMAdvance(false),
			9:  VMMarkEnd(),
			10: VMAddState(-1),
			11: VMEmit(closing),
			12: VMFail(),
		},
	})

	fresh := newExternalLexer([]byte(">"), 0, 0, 0)
	if scanner.Scan(scanner.Create(), fresh, nil) {
		t.Fatal("close without a matching open must fail")
	}

	payload := scanner.Create()
	if !scanner.Scan(payload, newExternalLexer([]byte("<"), 0, 0, 0), nil) {
		t.Fatal("open scan failed")
	}
	buf := make([]byte, 8)
	n := scanner.Serialize(payload, buf)
	if n != 4 || binary.LittleEndian.Uint32(buf[:4]) != 1 {
		t.Fatalf("state after open = %d bytes %v, want depth 1", n, buf[:n])
	}

	// A checkpoint restored into a fresh payload carries the depth.
	restored := scanner.Create()
	scanner.Deserialize(restored, buf[:n])
	closeLexer := newExternalLexer([]byte(">"), 0, 0, 0)
	if !scanner.Scan(restored, closeLexer, nil) {
		t.Fatal("close scan failed after restoring the checkpoint")
	}
	tok, ok := closeLexer.token()
	if !ok || tok.Symbol != closing {
		t.Fatalf("close token = %v %v", tok, ok)
	}
	if n := scanner.Serialize(restored, buf); n != 4 || binary.LittleEndian.Uint32(buf[:4]) != 0 {
		t.Fatalf("depth after close = %v, want 0", buf[:4])
	}
}

func TestExternalVMStepLimit(t *testing.T) {
	scanner := MustNewExternalVMScanner(ExternalVMProgram{
		Code:     []ExternalVMInstr{VMJump(0)},
		MaxSteps: 8,
	})
	lexer := newExternalLexer([]byte("x"), 0, 0, 0)
	if scanner.Scan(scanner.Create(), lexer, nil) {
		t.Fatal("non-terminating program must fail at the step limit")
	}
}

func TestExternalVMProgramValidation(t *testing.T) {
	cases := []struct {
		name string
		prog ExternalVMProgram
	}{
		{"empty program", ExternalVMProgram{}},
		{"jump out of range", ExternalVMProgram{Code: []ExternalVMInstr{VMJump(3)}}},
		{"alt out of range", ExternalVMProgram{Code: []ExternalVMInstr{VMIfRuneEq('x', 9)}}},
		{"inverted rune range", ExternalVMProgram{Code: []ExternalVMInstr{
			VMIfRuneInRange('z', 'a', 0),
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewExternalVMScanner(tc.prog); err == nil {
				t.Fatal("invalid program accepted")
			}
		})
	}
}
