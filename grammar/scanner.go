package grammar

import (
	"fmt"
	"unicode/utf8"

	wabznasm "github.com/wabznasm/go-wabznasm"
)

// commentScanner recognizes the two comment forms the lexer DFA cannot:
// backslash line comments and nested block comments. Both run as one
// bytecode program on the engine's scanner VM; block comments keep their
// nesting depth in the VM state slot. Valid-symbol index 0 is the line
// comment, 1 the block comment, matching the Externals declaration order.
type commentScanner struct {
	vm *wabznasm.ExternalVMScanner
}

func newCommentScanner() *commentScanner {
	return &commentScanner{}
}

// bind installs the VM program once the table has assigned symbol ids.
func (s *commentScanner) bind(lineSym, blockSym wabznasm.Symbol) error {
	prog := wabznasm.ExternalVMProgram{
		Code: []wabznasm.ExternalVMInstr{
			// Line comment: backslash to end of line.
			0: wabznasm.VMRequireValid(0, 10),
			1: wabznasm.VMIfRuneEq('\\', 10),
			2: wabznasm.VMAdvance(false),
			3: wabznasm.VMMarkEnd(),
			4: wabznasm.VMIfRuneEq('\n', 6),
			5: wabznasm.VMJump(9),
			6: wabznasm.VMIfRuneInRange(0, utf8.MaxRune, 9),
			7: wabznasm.VMAdvance(false),
			8: wabznasm.VMJump(3),
			9: wabznasm.VMEmit(lineSym),
			// Block comment: /* ... */ counting nesting depth in the state
			// slot. Depth is back to zero when the token emits, so the
			// serialized scanner state stays empty between tokens.
			10: wabznasm.VMRequireValid(1, 35),
			11: wabznasm.VMIfRuneEq('/', 35),
			12: wabznasm.VMAdvance(false),
			13: wabznasm.VMIfRuneEq('*', 35),
			14: wabznasm.VMAdvance(false),
			15: wabznasm.VMSetState(1),
			16: wabznasm.VMRequireStateEq(0, 19),
			17: wabznasm.VMMarkEnd(),
			18: wabznasm.VMEmit(blockSym),
			19: wabznasm.VMIfRuneEq(-1, 21),
			20: wabznasm.VMFail(),
			21: wabznasm.VMIfRuneEq('/', 27),
			22: wabznasm.VMAdvance(false),
			23: wabznasm.VMIfRuneEq('*', 16),
			24: wabznasm.VMAdvance(false),
			25: wabznasm.VMAddState(1),
			26: wabznasm.VMJump(16),
			27: wabznasm.VMIfRuneEq('*', 33),
			28: wabznasm.VMAdvance(false),
			29: wabznasm.VMIfRuneEq('/', 16),
			30: wabznasm.VMAdvance(false),
			31: wabznasm.VMAddState(-1),
			32: wabznasm.VMJump(16),
			33: wabznasm.VMAdvance(false),
			34: wabznasm.VMJump(16),
			35: wabznasm.VMFail(),
		},
		// The loop body costs a handful of steps per rune; size the budget
		// for pathologically long comments.
		MaxSteps: 1 << 20,
	}
	vm, err := wabznasm.NewExternalVMScanner(prog)
	if err != nil {
		return fmt.Errorf("comment program: %w", err)
	}
	s.vm = vm
	return nil
}

func (s *commentScanner) Create() any {
	if s.vm == nil {
		return nil
	}
	return s.vm.Create()
}

func (s *commentScanner) Destroy(payload any) {
	if s.vm != nil {
		s.vm.Destroy(payload)
	}
}

func (s *commentScanner) Serialize(payload any, buf []byte) int {
	if s.vm == nil {
		return 0
	}
	return s.vm.Serialize(payload, buf)
}

func (s *commentScanner) Deserialize(payload any, buf []byte) {
	if s.vm != nil {
		s.vm.Deserialize(payload, buf)
	}
}

// Scan runs the comment program. An unterminated block comment fails the
// scan; the lexer then restores its state checkpoint and falls back to the
// token DFA at the same position.
func (s *commentScanner) Scan(payload any, lexer *wabznasm.ExternalLexer, validSymbols []bool) bool {
	if s.vm == nil {
		return false
	}
	return s.vm.Scan(payload, lexer, validSymbols)
}
