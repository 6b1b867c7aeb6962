package wabznasm

import "unicode/utf8"

// externalStateBufSize bounds serialized external scanner state. Scanner
// state is checkpointed before every scan attempt so a failed or abandoned
// scan can be rolled back during error recovery and incremental reuse.
const externalStateBufSize = 128

// ExternalScanner recognizes tokens whose boundaries depend on context the
// lexer DFA cannot express, such as nested comment terminators. An
// implementation must be pure with respect to its payload: all state lives
// in the payload and round-trips through Serialize/Deserialize, so the
// engine can checkpoint and restore it at will.
type ExternalScanner interface {
	// Create allocates a fresh scanner payload.
	Create() any
	// Destroy releases payload resources.
	Destroy(payload any)
	// Serialize writes payload state into buf and returns the byte count.
	Serialize(payload any, buf []byte) int
	// Deserialize restores payload state from buf.
	Deserialize(payload any, buf []byte)
	// Scan attempts to recognize one token at the lexer position.
	// validSymbols is indexed by the token's position in the language's
	// ExternalTokens list.
	Scan(payload any, lexer *ExternalLexer, validSymbols []bool) bool
}

// ExternalLexer is the cursor handed to external scanners. It exposes one
// rune of lookahead and explicit advance/mark operations, mirroring the
// classic external scanner calling convention.
type ExternalLexer struct {
	src []byte

	startByte  uint32
	startPoint Point

	curByte  uint32
	curPoint Point

	markedByte  uint32
	markedPoint Point
	marked      bool

	resultSymbol Symbol
	emitted      bool
}

func newExternalLexer(src []byte, offset uint32, row, col uint32) *ExternalLexer {
	pt := Point{Row: row, Column: col}
	return &ExternalLexer{
		src:        src,
		startByte:  offset,
		startPoint: pt,
		curByte:    offset,
		curPoint:   pt,
	}
}

// Lookahead returns the rune at the cursor, or -1 at end of input.
func (l *ExternalLexer) Lookahead() rune {
	if int(l.curByte) >= len(l.src) {
		return -1
	}
	r, _ := utf8.DecodeRune(l.src[l.curByte:])
	return r
}

// Advance consumes the lookahead rune. With skip set, the consumed text is
// excluded from the token by moving the token start forward, which is how
// scanners discard leading whitespace.
func (l *ExternalLexer) Advance(skip bool) {
	if int(l.curByte) >= len(l.src) {
		return
	}
	_, size := utf8.DecodeRune(l.src[l.curByte:])
	if size == 0 {
		size = 1
	}
	l.curPoint = advancePoint(l.curPoint, l.src[l.curByte:int(l.curByte)+size])
	l.curByte += uint32(size)
	if skip && !l.marked {
		l.startByte = l.curByte
		l.startPoint = l.curPoint
	}
}

// MarkEnd records the current position as the token end. Without a mark the
// token ends wherever the scan stops.
func (l *ExternalLexer) MarkEnd() {
	l.markedByte = l.curByte
	l.markedPoint = l.curPoint
	l.marked = true
}

// SetResultSymbol declares the recognized token's symbol.
func (l *ExternalLexer) SetResultSymbol(sym Symbol) {
	l.resultSymbol = sym
	l.emitted = true
}

func (l *ExternalLexer) token() (Token, bool) {
	if !l.emitted {
		return Token{}, false
	}
	end, endPt := l.curByte, l.curPoint
	if l.marked {
		end, endPt = l.markedByte, l.markedPoint
	}
	if end < l.startByte {
		return Token{}, false
	}
	return Token{
		Symbol:     l.resultSymbol,
		StartByte:  l.startByte,
		EndByte:    end,
		StartPoint: l.startPoint,
		EndPoint:   endPt,
		Text:       string(l.src[l.startByte:end]),
	}, true
}
