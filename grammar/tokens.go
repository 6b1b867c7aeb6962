package grammar

import (
	"unicode/utf8"

	wabznasm "github.com/wabznasm/go-wabznasm"
)

// TokenSource is a hand-written lexer for wabznasm source text, usable with
// Parser.ParseWithTokenSource as an alternative to the table-driven DFA. It
// produces the same token stream for well-formed input and error tokens for
// bytes no rule covers.
type TokenSource struct {
	src  []byte
	lang *wabznasm.Language
	cur  sourceCursor

	done bool

	numberSym       wabznasm.Symbol
	identifierSym   wabznasm.Symbol
	commentSym      wabznasm.Symbol
	blockCommentSym wabznasm.Symbol
	punct           map[byte]wabznasm.Symbol
}

// NewTokenSource creates a hand-written token source over src using the
// compiled wabznasm table for symbol ids.
func NewTokenSource(src []byte) *TokenSource {
	lang := Language()
	ts := &TokenSource{
		src:   src,
		lang:  lang,
		cur:   newSourceCursor(src),
		punct: make(map[byte]wabznasm.Symbol, 16),
	}
	ts.numberSym, _ = lang.SymbolByName("number")
	ts.identifierSym, _ = lang.SymbolByName("identifier")
	ts.commentSym, _ = lang.SymbolByName("comment")
	ts.blockCommentSym, _ = lang.SymbolByName("block_comment")
	for _, p := range ":;+-*/%^!(){}[]" {
		sym, _ := lang.SymbolByName(string(p))
		ts.punct[byte(p)] = sym
	}
	return ts
}

func (ts *TokenSource) Next() wabznasm.Token {
	if ts.done {
		return ts.eofToken()
	}

	for {
		if ts.cur.eof() {
			ts.done = true
			return ts.eofToken()
		}

		ch := ts.cur.peekByte()
		if ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' {
			ts.cur.advanceByte()
			continue
		}

		if ch == '\\' {
			return ts.lineCommentToken()
		}
		if ch == '/' && ts.cur.offset+1 < len(ts.src) && ts.src[ts.cur.offset+1] == '*' {
			return ts.blockCommentToken()
		}

		if isASCIIDigit(ch) {
			return ts.numberToken()
		}
		if isIdentStart(ch) {
			return ts.identifierToken()
		}
		if sym, ok := ts.punct[ch]; ok {
			start := ts.cur.offset
			startPt := ts.cur.point()
			ts.cur.advanceByte()
			return makeToken(sym, ts.src, start, ts.cur.offset, startPt, ts.cur.point())
		}

		// No rule covers this byte: surface it as a lexical error token.
		start := ts.cur.offset
		startPt := ts.cur.point()
		ts.cur.advanceRune()
		return makeToken(wabznasm.SymbolError, ts.src, start, ts.cur.offset, startPt, ts.cur.point())
	}
}

// SkipToByte repositions the cursor; the reuse engine calls this to jump
// past reused subtrees.
func (ts *TokenSource) SkipToByte(offset uint32) wabznasm.Token {
	target := int(offset)
	if target > len(ts.src) {
		target = len(ts.src)
	}

	ts.done = false
	if target < ts.cur.offset {
		ts.cur = newSourceCursor(ts.src)
	}
	for ts.cur.offset < target {
		ts.cur.advanceRune()
	}
	if ts.cur.eof() {
		ts.done = true
		return ts.eofToken()
	}
	return ts.Next()
}

func (ts *TokenSource) lineCommentToken() wabznasm.Token {
	start := ts.cur.offset
	startPt := ts.cur.point()
	for !ts.cur.eof() && ts.cur.peekByte() != '\n' {
		ts.cur.advanceRune()
	}
	return makeToken(ts.commentSym, ts.src, start, ts.cur.offset, startPt, ts.cur.point())
}

func (ts *TokenSource) blockCommentToken() wabznasm.Token {
	start := ts.cur.offset
	startPt := ts.cur.point()
	ts.cur.advanceByte()
	ts.cur.advanceByte()
	depth := 1
	for depth > 0 && !ts.cur.eof() {
		switch {
		case ts.matchAtCurrent("/*"):
			ts.cur.advanceByte()
			ts.cur.advanceByte()
			depth++
		case ts.matchAtCurrent("*/"):
			ts.cur.advanceByte()
			ts.cur.advanceByte()
			depth--
		default:
			ts.cur.advanceRune()
		}
	}
	if depth > 0 {
		// Unterminated comment: the whole tail becomes an error token.
		return makeToken(wabznasm.SymbolError, ts.src, start, ts.cur.offset, startPt, ts.cur.point())
	}
	return makeToken(ts.blockCommentSym, ts.src, start, ts.cur.offset, startPt, ts.cur.point())
}

func (ts *TokenSource) numberToken() wabznasm.Token {
	start := ts.cur.offset
	startPt := ts.cur.point()
	for !ts.cur.eof() && isASCIIDigit(ts.cur.peekByte()) {
		ts.cur.advanceByte()
	}
	return makeToken(ts.numberSym, ts.src, start, ts.cur.offset, startPt, ts.cur.point())
}

func (ts *TokenSource) identifierToken() wabznasm.Token {
	start := ts.cur.offset
	startPt := ts.cur.point()
	ts.cur.advanceByte()
	for !ts.cur.eof() && isIdentPart(ts.cur.peekByte()) {
		ts.cur.advanceByte()
	}
	return makeToken(ts.identifierSym, ts.src, start, ts.cur.offset, startPt, ts.cur.point())
}

func (ts *TokenSource) matchAtCurrent(lexeme string) bool {
	if ts.cur.offset+len(lexeme) > len(ts.src) {
		return false
	}
	for i := 0; i < len(lexeme); i++ {
		if ts.src[ts.cur.offset+i] != lexeme[i] {
			return false
		}
	}
	return true
}

func (ts *TokenSource) eofToken() wabznasm.Token {
	n := uint32(len(ts.src))
	pt := ts.cur.point()
	return wabznasm.Token{
		Symbol:     wabznasm.SymbolEOF,
		StartByte:  n,
		EndByte:    n,
		StartPoint: pt,
		EndPoint:   pt,
	}
}

// sourceCursor tracks a byte offset plus row/column through UTF-8 text.
type sourceCursor struct {
	src    []byte
	offset int
	row    uint32
	col    uint32
}

func newSourceCursor(src []byte) sourceCursor {
	return sourceCursor{src: src}
}

func (c *sourceCursor) eof() bool { return c.offset >= len(c.src) }

func (c *sourceCursor) peekByte() byte { return c.src[c.offset] }

func (c *sourceCursor) point() wabznasm.Point {
	return wabznasm.Point{Row: c.row, Column: c.col}
}

func (c *sourceCursor) advanceByte() {
	if c.src[c.offset] == '\n' {
		c.row++
		c.col = 0
	} else {
		c.col++
	}
	c.offset++
}

func (c *sourceCursor) advanceRune() {
	r, size := utf8.DecodeRune(c.src[c.offset:])
	if size == 0 {
		size = 1
	}
	if r == '\n' {
		c.row++
		c.col = 0
	} else {
		c.col += uint32(size)
	}
	c.offset += size
}

func makeToken(sym wabznasm.Symbol, src []byte, start, end int, startPt, endPt wabznasm.Point) wabznasm.Token {
	return wabznasm.Token{
		Symbol:     sym,
		StartByte:  uint32(start),
		EndByte:    uint32(end),
		StartPoint: startPt,
		EndPoint:   endPt,
		Text:       string(src[start:end]),
	}
}

func isASCIIDigit(b byte) bool { return b >= '0' && b <= '9' }

func isIdentStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func isIdentPart(b byte) bool { return isIdentStart(b) || isASCIIDigit(b) }
