package wabznasm

import "unicode/utf8"

// Lexer is the table-driven token source: it interprets the lexer DFA
// compiled into a Language, consults the external scanner first for
// context-sensitive tokens, and re-checks identifier-shaped matches against
// the keyword DFA. It implements StateAwareTokenSource and
// ByteSkippableTokenSource.
//
// A Lexer never fails: positions no token matches produce an error token
// covering one rune, which the parser folds into an error node.
type Lexer struct {
	lang *Language
	src  []byte

	offset uint32
	point  Point

	// valid is indexed by terminal Symbol; nil means "no restriction".
	valid []bool

	payload      any
	stateBuf     [externalStateBufSize]byte
	extValid     []bool
	releaseState func()
}

// NewLexer creates a table lexer over source using lang's lex tables.
func NewLexer(source []byte, lang *Language) *Lexer {
	l := &Lexer{lang: lang, src: source}
	if lang.Scanner != nil {
		l.payload = lang.Scanner.Create()
		l.extValid = make([]bool, len(lang.ExternalTokens))
		l.releaseState = func() { lang.Scanner.Destroy(l.payload) }
	}
	return l
}

// Close releases external scanner resources.
func (l *Lexer) Close() {
	if l.releaseState != nil {
		l.releaseState()
		l.releaseState = nil
	}
}

// SetValidSymbols restricts the terminals the lexer should prefer; the
// parser passes the union of shiftable terminals across its live stacks.
func (l *Lexer) SetValidSymbols(valid []bool) {
	l.valid = valid
}

// SerializeScannerState checkpoints external scanner state into buf.
func (l *Lexer) SerializeScannerState(buf []byte) int {
	if l.lang.Scanner == nil {
		return 0
	}
	return l.lang.Scanner.Serialize(l.payload, buf)
}

// RestoreScannerState restores a checkpoint taken by SerializeScannerState.
func (l *Lexer) RestoreScannerState(buf []byte) {
	if l.lang.Scanner == nil {
		return
	}
	l.lang.Scanner.Deserialize(l.payload, buf)
}

// SkipToByte repositions the cursor and returns the next token at or after
// offset. Used by the reuse engine to jump past reused subtrees.
func (l *Lexer) SkipToByte(offset uint32) Token {
	if offset > uint32(len(l.src)) {
		offset = uint32(len(l.src))
	}
	if offset >= l.offset {
		l.point = advancePoint(l.point, l.src[l.offset:offset])
	} else {
		l.point = pointForOffset(l.src, offset)
	}
	l.offset = offset
	return l.Next()
}

// Next returns the next token, or the EOF token at end of input.
func (l *Lexer) Next() Token {
	for {
		if tok, ok := l.scanExternal(); ok {
			return tok
		}

		if int(l.offset) >= len(l.src) {
			return l.eofToken()
		}

		tok, ok := l.scanDFA()
		if !ok {
			return l.errorToken()
		}
		if tok.Symbol == SymbolSkip {
			l.offset = tok.EndByte
			l.point = tok.EndPoint
			continue
		}
		l.offset = tok.EndByte
		l.point = tok.EndPoint
		return tok
	}
}

func (l *Lexer) scanExternal() (Token, bool) {
	scanner := l.lang.Scanner
	if scanner == nil {
		return Token{}, false
	}

	any := false
	for i, sym := range l.lang.ExternalTokens {
		ok := l.valid == nil || (int(sym) < len(l.valid) && l.valid[sym])
		l.extValid[i] = ok
		any = any || ok
	}
	if !any {
		return Token{}, false
	}

	// Checkpoint scanner state so a failed scan leaves no residue.
	n := scanner.Serialize(l.payload, l.stateBuf[:])
	ext := newExternalLexer(l.src, l.offset, l.point.Row, l.point.Column)
	if !scanner.Scan(l.payload, ext, l.extValid) {
		scanner.Deserialize(l.payload, l.stateBuf[:n])
		return Token{}, false
	}
	tok, ok := ext.token()
	if !ok || tok.EndByte <= tok.StartByte {
		// Zero-width external tokens cannot make progress here; reject
		// them to keep lexing loop-free.
		scanner.Deserialize(l.payload, l.stateBuf[:n])
		return Token{}, false
	}
	l.offset = tok.EndByte
	l.point = tok.EndPoint
	return tok, true
}

type lexAccept struct {
	sym   Symbol
	end   uint32
	point Point
	valid bool
	ok    bool
}

func (l *Lexer) scanDFA() (Token, bool) {
	states := l.lang.LexStates
	if len(states) == 0 {
		return Token{}, false
	}

	tokenStart := l.offset
	tokenStartPoint := l.point
	cur := l.offset
	curPoint := l.point
	state := int32(0)

	var best lexAccept
	var bestAny lexAccept
	var isKeywordAccept bool

	record := func(st *LexState) {
		if !st.HasAccept {
			return
		}
		acc := lexAccept{sym: st.Accept, end: cur, point: curPoint, ok: true}
		if l.symbolAllowed(st.Accept) {
			acc.valid = true
			best = acc
			isKeywordAccept = st.IsKeyword
		}
		bestAny = acc
	}
	record(&states[state])

	for int(cur) < len(l.src) {
		r, size := utf8.DecodeRune(l.src[cur:])
		if size == 0 {
			size = 1
		}
		tr, ok := findTransition(&states[state], r)
		if !ok {
			break
		}
		curPoint = advancePoint(curPoint, l.src[cur:int(cur)+size])
		cur += uint32(size)
		if tr.Skip && !best.ok && !bestAny.ok {
			// Skipped bytes belong to no token; restart the token here.
			tokenStart = cur
			tokenStartPoint = curPoint
		}
		state = tr.Next
		record(&states[state])
	}

	acc := best
	if !acc.ok {
		acc = bestAny
	}
	if !acc.ok || acc.end <= tokenStart {
		if acc.ok && acc.sym == SymbolSkip && acc.end > l.offset {
			// A pure-skip match (trailing whitespace) still advances.
			return Token{Symbol: SymbolSkip, StartByte: l.offset, EndByte: acc.end,
				StartPoint: l.point, EndPoint: acc.point}, true
		}
		return Token{}, false
	}

	sym := acc.sym
	if isKeywordAccept && len(l.lang.KeywordLexStates) > 0 {
		if kw, ok := l.matchKeyword(l.src[tokenStart:acc.end]); ok && l.symbolAllowed(kw) {
			sym = kw
		}
	}

	return Token{
		Symbol:     sym,
		StartByte:  tokenStart,
		EndByte:    acc.end,
		StartPoint: tokenStartPoint,
		EndPoint:   acc.point,
		Text:       string(l.src[tokenStart:acc.end]),
	}, true
}

// matchKeyword runs the keyword DFA over an identifier-shaped token; the
// whole text must be consumed for a keyword to win.
func (l *Lexer) matchKeyword(text []byte) (Symbol, bool) {
	states := l.lang.KeywordLexStates
	state := int32(0)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRune(text[i:])
		if size == 0 {
			size = 1
		}
		tr, ok := findTransition(&states[state], r)
		if !ok {
			return 0, false
		}
		state = tr.Next
		i += size
	}
	st := &states[state]
	if !st.HasAccept {
		return 0, false
	}
	return st.Accept, true
}

func (l *Lexer) symbolAllowed(sym Symbol) bool {
	if sym == SymbolSkip {
		return true
	}
	if l.valid == nil {
		return true
	}
	return int(sym) < len(l.valid) && l.valid[sym]
}

func (l *Lexer) errorToken() Token {
	start := l.offset
	startPt := l.point
	_, size := utf8.DecodeRune(l.src[l.offset:])
	if size == 0 {
		size = 1
	}
	l.point = advancePoint(l.point, l.src[l.offset:int(l.offset)+size])
	l.offset += uint32(size)
	return Token{
		Symbol:     SymbolError,
		StartByte:  start,
		EndByte:    l.offset,
		StartPoint: startPt,
		EndPoint:   l.point,
		Text:       string(l.src[start:l.offset]),
	}
}

func (l *Lexer) eofToken() Token {
	n := uint32(len(l.src))
	return Token{
		Symbol:     SymbolEOF,
		StartByte:  n,
		EndByte:    n,
		StartPoint: l.point,
		EndPoint:   l.point,
	}
}

func findTransition(st *LexState, r rune) (LexTransition, bool) {
	for _, tr := range st.Transitions {
		if r >= tr.Lo && r <= tr.Hi {
			return tr, true
		}
	}
	return LexTransition{}, false
}
