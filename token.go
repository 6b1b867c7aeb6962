package wabznasm

// Token is one terminal produced by a token source. The byte range is
// half-open. Tokens are transient: the parser consumes them immediately and
// retains them only as leaf nodes.
type Token struct {
	Symbol     Symbol
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Text       string
}

// TokenSource produces the terminal stream for one parse. Implementations
// must be synchronous and re-entrant per parse; the EOF token carries
// SymbolEOF and a zero-width range at the end of input.
type TokenSource interface {
	Next() Token
}

// ByteSkippableTokenSource can reposition its cursor to an arbitrary byte
// offset. The incremental reuse engine uses this to jump past reused
// subtrees without re-lexing their contents.
type ByteSkippableTokenSource interface {
	TokenSource
	SkipToByte(offset uint32) Token
}

// StateAwareTokenSource receives the set of terminal symbols the parser can
// currently act on, indexed by Symbol. The table lexer uses it to pick among
// overlapping matches and to gate external scanner tokens.
type StateAwareTokenSource interface {
	TokenSource
	SetValidSymbols(valid []bool)
}
