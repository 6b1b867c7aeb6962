package wabznasm

import (
	"errors"
	"fmt"
)

// Symbol identifies a grammar symbol. Terminal symbols occupy the range
// [0, TokenCount); symbol 0 is the runtime EOF sentinel. Nonterminal symbols
// follow the terminals.
type Symbol uint16

// StateID identifies a parse-table state. State 0 is reserved as the
// "no state" marker for goto lookups.
type StateID uint16

// FieldID identifies a named child slot within a production. Field 0 means
// "no field".
type FieldID uint16

// ProductionID indexes into Language.Productions.
type ProductionID uint16

const (
	// SymbolEOF is the end-of-input sentinel emitted by token sources.
	SymbolEOF Symbol = 0
	// SymbolError is the synthetic symbol carried by error nodes and by
	// error tokens emitted when lexing fails.
	SymbolError Symbol = 0xFFFE
	// SymbolSkip marks lexer DFA accept states whose match is discarded
	// (whitespace). It never appears in a token or a tree.
	SymbolSkip Symbol = 0xFFFD
)

// LanguageVersion is the ABI version this runtime produces and consumes.
// MinCompatibleLanguageVersion is the oldest table version still accepted;
// tables outside [min, current] are rejected before any parse begins.
const (
	LanguageVersion              = 3
	MinCompatibleLanguageVersion = 2
)

// ErrIncompatibleLanguage reports a table whose ABI version is outside the
// supported range.
var ErrIncompatibleLanguage = errors.New("incompatible language version")

// ErrMalformedLanguage reports a structurally invalid table.
var ErrMalformedLanguage = errors.New("malformed language table")

// ParseActionType enumerates the parse-table action kinds.
type ParseActionType uint8

const (
	ParseActionShift ParseActionType = iota
	ParseActionReduce
	ParseActionAccept
)

// ParseAction is a single table action. A cell holding more than one action
// is a GLR conflict cell: the parser forks one stack per action.
type ParseAction struct {
	Type ParseActionType
	// State is the shift target for ParseActionShift.
	State StateID
	// Production identifies the rule reduced by ParseActionReduce.
	Production ProductionID
	// Extra marks shifts of extra tokens (comments); they leave the parse
	// state unchanged.
	Extra bool
}

// ActionEntry is one parse-table cell.
type ActionEntry struct {
	Actions []ParseAction
}

// Production describes one grammar rule for reduce actions.
type Production struct {
	// Symbol is the nonterminal on the left-hand side.
	Symbol Symbol
	// ChildCount is the number of right-hand-side symbols popped on reduce.
	ChildCount uint16
	// FieldIDs assigns a field to each right-hand-side position; nil when
	// the production declares no fields.
	FieldIDs []FieldID
	// DynamicPrecedence is added to a stack's score when this production
	// reduces; it breaks ties between ambiguous parses at merge points.
	DynamicPrecedence int32
	// Inline productions are chain rules that do not materialize a node;
	// the single child passes through unchanged.
	Inline bool
}

// SymbolMetadata carries per-symbol flags.
type SymbolMetadata struct {
	// Named symbols appear in the tree under their rule name; anonymous
	// symbols are literal tokens such as "+".
	Named bool
	// Extra symbols may appear anywhere (comments) and are shifted without
	// a state change.
	Extra bool
}

// LexState is one node in the lexer DFA compiled into the language table.
type LexState struct {
	Transitions []LexTransition
	Accept      Symbol
	HasAccept   bool
	// IsKeyword marks accept states whose token must be re-checked against
	// the keyword DFA.
	IsKeyword bool
}

// LexTransition is one DFA edge covering the inclusive rune range [Lo, Hi].
type LexTransition struct {
	Lo, Hi rune
	Next   int32
	// Skip edges consume bytes that belong to no token (whitespace before
	// a token start).
	Skip bool
}

// Language is the compiled, immutable grammar table consumed by the parser.
// It is built once by a grammar package, shared by reference across any
// number of concurrent parsers, and never mutated after construction.
type Language struct {
	Name    string
	Version uint32

	// SymbolNames is indexed by Symbol; terminals first. Index 0 is the
	// EOF sentinel name "end".
	SymbolNames []string
	SymbolMeta  []SymbolMetadata
	// FieldNames is indexed by FieldID; index 0 is unused.
	FieldNames []string
	// TokenCount is the number of terminal symbols.
	TokenCount uint32

	Productions []Production

	// ParseTable is indexed [state][terminal symbol]. A nil Actions slice
	// means no valid action.
	ParseTable [][]ActionEntry
	// GotoTable is indexed [state][symbol]; 0 means no transition.
	GotoTable [][]StateID

	// LexStates is the main lexer DFA; state 0 is the start state.
	LexStates []LexState
	// KeywordLexStates re-checks tokens accepted by IsKeyword states, the
	// keyword-capture scheme used by generated lexers.
	KeywordLexStates    []LexState
	KeywordCaptureToken Symbol

	// ExternalTokens lists terminal symbols recognized by the external
	// scanner rather than the DFA.
	ExternalTokens []Symbol
	// Scanner is the external scanner servicing ExternalTokens; nil when
	// the grammar declares none.
	Scanner ExternalScanner
}

// Validate checks table shape and ABI version. It must pass before the table
// is handed to a parser; a failure here is the only unrecoverable error class
// in this package.
func (l *Language) Validate() error {
	if l == nil {
		return fmt.Errorf("%w: nil language", ErrMalformedLanguage)
	}
	if l.Version < MinCompatibleLanguageVersion || l.Version > LanguageVersion {
		return fmt.Errorf("%w: table version %d, runtime supports [%d, %d]",
			ErrIncompatibleLanguage, l.Version, MinCompatibleLanguageVersion, LanguageVersion)
	}
	symbolCount := len(l.SymbolNames)
	if symbolCount == 0 || l.SymbolNames[0] != "end" {
		return fmt.Errorf("%w: symbol 0 must be the EOF sentinel \"end\"", ErrMalformedLanguage)
	}
	if len(l.SymbolMeta) != symbolCount {
		return fmt.Errorf("%w: symbol metadata count %d != symbol count %d",
			ErrMalformedLanguage, len(l.SymbolMeta), symbolCount)
	}
	if int(l.TokenCount) > symbolCount || l.TokenCount == 0 {
		return fmt.Errorf("%w: token count %d out of range", ErrMalformedLanguage, l.TokenCount)
	}
	if len(l.ParseTable) == 0 {
		return fmt.Errorf("%w: empty parse table", ErrMalformedLanguage)
	}
	if len(l.GotoTable) != len(l.ParseTable) {
		return fmt.Errorf("%w: goto table has %d states, parse table has %d",
			ErrMalformedLanguage, len(l.GotoTable), len(l.ParseTable))
	}
	for state, row := range l.ParseTable {
		if len(row) != int(l.TokenCount) {
			return fmt.Errorf("%w: state %d action row has %d columns, want %d",
				ErrMalformedLanguage, state, len(row), l.TokenCount)
		}
		for sym := range row {
			for _, act := range row[sym].Actions {
				if err := l.validateAction(state, Symbol(sym), act); err != nil {
					return err
				}
			}
		}
	}
	for state, row := range l.GotoTable {
		if len(row) != symbolCount {
			return fmt.Errorf("%w: state %d goto row has %d columns, want %d",
				ErrMalformedLanguage, state, len(row), symbolCount)
		}
		for _, next := range row {
			if int(next) >= len(l.ParseTable) {
				return fmt.Errorf("%w: state %d goto target %d out of range",
					ErrMalformedLanguage, state, next)
			}
		}
	}
	for i, prod := range l.Productions {
		if int(prod.Symbol) >= symbolCount {
			return fmt.Errorf("%w: production %d symbol %d out of range",
				ErrMalformedLanguage, i, prod.Symbol)
		}
		if prod.FieldIDs != nil && len(prod.FieldIDs) != int(prod.ChildCount) {
			return fmt.Errorf("%w: production %d has %d field ids for %d children",
				ErrMalformedLanguage, i, len(prod.FieldIDs), prod.ChildCount)
		}
		for _, f := range prod.FieldIDs {
			if int(f) >= len(l.FieldNames) && f != 0 {
				return fmt.Errorf("%w: production %d field id %d out of range",
					ErrMalformedLanguage, i, f)
			}
		}
	}
	if err := validateLexStates(l.LexStates, "lex"); err != nil {
		return err
	}
	if err := validateLexStates(l.KeywordLexStates, "keyword lex"); err != nil {
		return err
	}
	for _, sym := range l.ExternalTokens {
		if uint32(sym) >= l.TokenCount {
			return fmt.Errorf("%w: external token %d is not a terminal", ErrMalformedLanguage, sym)
		}
	}
	if len(l.ExternalTokens) > 0 && l.Scanner == nil {
		return fmt.Errorf("%w: external tokens declared without a scanner", ErrMalformedLanguage)
	}
	return nil
}

func (l *Language) validateAction(state int, sym Symbol, act ParseAction) error {
	switch act.Type {
	case ParseActionShift:
		if int(act.State) >= len(l.ParseTable) {
			return fmt.Errorf("%w: state %d shift on %q targets state %d out of range",
				ErrMalformedLanguage, state, l.SymbolName(sym), act.State)
		}
	case ParseActionReduce:
		if int(act.Production) >= len(l.Productions) {
			return fmt.Errorf("%w: state %d reduce on %q names production %d out of range",
				ErrMalformedLanguage, state, l.SymbolName(sym), act.Production)
		}
	case ParseActionAccept:
		if sym != SymbolEOF {
			return fmt.Errorf("%w: state %d accepts on %q, accept is only valid at EOF",
				ErrMalformedLanguage, state, l.SymbolName(sym))
		}
	default:
		return fmt.Errorf("%w: state %d has unknown action type %d", ErrMalformedLanguage, state, act.Type)
	}
	return nil
}

func validateLexStates(states []LexState, which string) error {
	for i, st := range states {
		for _, tr := range st.Transitions {
			if tr.Hi < tr.Lo {
				return fmt.Errorf("%w: %s state %d has inverted rune range [%d, %d]",
					ErrMalformedLanguage, which, i, tr.Lo, tr.Hi)
			}
			if int(tr.Next) >= len(states) || tr.Next < 0 {
				return fmt.Errorf("%w: %s state %d transition targets state %d out of range",
					ErrMalformedLanguage, which, i, tr.Next)
			}
		}
	}
	return nil
}

// SymbolName returns the display name for sym, including the synthetic
// error symbol.
func (l *Language) SymbolName(sym Symbol) string {
	if sym == SymbolError {
		return "ERROR"
	}
	if int(sym) < len(l.SymbolNames) {
		return l.SymbolNames[sym]
	}
	return fmt.Sprintf("symbol-%d", sym)
}

// SymbolByName resolves a symbol id from its grammar name.
func (l *Language) SymbolByName(name string) (Symbol, bool) {
	for i, n := range l.SymbolNames {
		if n == name {
			return Symbol(i), true
		}
	}
	return 0, false
}

// FieldByName resolves a field id from its grammar name.
func (l *Language) FieldByName(name string) (FieldID, bool) {
	for i := 1; i < len(l.FieldNames); i++ {
		if l.FieldNames[i] == name {
			return FieldID(i), true
		}
	}
	return 0, false
}

// FieldName returns the display name for a field id.
func (l *Language) FieldName(id FieldID) string {
	if id == 0 || int(id) >= len(l.FieldNames) {
		return ""
	}
	return l.FieldNames[id]
}

// IsNamed reports whether sym appears in trees under its rule name.
func (l *Language) IsNamed(sym Symbol) bool {
	if sym == SymbolError {
		return true
	}
	return int(sym) < len(l.SymbolMeta) && l.SymbolMeta[sym].Named
}

// IsExtra reports whether sym may appear anywhere in the token stream.
func (l *Language) IsExtra(sym Symbol) bool {
	return int(sym) < len(l.SymbolMeta) && l.SymbolMeta[sym].Extra
}

// IsExternal reports whether sym is produced by the external scanner.
func (l *Language) IsExternal(sym Symbol) bool {
	for _, s := range l.ExternalTokens {
		if s == sym {
			return true
		}
	}
	return false
}

// RootSymbol is the nonterminal produced by a completed parse.
func (l *Language) RootSymbol() Symbol {
	if len(l.Productions) == 0 {
		return SymbolError
	}
	return l.Productions[0].Symbol
}

func (l *Language) lookupAction(state StateID, sym Symbol) *ActionEntry {
	if int(state) >= len(l.ParseTable) || uint32(sym) >= l.TokenCount {
		return nil
	}
	entry := &l.ParseTable[state][sym]
	if len(entry.Actions) == 0 {
		return nil
	}
	return entry
}

func (l *Language) lookupGoto(state StateID, sym Symbol) StateID {
	if int(state) >= len(l.GotoTable) || int(sym) >= len(l.GotoTable[state]) {
		return 0
	}
	return l.GotoTable[state][sym]
}
