package tablegen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	wabznasm "github.com/wabznasm/go-wabznasm"
)

// Build compiles a grammar into a parse-ready language table. The output is
// deterministic: identical grammars produce identical tables, with conflict
// cells ordered shift-first and reduces in declaration order.
func Build(g *Grammar) (*wabznasm.Language, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	b, err := newBuilder(g)
	if err != nil {
		return nil, err
	}
	if err := b.buildStates(); err != nil {
		return nil, err
	}
	lang, err := b.emit()
	if err != nil {
		return nil, err
	}
	if err := lang.Validate(); err != nil {
		return nil, fmt.Errorf("tablegen: generated table failed validation: %w", err)
	}
	return lang, nil
}

type prodInfo struct {
	lhs     wabznasm.Symbol
	rhs     []wabznasm.Symbol
	fields  []wabznasm.FieldID
	prec    int
	assoc   Assoc
	dynamic int32
	inline  bool
}

type lrItem struct {
	prod int
	dot  int
}

type builder struct {
	g *Grammar

	symbolNames []string
	symbolIDs   map[string]wabznasm.Symbol
	tokenCount  int
	symbolCount int

	fieldNames []string
	fieldIDs   map[string]wabznasm.FieldID

	prods   []prodInfo
	augProd int
	rootSym wabznasm.Symbol
	// prodsOf indexes productions by left-hand side.
	prodsOf map[wabznasm.Symbol][]int

	termPrec  []int
	termAssoc []Assoc

	nullable map[wabznasm.Symbol]bool
	first    map[wabznasm.Symbol]map[wabznasm.Symbol]bool
	follow   map[wabznasm.Symbol]map[wabznasm.Symbol]bool

	// states holds the closure of each LR(0) item set; trans the outgoing
	// transition per symbol.
	states []([]lrItem)
	trans  []map[wabznasm.Symbol]int
}

func newBuilder(g *Grammar) (*builder, error) {
	b := &builder{
		g:          g,
		symbolIDs:  map[string]wabznasm.Symbol{},
		fieldNames: []string{""},
		fieldIDs:   map[string]wabznasm.FieldID{},
		prodsOf:    map[wabznasm.Symbol][]int{},
		nullable:   map[wabznasm.Symbol]bool{},
		first:      map[wabznasm.Symbol]map[wabznasm.Symbol]bool{},
		follow:     map[wabznasm.Symbol]map[wabznasm.Symbol]bool{},
	}

	b.symbolNames = append(b.symbolNames, "end")
	add := func(name string) wabznasm.Symbol {
		id := wabznasm.Symbol(len(b.symbolNames))
		b.symbolIDs[name] = id
		b.symbolNames = append(b.symbolNames, name)
		return id
	}
	for _, t := range g.Tokens {
		add(t.Name)
	}
	for _, e := range g.Externals {
		add(e.Name)
	}
	b.tokenCount = len(b.symbolNames)
	for _, r := range g.Rules {
		add(r.Name)
	}
	b.symbolCount = len(b.symbolNames)
	if b.symbolCount >= int(wabznasm.SymbolSkip) {
		return nil, fmt.Errorf("%w: %d symbols exceed the symbol space", ErrInvalidGrammar, b.symbolCount)
	}

	b.termPrec = make([]int, b.tokenCount)
	b.termAssoc = make([]Assoc, b.tokenCount)
	for i, t := range g.Tokens {
		b.termPrec[i+1] = t.Prec
		b.termAssoc[i+1] = t.Assoc
	}

	b.rootSym = b.symbolIDs[g.Rules[0].Name]
	for _, r := range g.Rules {
		lhs := b.symbolIDs[r.Name]
		for _, c := range r.Choices {
			p := prodInfo{
				lhs:     lhs,
				prec:    c.Prec,
				assoc:   c.Assoc,
				dynamic: c.Dynamic,
				inline:  c.Inline,
			}
			hasFields := false
			for _, el := range c.Elements {
				sym := b.symbolIDs[el.Sym]
				p.rhs = append(p.rhs, sym)
				p.fields = append(p.fields, b.fieldID(el.Field))
				if el.Field != "" {
					hasFields = true
				}
			}
			if !hasFields {
				p.fields = nil
			}
			// Undeclared precedence inherits from the last terminal, the
			// yacc convention.
			if p.prec == 0 {
				for i := len(p.rhs) - 1; i >= 0; i-- {
					if b.isTerminal(p.rhs[i]) {
						p.prec = b.termPrec[p.rhs[i]]
						if p.assoc == AssocNone {
							p.assoc = b.termAssoc[p.rhs[i]]
						}
						break
					}
				}
			}
			b.prodsOf[lhs] = append(b.prodsOf[lhs], len(b.prods))
			b.prods = append(b.prods, p)
		}
	}

	// Augmented start production; never emitted, it exists to seed state 0
	// and to put EOF in FOLLOW(root).
	augSym := wabznasm.Symbol(b.symbolCount)
	b.augProd = len(b.prods)
	b.prods = append(b.prods, prodInfo{lhs: augSym, rhs: []wabznasm.Symbol{b.rootSym}})

	b.computeFirstFollow()
	return b, nil
}

func (b *builder) isTerminal(sym wabznasm.Symbol) bool {
	return int(sym) < b.tokenCount
}

func (b *builder) fieldID(name string) wabznasm.FieldID {
	if name == "" {
		return 0
	}
	if id, ok := b.fieldIDs[name]; ok {
		return id
	}
	id := wabznasm.FieldID(len(b.fieldNames))
	b.fieldIDs[name] = id
	b.fieldNames = append(b.fieldNames, name)
	return id
}

func (b *builder) computeFirstFollow() {
	for sym := range b.symbolNames {
		s := wabznasm.Symbol(sym)
		b.first[s] = map[wabznasm.Symbol]bool{}
		b.follow[s] = map[wabznasm.Symbol]bool{}
		if b.isTerminal(s) {
			b.first[s][s] = true
		}
	}
	aug := b.prods[b.augProd].lhs
	b.first[aug] = map[wabznasm.Symbol]bool{}
	b.follow[aug] = map[wabznasm.Symbol]bool{}

	for changed := true; changed; {
		changed = false
		for _, p := range b.prods {
			allNullable := true
			for _, sym := range p.rhs {
				for f := range b.first[sym] {
					if !b.first[p.lhs][f] {
						b.first[p.lhs][f] = true
						changed = true
					}
				}
				if !b.nullable[sym] {
					allNullable = false
					break
				}
			}
			if allNullable && !b.nullable[p.lhs] {
				b.nullable[p.lhs] = true
				changed = true
			}
		}
	}

	b.follow[b.rootSym][wabznasm.SymbolEOF] = true
	for changed := true; changed; {
		changed = false
		for _, p := range b.prods {
			for i, sym := range p.rhs {
				if b.isTerminal(sym) {
					continue
				}
				tailNullable := true
				for j := i + 1; j < len(p.rhs); j++ {
					for f := range b.first[p.rhs[j]] {
						if !b.follow[sym][f] {
							b.follow[sym][f] = true
							changed = true
						}
					}
					if !b.nullable[p.rhs[j]] {
						tailNullable = false
						break
					}
				}
				if tailNullable {
					for f := range b.follow[p.lhs] {
						if !b.follow[sym][f] {
							b.follow[sym][f] = true
							changed = true
						}
					}
				}
			}
		}
	}
}

func (b *builder) closure(kernel []lrItem) []lrItem {
	items := append([]lrItem(nil), kernel...)
	seen := map[lrItem]bool{}
	for _, it := range items {
		seen[it] = true
	}
	for head := 0; head < len(items); head++ {
		it := items[head]
		p := b.prods[it.prod]
		if it.dot >= len(p.rhs) {
			continue
		}
		next := p.rhs[it.dot]
		if b.isTerminal(next) {
			continue
		}
		for _, pid := range b.prodsOf[next] {
			ni := lrItem{prod: pid}
			if !seen[ni] {
				seen[ni] = true
				items = append(items, ni)
			}
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].prod != items[j].prod {
			return items[i].prod < items[j].prod
		}
		return items[i].dot < items[j].dot
	})
	return items
}

func itemsKey(items []lrItem) string {
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString(strconv.Itoa(it.prod))
		sb.WriteByte('.')
		sb.WriteString(strconv.Itoa(it.dot))
		sb.WriteByte(';')
	}
	return sb.String()
}

// buildStates computes the canonical LR(0) collection. State 0 is the start
// state; it holds the augmented item, which no goto can reach, so state 0 is
// never a transition target and stays usable as the "no goto" sentinel.
func (b *builder) buildStates() error {
	start := b.closure([]lrItem{{prod: b.augProd}})
	ids := map[string]int{itemsKey(start): 0}
	b.states = [][]lrItem{start}
	b.trans = []map[wabznasm.Symbol]int{nil}

	for head := 0; head < len(b.states); head++ {
		items := b.states[head]

		bySym := map[wabznasm.Symbol][]lrItem{}
		var order []wabznasm.Symbol
		for _, it := range items {
			p := b.prods[it.prod]
			if it.dot >= len(p.rhs) {
				continue
			}
			sym := p.rhs[it.dot]
			if _, ok := bySym[sym]; !ok {
				order = append(order, sym)
			}
			bySym[sym] = append(bySym[sym], lrItem{prod: it.prod, dot: it.dot + 1})
		}
		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

		tr := map[wabznasm.Symbol]int{}
		for _, sym := range order {
			target := b.closure(bySym[sym])
			key := itemsKey(target)
			id, ok := ids[key]
			if !ok {
				id = len(b.states)
				if id > 0xFFFF {
					return fmt.Errorf("%w: grammar produces more than %d states", ErrInvalidGrammar, 0xFFFF)
				}
				ids[key] = id
				b.states = append(b.states, target)
				b.trans = append(b.trans, nil)
			}
			tr[sym] = id
		}
		b.trans[head] = tr
	}
	return nil
}

func (b *builder) emit() (*wabznasm.Language, error) {
	lang := &wabznasm.Language{
		Name:        b.g.Name,
		Version:     wabznasm.LanguageVersion,
		SymbolNames: b.symbolNames,
		FieldNames:  b.fieldNames,
		TokenCount:  uint32(b.tokenCount),
		Scanner:     b.g.Scanner,
	}

	lang.SymbolMeta = make([]wabznasm.SymbolMetadata, b.symbolCount)
	for i, t := range b.g.Tokens {
		lang.SymbolMeta[i+1] = wabznasm.SymbolMetadata{Named: t.Named, Extra: t.Extra}
	}
	for i, e := range b.g.Externals {
		sym := 1 + len(b.g.Tokens) + i
		lang.SymbolMeta[sym] = wabznasm.SymbolMetadata{Named: e.Named, Extra: e.Extra}
		lang.ExternalTokens = append(lang.ExternalTokens, wabznasm.Symbol(sym))
	}
	for i, r := range b.g.Rules {
		lang.SymbolMeta[b.tokenCount+i] = wabznasm.SymbolMetadata{Named: r.Named}
	}

	for _, p := range b.prods[:b.augProd] {
		lang.Productions = append(lang.Productions, wabznasm.Production{
			Symbol:            p.lhs,
			ChildCount:        uint16(len(p.rhs)),
			FieldIDs:          p.fields,
			DynamicPrecedence: p.dynamic,
			Inline:            p.inline,
		})
	}

	lang.ParseTable = make([][]wabznasm.ActionEntry, len(b.states))
	lang.GotoTable = make([][]wabznasm.StateID, len(b.states))
	for si, items := range b.states {
		row := make([]wabznasm.ActionEntry, b.tokenCount)
		gotoRow := make([]wabznasm.StateID, b.symbolCount)

		shiftTarget := make([]int, b.tokenCount)
		for i := range shiftTarget {
			shiftTarget[i] = -1
		}
		reduces := make([][]int, b.tokenCount)

		for sym, target := range b.trans[si] {
			if b.isTerminal(sym) {
				shiftTarget[sym] = target
			} else {
				gotoRow[sym] = wabznasm.StateID(target)
			}
		}
		accept := false
		for _, it := range items {
			p := b.prods[it.prod]
			if it.dot < len(p.rhs) {
				continue
			}
			if it.prod == b.augProd {
				accept = true
				continue
			}
			for f := range b.follow[p.lhs] {
				reduces[f] = appendUnique(reduces[f], it.prod)
			}
		}

		for sym := 0; sym < b.tokenCount; sym++ {
			actions := b.resolveCell(wabznasm.Symbol(sym), shiftTarget[sym], reduces[sym])
			if sym == int(wabznasm.SymbolEOF) && accept {
				actions = append([]wabznasm.ParseAction{{Type: wabznasm.ParseActionAccept}}, actions...)
			}
			row[sym] = wabznasm.ActionEntry{Actions: actions}
		}
		lang.ParseTable[si] = row
		lang.GotoTable[si] = gotoRow
	}

	if err := b.emitLexTables(lang); err != nil {
		return nil, err
	}
	return lang, nil
}

// resolveCell applies yacc-style precedence and associativity to one table
// cell, keeping every unresolved alternative as a GLR conflict cell with the
// shift first and reduces in declaration order.
func (b *builder) resolveCell(term wabznasm.Symbol, shift int, reduceProds []int) []wabznasm.ParseAction {
	keepShift := shift >= 0
	keep := make([]bool, len(reduceProds))
	for i := range keep {
		keep[i] = true
	}

	if keepShift {
		tp := b.termPrec[term]
		for i, pid := range reduceProds {
			pp := b.prods[pid].prec
			if pp == 0 || tp == 0 {
				continue
			}
			switch {
			case pp > tp:
				keepShift = false
			case pp < tp:
				keep[i] = false
			default:
				switch b.prods[pid].assoc {
				case AssocLeft:
					keepShift = false
				case AssocRight:
					keep[i] = false
				}
			}
		}
	}

	// Reduce/reduce: declared precedence filters, otherwise both survive
	// and dynamic precedence arbitrates at merge time.
	maxPrec := 0
	anyPrec := false
	for i, pid := range reduceProds {
		if !keep[i] {
			continue
		}
		if pp := b.prods[pid].prec; pp != 0 {
			anyPrec = true
			if pp > maxPrec {
				maxPrec = pp
			}
		}
	}
	if anyPrec {
		for i, pid := range reduceProds {
			if keep[i] && b.prods[pid].prec != 0 && b.prods[pid].prec < maxPrec {
				keep[i] = false
			}
		}
	}

	var actions []wabznasm.ParseAction
	if keepShift {
		actions = append(actions, wabznasm.ParseAction{
			Type:  wabznasm.ParseActionShift,
			State: wabznasm.StateID(shift),
		})
	}
	for i, pid := range reduceProds {
		if !keep[i] {
			continue
		}
		actions = append(actions, wabznasm.ParseAction{
			Type:       wabznasm.ParseActionReduce,
			Production: wabznasm.ProductionID(pid),
		})
	}
	return actions
}

func (b *builder) emitLexTables(lang *wabznasm.Language) error {
	var main, word []lexTokenSpec
	for i, t := range b.g.Tokens {
		sym := wabznasm.Symbol(i + 1)
		if t.Skip {
			sym = wabznasm.SymbolSkip
		}
		spec := lexTokenSpec{pattern: t.Pattern, symbol: sym, prec: t.Prec, index: i}
		if t.Word {
			word = append(word, spec)
			continue
		}
		main = append(main, spec)
	}

	dfa, err := compileLexDFA(main)
	if err != nil {
		return err
	}
	lang.LexStates = dfa.states

	if len(word) > 0 {
		kw, err := compileLexDFA(word)
		if err != nil {
			return err
		}
		lang.KeywordLexStates = kw.states
		capture, ok := b.symbolIDs[b.g.WordToken]
		if !ok || !b.isTerminal(capture) {
			return fmt.Errorf("%w: word-capture token %q is not a terminal", ErrInvalidGrammar, b.g.WordToken)
		}
		lang.KeywordCaptureToken = capture
		for i := range lang.LexStates {
			if lang.LexStates[i].HasAccept && lang.LexStates[i].Accept == capture {
				lang.LexStates[i].IsKeyword = true
			}
		}
	}
	return nil
}

func appendUnique(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
