package wabznasm

import (
	"context"
)

// cancelCheckInterval is how many tokens may be consumed between
// cancellation checks. Cancellation is responsive without per-character
// overhead.
const cancelCheckInterval = 64

// Parser drives a Language table over a token stream and builds syntax
// trees. A Parser owns scratch state and must not be shared between
// concurrent parses; Parsers over the same Language are cheap to create and
// the Language itself is freely shared.
type Parser struct {
	lang *Language

	mergeScratch glrMergeScratch
	entryScratch glrEntryScratch
	reuseScratch reuseScratch
	stackScratch []glrStack
	validBuf     []bool

	// recovery bookkeeping, reset per parse.
	lastRecoveryByte uint32
	recoveryAttempts int
	recoveredAtEOF   bool
}

// NewParser validates the language table and returns a parser for it.
// Table validation failures are the only unrecoverable errors in this
// package; they are reported here, before any parse can begin.
func NewParser(lang *Language) (*Parser, error) {
	if err := lang.Validate(); err != nil {
		return nil, err
	}
	return &Parser{lang: lang}, nil
}

// Language returns the table this parser was built with.
func (p *Parser) Language() *Language { return p.lang }

// Parse parses source from scratch.
func (p *Parser) Parse(source []byte) (*Tree, error) {
	return p.ParseContext(context.Background(), source, nil)
}

// ParseIncremental parses source, reusing unaffected subtrees from oldTree.
// oldTree must describe the previous version of the same document with its
// edits applied via Tree.Edit.
func (p *Parser) ParseIncremental(source []byte, oldTree *Tree) (*Tree, error) {
	return p.ParseContext(context.Background(), source, oldTree)
}

// ParseContext is ParseIncremental with cancellation: ctx is checked every
// cancelCheckInterval tokens, and a cancelled parse returns (nil, ctx.Err())
// with all in-progress state discarded.
func (p *Parser) ParseContext(ctx context.Context, source []byte, oldTree *Tree) (*Tree, error) {
	lx := NewLexer(source, p.lang)
	defer lx.Close()
	return p.parse(ctx, source, oldTree, lx)
}

// ParseWithTokenSource parses using a caller-supplied token source instead
// of the table lexer.
func (p *Parser) ParseWithTokenSource(source []byte, ts TokenSource) (*Tree, error) {
	return p.parse(context.Background(), source, nil, ts)
}

func (p *Parser) parse(ctx context.Context, source []byte, oldTree *Tree, ts TokenSource) (*Tree, error) {
	arenaCls := arenaClassFull
	if oldTree != nil {
		arenaCls = arenaClassIncremental
	}
	arena := acquireNodeArena(arenaCls)

	defer p.entryScratch.reset()
	p.lastRecoveryByte = 0
	p.recoveryAttempts = 0
	p.recoveredAtEOF = false

	var idx *reuseCursor
	if oldTree != nil && oldTree.lang == p.lang {
		idx = (&reuseCursor{}).reset(oldTree, source, &p.reuseScratch)
	}

	stacks := p.stackScratch[:0]
	stacks = append(stacks, newGLRStack(0, &p.entryScratch))

	p.publishValidSymbols(stacks, ts)
	tok := ts.Next()
	tokenCount := 0

	for {
		if tokenCount%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				arena.Release()
				p.stackScratch = stacks[:0]
				return nil, err
			}
		}
		tokenCount++

		if idx != nil && len(stacks) == 1 && tok.Symbol != SymbolEOF {
			if next, ok := p.tryReuseSubtree(&stacks[0], tok, ts, idx, &p.entryScratch); ok {
				tok = next
				continue
			}
		}

		atEOF := tok.Symbol == SymbolEOF
		stacks = p.advanceStacks(stacks, tok, arena)

		if allDead(stacks) {
			if atEOF && p.recoveredAtEOF {
				break
			}
			var recovered bool
			stacks, tok, recovered = p.recoverStacks(stacks, tok, ts, arena)
			if atEOF {
				p.recoveredAtEOF = true
			}
			if !recovered {
				break
			}
			continue
		}

		if atEOF {
			break
		}

		p.publishValidSymbols(stacks, ts)
		tok = ts.Next()
	}

	if idx != nil {
		idx.commitScratch(&p.reuseScratch)
	}

	tree := p.finishTree(stacks, source, tok, oldTree, arena)
	p.stackScratch = stacks[:0]
	return tree, nil
}

// advanceStacks processes one token against every live stack, forking on
// conflict cells and merging converged stacks afterwards.
func (p *Parser) advanceStacks(stacks []glrStack, tok Token, arena *nodeArena) []glrStack {
	out := stacks[len(stacks):]
	work := stacks
	for i := range work {
		out = p.advanceStackOnToken(work[i], tok, arena, out)
	}
	merged := mergeStacksWithScratch(out, &p.mergeScratch)
	if len(merged) == 0 {
		// Every stack died on this token. Keep the corpses: recovery picks
		// the best-scoring one to resume from.
		stacks = stacks[:0]
		stacks = append(stacks, out...)
		return stacks
	}
	// Keep the survivors in the caller's backing array.
	stacks = stacks[:0]
	stacks = append(stacks, merged...)
	return stacks
}

// advanceStackOnToken runs the shift/reduce loop for one stack and one
// token. Reduce actions loop until the token is consumed by a shift or the
// stack accepts or dies. Conflict cells clone the stack per extra action.
func (p *Parser) advanceStackOnToken(s glrStack, tok Token, arena *nodeArena, out []glrStack) []glrStack {
	work := []glrStack{s}
	for len(work) > 0 {
		st := work[len(work)-1]
		work = work[:len(work)-1]

		for {
			if st.dead || st.accepted {
				break
			}
			entry := p.lang.lookupAction(st.top().state, tok.Symbol)
			if entry == nil {
				if p.shiftOutsideGrammar(&st, tok, arena) {
					break
				}
				st.dead = true
				break
			}
			for _, act := range entry.Actions[1:] {
				fork := st.clone(&p.entryScratch)
				if p.applyAction(&fork, act, tok, arena) {
					out = append(out, fork)
				} else {
					work = append(work, fork)
				}
			}
			if p.applyAction(&st, entry.Actions[0], tok, arena) {
				break
			}
		}
		out = append(out, st)
	}
	return out
}

// shiftOutsideGrammar handles tokens no production mentions at this point:
// extras (comments) and lexical-error tokens are attached in place without
// changing the parse state, so one bad region never kills the parse.
func (p *Parser) shiftOutsideGrammar(s *glrStack, tok Token, arena *nodeArena) bool {
	switch {
	case tok.Symbol == SymbolError:
		node := p.newLeafNode(tok, s.top().state, arena)
		node.isError = true
		node.hasError = true
		s.push(s.top().state, node, &p.entryScratch)
		return true
	case p.lang.IsExtra(tok.Symbol):
		node := p.newLeafNode(tok, s.top().state, arena)
		node.extra = true
		s.push(s.top().state, node, &p.entryScratch)
		return true
	}
	return false
}

// applyAction applies one table action. It reports whether the token was
// consumed: shifts and accepts consume, reduces do not.
func (p *Parser) applyAction(s *glrStack, act ParseAction, tok Token, arena *nodeArena) bool {
	switch act.Type {
	case ParseActionShift:
		node := p.newLeafNode(tok, act.State, arena)
		if act.Extra {
			node.extra = true
			s.push(s.top().state, node, &p.entryScratch)
			return true
		}
		s.push(act.State, node, &p.entryScratch)
		return true

	case ParseActionReduce:
		prod := &p.lang.Productions[act.Production]
		children, trailing := s.popChildren(int(prod.ChildCount))
		gotoState := p.lang.lookupGoto(s.top().state, prod.Symbol)
		if gotoState == 0 {
			s.dead = true
			return true
		}
		switch {
		case prod.Inline && len(children) == 1:
			// Chain rule: the child passes through without a wrapper node.
			s.push(gotoState, children[0], &p.entryScratch)
		case prod.Inline && len(children) == 0:
			// Inlined epsilon rule: nothing to materialize.
			s.push(gotoState, nil, &p.entryScratch)
		default:
			node := p.newInteriorNode(prod, children, tok, gotoState, arena)
			s.push(gotoState, node, &p.entryScratch)
		}
		for _, n := range trailing {
			s.push(s.top().state, n, &p.entryScratch)
		}
		s.score += prod.DynamicPrecedence
		return false

	case ParseActionAccept:
		s.accepted = true
		return true
	}
	s.dead = true
	return true
}

func (p *Parser) newLeafNode(tok Token, state StateID, arena *nodeArena) *Node {
	node := arena.allocNode()
	node.lang = p.lang
	node.symbol = tok.Symbol
	node.startByte = tok.StartByte
	node.endByte = tok.EndByte
	node.startPoint = tok.StartPoint
	node.endPoint = tok.EndPoint
	node.parseState = state
	node.named = p.lang.IsNamed(tok.Symbol)
	if p.lang.IsExternal(tok.Symbol) {
		node.containsExternal = true
	}
	return node
}

// isHiddenInterior reports whether n is an unnamed rule node. Hidden rules
// exist only to express repetition; their children splice into the parent so
// they never appear in the final tree.
func (p *Parser) isHiddenInterior(n *Node) bool {
	return !n.named && !n.isError && uint32(n.symbol) >= p.lang.TokenCount
}

// spliceHidden flattens hidden-rule children into their parent's child list.
func (p *Parser) spliceHidden(children []*Node) []*Node {
	needed := false
	for _, c := range children {
		if p.isHiddenInterior(c) {
			needed = true
			break
		}
	}
	if !needed {
		return children
	}
	flat := make([]*Node, 0, len(children)+4)
	for _, c := range children {
		if p.isHiddenInterior(c) {
			flat = append(flat, c.children...)
		} else {
			flat = append(flat, c)
		}
	}
	return flat
}

func (p *Parser) newInteriorNode(prod *Production, children []*Node, tok Token, state StateID, arena *nodeArena) *Node {
	children = p.spliceHidden(children)

	node := arena.allocNode()
	node.lang = p.lang
	node.symbol = prod.Symbol
	node.parseState = state
	node.named = p.lang.IsNamed(prod.Symbol)

	if len(children) == 0 {
		// Epsilon rule: zero-width node at the lookahead position.
		node.startByte = tok.StartByte
		node.endByte = tok.StartByte
		node.startPoint = tok.StartPoint
		node.endPoint = tok.StartPoint
		return node
	}

	stored := arena.allocNodeSlice(len(children))
	copy(stored, children)
	node.children = stored
	node.startByte = stored[0].startByte
	node.endByte = stored[len(stored)-1].endByte
	node.startPoint = stored[0].startPoint
	node.endPoint = stored[len(stored)-1].endPoint

	if prod.FieldIDs != nil {
		fields := make([]FieldID, len(stored))
		rhs := 0
		for i, c := range stored {
			if c.extra || c.isError {
				continue
			}
			if rhs < len(prod.FieldIDs) {
				fields[i] = prod.FieldIDs[rhs]
			}
			rhs++
		}
		node.fieldIDs = fields
	}

	for _, c := range stored {
		if c.hasError || c.isError || c.missing {
			node.hasError = true
		}
		if c.containsExternal {
			node.containsExternal = true
		}
	}
	return node
}

// publishValidSymbols hands the union of currently shiftable terminals to a
// state-aware token source. Extras and external tokens stay valid anywhere.
func (p *Parser) publishValidSymbols(stacks []glrStack, ts TokenSource) {
	aware, ok := ts.(StateAwareTokenSource)
	if !ok {
		return
	}
	if cap(p.validBuf) < int(p.lang.TokenCount) {
		p.validBuf = make([]bool, p.lang.TokenCount)
	}
	valid := p.validBuf[:p.lang.TokenCount]
	clear(valid)
	valid[SymbolEOF] = true
	for sym := range valid {
		if p.lang.IsExtra(Symbol(sym)) {
			valid[sym] = true
		}
	}
	for i := range stacks {
		if stacks[i].dead {
			continue
		}
		state := stacks[i].top().state
		row := p.lang.ParseTable[state]
		for sym := range row {
			if len(row[sym].Actions) > 0 {
				valid[sym] = true
			}
		}
	}
	aware.SetValidSymbols(valid)
}

func allDead(stacks []glrStack) bool {
	for i := range stacks {
		if !stacks[i].dead {
			return false
		}
	}
	return true
}

// finishTree assembles the final tree. The root always spans the entire
// input: leftover stack entries that never joined a reduction are folded in,
// and a parse that never reached an accept state produces an error-marked
// root rather than no tree at all.
func (p *Parser) finishTree(stacks []glrStack, source []byte, eofTok Token, oldTree *Tree, arena *nodeArena) *Tree {
	best := -1
	for i := range stacks {
		if !stacks[i].accepted {
			continue
		}
		if best == -1 || stacks[i].score > stacks[best].score {
			best = i
		}
	}
	forced := false
	if best == -1 {
		// No accepted stack: take the deepest surviving configuration.
		forced = true
		for i := range stacks {
			if best == -1 || len(stacks[i].entries) > len(stacks[best].entries) {
				best = i
			}
		}
	}

	var nodes []*Node
	if best >= 0 {
		for _, e := range stacks[best].entries {
			if e.node != nil {
				nodes = append(nodes, e.node)
			}
		}
	}

	root := p.assembleRoot(nodes, source, eofTok, forced, arena)

	tree := &Tree{
		lang:   p.lang,
		source: source,
		root:   root,
		arenas: []*nodeArena{arena},
	}
	if oldTree != nil {
		// Reused subtrees live in the old tree's arenas.
		oldTree.retainArenas()
		tree.arenas = append(tree.arenas, oldTree.arenas...)
	}
	return tree
}

func (p *Parser) assembleRoot(nodes []*Node, source []byte, eofTok Token, forced bool, arena *nodeArena) *Node {
	rootSym := p.lang.RootSymbol()

	var root *Node
	switch {
	case len(nodes) == 1 && nodes[0].symbol == rootSym && !forced:
		root = nodes[0]
	default:
		// Fold leftover subtrees (leading extras, recovery residue, or a
		// forced finish) into a fresh root.
		var children []*Node
		for _, n := range nodes {
			if n.symbol == rootSym {
				children = append(children, n.children...)
			} else {
				children = append(children, n)
			}
		}
		children = p.spliceHidden(children)
		root = arena.allocNode()
		root.lang = p.lang
		root.symbol = rootSym
		root.named = true
		if len(children) > 0 {
			stored := arena.allocNodeSlice(len(children))
			copy(stored, children)
			root.children = stored
		}
		for _, c := range children {
			if c.hasError || c.isError || c.missing {
				root.hasError = true
			}
			if c.containsExternal {
				root.containsExternal = true
			}
		}
		if forced && len(source) > 0 {
			root.hasError = true
		}
	}

	if root.startByte != 0 || root.endByte != uint32(len(source)) {
		// The root must span the whole input even when leading or trailing
		// bytes never made it into a token.
		grown := arena.allocNode()
		*grown = *root
		grown.startByte = 0
		grown.startPoint = Point{}
		grown.endByte = uint32(len(source))
		grown.endPoint = eofTok.EndPoint
		root = grown
	}
	return root
}
