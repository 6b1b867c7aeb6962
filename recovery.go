package wabznasm

// maxRecoverySkip bounds how many tokens error-node synthesis may consume
// while looking for a resynchronization anchor. Recovery therefore always
// terminates: every round consumes at least one token or reaches EOF.
const maxRecoverySkip = 64

// recoverStacks is entered when no live stack has a valid action for the
// lookahead. It tries, in order: single-token insertion, then token
// deletion, then error-node synthesis with resynchronization against any
// state still on the stack. It returns the surviving stacks, the token to
// continue with, and whether parsing can proceed.
func (p *Parser) recoverStacks(stacks []glrStack, tok Token, ts TokenSource, arena *nodeArena) ([]glrStack, Token, bool) {
	best := 0
	for i := range stacks {
		if stacks[i].score > stacks[best].score {
			best = i
		}
	}
	s := stacks[best]
	s.dead = false
	s.recovering = true

	if tok.StartByte == p.lastRecoveryByte {
		p.recoveryAttempts++
	} else {
		p.lastRecoveryByte = tok.StartByte
		p.recoveryAttempts = 0
	}

	// (a) Insertion: assume a single expected token is missing. Only on the
	// first attempt at a given position, so a bad guess cannot loop.
	if tok.Symbol != SymbolEOF && p.recoveryAttempts == 0 {
		if p.tryInsertMissing(&s, tok, arena) {
			return append(stacks[:0], s), tok, true
		}
	}

	// (b)+(c) Deletion and error-node synthesis. Skipped tokens accumulate
	// until some stack state can act on the lookahead; anchoring at the top
	// state with a single skipped token is plain deletion, anchoring lower
	// pops the orphaned subtrees into the error node too.
	var skipped []Token
	cur := tok
	popTo := -1
	if cur.Symbol != SymbolEOF {
		skipped = append(skipped, cur)
		cur = ts.Next()
	}
	for steps := 0; ; steps++ {
		if cur.Symbol == SymbolEOF {
			popTo = p.anchorDepth(&s, SymbolEOF)
			break
		}
		if j := p.anchorDepth(&s, cur.Symbol); j >= 0 {
			popTo = j
			break
		}
		if steps >= maxRecoverySkip {
			break
		}
		skipped = append(skipped, cur)
		cur = ts.Next()
	}

	var children []*Node
	if popTo >= 0 && popTo < len(s.entries)-1 {
		for _, e := range s.entries[popTo+1:] {
			if e.node != nil {
				children = append(children, e.node)
			}
		}
		s.entries = s.entries[:popTo+1]
	}
	for _, st := range skipped {
		children = append(children, p.newLeafNode(st, s.top().state, arena))
	}
	children = p.spliceHidden(children)

	if len(children) == 0 {
		if cur.Symbol == SymbolEOF {
			// Nothing to wrap and nothing to pop: give up and let the
			// caller force-finish with an error-marked root.
			stacks[best] = s
			return stacks, cur, false
		}
		return append(stacks[:0], s), cur, true
	}

	errNode := arena.allocNode()
	errNode.lang = p.lang
	errNode.symbol = SymbolError
	errNode.isError = true
	errNode.hasError = true
	errNode.named = true
	stored := arena.allocNodeSlice(len(children))
	copy(stored, children)
	errNode.children = stored
	errNode.startByte = stored[0].startByte
	errNode.endByte = stored[len(stored)-1].endByte
	errNode.startPoint = stored[0].startPoint
	errNode.endPoint = stored[len(stored)-1].endPoint
	for _, c := range stored {
		if c.containsExternal {
			errNode.containsExternal = true
		}
	}

	s.push(s.top().state, errNode, &p.entryScratch)
	return append(stacks[:0], s), cur, true
}

// tryInsertMissing looks for a single terminal whose insertion lets the
// parser act on the real lookahead. The inserted token is zero-width,
// marked missing, and counts as an error for HasError purposes. Terminals
// are tried in symbol order, which keeps the choice deterministic.
func (p *Parser) tryInsertMissing(s *glrStack, tok Token, arena *nodeArena) bool {
	state := s.top().state
	for term := Symbol(1); uint32(term) < p.lang.TokenCount; term++ {
		if term == tok.Symbol || p.lang.IsExtra(term) || p.lang.IsExternal(term) {
			continue
		}
		entry := p.lang.lookupAction(state, term)
		if entry == nil {
			continue
		}
		var shift *ParseAction
		for i := range entry.Actions {
			if entry.Actions[i].Type == ParseActionShift && !entry.Actions[i].Extra {
				shift = &entry.Actions[i]
				break
			}
		}
		if shift == nil {
			continue
		}
		if p.lang.lookupAction(shift.State, tok.Symbol) == nil {
			continue
		}

		node := arena.allocNode()
		node.lang = p.lang
		node.symbol = term
		node.startByte = tok.StartByte
		node.endByte = tok.StartByte
		node.startPoint = tok.StartPoint
		node.endPoint = tok.StartPoint
		node.parseState = shift.State
		node.named = p.lang.IsNamed(term)
		node.missing = true
		node.hasError = true

		s.push(shift.State, node, &p.entryScratch)
		return true
	}
	return false
}

// anchorDepth returns the highest stack index whose state can act on sym,
// or -1. Extra tokens anchor at the top since they shift anywhere.
func (p *Parser) anchorDepth(s *glrStack, sym Symbol) int {
	if p.lang.IsExtra(sym) {
		return len(s.entries) - 1
	}
	for j := len(s.entries) - 1; j >= 0; j-- {
		if p.lang.lookupAction(s.entries[j].state, sym) != nil {
			return j
		}
	}
	return -1
}
