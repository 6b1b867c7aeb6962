package tablegen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	wabznasm "github.com/wabznasm/go-wabznasm"
)

// lexTokenSpec is one token handed to the DFA compiler: its pattern, the
// runtime symbol its matches carry, and a lexical precedence used to pick a
// winner when two tokens accept the same text.
type lexTokenSpec struct {
	pattern Pattern
	symbol  wabznasm.Symbol
	prec    int
	index   int
}

type lexDFAResult struct {
	states []wabznasm.LexState
	// acceptToken maps each DFA state to the winning lexTokenSpec index,
	// -1 for non-accepting states.
	acceptToken []int
}

// compileLexDFA runs the Thompson construction over every token pattern and
// determinizes the combined NFA with the subset construction. Transition
// labels are rune ranges; the alphabet is partitioned at range boundaries so
// each DFA edge covers a maximal uniform interval.
func compileLexDFA(toks []lexTokenSpec) (*lexDFAResult, error) {
	if len(toks) == 0 {
		return &lexDFAResult{}, nil
	}

	var n lexNFA
	start := n.newState()
	acceptOf := make(map[int32]int)
	for i, t := range toks {
		if t.pattern == nil {
			return nil, fmt.Errorf("token %d has no pattern", t.index)
		}
		s, e := t.pattern.compile(&n)
		n.addEps(start, s)
		acceptOf[e] = i
	}

	type dfaBuild struct {
		set []int32
	}
	startSet := epsClosure(&n, []int32{start})
	ids := map[string]int32{setKey(startSet): 0}
	queue := []dfaBuild{{set: startSet}}

	var result lexDFAResult

	for head := 0; head < len(queue); head++ {
		set := queue[head].set

		var st wabznasm.LexState
		best := -1
		for _, ns := range set {
			ti, ok := acceptOf[ns]
			if !ok {
				continue
			}
			if best == -1 || better(toks[ti], toks[best]) {
				best = ti
			}
		}
		if best >= 0 {
			st.HasAccept = true
			st.Accept = toks[best].symbol
		}

		for _, seg := range segments(&n, set) {
			target := epsClosure(&n, move(&n, set, seg.Lo))
			if len(target) == 0 {
				continue
			}
			key := setKey(target)
			id, ok := ids[key]
			if !ok {
				id = int32(len(queue))
				ids[key] = id
				queue = append(queue, dfaBuild{set: target})
			}
			st.Transitions = append(st.Transitions, wabznasm.LexTransition{
				Lo: seg.Lo, Hi: seg.Hi, Next: id,
			})
		}
		st.Transitions = mergeAdjacent(st.Transitions)

		result.states = append(result.states, st)
		result.acceptToken = append(result.acceptToken, best)
	}

	return &result, nil
}

func better(a, b lexTokenSpec) bool {
	if a.prec != b.prec {
		return a.prec > b.prec
	}
	return a.index < b.index
}

func epsClosure(n *lexNFA, set []int32) []int32 {
	seen := make(map[int32]bool, len(set)*2)
	stack := append([]int32(nil), set...)
	for _, s := range stack {
		seen[s] = true
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, t := range n.states[s].eps {
			if !seen[t] {
				seen[t] = true
				stack = append(stack, t)
			}
		}
	}
	out := make([]int32, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// segments partitions the alphabet at every edge boundary reachable from the
// set, so runes inside one segment always transition identically.
func segments(n *lexNFA, set []int32) []RuneRange {
	var bounds []rune
	for _, s := range set {
		for _, e := range n.states[s].edges {
			bounds = append(bounds, e.lo)
			if e.hi < maxLexRune {
				bounds = append(bounds, e.hi+1)
			}
		}
	}
	if len(bounds) == 0 {
		return nil
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })
	uniq := bounds[:1]
	for _, b := range bounds[1:] {
		if b != uniq[len(uniq)-1] {
			uniq = append(uniq, b)
		}
	}

	var out []RuneRange
	for i, lo := range uniq {
		hi := maxLexRune
		if i+1 < len(uniq) {
			hi = uniq[i+1] - 1
		}
		if hasEdgeAt(n, set, lo) {
			out = append(out, RuneRange{Lo: lo, Hi: hi})
		}
	}
	return out
}

func hasEdgeAt(n *lexNFA, set []int32, r rune) bool {
	for _, s := range set {
		for _, e := range n.states[s].edges {
			if r >= e.lo && r <= e.hi {
				return true
			}
		}
	}
	return false
}

func move(n *lexNFA, set []int32, r rune) []int32 {
	var out []int32
	for _, s := range set {
		for _, e := range n.states[s].edges {
			if r >= e.lo && r <= e.hi {
				out = append(out, e.to)
			}
		}
	}
	return out
}

func mergeAdjacent(in []wabznasm.LexTransition) []wabznasm.LexTransition {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, tr := range in[1:] {
		last := &out[len(out)-1]
		if tr.Next == last.Next && tr.Skip == last.Skip && tr.Lo == last.Hi+1 {
			last.Hi = tr.Hi
			continue
		}
		out = append(out, tr)
	}
	return out
}

func setKey(set []int32) string {
	var b strings.Builder
	for i, s := range set {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(s)))
	}
	return b.String()
}
