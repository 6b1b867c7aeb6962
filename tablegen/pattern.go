package tablegen

import "unicode/utf8"

const maxLexRune = utf8.MaxRune

// RuneRange is an inclusive rune interval used by character classes.
type RuneRange struct {
	Lo, Hi rune
}

// R is shorthand for a RuneRange literal.
func R(lo, hi rune) RuneRange { return RuneRange{Lo: lo, Hi: hi} }

// Pattern is a lexical pattern compiled into the token NFA.
type Pattern interface {
	compile(n *lexNFA) (start, end int32)
}

type litPattern struct{ text string }

type classPattern struct {
	ranges []RuneRange
	negate bool
}

type seqPattern struct{ parts []Pattern }

type altPattern struct{ parts []Pattern }

type starPattern struct{ inner Pattern }

type plusPattern struct{ inner Pattern }

type optPattern struct{ inner Pattern }

// Lit matches the literal text.
func Lit(text string) Pattern { return litPattern{text: text} }

// Class matches one rune inside any of the given ranges.
func Class(ranges ...RuneRange) Pattern { return classPattern{ranges: ranges} }

// NotClass matches one rune outside all of the given ranges.
func NotClass(ranges ...RuneRange) Pattern { return classPattern{ranges: ranges, negate: true} }

// Chars matches any single rune from s.
func Chars(s string) Pattern {
	var ranges []RuneRange
	for _, r := range s {
		ranges = append(ranges, RuneRange{Lo: r, Hi: r})
	}
	return classPattern{ranges: ranges}
}

// Seq matches the patterns in order.
func Seq(parts ...Pattern) Pattern { return seqPattern{parts: parts} }

// Alt matches any one of the patterns.
func Alt(parts ...Pattern) Pattern { return altPattern{parts: parts} }

// Star matches zero or more repetitions.
func Star(inner Pattern) Pattern { return starPattern{inner: inner} }

// Plus matches one or more repetitions.
func Plus(inner Pattern) Pattern { return plusPattern{inner: inner} }

// Opt matches zero or one occurrence.
func Opt(inner Pattern) Pattern { return optPattern{inner: inner} }

// lexNFA is a Thompson construction worked state by state; every pattern
// fragment has a single entry and a single exit with no outgoing edges.
type lexNFA struct {
	states []nfaState
}

type nfaState struct {
	edges []nfaEdge
	eps   []int32
}

type nfaEdge struct {
	lo, hi rune
	to     int32
}

func (n *lexNFA) newState() int32 {
	n.states = append(n.states, nfaState{})
	return int32(len(n.states) - 1)
}

func (n *lexNFA) addEdge(from int32, lo, hi rune, to int32) {
	n.states[from].edges = append(n.states[from].edges, nfaEdge{lo: lo, hi: hi, to: to})
}

func (n *lexNFA) addEps(from, to int32) {
	n.states[from].eps = append(n.states[from].eps, to)
}

func (p litPattern) compile(n *lexNFA) (int32, int32) {
	start := n.newState()
	cur := start
	for _, r := range p.text {
		next := n.newState()
		n.addEdge(cur, r, r, next)
		cur = next
	}
	return start, cur
}

func (p classPattern) compile(n *lexNFA) (int32, int32) {
	start := n.newState()
	end := n.newState()
	ranges := normalizeRuneRanges(p.ranges)
	if p.negate {
		ranges = complementRuneRanges(ranges)
	}
	for _, r := range ranges {
		n.addEdge(start, r.Lo, r.Hi, end)
	}
	return start, end
}

func (p seqPattern) compile(n *lexNFA) (int32, int32) {
	if len(p.parts) == 0 {
		s := n.newState()
		e := n.newState()
		n.addEps(s, e)
		return s, e
	}
	start, end := p.parts[0].compile(n)
	for _, part := range p.parts[1:] {
		s, e := part.compile(n)
		n.addEps(end, s)
		end = e
	}
	return start, end
}

func (p altPattern) compile(n *lexNFA) (int32, int32) {
	start := n.newState()
	end := n.newState()
	for _, part := range p.parts {
		s, e := part.compile(n)
		n.addEps(start, s)
		n.addEps(e, end)
	}
	return start, end
}

func (p starPattern) compile(n *lexNFA) (int32, int32) {
	start := n.newState()
	end := n.newState()
	s, e := p.inner.compile(n)
	n.addEps(start, s)
	n.addEps(start, end)
	n.addEps(e, s)
	n.addEps(e, end)
	return start, end
}

func (p plusPattern) compile(n *lexNFA) (int32, int32) {
	s, e := p.inner.compile(n)
	end := n.newState()
	n.addEps(e, s)
	n.addEps(e, end)
	return s, end
}

func (p optPattern) compile(n *lexNFA) (int32, int32) {
	start := n.newState()
	end := n.newState()
	s, e := p.inner.compile(n)
	n.addEps(start, s)
	n.addEps(start, end)
	n.addEps(e, end)
	return start, end
}

func normalizeRuneRanges(in []RuneRange) []RuneRange {
	out := make([]RuneRange, 0, len(in))
	for _, r := range in {
		if r.Hi < r.Lo || r.Hi < 0 || r.Lo > maxLexRune {
			continue
		}
		if r.Lo < 0 {
			r.Lo = 0
		}
		if r.Hi > maxLexRune {
			r.Hi = maxLexRune
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Lo < out[j-1].Lo; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	merged := out[:1]
	for _, r := range out[1:] {
		last := &merged[len(merged)-1]
		if r.Lo <= last.Hi+1 {
			if r.Hi > last.Hi {
				last.Hi = r.Hi
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func complementRuneRanges(in []RuneRange) []RuneRange {
	var out []RuneRange
	cur := rune(0)
	for _, r := range in {
		if cur < r.Lo {
			out = append(out, RuneRange{Lo: cur, Hi: r.Lo - 1})
		}
		if r.Hi == maxLexRune {
			return out
		}
		cur = r.Hi + 1
	}
	out = append(out, RuneRange{Lo: cur, Hi: maxLexRune})
	return out
}
