package wabznasm

import "testing"

func TestPopChildrenAbsorbsInterleavedExtrasAndErrors(t *testing.T) {
	s := newGLRStack(0, nil)
	left := &Node{symbol: 10}
	comment := &Node{symbol: 11, extra: true}
	errn := &Node{symbol: SymbolError, isError: true}
	right := &Node{symbol: 12}
	s.push(1, left, nil)
	s.push(1, comment, nil)
	s.push(1, errn, nil)
	s.push(2, right, nil)

	children, trailing := s.popChildren(2)
	if len(children) != 4 {
		t.Fatalf("popChildren returned %d nodes, want 4", len(children))
	}
	want := []*Node{left, comment, errn, right}
	for i, n := range want {
		if children[i] != n {
			t.Fatalf("child %d = %v, want %v", i, children[i], n)
		}
	}
	if len(trailing) != 0 {
		t.Fatalf("trailing = %d nodes, want none", len(trailing))
	}
	if len(s.entries) != 1 {
		t.Fatalf("stack has %d entries after pop, want 1", len(s.entries))
	}
}

func TestPopChildrenReturnsTrailingExtras(t *testing.T) {
	s := newGLRStack(0, nil)
	left := &Node{symbol: 10}
	right := &Node{symbol: 12}
	comment := &Node{symbol: 11, extra: true}
	s.push(1, left, nil)
	s.push(2, right, nil)
	s.push(2, comment, nil)

	children, trailing := s.popChildren(2)
	if len(children) != 2 || children[0] != left || children[1] != right {
		t.Fatalf("children = %v, want [left right]", children)
	}
	if len(trailing) != 1 || trailing[0] != comment {
		t.Fatalf("trailing = %v, want the comment", trailing)
	}
	if len(s.entries) != 1 {
		t.Fatalf("stack has %d entries after pop, want 1", len(s.entries))
	}
}

func TestPopChildrenZeroCount(t *testing.T) {
	s := newGLRStack(0, nil)
	s.push(1, &Node{symbol: 10}, nil)
	children, trailing := s.popChildren(0)
	if children != nil || trailing != nil {
		t.Fatalf("popChildren(0) = %v %v, want nil nil", children, trailing)
	}
	if len(s.entries) != 2 {
		t.Fatal("popChildren(0) must not pop")
	}
}

func TestMergeStacksKeepsHighestScore(t *testing.T) {
	a := newGLRStack(5, nil)
	a.score = 1
	b := newGLRStack(5, nil)
	b.score = 3
	c := newGLRStack(7, nil)
	c.dead = true

	var scratch glrMergeScratch
	merged := mergeStacksWithScratch([]glrStack{a, b, c}, &scratch)
	if len(merged) != 1 {
		t.Fatalf("merged to %d stacks, want 1", len(merged))
	}
	if merged[0].score != 3 {
		t.Fatalf("surviving score = %d, want 3", merged[0].score)
	}
}

func TestMergeStacksPrefersEarlierOnTie(t *testing.T) {
	a := newGLRStack(5, nil)
	a.push(5, &Node{symbol: 1}, nil)
	b := newGLRStack(5, nil)
	b.push(5, &Node{symbol: 2}, nil)

	var scratch glrMergeScratch
	merged := mergeStacksWithScratch([]glrStack{a, b}, &scratch)
	if len(merged) != 1 {
		t.Fatalf("merged to %d stacks, want 1", len(merged))
	}
	if merged[0].top().node.symbol != 1 {
		t.Fatal("tie must keep the earlier stack")
	}
}

func TestCapLiveStacksKeepsBestScores(t *testing.T) {
	var stacks []glrStack
	for i := 0; i < maxLiveStacks+8; i++ {
		s := newGLRStack(StateID(i), nil)
		s.score = int32(i)
		stacks = append(stacks, s)
	}
	capped := capLiveStacks(stacks)
	if len(capped) != maxLiveStacks {
		t.Fatalf("capped to %d stacks, want %d", len(capped), maxLiveStacks)
	}
	found := false
	for i := range capped {
		if capped[i].score == int32(maxLiveStacks+7) {
			found = true
		}
	}
	if !found {
		t.Fatal("highest-scoring stack was dropped")
	}
}
