package wabznasm_test

import (
	"strings"
	"testing"

	wabznasm "github.com/wabznasm/go-wabznasm"
)

// replaceRange applies the edit to the source text and returns the matching
// InputEdit descriptor.
func replaceRange(src string, start, oldEnd int, newText string) (string, wabznasm.InputEdit) {
	newSrc := src[:start] + newText + src[oldEnd:]
	edit := wabznasm.InputEdit{
		StartByte:   uint32(start),
		OldEndByte:  uint32(oldEnd),
		NewEndByte:  uint32(start + len(newText)),
		StartPoint:  pointOf(src, start),
		OldEndPoint: pointOf(src, oldEnd),
		NewEndPoint: pointOf(newSrc, start+len(newText)),
	}
	return newSrc, edit
}

func pointOf(src string, offset int) wabznasm.Point {
	var p wabznasm.Point
	for i := 0; i < offset; i++ {
		if src[i] == '\n' {
			p.Row++
			p.Column = 0
		} else {
			p.Column++
		}
	}
	return p
}

func TestIncrementalMatchesScratch(t *testing.T) {
	cases := []struct {
		name    string
		src     string
		start   int
		oldEnd  int
		newText string
	}{
		{"replace operand", "1 + 2", 4, 5, "3"},
		{"grow operand", "1 + 2", 4, 5, "999"},
		{"insert statement", "a: 1\nc: 3\n", 5, 5, "b: 2\n"},
		{"delete statement", "a: 1\nb: 2\nc: 3\n", 5, 10, ""},
		{"edit middle line", "a: 1\nb: 2\nc: 3\n", 8, 9, "42"},
		{"edit near comment", "x: 1 \\ note\ny: 2\n", 15, 16, "7"},
		{"edit before trailing comment", "a: 1\nb: 2\n\\ tail\n", 8, 9, "9"},
		{"edit after leading comment", "\\ head\na: 1\nb: 2\n", 15, 16, "7"},
		{"introduce error", "1 + 2", 2, 3, ""},
		{"fix error", "1 + ", 4, 4, "2"},
	}

	p := newTestParser(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			oldTree, err := p.Parse([]byte(tc.src))
			if err != nil {
				t.Fatalf("initial parse failed: %v", err)
			}
			newSrc, edit := replaceRange(tc.src, tc.start, tc.oldEnd, tc.newText)

			edited := oldTree.Edit(edit)
			incr, err := p.ParseIncremental([]byte(newSrc), edited)
			if err != nil {
				t.Fatalf("incremental parse failed: %v", err)
			}
			scratch, err := p.Parse([]byte(newSrc))
			if err != nil {
				t.Fatalf("scratch parse failed: %v", err)
			}

			if !wabznasm.StructurallyEqual(incr.RootNode(), scratch.RootNode()) {
				t.Fatalf("incremental parse of %q diverged:\n incr    %s\n scratch %s",
					newSrc, incr.String(), scratch.String())
			}
		})
	}
}

func TestIncrementalReusesUneditedLeaf(t *testing.T) {
	p := newTestParser(t)
	src := "1 + 2"
	oldTree, err := p.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	oldLeft := oldTree.RootNode().Child(0).Child(0).Child(0).Child(0)
	if oldLeft.Kind() != "number" {
		t.Fatalf("expected number leaf, got %q", oldLeft.Kind())
	}

	newSrc, edit := replaceRange(src, 4, 5, "3")
	incr, err := p.ParseIncremental([]byte(newSrc), oldTree.Edit(edit))
	if err != nil {
		t.Fatalf("incremental parse failed: %v", err)
	}
	newLeft := incr.RootNode().Child(0).Child(0).Child(0).Child(0)
	if newLeft != oldLeft {
		t.Fatal("left operand was reparsed instead of reused")
	}
}

func TestIncrementalReusesUneditedStatement(t *testing.T) {
	p := newTestParser(t)
	src := "a: 1\nb: 2\nc: 3\n"
	oldTree, err := p.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	oldFirst := oldTree.RootNode().Child(0)
	if oldFirst.Kind() != "statement" || oldFirst.EndByte() != 4 {
		t.Fatalf("unexpected first statement: %q [%d,%d)",
			oldFirst.Kind(), oldFirst.StartByte(), oldFirst.EndByte())
	}

	newSrc, edit := replaceRange(src, 8, 9, "9")
	incr, err := p.ParseIncremental([]byte(newSrc), oldTree.Edit(edit))
	if err != nil {
		t.Fatalf("incremental parse failed: %v", err)
	}
	if incr.RootNode().Child(0) != oldFirst {
		t.Fatal("first statement was reparsed instead of reused")
	}
}

// Trees handed to ParseIncremental stay safe for concurrent readers: the
// reuse walk must not write to shared nodes, including on the undo path
// where an edited region carries its original bytes.
func TestIncrementalParseLeavesEditedTreeReadable(t *testing.T) {
	p := newTestParser(t)
	src := "a: 1\nb: 2\n"
	oldTree, err := p.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	newSrc, edit := replaceRange(src, 8, 9, "2")
	edited := oldTree.Edit(edit)
	before := edited.String()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if edited.String() != before {
				t.Error("edited tree changed under a concurrent reader")
				return
			}
		}
	}()

	incr, err := p.ParseIncremental([]byte(newSrc), edited)
	if err != nil {
		t.Fatalf("incremental parse failed: %v", err)
	}
	<-done

	if edited.String() != before {
		t.Fatalf("edited tree changed:\n before %s\n after  %s", before, edited.String())
	}
	scratch, err := p.Parse([]byte(newSrc))
	if err != nil {
		t.Fatalf("scratch parse failed: %v", err)
	}
	if !wabznasm.StructurallyEqual(incr.RootNode(), scratch.RootNode()) {
		t.Fatalf("incremental parse diverged:\n incr    %s\n scratch %s",
			incr.String(), scratch.String())
	}
}

func TestIncrementalEditSequence(t *testing.T) {
	p := newTestParser(t)
	src := "total: 0\n"
	tree, err := p.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	steps := []struct {
		start, oldEnd int
		newText       string
	}{
		{9, 9, "add: {[x;y] x+y}\n"},
		{7, 8, "add[1; 2]"},
		{34, 34, "\\ done\n"},
	}
	for i, step := range steps {
		var edit wabznasm.InputEdit
		src, edit = replaceRange(src, step.start, step.oldEnd, step.newText)
		tree, err = p.ParseIncremental([]byte(src), tree.Edit(edit))
		if err != nil {
			t.Fatalf("step %d reparse failed: %v", i, err)
		}
		scratch, err := p.Parse([]byte(src))
		if err != nil {
			t.Fatalf("step %d scratch parse failed: %v", i, err)
		}
		if !wabznasm.StructurallyEqual(tree.RootNode(), scratch.RootNode()) {
			t.Fatalf("step %d diverged on %q:\n incr    %s\n scratch %s",
				i, src, tree.String(), scratch.String())
		}
	}
	if tree.HasError() {
		t.Fatalf("final document should be clean: %s", tree.String())
	}
	if !strings.Contains(tree.String(), "(comment)") {
		t.Fatalf("trailing comment missing: %s", tree.String())
	}
}
