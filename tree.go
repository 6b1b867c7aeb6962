package wabznasm

import (
	"strings"
)

// Tree is an immutable concrete syntax tree over one version of a document.
// It is safe for concurrent read-only traversal. Unedited subtrees may be
// shared by pointer with older and newer tree versions; the backing arenas
// are reference counted so every sharing tree keeps them alive.
type Tree struct {
	lang   *Language
	source []byte
	root   *Node

	arenas []*nodeArena
	// edits accumulates the descriptors applied since the last reparse;
	// the reuse cursor consults them, and a reparse clears them.
	edits []InputEdit
}

// RootNode returns the tree's root. The root always spans the entire input,
// even when the input was malformed.
func (t *Tree) RootNode() *Node {
	if t == nil {
		return nil
	}
	return t.root
}

// Language returns the table this tree was parsed with.
func (t *Tree) Language() *Language { return t.lang }

// Source returns the source bytes this tree describes.
func (t *Tree) Source() []byte { return t.source }

// Release returns the tree's arena storage to the shared pools. Calling it
// is optional; it is an optimization for high-churn callers. The tree must
// not be used afterwards.
func (t *Tree) Release() {
	if t == nil {
		return
	}
	for _, a := range t.arenas {
		a.Release()
	}
	t.arenas = nil
	t.root = nil
}

func (t *Tree) retainArenas() {
	for _, a := range t.arenas {
		a.Retain()
	}
}

// HasError reports whether the tree contains any error or missing node.
func (t *Tree) HasError() bool {
	return t.root != nil && t.root.hasError
}

// ErrorNodes collects every error and missing node. The walk descends only
// into subtrees whose hasError marker is set, so the cost is proportional to
// the number of errors, not the tree size.
func (t *Tree) ErrorNodes() []*Node {
	if t == nil || t.root == nil || !t.root.hasError {
		return nil
	}
	var out []*Node
	var visit func(n *Node)
	visit = func(n *Node) {
		if !n.hasError {
			return
		}
		if n.isError || n.missing {
			out = append(out, n)
		}
		for _, c := range n.children {
			visit(c)
		}
	}
	visit(t.root)
	return out
}

// ErrorCount returns the number of error and missing nodes.
func (t *Tree) ErrorCount() int {
	return len(t.ErrorNodes())
}

// String renders the tree as an s-expression of named nodes, the
// conventional debug form: (source_file (statement (expression (number)))).
func (t *Tree) String() string {
	if t == nil || t.root == nil {
		return "(nil)"
	}
	var sb strings.Builder
	writeSexp(&sb, t.root, 0)
	return sb.String()
}

func writeSexp(sb *strings.Builder, n *Node, field FieldID) {
	if field != 0 && n.lang != nil {
		sb.WriteString(n.lang.FieldName(field))
		sb.WriteString(": ")
	}
	switch {
	case n.isError:
		sb.WriteString("(ERROR")
	case n.missing:
		sb.WriteString("(MISSING ")
		sb.WriteString(n.Kind())
	default:
		sb.WriteString("(")
		sb.WriteString(n.Kind())
	}
	for i, c := range n.children {
		if !c.named && !c.isError && !c.missing {
			continue
		}
		sb.WriteString(" ")
		writeSexp(sb, c, n.FieldForChild(i))
	}
	sb.WriteString(")")
}

// StructurallyEqual reports whether two nodes agree on symbol, ranges, flags
// and children, recursively. Incremental reparses must produce trees
// structurally equal to from-scratch parses of the same text.
func StructurallyEqual(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.symbol != b.symbol ||
		a.startByte != b.startByte || a.endByte != b.endByte ||
		a.startPoint != b.startPoint || a.endPoint != b.endPoint ||
		a.named != b.named || a.missing != b.missing ||
		a.isError != b.isError || a.hasError != b.hasError ||
		len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		if a.FieldForChild(i) != b.FieldForChild(i) {
			return false
		}
		if !StructurallyEqual(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}
