package wabznasm

// InputEdit describes one text mutation. Byte offsets and points reference
// the document state after all earlier edits in the same sequence, which is
// the standard incremental-parsing contract.
type InputEdit struct {
	StartByte   uint32
	OldEndByte  uint32
	NewEndByte  uint32
	StartPoint  Point
	OldEndPoint Point
	NewEndPoint Point
}

func (e *InputEdit) byteDelta() int64 {
	return int64(e.NewEndByte) - int64(e.OldEndByte)
}

// Edit returns a new tree describing the document after the edit. The
// receiver is not mutated and remains valid for any holder: subtrees lying
// strictly before the edit are shared by pointer, the spine containing the
// edit is copied with dirty markers and extended ranges, and subtrees after
// the edit are copied with shifted ranges. Apply edits in the order they
// occurred, then hand the final tree to ParseIncremental.
func (t *Tree) Edit(edit InputEdit) *Tree {
	if t == nil || t.root == nil {
		return t
	}

	arena := acquireNodeArena(arenaClassIncremental)
	newRoot := editNode(t.root, &edit, arena)

	t.retainArenas()
	arenas := make([]*nodeArena, 0, len(t.arenas)+1)
	arenas = append(arenas, t.arenas...)
	arenas = append(arenas, arena)

	edits := make([]InputEdit, 0, len(t.edits)+1)
	edits = append(edits, t.edits...)
	edits = append(edits, edit)

	return &Tree{
		lang:   t.lang,
		source: t.source,
		root:   newRoot,
		arenas: arenas,
		edits:  edits,
	}
}

func editNode(n *Node, edit *InputEdit, arena *nodeArena) *Node {
	// Strictly before the edit: shared verbatim. A node whose end touches
	// the edit start is adjacent and conservatively invalidated below.
	if n.endByte < edit.StartByte {
		return n
	}

	if n.startByte >= edit.OldEndByte && n.startByte > edit.StartByte {
		return copyShifted(n, edit, arena)
	}

	// The node overlaps or touches the edited region: copy the spine node,
	// mark it dirty, and recurse per child.
	out := arena.allocNode()
	*out = *n
	out.dirty = true
	out.startByte = editStartByte(n.startByte, edit)
	out.endByte = editEndByte(n.endByte, edit)
	out.startPoint = editStartPoint(n.startPoint, n.startByte, edit)
	out.endPoint = editEndPoint(n.endPoint, n.endByte, edit)

	if len(n.children) > 0 {
		children := arena.allocNodeSlice(len(n.children))
		for i, c := range n.children {
			children[i] = editNode(c, edit, arena)
		}
		out.children = children
	}
	return out
}

// copyShifted deep-copies a subtree lying entirely after the edit,
// translating every range by the edit's net byte and row/column delta.
func copyShifted(n *Node, edit *InputEdit, arena *nodeArena) *Node {
	out := arena.allocNode()
	*out = *n
	out.startByte = shiftByte(n.startByte, edit)
	out.endByte = shiftByte(n.endByte, edit)
	out.startPoint = shiftPoint(n.startPoint, edit)
	out.endPoint = shiftPoint(n.endPoint, edit)

	if len(n.children) > 0 {
		children := arena.allocNodeSlice(len(n.children))
		for i, c := range n.children {
			children[i] = copyShifted(c, edit, arena)
		}
		out.children = children
	}
	return out
}

func shiftByte(b uint32, edit *InputEdit) uint32 {
	shifted := int64(b) + edit.byteDelta()
	if shifted < 0 {
		return 0
	}
	return uint32(shifted)
}

func shiftPoint(p Point, edit *InputEdit) Point {
	if p.Row == edit.OldEndPoint.Row {
		return Point{
			Row:    edit.NewEndPoint.Row,
			Column: edit.NewEndPoint.Column + (p.Column - edit.OldEndPoint.Column),
		}
	}
	return Point{
		Row:    p.Row + edit.NewEndPoint.Row - edit.OldEndPoint.Row,
		Column: p.Column,
	}
}

func editStartByte(b uint32, edit *InputEdit) uint32 {
	switch {
	case b >= edit.OldEndByte:
		return shiftByte(b, edit)
	case b > edit.StartByte:
		// The start fell inside the replaced region; it now sits at the
		// end of the inserted text.
		return edit.NewEndByte
	default:
		return b
	}
}

func editEndByte(b uint32, edit *InputEdit) uint32 {
	switch {
	case b >= edit.OldEndByte:
		return shiftByte(b, edit)
	case b > edit.StartByte:
		return edit.NewEndByte
	default:
		// The node ends exactly at the edit start; it stays put but the
		// caller has already marked it dirty.
		return b
	}
}

func editStartPoint(p Point, b uint32, edit *InputEdit) Point {
	switch {
	case b >= edit.OldEndByte:
		return shiftPoint(p, edit)
	case b > edit.StartByte:
		return edit.NewEndPoint
	default:
		return p
	}
}

func editEndPoint(p Point, b uint32, edit *InputEdit) Point {
	switch {
	case b >= edit.OldEndByte:
		return shiftPoint(p, edit)
	case b > edit.StartByte:
		return edit.NewEndPoint
	default:
		return p
	}
}
