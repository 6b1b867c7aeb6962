package wabznasm

// Node is one vertex in a concrete syntax tree: either a named rule node, an
// anonymous token node, or a synthetic error node. Nodes are immutable once
// their tree is returned; unedited subtrees are shared between tree versions
// by pointer.
type Node struct {
	lang   *Language
	symbol Symbol

	startByte  uint32
	endByte    uint32
	startPoint Point
	endPoint   Point

	children []*Node
	// fieldIDs is parallel to children; nil when no child carries a field.
	fieldIDs []FieldID

	// parseState is the state this node was pushed with; incremental reuse
	// requires the goto target to match it.
	parseState StateID

	named   bool
	extra   bool
	missing bool
	isError bool
	// hasError is set when this node or any descendant is an error or a
	// missing token, so consumers can find errors without a full walk.
	hasError bool
	// dirty marks nodes invalidated by an edit; set by Tree.Edit, consumed
	// by the reuse cursor.
	dirty bool
	// containsExternal is set when the subtree holds tokens produced by the
	// external scanner; such subtrees are only reused when the scanner
	// state at the reuse point is empty.
	containsExternal bool
}

// Symbol returns the grammar symbol id.
func (n *Node) Symbol() Symbol { return n.symbol }

// Kind returns the grammar name of the node's symbol.
func (n *Node) Kind() string {
	if n.lang == nil {
		return ""
	}
	return n.lang.SymbolName(n.symbol)
}

// StartByte returns the inclusive start of the node's byte range.
func (n *Node) StartByte() uint32 { return n.startByte }

// EndByte returns the exclusive end of the node's byte range.
func (n *Node) EndByte() uint32 { return n.endByte }

// StartPoint returns the row/column start position.
func (n *Node) StartPoint() Point { return n.startPoint }

// EndPoint returns the row/column end position.
func (n *Node) EndPoint() Point { return n.endPoint }

// ChildCount returns the number of children, including anonymous and extra
// children.
func (n *Node) ChildCount() int { return len(n.children) }

// Child returns the i-th child in source order, or nil when out of range.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// NamedChildCount returns the number of named children.
func (n *Node) NamedChildCount() int {
	count := 0
	for _, c := range n.children {
		if c.named {
			count++
		}
	}
	return count
}

// NamedChild returns the i-th named child in source order.
func (n *Node) NamedChild(i int) *Node {
	for _, c := range n.children {
		if !c.named {
			continue
		}
		if i == 0 {
			return c
		}
		i--
	}
	return nil
}

// FieldForChild returns the field id assigned to the i-th child, 0 when none.
func (n *Node) FieldForChild(i int) FieldID {
	if n.fieldIDs == nil || i < 0 || i >= len(n.fieldIDs) {
		return 0
	}
	return n.fieldIDs[i]
}

// ChildByField returns the first child carrying the given field id.
func (n *Node) ChildByField(id FieldID) *Node {
	if id == 0 || n.fieldIDs == nil {
		return nil
	}
	for i, f := range n.fieldIDs {
		if f == id {
			return n.children[i]
		}
	}
	return nil
}

// ChildByFieldName returns the first child carrying the named field.
func (n *Node) ChildByFieldName(name string) *Node {
	if n.lang == nil {
		return nil
	}
	id, ok := n.lang.FieldByName(name)
	if !ok {
		return nil
	}
	return n.ChildByField(id)
}

// IsNamed reports whether the node appears under a rule name.
func (n *Node) IsNamed() bool { return n.named }

// IsExtra reports whether the node is an extra (comment) attached outside
// the grammar's productions.
func (n *Node) IsExtra() bool { return n.extra }

// IsError reports whether the node is a synthetic error node.
func (n *Node) IsError() bool { return n.isError }

// IsMissing reports whether the node is a zero-width token inserted by error
// recovery.
func (n *Node) IsMissing() bool { return n.missing }

// HasError reports whether the node or any descendant is an error node or a
// missing token.
func (n *Node) HasError() bool { return n.hasError }

// Text returns the node's source slice.
func (n *Node) Text(source []byte) []byte {
	if int(n.startByte) > len(source) || int(n.endByte) > len(source) || n.endByte < n.startByte {
		return nil
	}
	return source[n.startByte:n.endByte]
}
