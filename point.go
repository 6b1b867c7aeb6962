package wabznasm

import "unicode/utf8"

// Point is a zero-based row/column position. Columns count bytes within the
// row, matching the byte-offset convention of the rest of the engine.
type Point struct {
	Row    uint32
	Column uint32
}

// Less reports whether p precedes other in source order.
func (p Point) Less(other Point) bool {
	if p.Row != other.Row {
		return p.Row < other.Row
	}
	return p.Column < other.Column
}

// advancePoint moves p across text, tracking newlines.
func advancePoint(p Point, text []byte) Point {
	for i := 0; i < len(text); {
		if text[i] == '\n' {
			p.Row++
			p.Column = 0
			i++
			continue
		}
		_, size := utf8.DecodeRune(text[i:])
		if size == 0 {
			size = 1
		}
		p.Column += uint32(size)
		i += size
	}
	return p
}

// pointForOffset computes the point at byte offset within src.
func pointForOffset(src []byte, offset uint32) Point {
	if int(offset) > len(src) {
		offset = uint32(len(src))
	}
	return advancePoint(Point{}, src[:offset])
}
