// Package widget is the retained overlay tree.
//
// The node set is closed: *Container, *List, *Text and *Line. Rendering,
// input routing and measurement switch over it exhaustively.
package widget

import (
	"fmt"

	"github.com/k2io/ardain/internal/input"
	"github.com/k2io/ardain/internal/render"
)

// DefaultListWidth is the width of a List unless set otherwise.
const DefaultListWidth = 100

// Canvas receives draw calls. *render.Renderer is one.
type Canvas interface {
	Rect(r render.Rect, c render.Color)
	Text(at render.Point, t render.Text)
	Line(from, to render.Point, c render.Color)
}

// Node is one element of the tree.
type Node interface {
	node()
}

// Container draws a background and stacks its children vertically.
type Container struct {
	Color    render.Color
	W, H     uint32
	Children []Node
}

// List stacks its children and owns a one-based selection.
type List struct {
	Selectable bool
	// MaxHeight caps measurement and rendering; zero means no cap.
	MaxHeight uint32
	// OnSelect runs after the selection moved; from is 0 when nothing
	// was selected before.
	OnSelect func(l *List, from, to int)

	width    uint32
	selected int
	children []*Container
}

// Text is a label placed relative to its parent.
type Text struct {
	Text   render.Text
	Offset render.Point
}

// Line is a segment relative to its parent.
type Line struct {
	From, To render.Point
	Color    render.Color
}

func (*Container) node() {}
func (*List) node()      {}
func (*Text) node()      {}
func (*Line) node()      {}

// NewContainer returns a container of the given size.
func NewContainer(color render.Color, w, h uint32, children ...Node) *Container {
	return &Container{Color: color, W: w, H: h, Children: children}
}

// NewList returns an empty list without selection.
func NewList(selectable bool, maxHeight uint32) *List {
	return &List{Selectable: selectable, MaxHeight: maxHeight, width: DefaultListWidth}
}

// NewText returns a label at offset.
func NewText(t render.Text, offset render.Point) *Text {
	return &Text{Text: t, Offset: offset}
}

// NewLine returns a segment.
func NewLine(from, to render.Point, color render.Color) *Line {
	return &Line{From: from, To: to, Color: color}
}

// Push appends n wrapped in a transparent container sized to it.
func (l *List) Push(n Node) {
	l.children = append(l.children, NewContainer(render.Transparent, Width(n), Height(n), n))
}

// Append pushes every node in order.
func (l *List) Append(nodes ...Node) {
	for _, n := range nodes {
		l.Push(n)
	}
}

// Len returns the number of items.
func (l *List) Len() int { return len(l.children) }

// Selected returns the one-based selection.
func (l *List) Selected() (int, bool) {
	return l.selected, l.selected > 0
}

// SetWidth overrides DefaultListWidth.
func (l *List) SetWidth(w uint32) { l.width = w }

func (l *List) move(to int) {
	if to > len(l.children) || to == l.selected {
		return
	}
	from := l.selected
	l.selected = to
	if l.OnSelect != nil {
		l.OnSelect(l, from, to)
	}
}

// Render draws n with its top-left corner at base.
func Render(n Node, base render.Point, c Canvas) {
	switch n := n.(type) {
	case *Container:
		c.Rect(render.RectAt(base, n.W, n.H), n.Color)
		pos := base
		for _, child := range n.Children {
			Render(child, pos, c)
			pos.Y += int32(Height(child))
		}
	case *List:
		pos := base
		var used uint32
		for i, child := range n.children {
			if n.MaxHeight > 0 && used+child.H > n.MaxHeight {
				return
			}
			if i == n.selected-1 {
				c.Rect(render.RectAt(pos, Width(n), child.H), render.Highlight)
			}
			Render(child, pos, c)
			pos.Y += int32(child.H)
			used += child.H
		}
	case *Text:
		c.Text(base.Add(n.Offset), n.Text)
	case *Line:
		c.Line(base.Add(n.From), base.Add(n.To), n.Color)
	default:
		panic(fmt.Sprintf("unknown widget %T", n))
	}
}

// HandleInput routes pad state into n and reports whether anything in the
// subtree consumed it.
func HandleInput(n Node, in input.PadData) bool {
	switch n := n.(type) {
	case *Container:
		handled := false
		for _, child := range n.Children {
			if HandleInput(child, in) {
				handled = true
			}
		}
		return handled
	case *List:
		if !n.Selectable {
			return false
		}
		switch {
		case in.Any(input.Down):
			n.move(n.selected + 1)
			return true
		case in.Any(input.Up):
			to := n.selected - 1
			if to < 1 {
				to = 1
			}
			n.move(to)
			return true
		case n.selected > 0:
			return HandleInput(n.children[n.selected-1], in)
		}
		return false
	case *Text, *Line:
		return false
	default:
		panic(fmt.Sprintf("unknown widget %T", n))
	}
}

// Width measures n.
func Width(n Node) uint32 {
	switch n := n.(type) {
	case *Container:
		return n.W
	case *List:
		return n.width
	case *Text:
		w, _ := n.Text.Size()
		return w + clamp(n.Offset.X)
	case *Line:
		return span(n.From.X, n.To.X)
	default:
		panic(fmt.Sprintf("unknown widget %T", n))
	}
}

// Height measures n. A list stops at the last child that still fits under
// its cap.
func Height(n Node) uint32 {
	switch n := n.(type) {
	case *Container:
		return n.H
	case *List:
		var h uint32
		for _, child := range n.children {
			if n.MaxHeight > 0 && h+child.H > n.MaxHeight {
				return h
			}
			h += child.H
		}
		return h
	case *Text:
		_, h := n.Text.Size()
		return h + clamp(n.Offset.Y)
	case *Line:
		return span(n.From.Y, n.To.Y)
	default:
		panic(fmt.Sprintf("unknown widget %T", n))
	}
}

func clamp(v int32) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}

func span(from, to int32) uint32 {
	if d := to - from; d > 1 {
		return uint32(d)
	}
	return 1
}
