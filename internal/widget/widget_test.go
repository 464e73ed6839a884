package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k2io/ardain/internal/input"
	"github.com/k2io/ardain/internal/render"
)

type op struct {
	kind  string
	rect  render.Rect
	color render.Color
	at    render.Point
	text  string
	from  render.Point
	to    render.Point
}

type canvas struct {
	ops []op
}

func (c *canvas) Rect(r render.Rect, col render.Color) {
	c.ops = append(c.ops, op{kind: "rect", rect: r, color: col})
}

func (c *canvas) Text(at render.Point, t render.Text) {
	c.ops = append(c.ops, op{kind: "text", at: at, text: t.Value})
}

func (c *canvas) Line(from, to render.Point, col render.Color) {
	c.ops = append(c.ops, op{kind: "line", from: from, to: to, color: col})
}

func (c *canvas) rects(col render.Color) []render.Rect {
	var out []render.Rect
	for _, o := range c.ops {
		if o.kind == "rect" && o.color == col {
			out = append(out, o.rect)
		}
	}
	return out
}

func block(h uint32) *Container {
	return NewContainer(render.White, 50, h)
}

func listOf(n int) *List {
	l := NewList(true, 0)
	for i := 0; i < n; i++ {
		l.Push(block(10))
	}
	return l
}

func TestListDownSaturates(t *testing.T) {
	for _, count := range []int{0, 1, 3} {
		for n := 1; n <= 5; n++ {
			l := listOf(count)
			for i := 0; i < n; i++ {
				HandleInput(l, input.DpadDown)
			}
			sel, ok := l.Selected()
			want := n
			if want > count {
				want = count
			}
			assert.Equal(t, want, sel, "count=%d downs=%d", count, n)
			assert.Equal(t, want > 0, ok)
		}
	}
}

func TestListUpFloorsAtOne(t *testing.T) {
	l := listOf(3)
	HandleInput(l, input.LeftStickDown)
	HandleInput(l, input.LeftStickDown)
	for i := 0; i < 4; i++ {
		assert.True(t, HandleInput(l, input.DpadUp))
		sel, ok := l.Selected()
		require.True(t, ok)
		assert.GreaterOrEqual(t, sel, 1)
	}
	sel, _ := l.Selected()
	assert.Equal(t, 1, sel)
}

func TestListOnSelect(t *testing.T) {
	l := listOf(2)
	type move struct{ from, to int }
	var moves []move
	l.OnSelect = func(_ *List, from, to int) { moves = append(moves, move{from, to}) }

	HandleInput(l, input.DpadDown)
	HandleInput(l, input.DpadDown)
	HandleInput(l, input.DpadDown)
	HandleInput(l, input.DpadUp)
	HandleInput(l, input.DpadUp)

	assert.Equal(t, []move{{0, 1}, {1, 2}, {2, 1}}, moves)
}

func TestListNotSelectable(t *testing.T) {
	l := listOf(3)
	l.Selectable = false
	assert.False(t, HandleInput(l, input.DpadDown))
	_, ok := l.Selected()
	assert.False(t, ok)
}

func TestListForwardsOtherInputToSelection(t *testing.T) {
	l := listOf(2)
	assert.False(t, HandleInput(l, input.A), "no selection, nothing to forward to")

	HandleInput(l, input.DpadDown)
	assert.False(t, HandleInput(l, input.A), "blocks do not consume input")
	sel, _ := l.Selected()
	assert.Equal(t, 1, sel)
}

func TestContainerDoesNotShortCircuit(t *testing.T) {
	first, second := listOf(3), listOf(3)
	root := NewContainer(render.Transparent, 100, 100, first, NewText(render.Text{Value: "x"}, render.Pt(0, 0)), second)

	assert.True(t, HandleInput(root, input.DpadDown))

	sel, _ := first.Selected()
	assert.Equal(t, 1, sel)
	sel, _ = second.Selected()
	assert.Equal(t, 1, sel, "every child sees the input even after one handled it")
}

func TestListHeightCap(t *testing.T) {
	l := NewList(true, 15)
	l.Append(block(10), block(10), block(10))
	assert.Equal(t, uint32(10), Height(l))

	l.MaxHeight = 0
	assert.Equal(t, uint32(30), Height(l))

	l.MaxHeight = 30
	assert.Equal(t, uint32(30), Height(l))

	l.MaxHeight = 5
	assert.Equal(t, uint32(0), Height(l))
}

func TestListRenderStopsAtHeightCap(t *testing.T) {
	l := NewList(true, 15)
	l.Append(block(10), block(10), block(10))

	c := &canvas{}
	Render(l, render.Pt(0, 0), c)

	assert.Equal(t, []render.Rect{{X: 0, Y: 0, Width: 50, Height: 10}}, c.rects(render.White),
		"rendering stops where measurement stops")
}

func TestListRenderHighlight(t *testing.T) {
	l := listOf(3)
	HandleInput(l, input.DpadDown)
	HandleInput(l, input.DpadDown)

	c := &canvas{}
	Render(l, render.Pt(5, 100), c)

	assert.Equal(t, []render.Rect{{X: 5, Y: 110, Width: DefaultListWidth, Height: 10}}, c.rects(render.Highlight))
	assert.Equal(t, []render.Rect{
		{X: 5, Y: 100, Width: 50, Height: 10},
		{X: 5, Y: 110, Width: 50, Height: 10},
		{X: 5, Y: 120, Width: 50, Height: 10},
	}, c.rects(render.White))
}

func TestContainerRender(t *testing.T) {
	title := NewText(render.Text{Value: "Mod Ardain"}, render.Pt(10, 10))
	sep := NewLine(render.Pt(100, 10), render.Pt(100, 710), render.White)
	root := NewContainer(render.RGBA(0, 0, 0, 0.7), 640, 720, title, sep)

	c := &canvas{}
	Render(root, render.Pt(640, 0), c)

	require.Len(t, c.ops, 3)
	assert.Equal(t, op{kind: "rect", rect: render.Rect{X: 640, Width: 640, Height: 720}, color: render.RGBA(0, 0, 0, 0.7)}, c.ops[0])
	assert.Equal(t, op{kind: "text", at: render.Pt(650, 10), text: "Mod Ardain"}, c.ops[1])
	// the line sits below the title: 20 tall plus its 10 offset
	assert.Equal(t, op{kind: "line", from: render.Pt(740, 40), to: render.Pt(740, 740), color: render.White}, c.ops[2])
}

func TestLineTranslation(t *testing.T) {
	c := &canvas{}
	Render(NewLine(render.Pt(-5, 3), render.Pt(20, 3), render.White), render.Pt(100, 200), c)
	assert.Equal(t, []op{{kind: "line", from: render.Pt(95, 203), to: render.Pt(120, 203), color: render.White}}, c.ops)
}

func TestMeasure(t *testing.T) {
	assert.Equal(t, uint32(1), Height(NewLine(render.Pt(0, 5), render.Pt(10, 5), render.White)))
	assert.Equal(t, uint32(10), Width(NewLine(render.Pt(0, 5), render.Pt(10, 5), render.White)))

	txt := NewText(render.Text{Value: "abc", Scale: 2}, render.Pt(4, 6))
	assert.Equal(t, uint32(64), Width(txt))
	assert.Equal(t, uint32(46), Height(txt))

	l := listOf(1)
	assert.Equal(t, uint32(DefaultListWidth), Width(l))
	l.SetWidth(300)
	assert.Equal(t, uint32(300), Width(l))
}
