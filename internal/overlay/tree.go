package overlay

import (
	"github.com/k2io/ardain/internal/render"
	"github.com/k2io/ardain/internal/widget"
)

// Title is the heading of the default tree.
const Title = "Mod Ardain"

var background = render.RGBA(0, 0, 0, 0.7)

// DefaultBuilder builds the stock tree: a half-screen panel holding the
// title, a selectable list with one entry per item and a separator.
func DefaultBuilder(items ...string) Builder {
	return func(width, height uint32) widget.Node {
		title := widget.NewText(render.Text{Value: Title, Scale: 1.3, Shadow: true}, render.Pt(10, 10))

		list := widget.NewList(true, 0)
		for _, item := range items {
			list.Push(widget.NewText(render.Text{Value: item}, render.Pt(10, 0)))
		}

		bottom := int32(height) - 10
		separator := widget.NewLine(render.Pt(100, 10), render.Pt(100, bottom), render.White)

		return widget.NewContainer(background, width/2, height, title, list, separator)
	}
}
