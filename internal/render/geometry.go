package render

import (
	"encoding/binary"
	"math"
)

// Point is a screen position in the host's Pnt<int> layout.
type Point struct {
	X, Y int32
}

// Pt is shorthand for Point{x, y}.
func Pt(x, y int32) Point { return Point{X: x, Y: y} }

// Add translates p by o.
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// Rect is an axis aligned rectangle; 16 bytes in the host layout.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// RectAt builds a rectangle from its top-left corner and dimensions.
func RectAt(p Point, w, h uint32) Rect {
	return Rect{X: p.X, Y: p.Y, Width: w, Height: h}
}

// Color is an RGBA color with float channels.
type Color struct {
	R, G, B, A float32
}

// RGBA is shorthand for Color{r, g, b, a}.
func RGBA(r, g, b, a float32) Color { return Color{R: r, G: g, B: b, A: a} }

var (
	Transparent = Color{}
	Black       = RGBA(0, 0, 0, 1)
	White       = RGBA(1, 1, 1, 1)
	Highlight   = RGBA(1, 0, 0, 0.8)
)

// Text is a string together with how to draw it.
type Text struct {
	Value string
	// Color is left to the host when nil.
	Color *Color
	// Scale is left to the host when zero.
	Scale  float32
	Shadow bool
}

// Size estimates the drawn size of the text.
func (t Text) Size() (uint32, uint32) {
	scale := t.Scale
	if scale == 0 {
		scale = 1
	}
	n := float32(len([]rune(t.Value)))
	return uint32(n * 10 * scale), uint32(20 * scale)
}

func (p Point) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], uint32(p.X))
	binary.LittleEndian.PutUint32(b[4:], uint32(p.Y))
}

func (r Rect) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], uint32(r.X))
	binary.LittleEndian.PutUint32(b[4:], uint32(r.Y))
	binary.LittleEndian.PutUint32(b[8:], r.Width)
	binary.LittleEndian.PutUint32(b[12:], r.Height)
}

func (c Color) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(c.R))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(c.G))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(c.B))
	binary.LittleEndian.PutUint32(b[12:], math.Float32bits(c.A))
}

// DecodeRect reads a Rect in host layout.
func DecodeRect(b []byte) Rect {
	return Rect{
		X:      int32(binary.LittleEndian.Uint32(b[0:])),
		Y:      int32(binary.LittleEndian.Uint32(b[4:])),
		Width:  binary.LittleEndian.Uint32(b[8:]),
		Height: binary.LittleEndian.Uint32(b[12:]),
	}
}

// DecodePoint reads a Point in host layout.
func DecodePoint(b []byte) Point {
	return Point{
		X: int32(binary.LittleEndian.Uint32(b[0:])),
		Y: int32(binary.LittleEndian.Uint32(b[4:])),
	}
}

// DecodeColor reads a Color in host layout.
func DecodeColor(b []byte) Color {
	return Color{
		R: math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		G: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		B: math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
		A: math.Float32frombits(binary.LittleEndian.Uint32(b[12:])),
	}
}
