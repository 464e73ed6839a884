// Package render draws through the host's own 2D drawing functions.
//
// Every primitive except the drawing context getter is optional: when the
// running version lacks one, the call is a silent no-op.
package render

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/k2io/ardain/internal/ffi"
	"github.com/k2io/ardain/internal/logging"
	"github.com/k2io/ardain/internal/logging/logfields"
	"github.com/k2io/ardain/internal/offsets"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "render")

// Default screen dimensions when the host cannot be asked.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// contextQuery is the argument the host expects when asked for the debug
// drawing context.
const contextQuery = 0xffffffff

// shadowOffset is how far the text shadow is displaced.
var shadowOffset = Pt(2, 2)

type functions struct {
	get         uintptr
	setColor    uintptr
	rectFill    uintptr
	rectOutline uintptr
	scrWidth    uintptr
	scrHeight   uintptr
	font        uintptr
	fontColor   uintptr
	fontScale   uintptr
	line        uintptr
}

// Renderer is the drawing backend.
type Renderer struct {
	proc ffi.Process
	fn   functions

	mu      sync.RWMutex
	foreign uintptr
}

// New resolves the drawing functions of t. Only render-get is required.
func New(p ffi.Process, t *offsets.Table) (*Renderer, error) {
	req := t.Require()
	get := req.Function("render-get")
	if err := req.Err(); err != nil {
		return nil, err
	}
	opt := func(key string) uintptr {
		off, ok := t.Function(key)
		if !ok {
			log.WithField(logfields.Function, key).Info("Drawing primitive unavailable")
			return 0
		}
		return ffi.Addr(p, off)
	}
	return &Renderer{
		proc: p,
		fn: functions{
			get:         ffi.Addr(p, get),
			setColor:    opt("render-set-color"),
			rectFill:    opt("render-rect-fill"),
			rectOutline: opt("render-rect-outline"),
			scrWidth:    opt("render-scr-width"),
			scrHeight:   opt("render-scr-height"),
			font:        opt("draw-font"),
			fontColor:   opt("draw-font-color"),
			fontScale:   opt("draw-font-scale"),
			line:        opt("draw-line-2d"),
		},
	}, nil
}

// context returns the host drawing context, asking the host until it hands
// out a non-null one. The first non-null answer is kept for good.
func (r *Renderer) context() uintptr {
	r.mu.RLock()
	foreign := r.foreign
	r.mu.RUnlock()
	if foreign != 0 {
		return foreign
	}

	ret, err := r.proc.Call(r.fn.get, ffi.U32(contextQuery))
	if err != nil {
		r.dropped("render-get", err)
		return 0
	}
	if ret == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.foreign == 0 {
		r.foreign = uintptr(ret)
		log.WithField(logfields.Address, r.foreign).Debug("Resolved drawing context")
	}
	return r.foreign
}

func (r *Renderer) dropped(what string, err error) {
	log.WithError(err).WithField(logfields.Function, what).Debug("Foreign draw call failed")
}

func (r *Renderer) color(foreign uintptr, c Color) error {
	if r.fn.setColor == 0 {
		return nil
	}
	var buf [16]byte
	c.encode(buf[:])
	return ffi.WithBytes(r.proc, buf[:], func(addr uintptr) error {
		_, err := r.proc.Call(r.fn.setColor, ffi.Ptr(foreign), ffi.Ptr(addr))
		return err
	})
}

func (r *Renderer) rect(fn uintptr, what string, rect Rect, c Color) {
	if fn == 0 {
		return
	}
	foreign := r.context()
	if foreign == 0 {
		return
	}
	if err := r.color(foreign, c); err != nil {
		r.dropped("render-set-color", err)
		return
	}
	var buf [16]byte
	rect.encode(buf[:])
	err := ffi.WithBytes(r.proc, buf[:], func(addr uintptr) error {
		_, err := r.proc.Call(fn, ffi.Ptr(foreign), ffi.Ptr(addr))
		return err
	})
	if err != nil {
		r.dropped(what, err)
	}
}

// Rect fills rect with c.
func (r *Renderer) Rect(rect Rect, c Color) {
	r.rect(r.fn.rectFill, "render-rect-fill", rect, c)
}

// RectOutline strokes the border of rect with c.
func (r *Renderer) RectOutline(rect Rect, c Color) {
	r.rect(r.fn.rectOutline, "render-rect-outline", rect, c)
}

// Text draws t with its top-left corner at p. A shadow is a black copy
// drawn first, displaced by two pixels. The font colour is global host
// state, so shadowed text without a colour is drawn white.
func (r *Renderer) Text(p Point, t Text) {
	if r.fn.font == 0 {
		return
	}
	if t.Shadow {
		shadow := t
		shadow.Shadow = false
		black := Black
		shadow.Color = &black
		r.Text(p.Add(shadowOffset), shadow)
		if t.Color == nil {
			white := White
			t.Color = &white
		}
	}
	if err := r.text(p, t); err != nil {
		r.dropped("draw-font", err)
	}
}

func (r *Renderer) text(p Point, t Text) error {
	if t.Color != nil && r.fn.fontColor != 0 {
		var buf [16]byte
		t.Color.encode(buf[:])
		err := ffi.WithBytes(r.proc, buf[:], func(addr uintptr) error {
			_, err := r.proc.Call(r.fn.fontColor, ffi.Ptr(addr))
			return err
		})
		if err != nil {
			return errors.Wrap(err, "draw-font-color")
		}
	}
	if t.Scale != 0 && r.fn.fontScale != 0 {
		if _, err := r.proc.Call(r.fn.fontScale, ffi.F32(t.Scale), ffi.F32(t.Scale)); err != nil {
			return errors.Wrap(err, "draw-font-scale")
		}
	}
	return ffi.WithCString(r.proc, t.Value, func(addr uintptr) error {
		_, err := r.proc.Call(r.fn.font, ffi.I16(int16(p.X)), ffi.I16(int16(p.Y)), ffi.Ptr(addr))
		return err
	})
}

// Line draws a segment between two points.
func (r *Renderer) Line(from, to Point, c Color) {
	if r.fn.line == 0 {
		return
	}
	var buf [32]byte
	from.encode(buf[0:])
	to.encode(buf[8:])
	c.encode(buf[16:])
	err := ffi.WithBytes(r.proc, buf[:], func(addr uintptr) error {
		_, err := r.proc.Call(r.fn.line, ffi.Ptr(addr), ffi.Ptr(addr+8), ffi.Ptr(addr+16))
		return err
	})
	if err != nil {
		r.dropped("draw-line-2d", err)
	}
}

// ScreenSize returns the screen dimensions, 1280x720 when the host
// cannot be asked.
func (r *Renderer) ScreenSize() (uint32, uint32) {
	return r.query(r.fn.scrWidth, "render-scr-width", DefaultWidth),
		r.query(r.fn.scrHeight, "render-scr-height", DefaultHeight)
}

func (r *Renderer) query(fn uintptr, what string, def uint32) uint32 {
	if fn == 0 {
		return def
	}
	v, err := r.proc.Call(fn)
	if err != nil {
		r.dropped(what, err)
		return def
	}
	return uint32(v)
}
