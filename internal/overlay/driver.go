// Package overlay drives the overlay once per frame from the input hook.
package overlay

import (
	"sync"
	"sync/atomic"

	"github.com/k2io/ardain/internal/cpu"
	"github.com/k2io/ardain/internal/ffi"
	"github.com/k2io/ardain/internal/input"
	"github.com/k2io/ardain/internal/logging"
	"github.com/k2io/ardain/internal/logging/logfields"
	"github.com/k2io/ardain/internal/render"
	"github.com/k2io/ardain/internal/widget"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "overlay")

const (
	// DebounceFrames is how many frames must pass after a consumed input
	// before a new gesture is accepted.
	DebounceFrames = 10

	// titleSaveSlot is the save slot the host always passes when returning
	// to the title screen.
	titleSaveSlot = 0xffffffff
)

// Surface is what the overlay draws on. *render.Renderer is one.
type Surface interface {
	widget.Canvas
	ScreenSize() (uint32, uint32)
}

// Builder creates the widget tree for a screen of the given size.
type Builder func(width, height uint32) widget.Node

// RebuildPolicy reports, once per visible frame, whether the cached tree
// must be rebuilt.
type RebuildPolicy func() bool

var (
	// Never keeps the first tree for the lifetime of the driver.
	Never RebuildPolicy = func() bool { return false }
	// Always rebuilds on every frame.
	Always RebuildPolicy = func() bool { return true }
)

// Config parametrizes a Driver.
type Config struct {
	// Input is where the pad bitmask lives at the input hook.
	Input cpu.Register
	// ReturnTitle is the return-to-title function; zero disables the chord.
	ReturnTitle uintptr
	// Visible is the initial visibility.
	Visible bool
	Builder Builder
	Rebuild RebuildPolicy
}

// Driver is the per-process overlay state shared by every frame.
type Driver struct {
	proc    ffi.Process
	surface Surface
	cfg     Config

	visible atomic.Bool
	idle    atomic.Uint32

	mu    sync.Mutex
	root  widget.Node
	stale bool
}

// New returns a driver. A nil Builder uses DefaultBuilder and a nil
// RebuildPolicy is Never.
func New(p ffi.Process, s Surface, cfg Config) *Driver {
	if cfg.Builder == nil {
		cfg.Builder = DefaultBuilder()
	}
	if cfg.Rebuild == nil {
		cfg.Rebuild = Never
	}
	d := &Driver{proc: p, surface: s, cfg: cfg}
	d.visible.Store(cfg.Visible)
	return d
}

// OnFrame is the inline probe installed at the input hook.
func (d *Driver) OnFrame(ctx *cpu.Context) {
	d.Frame(input.PadData(ctx.Get(d.cfg.Input)))
}

// Frame runs one frame with the given pad state.
func (d *Driver) Frame(in input.PadData) {
	eligible := d.idle.Add(1) > DebounceFrames
	consumed := false

	if eligible {
		switch {
		case in.Contains(input.ToggleOverlay):
			d.toggle()
			consumed = true
		case in.Contains(input.ReturnToTitle) && d.cfg.ReturnTitle != 0:
			d.returnToTitle()
			consumed = true
		}
	}

	if d.visible.Load() {
		ui := in
		if !eligible || consumed {
			ui = 0
		}
		if d.render(ui) {
			consumed = true
		}
	}

	if consumed {
		d.idle.Store(0)
	}
}

func (d *Driver) toggle() {
	for {
		old := d.visible.Load()
		if d.visible.CompareAndSwap(old, !old) {
			log.WithField("visible", !old).Debug("Toggled overlay")
			return
		}
	}
}

func (d *Driver) returnToTitle() {
	log.Info("Returning to title screen")
	if _, err := d.proc.Call(d.cfg.ReturnTitle, ffi.U32(titleSaveSlot)); err != nil {
		log.WithError(err).Warn("Return to title failed")
	}
}

func (d *Driver) render(in input.PadData) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, h := d.surface.ScreenSize()
	if d.root == nil || d.stale || d.cfg.Rebuild() {
		d.root = d.cfg.Builder(w, h)
		d.stale = false
	}

	handled := false
	if !in.IsEmpty() {
		handled = widget.HandleInput(d.root, in)
	}
	widget.Render(d.root, render.Pt(int32(w/2), 0), d.surface)
	return handled
}

// Visible reports whether the overlay is shown.
func (d *Driver) Visible() bool {
	return d.visible.Load()
}

// Invalidate makes the next visible frame rebuild the tree.
func (d *Driver) Invalidate() {
	d.mu.Lock()
	d.stale = true
	d.mu.Unlock()
}
