// Package ardain instruments a foreign process from a versioned offset
// table: it patches function entries and mid-function probes, and drives a
// diagnostic overlay from the game's own input and drawing code.
package ardain

import (
	"github.com/pkg/errors"

	"github.com/k2io/ardain/internal/ffi"
)

var (
	// ErrDoubleHook means already hooked
	ErrDoubleHook = errors.New("double hook")
	// ErrUnavailable means the hook offset is absent for this version
	ErrUnavailable = errors.New("hook unavailable")
	// ErrRelativeAddr means cannot call the origin function
	ErrRelativeAddr = errors.New("relative address in instruction")
	// ErrOutOfRange means a direct branch cannot reach its destination
	ErrOutOfRange = errors.New("branch target out of range")
	// ErrArch means the process architecture is not supported
	ErrArch = errors.New("unsupported architecture")
)

// Kind tells how a hook diverts control.
type Kind int

const (
	// KindReplace takes over a function at its entry
	KindReplace Kind = iota
	// KindInline runs a probe and continues with the original code
	KindInline
)

func (k Kind) String() string {
	if k == KindInline {
		return "inline"
	}
	return "replace"
}

// Hook is an installed interception. Hooks are never removed.
type Hook struct {
	proc ffi.Process

	name   string
	kind   Kind
	target uintptr
	gate   uintptr

	// the overwritten instructions
	saved []byte
	// the moved instructions followed by a jump back
	trampoline uintptr
	// why the origin function cannot be called, nil when it can
	originErr error
}

// Name returns the offset table key of the hook.
func (h *Hook) Name() string { return h.name }

// Kind returns how the hook diverts control.
func (h *Hook) Kind() Kind { return h.kind }

// Target returns the patched address.
func (h *Hook) Target() uintptr { return h.target }

// Gate returns the address the patch branches to.
func (h *Hook) Gate() uintptr { return h.gate }

// Saved returns a copy of the instructions the patch displaced.
func (h *Hook) Saved() []byte { return append([]byte(nil), h.saved...) }

// Original returns the address that behaves like the unhooked function.
func (h *Hook) Original() (uintptr, error) {
	if h.originErr != nil {
		return 0, h.originErr
	}
	return h.trampoline, nil
}

// CallOriginal calls the unhooked function.
func (h *Hook) CallOriginal(args ...ffi.Arg) (uint64, error) {
	fn, err := h.Original()
	if err != nil {
		return 0, errors.Wrapf(err, "hook %s", h.name)
	}
	return h.proc.Call(fn, args...)
}
