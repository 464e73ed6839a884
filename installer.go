package ardain

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/k2io/ardain/internal/cpu"
	"github.com/k2io/ardain/internal/ffi"
	"github.com/k2io/ardain/internal/logging"
	"github.com/k2io/ardain/internal/logging/logfields"
	"github.com/k2io/ardain/internal/offsets"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "hook")

// SetDebug enables debug output, including every patch written.
func SetDebug(x bool) {
	logging.SetDebug(x)
}

// patcher holds the instruction set specific parts of a patch.
type patcher interface {
	// window returns the instructions a jump at addr displaces and whether
	// they still work when run from another address.
	window(p ffi.Process, addr uintptr) ([]byte, bool, error)
	// jump encodes a direct branch at from to to, padded to size bytes.
	jump(from, to uintptr, size int) ([]byte, error)
	// jumpLen is the length of the shortest branch jump emits.
	jumpLen() int
	// ret leaves a replaced function for its caller.
	ret(p ffi.Process, ctx *cpu.Context) error
}

func patcherFor(arch cpu.Arch) (patcher, error) {
	switch arch {
	case cpu.ARM64:
		return a64{}, nil
	case cpu.AMD64:
		return x86{}, nil
	}
	return nil, errors.Wrap(ErrArch, arch.String())
}

// Replacement runs instead of a hooked function; its result is returned
// to the caller.
type Replacement func(c *Call) uint64

// Call is one intercepted call of a replaced function.
type Call struct {
	hook *Hook
	ctx  *cpu.Context
}

// Arg returns the i-th integer argument.
func (c *Call) Arg(i int) uint64 { return c.ctx.Arg(i) }

// Context exposes the registers at function entry.
func (c *Call) Context() *cpu.Context { return c.ctx }

// Hook returns the hook being run.
func (c *Call) Hook() *Hook { return c.hook }

// Original calls the displaced function.
func (c *Call) Original(args ...ffi.Arg) (uint64, error) {
	return c.hook.CallOriginal(args...)
}

// Installer patches hooks named in an offset table into a process.
type Installer struct {
	proc  ffi.Process
	table *offsets.Table

	// hooks applied with target addresses as keys
	hooks map[uintptr]*Hook
	// protect the hooks map
	lock sync.Mutex
}

// NewInstaller returns an installer resolving names through t.
func NewInstaller(p ffi.Process, t *offsets.Table) *Installer {
	return &Installer{
		proc:  p,
		table: t,
		hooks: make(map[uintptr]*Hook),
	}
}

// Replace diverts every call of the hook point name into fn.
func (i *Installer) Replace(name string, fn Replacement) (*Hook, error) {
	target, err := i.resolve(name)
	if err != nil {
		return nil, err
	}
	return i.ReplaceAt(name, target, fn)
}

// ReplaceAt is Replace for a raw address.
func (i *Installer) ReplaceAt(name string, target uintptr, fn Replacement) (*Hook, error) {
	return i.apply(name, KindReplace, target, func(h *Hook, pt patcher) ffi.GateFunc {
		return func(ctx *cpu.Context) {
			ctx.SetReturn(fn(&Call{hook: h, ctx: ctx}))
			if err := pt.ret(i.proc, ctx); err != nil {
				log.WithError(err).WithField(logfields.Hook, h.name).Error("Cannot return from replacement")
			}
		}
	})
}

// Inline runs probe whenever control reaches the hook point name, then
// continues with the original instructions.
func (i *Installer) Inline(name string, probe cpu.Probe) (*Hook, error) {
	target, err := i.resolve(name)
	if err != nil {
		return nil, err
	}
	return i.InlineAt(name, target, probe)
}

// InlineAt is Inline for a raw address.
func (i *Installer) InlineAt(name string, target uintptr, probe cpu.Probe) (*Hook, error) {
	return i.apply(name, KindInline, target, func(h *Hook, _ patcher) ffi.GateFunc {
		return func(ctx *cpu.Context) {
			probe(ctx)
			ctx.PC = uint64(h.trampoline)
		}
	})
}

func (i *Installer) resolve(name string) (uintptr, error) {
	off, ok := i.table.Hook(name)
	if !ok {
		return 0, errors.Wrap(ErrUnavailable, name)
	}
	return ffi.Addr(i.proc, off), nil
}

func (i *Installer) apply(name string, kind Kind, target uintptr, gate func(*Hook, patcher) ffi.GateFunc) (*Hook, error) {
	pt, err := patcherFor(i.proc.Arch())
	if err != nil {
		return nil, err
	}

	i.lock.Lock()
	defer i.lock.Unlock()
	if _, ok := i.hooks[target]; ok {
		return nil, ErrDoubleHook
	}

	scopedLog := log.WithFields(logrus.Fields{
		logfields.Hook:    name,
		logfields.Address: target,
		"kind":            kind,
	})

	window, relocatable, err := pt.window(i.proc, target)
	if err != nil {
		return nil, err
	}
	h := &Hook{
		proc:   i.proc,
		name:   name,
		kind:   kind,
		target: target,
		saved:  window,
	}
	if relocatable {
		h.trampoline, err = i.trampoline(pt, target, window)
		if err != nil {
			return nil, err
		}
	} else {
		if kind == KindInline {
			return nil, errors.Wrapf(ErrRelativeAddr, "inline hook %s", name)
		}
		scopedLog.Debug("Displaced code is not relocatable, original is not callable")
		h.originErr = ErrRelativeAddr
	}

	patch, err := i.patch(h, pt, gate(h, pt))
	if err != nil {
		if h.trampoline != 0 {
			i.proc.Free(h.trampoline)
		}
		return nil, err
	}
	i.hooks[target] = h

	scopedLog.WithFields(logrus.Fields{
		logfields.Gate:       h.gate,
		logfields.Trampoline: h.trampoline,
	}).Debugf("Patched % x -> % x", window, patch)
	return h, nil
}

// patch creates the gate of h and writes the jump into it over the target.
// The gate is released when the jump cannot be written.
func (i *Installer) patch(h *Hook, pt patcher, fn ffi.GateFunc) ([]byte, error) {
	var err error
	h.gate, err = i.proc.Gate(fn)
	if err != nil {
		return nil, errors.Wrap(err, "create gate")
	}
	patch, err := pt.jump(h.target, h.gate, len(h.saved))
	if err == nil {
		err = writeCode(i.proc, h.target, patch)
	}
	if err != nil {
		i.proc.Free(h.gate)
		h.gate = 0
		return nil, err
	}
	return patch, nil
}

// trampoline copies the displaced instructions into executable memory and
// appends a jump to the first instruction after them.
func (i *Installer) trampoline(pt patcher, target uintptr, window []byte) (uintptr, error) {
	n := len(window)
	tramp, err := i.proc.Alloc(n+pt.jumpLen(), ffi.ProtRX)
	if err != nil {
		return 0, errors.Wrap(err, "alloc trampoline")
	}
	back, err := pt.jump(tramp+uintptr(n), target+uintptr(n), pt.jumpLen())
	if err != nil {
		i.proc.Free(tramp)
		return 0, err
	}
	code := append(append([]byte(nil), window...), back...)
	if err := writeCode(i.proc, tramp, code); err != nil {
		i.proc.Free(tramp)
		return 0, err
	}
	return tramp, nil
}

// Hooks returns the installed hooks ordered by address.
func (i *Installer) Hooks() []*Hook {
	i.lock.Lock()
	defer i.lock.Unlock()
	out := make([]*Hook, 0, len(i.hooks))
	for _, h := range i.hooks {
		out = append(out, h)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].target < out[b].target })
	return out
}
