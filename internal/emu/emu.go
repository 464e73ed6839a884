//go:build unicorn

// Package emu runs an executable image under the Unicorn engine and exposes
// it as an ffi.Process.
//
// Memory is laid out as the image sections at their link addresses,
// followed by a code cave for gates and trampolines, a heap and a stack.
// The engine is not safe for concurrent use; only allocation bookkeeping
// is locked.
package emu

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
	"golang.org/x/sys/unix"

	"github.com/k2io/ardain/internal/cpu"
	"github.com/k2io/ardain/internal/ffi"
	"github.com/k2io/ardain/internal/logging"
	"github.com/k2io/ardain/internal/logging/logfields"
	"github.com/k2io/ardain/internal/objfile"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "emu")

const (
	caveSize  = 1 << 20
	heapSize  = 16 << 20
	stackSize = 1 << 20
	gateSize  = 16
	// left below the caller's stack pointer by nested calls
	redZone = 0x100
)

// ErrArch means the image arch cannot be emulated
var ErrArch = errors.New("unsupported architecture")

var pageSize = uint64(unix.Getpagesize())

func alignDown(v uint64) uint64 { return v &^ (pageSize - 1) }
func alignUp(v uint64) uint64   { return (v + pageSize - 1) &^ (pageSize - 1) }

// Emulator is an image loaded into a Unicorn engine.
type Emulator struct {
	mu   uc.Unicorn
	arch cpu.Arch
	m    machine
	text uint64

	caveBase, heapBase, stackBase uint64
	// calls return here, emulation stops before executing it
	retStub uint64

	lock     sync.Mutex
	caveNext uint64
	heapNext uint64
	allocs   map[uint64]int
	code     map[uint64]int
	gates    map[uint64]ffi.GateFunc

	// first failure inside a hook, reported by the Start that ran it
	hookErr error
}

var _ ffi.Process = (*Emulator)(nil)

// New maps img into a fresh engine.
func New(img *objfile.Image) (*Emulator, error) {
	m, ok := machineFor(img.Arch)
	if !ok {
		return nil, errors.Wrap(ErrArch, img.Arch.String())
	}
	text, ok := img.Text()
	if !ok {
		return nil, errors.New("image has no executable section")
	}
	mu, err := uc.NewUnicorn(m.ucArch, m.ucMode)
	if err != nil {
		return nil, errors.Wrap(err, "create unicorn")
	}

	e := &Emulator{
		mu:     mu,
		arch:   img.Arch,
		m:      m,
		text:   text,
		allocs: make(map[uint64]int),
		code:   make(map[uint64]int),
		gates:  make(map[uint64]ffi.GateFunc),
	}
	if err := e.load(img); err != nil {
		mu.Close()
		return nil, err
	}
	if err := e.mapRuntime(img); err != nil {
		mu.Close()
		return nil, err
	}
	if _, err := mu.HookAdd(uc.HOOK_CODE, e.onCave, e.caveBase, e.caveBase+caveSize-1); err != nil {
		mu.Close()
		return nil, errors.Wrap(err, "hook code cave")
	}

	log.WithFields(logrus.Fields{
		logfields.Arch: e.arch,
		"text":         e.text,
		"cave":         e.caveBase,
		"heap":         e.heapBase,
		"stack":        e.stackBase,
	}).Info("Emulator ready")
	return e, nil
}

// load maps the page ranges covering the image sections.
func (e *Emulator) load(img *objfile.Image) error {
	var start, end uint64
	flush := func() error {
		if end == start {
			return nil
		}
		return errors.Wrapf(e.mu.MemMapProt(start, end-start, uc.PROT_ALL), "map %#x-%#x", start, end)
	}
	for _, s := range img.Sections {
		lo, hi := alignDown(s.Addr), alignUp(s.End())
		if end != start && lo <= end {
			if hi > end {
				end = hi
			}
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		start, end = lo, hi
	}
	if err := flush(); err != nil {
		return err
	}

	for _, s := range img.Sections {
		if err := e.mu.MemWrite(s.Addr, s.Data); err != nil {
			return errors.Wrapf(err, "load %s", s.Name)
		}
	}
	for _, s := range img.Sections {
		prot := uc.PROT_READ | uc.PROT_WRITE
		if s.Exec {
			prot = uc.PROT_READ | uc.PROT_EXEC
		}
		lo, hi := alignDown(s.Addr), alignUp(s.End())
		if err := e.mu.MemProtect(lo, hi-lo, prot); err != nil {
			return errors.Wrapf(err, "protect %s", s.Name)
		}
	}
	return nil
}

// mapRuntime places the cave right after the image, within direct branch
// range of the text, then the heap and the stack.
func (e *Emulator) mapRuntime(img *objfile.Image) error {
	_, hi := img.Bounds()
	e.caveBase = alignUp(hi)
	e.heapBase = e.caveBase + caveSize
	e.stackBase = e.heapBase + heapSize

	regions := []struct {
		name       string
		base, size uint64
		prot       int
	}{
		{"cave", e.caveBase, caveSize, uc.PROT_ALL},
		{"heap", e.heapBase, heapSize, uc.PROT_READ | uc.PROT_WRITE},
		{"stack", e.stackBase, stackSize, uc.PROT_READ | uc.PROT_WRITE},
	}
	for _, r := range regions {
		if err := e.mu.MemMapProt(r.base, r.size, r.prot); err != nil {
			return errors.Wrapf(err, "map %s at %#x", r.name, r.base)
		}
	}

	e.retStub = e.caveBase
	if err := e.mu.MemWrite(e.retStub, e.m.trap); err != nil {
		return errors.Wrap(err, "write return stub")
	}
	e.caveNext = e.caveBase + gateSize
	e.heapNext = e.heapBase
	return e.setSP(e.stackBase + stackSize - redZone)
}

// Close releases the engine.
func (e *Emulator) Close() error {
	return e.mu.Close()
}

func (e *Emulator) Arch() cpu.Arch    { return e.arch }
func (e *Emulator) TextBase() uintptr { return uintptr(e.text) }

func (e *Emulator) ReadMemory(addr uintptr, b []byte) error {
	data, err := e.mu.MemRead(uint64(addr), uint64(len(b)))
	if err != nil {
		return errors.Wrapf(err, "read %#x+%d", addr, len(b))
	}
	copy(b, data)
	return nil
}

func (e *Emulator) WriteMemory(addr uintptr, b []byte) error {
	return errors.Wrapf(e.mu.MemWrite(uint64(addr), b), "write %#x+%d", addr, len(b))
}

func (e *Emulator) Protect(addr uintptr, size int, prot ffi.Prot) error {
	lo, hi := alignDown(uint64(addr)), alignUp(uint64(addr)+uint64(size))
	return errors.Wrapf(e.mu.MemProtect(lo, hi-lo, ucProt(prot)), "protect %#x", addr)
}

func ucProt(p ffi.Prot) int {
	prot := 0
	if p&ffi.ProtRead != 0 {
		prot |= uc.PROT_READ
	}
	if p&ffi.ProtWrite != 0 {
		prot |= uc.PROT_WRITE
	}
	if p&ffi.ProtExec != 0 {
		prot |= uc.PROT_EXEC
	}
	return prot
}

func (e *Emulator) Alloc(size int, prot ffi.Prot) (uintptr, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	n := (uint64(size) + 15) &^ 15
	if prot&ffi.ProtExec != 0 {
		if e.caveNext+n > e.caveBase+caveSize {
			return 0, errors.New("code cave exhausted")
		}
		addr := e.caveNext
		e.caveNext += n
		e.code[addr] = size
		return uintptr(addr), nil
	}
	if e.heapNext+n > e.heapBase+heapSize {
		return 0, errors.New("heap exhausted")
	}
	addr := e.heapNext
	e.heapNext += n
	e.allocs[addr] = size
	return uintptr(addr), nil
}

// Free forgets an allocation. Both the heap and the code cave are bump
// allocators and never reuse memory; freeing a gate disarms it.
func (e *Emulator) Free(addr uintptr) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if _, ok := e.code[uint64(addr)]; ok {
		delete(e.code, uint64(addr))
		delete(e.gates, uint64(addr))
		return nil
	}
	if _, ok := e.allocs[uint64(addr)]; !ok {
		return errors.Errorf("free of unknown allocation %#x", addr)
	}
	delete(e.allocs, uint64(addr))
	return nil
}

func (e *Emulator) Gate(fn ffi.GateFunc) (uintptr, error) {
	addr, err := e.Alloc(gateSize, ffi.ProtRX)
	if err != nil {
		return 0, err
	}
	if err := e.WriteMemory(addr, e.m.trap); err != nil {
		return 0, err
	}
	e.lock.Lock()
	e.gates[uint64(addr)] = fn
	e.lock.Unlock()
	return addr, nil
}

// onCave runs before every instruction in the code cave and dispatches
// gates.
func (e *Emulator) onCave(_ uc.Unicorn, addr uint64, _ uint32) {
	e.lock.Lock()
	fn := e.gates[addr]
	e.lock.Unlock()
	if fn == nil {
		return
	}
	ctx, err := e.readContext()
	if err == nil {
		fn(ctx)
		err = e.writeContext(ctx)
	}
	if err != nil {
		e.fail(errors.Wrapf(err, "gate %#x", addr))
	}
}

func (e *Emulator) fail(err error) {
	if e.hookErr == nil {
		e.hookErr = err
	}
	e.mu.Stop()
}

func (e *Emulator) takeHookErr() error {
	err := e.hookErr
	e.hookErr = nil
	return err
}

func (e *Emulator) setSP(v uint64) error {
	return e.mu.RegWrite(e.m.regs[e.arch.SPReg()], v)
}

// Call runs fn until it returns. The general purpose registers and PC are
// restored afterwards, so calls nest inside gates.
func (e *Emulator) Call(fn uintptr, args ...ffi.Arg) (uint64, error) {
	saved, err := e.readContext()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := e.writeContext(saved); err != nil {
			log.WithError(err).Error("Cannot restore context after call")
		}
	}()

	ints, floats := 0, 0
	for i, a := range args {
		var err error
		switch a.Kind {
		case ffi.FloatArg:
			if e.m.floatArg < 0 || floats >= 8 {
				return 0, errors.Errorf("argument %d: float arguments are not supported on %v", i, e.arch)
			}
			err = e.mu.RegWrite(e.m.floatArg+floats, a.Bits)
			floats++
		default:
			r := e.arch.ArgReg(ints)
			if r < 0 {
				return 0, errors.Errorf("argument %d: stack arguments are not supported", i)
			}
			err = e.mu.RegWrite(e.m.regs[r], a.Bits)
			ints++
		}
		if err != nil {
			return 0, errors.Wrapf(err, "argument %d", i)
		}
	}

	sp := (saved.SP() - redZone) &^ 15
	if lr := e.arch.LinkReg(); lr >= 0 {
		err = e.mu.RegWrite(e.m.regs[lr], e.retStub)
	} else {
		sp -= 8
		var ret [8]byte
		binary.LittleEndian.PutUint64(ret[:], e.retStub)
		err = e.mu.MemWrite(sp, ret[:])
	}
	if err == nil {
		err = e.setSP(sp)
	}
	if err != nil {
		return 0, errors.Wrap(err, "set up call frame")
	}

	if err := e.mu.Start(uint64(fn), e.retStub); err != nil {
		return 0, errors.Wrapf(err, "call %#x", fn)
	}
	if err := e.takeHookErr(); err != nil {
		return 0, err
	}
	return e.mu.RegRead(e.m.regs[e.arch.ReturnReg()])
}

// Run executes the image from entry for at most count instructions, 0 for
// no limit.
func (e *Emulator) Run(entry uint64, count uint64) error {
	log.WithFields(logrus.Fields{
		logfields.Address: entry,
		"count":           count,
	}).Info("Running image")
	if err := e.mu.StartWithOptions(entry, 0, &uc.UcOptions{Count: count}); err != nil {
		pc, _ := e.mu.RegRead(e.m.pc)
		return errors.Wrapf(err, "stopped at %#x", pc)
	}
	return e.takeHookErr()
}
