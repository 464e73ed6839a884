// Package ffitest provides an in-memory ffi.Process for tests.
//
// The fake keeps real byte memory for a text section, a code cave, a heap
// and a stack, enforces page protections on writes, and interprets exactly
// the code the hook installer emits: direct branches into gates and
// trampolines that end in a branch back to the hooked function. Foreign
// functions are Go stubs registered at text offsets.
package ffitest

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/k2io/ardain/internal/cpu"
	"github.com/k2io/ardain/internal/ffi"
)

// Memory layout of the fake process.
const (
	TextBase   = 0x10000000
	TextSize   = 0x00100000
	CaveBase   = TextBase + TextSize
	CaveSize   = 0x00010000
	HeapBase   = 0x40000000
	HeapSize   = 0x00100000
	StackBase  = 0x50000000
	StackSize  = 0x00010000
	ReturnAddr = CaveBase // calls return here; never handed out by Alloc

	pageSize = 0x1000
)

var (
	// arm64: sub sp, sp, #0x20
	a64Prologue = []byte{0xff, 0x83, 0x00, 0xd1}
	// amd64: push rbp; mov rbp, rsp; sub rsp, 0x20
	x86Prologue = []byte{0x55, 0x48, 0x89, 0xe5, 0x48, 0x83, 0xec, 0x20}
	// arm64: ret
	a64Ret = []byte{0xc0, 0x03, 0x5f, 0xd6}
)

// Stub is a foreign function implemented in Go.
type Stub func(args []ffi.Arg) uint64

// CallRecord is one Call observed by the fake.
type CallRecord struct {
	Fn   uintptr
	Args []ffi.Arg
}

// ProtectRecord is one Protect observed by the fake.
type ProtectRecord struct {
	Addr uintptr
	Size int
	Prot ffi.Prot
}

type region struct {
	name string
	base uintptr
	data []byte
	prot ffi.Prot
}

func (r *region) contains(addr uintptr, n int) bool {
	return addr >= r.base && addr+uintptr(n) <= r.base+uintptr(len(r.data))
}

// Process is the fake.
type Process struct {
	arch cpu.Arch

	mu       sync.Mutex
	regions  []*region
	pages    map[uintptr]ffi.Prot
	caveNext uintptr
	heapNext uintptr
	allocs   map[uintptr]int
	code     map[uintptr]int
	gates    map[uintptr]ffi.GateFunc
	stubs    map[uintptr]Stub
	calls    []CallRecord
	protects []ProtectRecord
}

var _ ffi.Process = (*Process)(nil)

// New returns a fake process of the given arch.
func New(arch cpu.Arch) *Process {
	p := &Process{
		arch:     arch,
		pages:    make(map[uintptr]ffi.Prot),
		caveNext: CaveBase + 16,
		heapNext: HeapBase,
		allocs:   make(map[uintptr]int),
		code:     make(map[uintptr]int),
		gates:    make(map[uintptr]ffi.GateFunc),
		stubs:    make(map[uintptr]Stub),
	}
	p.regions = []*region{
		{name: "text", base: TextBase, data: make([]byte, TextSize), prot: ffi.ProtRX},
		{name: "cave", base: CaveBase, data: make([]byte, CaveSize), prot: ffi.ProtRWX},
		{name: "heap", base: HeapBase, data: make([]byte, HeapSize), prot: ffi.ProtRW},
		{name: "stack", base: StackBase, data: make([]byte, StackSize), prot: ffi.ProtRW},
	}
	return p
}

func (p *Process) Arch() cpu.Arch    { return p.arch }
func (p *Process) TextBase() uintptr { return TextBase }

func (p *Process) find(addr uintptr, n int) (*region, error) {
	for _, r := range p.regions {
		if r.contains(addr, n) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("unmapped memory %#x+%d", addr, n)
}

func (p *Process) protAt(r *region, addr uintptr) ffi.Prot {
	if prot, ok := p.pages[addr&^(pageSize-1)]; ok {
		return prot
	}
	return r.prot
}

func (p *Process) ReadMemory(addr uintptr, b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, err := p.find(addr, len(b))
	if err != nil {
		return err
	}
	copy(b, r.data[addr-r.base:])
	return nil
}

func (p *Process) WriteMemory(addr uintptr, b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, err := p.find(addr, len(b))
	if err != nil {
		return err
	}
	for a := addr &^ (pageSize - 1); a < addr+uintptr(len(b)); a += pageSize {
		if p.protAt(r, a)&ffi.ProtWrite == 0 {
			return fmt.Errorf("write to protected page %#x", a)
		}
	}
	copy(r.data[addr-r.base:], b)
	return nil
}

func (p *Process) Protect(addr uintptr, size int, prot ffi.Prot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.find(addr, size); err != nil {
		return err
	}
	for a := addr &^ (pageSize - 1); a < addr+uintptr(size); a += pageSize {
		p.pages[a] = prot
	}
	p.protects = append(p.protects, ProtectRecord{Addr: addr, Size: size, Prot: prot})
	return nil
}

func (p *Process) Alloc(size int, prot ffi.Prot) (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	size = (size + 15) &^ 15
	if prot&ffi.ProtExec != 0 {
		if p.caveNext+uintptr(size) > CaveBase+CaveSize {
			return 0, errors.New("code cave exhausted")
		}
		addr := p.caveNext
		p.caveNext += uintptr(size)
		p.code[addr] = size
		return addr, nil
	}
	if p.heapNext+uintptr(size) > HeapBase+HeapSize {
		return 0, errors.New("heap exhausted")
	}
	addr := p.heapNext
	p.heapNext += uintptr(size)
	p.allocs[addr] = size
	return addr, nil
}

func (p *Process) Free(addr uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.code[addr]; ok {
		delete(p.code, addr)
		delete(p.gates, addr)
		return nil
	}
	if _, ok := p.allocs[addr]; !ok {
		return fmt.Errorf("free of unknown allocation %#x", addr)
	}
	delete(p.allocs, addr)
	return nil
}

func (p *Process) Gate(fn ffi.GateFunc) (uintptr, error) {
	addr, err := p.Alloc(16, ffi.ProtRX)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.gates[addr] = fn
	p.mu.Unlock()
	return addr, nil
}

// Call executes fn: a branch into a gate runs the gate, a registered stub
// runs the stub and a trampoline runs the stub of the function it returns
// into.
func (p *Process) Call(fn uintptr, args ...ffi.Arg) (uint64, error) {
	p.mu.Lock()
	p.calls = append(p.calls, CallRecord{Fn: fn, Args: append([]ffi.Arg(nil), args...)})
	p.mu.Unlock()

	ctx := cpu.NewContext(p.arch)
	n := 0
	for _, a := range args {
		if a.Kind != ffi.IntArg {
			continue
		}
		r := p.arch.ArgReg(n)
		if r < 0 {
			return 0, errors.New("stack arguments are not supported")
		}
		ctx.Regs[r] = a.Bits
		n++
	}
	if lr := p.arch.LinkReg(); lr >= 0 {
		ctx.Regs[lr] = ReturnAddr
		ctx.SetSP(StackBase + StackSize - 0x100)
	} else {
		sp := uint64(StackBase + StackSize - 0x100)
		var ret [8]byte
		binary.LittleEndian.PutUint64(ret[:], ReturnAddr)
		if err := p.writeRaw(uintptr(sp), ret[:]); err != nil {
			return 0, err
		}
		ctx.SetSP(sp)
	}
	return p.run(fn, ctx, args)
}

func (p *Process) run(pc uintptr, ctx *cpu.Context, args []ffi.Arg) (uint64, error) {
	for steps := 0; steps < 16; steps++ {
		if pc == ReturnAddr {
			return ctx.Regs[p.arch.ReturnReg()], nil
		}
		if dest, ok := p.branchAt(pc); ok {
			p.mu.Lock()
			gate := p.gates[dest]
			p.mu.Unlock()
			if gate != nil {
				ctx.PC = uint64(pc)
				gate(ctx)
				pc = uintptr(ctx.PC)
				continue
			}
		}
		p.mu.Lock()
		stub := p.stubs[pc]
		p.mu.Unlock()
		if stub == nil {
			origin, ok := p.trampolineOrigin(pc)
			if !ok {
				return 0, fmt.Errorf("no code at %#x", pc)
			}
			p.mu.Lock()
			stub = p.stubs[origin]
			p.mu.Unlock()
			if stub == nil {
				return 0, fmt.Errorf("trampoline %#x returns into %#x which has no stub", pc, origin)
			}
		}
		return stub(p.argsFrom(ctx, args)), nil
	}
	return 0, errors.New("too many control transfers")
}

// argsFrom re-reads integer arguments from ctx so that a probe's register
// writes reach the stub.
func (p *Process) argsFrom(ctx *cpu.Context, orig []ffi.Arg) []ffi.Arg {
	out := make([]ffi.Arg, len(orig))
	n := 0
	for i, a := range orig {
		out[i] = a
		if a.Kind == ffi.IntArg {
			out[i].Bits = ctx.Regs[p.arch.ArgReg(n)]
			n++
		}
	}
	return out
}

// Fire simulates control reaching addr in the middle of a function with
// the registers in ctx. It runs the gate addr branches into and returns
// with ctx.PC set to where the gate resumes.
func (p *Process) Fire(addr uintptr, ctx *cpu.Context) error {
	dest, ok := p.branchAt(addr)
	if !ok {
		return fmt.Errorf("no branch at %#x", addr)
	}
	p.mu.Lock()
	gate := p.gates[dest]
	p.mu.Unlock()
	if gate == nil {
		return fmt.Errorf("%#x does not branch into a gate", addr)
	}
	ctx.Arch = p.arch
	ctx.PC = uint64(addr)
	gate(ctx)
	return nil
}

// branchAt decodes a direct branch at addr.
func (p *Process) branchAt(addr uintptr) (uintptr, bool) {
	switch p.arch {
	case cpu.ARM64:
		var b [4]byte
		if p.ReadMemory(addr, b[:]) != nil {
			return 0, false
		}
		insn := binary.LittleEndian.Uint32(b[:])
		if insn&0xfc000000 != 0x14000000 {
			return 0, false
		}
		imm := int64(insn&0x03ffffff) << 38 >> 36
		return uintptr(int64(addr) + imm), true
	case cpu.AMD64:
		var b [5]byte
		if p.ReadMemory(addr, b[:]) != nil || b[0] != 0xe9 {
			return 0, false
		}
		rel := int32(binary.LittleEndian.Uint32(b[1:]))
		return uintptr(int64(addr) + 5 + int64(rel)), true
	}
	return 0, false
}

// trampolineOrigin finds the branch closing a trampoline at addr and
// returns the start of the hooked function it belongs to.
func (p *Process) trampolineOrigin(addr uintptr) (uintptr, bool) {
	switch p.arch {
	case cpu.ARM64:
		dest, ok := p.branchAt(addr + 4)
		return dest - 4, ok
	case cpu.AMD64:
		var b [32]byte
		if p.ReadMemory(addr, b[:]) != nil {
			return 0, false
		}
		for off := 0; off < len(b); {
			inst, err := x86asm.Decode(b[off:], 64)
			if err != nil {
				return 0, false
			}
			if inst.Op == x86asm.JMP {
				if dest, ok := p.branchAt(addr + uintptr(off)); ok {
					return dest - uintptr(off), true
				}
			}
			off += inst.Len
		}
	}
	return 0, false
}

func (p *Process) writeRaw(addr uintptr, b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, err := p.find(addr, len(b))
	if err != nil {
		return err
	}
	copy(r.data[addr-r.base:], b)
	return nil
}

// SetCode places raw instructions at a text offset, ignoring protection.
func (p *Process) SetCode(off int64, code []byte) {
	if err := p.writeRaw(uintptr(TextBase+off), code); err != nil {
		panic(err)
	}
}

// Stub registers fn as the foreign function at a text offset and writes a
// relocatable prologue there so the installer can hook it.
func (p *Process) Stub(off int64, fn Stub) uintptr {
	addr := uintptr(TextBase + off)
	if p.arch == cpu.AMD64 {
		p.SetCode(off, x86Prologue)
	} else {
		p.SetCode(off, a64Prologue)
	}
	p.mu.Lock()
	p.stubs[addr] = fn
	p.mu.Unlock()
	return addr
}

// Site writes a relocatable instruction at a text offset for inline hooks.
func (p *Process) Site(off int64) uintptr {
	if p.arch == cpu.AMD64 {
		p.SetCode(off, x86Prologue)
	} else {
		p.SetCode(off, a64Prologue)
	}
	return uintptr(TextBase + off)
}

// Calls returns every recorded call.
func (p *Process) Calls() []CallRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CallRecord(nil), p.calls...)
}

// CallsTo returns the recorded calls whose target is fn.
func (p *Process) CallsTo(fn uintptr) []CallRecord {
	var out []CallRecord
	for _, c := range p.Calls() {
		if c.Fn == fn {
			out = append(out, c)
		}
	}
	return out
}

// Protects returns every recorded protection change.
func (p *Process) Protects() []ProtectRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProtectRecord(nil), p.protects...)
}

// Live returns the addresses of heap allocations not yet freed.
func (p *Process) Live() []uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uintptr, 0, len(p.allocs))
	for a := range p.allocs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LiveCode returns the addresses of code cave allocations not yet freed,
// gates included.
func (p *Process) LiveCode() []uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uintptr, 0, len(p.code))
	for a := range p.code {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Bytes reads n bytes at addr.
func (p *Process) Bytes(addr uintptr, n int) []byte {
	b := make([]byte, n)
	if err := p.ReadMemory(addr, b); err != nil {
		panic(err)
	}
	return b
}

// CString reads a NUL-terminated string at addr.
func (p *Process) CString(addr uintptr) string {
	var out []byte
	for {
		var b [1]byte
		if err := p.ReadMemory(addr+uintptr(len(out)), b[:]); err != nil || b[0] == 0 {
			return string(out)
		}
		out = append(out, b[0])
	}
}

// Ret is the encoding of a return instruction, used to fill unused code.
func Ret() []byte {
	return append([]byte(nil), a64Ret...)
}
