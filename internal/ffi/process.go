// Package ffi is the boundary between the framework and the instrumented
// process. Every raw address, memory access and foreign function call goes
// through a Process; packages above it only see typed wrappers.
package ffi

import (
	"fmt"
	"math"

	"github.com/k2io/ardain/internal/cpu"
)

// Prot is a page protection mask. The bit values match POSIX PROT_*.
type Prot int

const (
	ProtRead  Prot = 1
	ProtWrite Prot = 2
	ProtExec  Prot = 4

	ProtRX  = ProtRead | ProtExec
	ProtRW  = ProtRead | ProtWrite
	ProtRWX = ProtRead | ProtWrite | ProtExec
)

// GateFunc runs when control reaches a gate. The host resumes execution at
// ctx.PC after it returns, with the registers in ctx.
type GateFunc func(ctx *cpu.Context)

// Process is the instrumented process.
type Process interface {
	// Arch returns the instruction set of the process.
	Arch() cpu.Arch
	// TextBase returns the start of the main executable code section.
	TextBase() uintptr

	ReadMemory(addr uintptr, b []byte) error
	WriteMemory(addr uintptr, b []byte) error
	// Protect changes the protection of the pages covering [addr, addr+size).
	Protect(addr uintptr, size int, prot Prot) error

	// Alloc reserves size bytes. Executable allocations are placed within
	// direct branch range of the text section.
	Alloc(size int, prot Prot) (uintptr, error)
	Free(addr uintptr) error

	// Gate returns an address that diverts control into fn.
	Gate(fn GateFunc) (uintptr, error)

	// Call invokes the foreign function at fn with the C calling convention
	// and returns the integer result register.
	Call(fn uintptr, args ...Arg) (uint64, error)
}

// ArgKind tells which register file an argument travels in.
type ArgKind int

const (
	// IntArg is passed in a general purpose register
	IntArg ArgKind = iota
	// FloatArg is a float32 passed in a floating point register
	FloatArg
)

// Arg is one argument of a foreign call.
type Arg struct {
	Kind ArgKind
	Bits uint64
}

// U64 passes a 64-bit integer.
func U64(v uint64) Arg { return Arg{Kind: IntArg, Bits: v} }

// U32 passes a 32-bit integer.
func U32(v uint32) Arg { return Arg{Kind: IntArg, Bits: uint64(v)} }

// I16 passes a sign-extended 16-bit integer.
func I16(v int16) Arg { return Arg{Kind: IntArg, Bits: uint64(int64(v))} }

// Ptr passes an address.
func Ptr(addr uintptr) Arg { return Arg{Kind: IntArg, Bits: uint64(addr)} }

// F32 passes a single precision float.
func F32(v float32) Arg { return Arg{Kind: FloatArg, Bits: uint64(math.Float32bits(v))} }

// Float32 decodes a FloatArg.
func (a Arg) Float32() float32 { return math.Float32frombits(uint32(a.Bits)) }

func (a Arg) String() string {
	if a.Kind == FloatArg {
		return fmt.Sprintf("f32(%v)", a.Float32())
	}
	return fmt.Sprintf("%#x", a.Bits)
}

// Addr computes base + off for a code offset.
func Addr(p Process, off int64) uintptr {
	return uintptr(int64(p.TextBase()) + off)
}
