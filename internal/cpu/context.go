// Package cpu models the register state captured at an interception point.
//
// A Context is only valid for the duration of the gate callback that
// received it. Register descriptors come from the offset table and carry a
// width class; reads widen to 64 bits, writes must match the class exactly.
package cpu

import (
	"fmt"
)

// MaxRegs bounds the general purpose registers any supported arch saves.
const MaxRegs = 32

// Class is the width class of a register view.
type Class byte

const (
	// X is a full 64-bit register
	X Class = 'x'
	// W is the 32-bit view of a register
	W Class = 'w'
	// R is the narrow view of a register; it shares the 32-bit layout of W
	R Class = 'r'
)

// ParseClass converts a configuration tag into a Class.
func ParseClass(tag rune) (Class, error) {
	switch Class(tag) {
	case X, W, R:
		return Class(tag), nil
	}
	return 0, fmt.Errorf("unsupported register class %q", tag)
}

func (c Class) String() string {
	return string(rune(c))
}

// Register locates a value inside a Context.
type Register struct {
	Class Class
	Index int
}

func (r Register) String() string {
	return fmt.Sprintf("%c%d", rune(r.Class), r.Index)
}

// Value is a width-tagged register value used for writes.
type Value struct {
	wide bool
	bits uint64
}

// X64 wraps a value for a 64-bit register.
func X64(v uint64) Value { return Value{wide: true, bits: v} }

// W32 wraps a value for a 32-bit or narrow register.
func W32(v uint32) Value { return Value{bits: uint64(v)} }

func (v Value) String() string {
	if v.wide {
		return fmt.Sprintf("X(%#x)", v.bits)
	}
	return fmt.Sprintf("W(%#x)", v.bits)
}

// Probe is invoked by an inline hook with the live register snapshot.
type Probe func(ctx *Context)

// Context is the register snapshot at an intercepted instruction.
type Context struct {
	Arch Arch
	Regs [MaxRegs]uint64
	PC   uint64
}

// NewContext returns an empty snapshot for arch.
func NewContext(arch Arch) *Context {
	return &Context{Arch: arch}
}

func (c *Context) check(reg Register) {
	n := c.Arch.NumRegs()
	if n == 0 {
		n = MaxRegs
	}
	if reg.Index < 0 || reg.Index >= n {
		panic(fmt.Sprintf("register %v out of range for %v", reg, c.Arch))
	}
}

// Get reads reg, widening 32-bit views to 64 bits.
func (c *Context) Get(reg Register) uint64 {
	c.check(reg)
	v := c.Regs[reg.Index]
	switch reg.Class {
	case X:
		return v
	case W, R:
		return uint64(uint32(v))
	}
	panic(fmt.Sprintf("unsupported register class %q", rune(reg.Class)))
}

// Set writes val into reg. The value width must match the register class;
// a mismatch is a configuration/code disagreement and panics. 32-bit writes
// replace the low half and keep the high half of the saved register.
func (c *Context) Set(reg Register, val Value) {
	c.check(reg)
	switch {
	case reg.Class == X && val.wide:
		c.Regs[reg.Index] = val.bits
	case (reg.Class == W || reg.Class == R) && !val.wide:
		c.Regs[reg.Index] = c.Regs[reg.Index]&^0xffffffff | val.bits
	default:
		panic(fmt.Sprintf("incompatible register type %v with value %v", reg, val))
	}
}

// SP returns the stack pointer.
func (c *Context) SP() uint64 {
	return c.Regs[c.Arch.SPReg()]
}

// SetSP replaces the stack pointer.
func (c *Context) SetSP(v uint64) {
	c.Regs[c.Arch.SPReg()] = v
}

// Arg returns the i-th integer argument if it is passed in a register.
func (c *Context) Arg(i int) uint64 {
	r := c.Arch.ArgReg(i)
	if r < 0 {
		panic(fmt.Sprintf("argument %d is not passed in a register on %v", i, c.Arch))
	}
	return c.Regs[r]
}

// SetReturn stores v in the integer return register.
func (c *Context) SetReturn(v uint64) {
	c.Regs[c.Arch.ReturnReg()] = v
}
