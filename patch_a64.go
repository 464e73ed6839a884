package ardain

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/arch/arm64/arm64asm"

	"github.com/k2io/ardain/internal/cpu"
	"github.com/k2io/ardain/internal/ffi"
)

const (
	a64InsnLen = 4
	// B imm26 reaches +-128 MiB
	a64BranchRange = 1 << 27
	a64B           = 0x14000000
	a64Imm26       = 0x03ffffff
	a64LinkReg     = 30
)

// a64 patches AArch64 code with a single B instruction.
type a64 struct{}

func (a64) window(p ffi.Process, addr uintptr) ([]byte, bool, error) {
	src := make([]byte, a64InsnLen)
	if err := p.ReadMemory(addr, src); err != nil {
		return nil, false, errors.Wrapf(err, "read %#x", addr)
	}
	inst, err := arm64asm.Decode(src)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode %#x", addr)
	}
	return src, a64Relocatable(inst), nil
}

// a64Relocatable reports whether inst behaves the same at any address.
func a64Relocatable(inst arm64asm.Inst) bool {
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if _, ok := a.(arm64asm.PCRel); ok {
			return false
		}
	}
	return true
}

func (a64) jumpLen() int { return a64InsnLen }

func (a64) jump(from, to uintptr, size int) ([]byte, error) {
	delta := int64(to) - int64(from)
	if delta%a64InsnLen != 0 {
		return nil, errors.Errorf("misaligned branch %#x -> %#x", from, to)
	}
	if delta < -a64BranchRange || delta >= a64BranchRange {
		return nil, errors.Wrapf(ErrOutOfRange, "%#x -> %#x", from, to)
	}
	seq := make([]byte, size)
	binary.LittleEndian.PutUint32(seq, a64B|uint32(delta>>2)&a64Imm26)
	return seq, nil
}

func (a64) ret(_ ffi.Process, ctx *cpu.Context) error {
	ctx.PC = ctx.Regs[a64LinkReg]
	return nil
}
