// Copyright (C) 2022 K2 Cyber Security Inc.

package ardain

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/k2io/ardain/internal/cpu"
	"github.com/k2io/ardain/internal/ffi"
)

const (
	jmp32relLen = 5 // JMP rel32
	// longest window looked at for whole instructions
	x86LookWindow = 32
	x86Nop        = 0x90
)

type info struct {
	length      int
	relocatable bool
}

// x86 patches x86-64 code with JMP rel32 and NOPs over the rest of the
// displaced instructions.
type x86 struct{}

func (x86) window(p ffi.Process, addr uintptr) ([]byte, bool, error) {
	src := make([]byte, x86LookWindow)
	if err := p.ReadMemory(addr, src); err != nil {
		return nil, false, errors.Wrapf(err, "read %#x", addr)
	}
	inf, err := ensureLength(src, jmp32relLen)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode %#x", addr)
	}
	return src[:inf.length], inf.relocatable, nil
}

func ensureLength(src []byte, size int) (info, error) {
	var inf info
	inf.relocatable = true
	for inf.length < size {
		i, err := analysis(src)
		if err != nil {
			return inf, err
		}
		inf.relocatable = inf.relocatable && i.relocatable
		inf.length += i.length
		src = src[i.length:]
	}
	return inf, nil
}

func analysis(src []byte) (inf info, err error) {
	inst, err := x86asm.Decode(src, 64)
	if err != nil {
		return
	}
	inf.length = inst.Len
	inf.relocatable = true
	for _, a := range inst.Args {
		if mem, ok := a.(x86asm.Mem); ok {
			if mem.Base == x86asm.RIP {
				inf.relocatable = false
				return
			}
		} else if _, ok := a.(x86asm.Rel); ok {
			inf.relocatable = false
			return
		}
	}
	return
}

func overflowsS32(v1, v2 uintptr) bool {
	diff := v2 - v1
	if v1 > v2 {
		diff = v1 - v2
	}
	return diff > math.MaxInt32
}

func (x86) jumpLen() int { return jmp32relLen }

func (x86) jump(from, to uintptr, size int) ([]byte, error) {
	if size < jmp32relLen {
		return nil, errors.Errorf("patch window of %d bytes is too short", size)
	}
	if overflowsS32(from+jmp32relLen, to) {
		return nil, errors.Wrapf(ErrOutOfRange, "%#x -> %#x", from, to)
	}
	addr := uint32(int32(int64(to) - int64(from+jmp32relLen)))
	seq := make([]byte, size)
	seq[0] = 0xe9
	binary.LittleEndian.PutUint32(seq[1:], addr)
	for i := jmp32relLen; i < size; i++ {
		seq[i] = x86Nop
	}
	return seq, nil
}

// ret pops the return address the caller pushed.
func (x86) ret(p ffi.Process, ctx *cpu.Context) error {
	var b [8]byte
	sp := ctx.SP()
	if err := p.ReadMemory(uintptr(sp), b[:]); err != nil {
		return errors.Wrap(err, "read return address")
	}
	ctx.PC = binary.LittleEndian.Uint64(b[:])
	ctx.SetSP(sp + 8)
	return nil
}
