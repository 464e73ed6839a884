//go:build unicorn

package emu

import (
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/k2io/ardain/internal/cpu"
)

// machine describes how an arch is set up inside Unicorn.
type machine struct {
	ucArch, ucMode int
	// unicorn ids in cpu.Context register order
	regs []int
	pc   int
	// first single precision argument register, -1 when unsupported
	floatArg int
	// fills gates so that falling through one faults
	trap []byte
}

var (
	arm64Machine = func() machine {
		m := machine{
			ucArch:   uc.ARCH_ARM64,
			ucMode:   uc.MODE_ARM,
			pc:       uc.ARM64_REG_PC,
			floatArg: uc.ARM64_REG_S0,
			trap:     []byte{0x00, 0x00, 0x20, 0xd4}, // brk #0
		}
		for i := 0; i <= 28; i++ {
			m.regs = append(m.regs, uc.ARM64_REG_X0+i)
		}
		m.regs = append(m.regs, uc.ARM64_REG_X29, uc.ARM64_REG_X30, uc.ARM64_REG_SP)
		return m
	}()

	amd64Machine = machine{
		ucArch: uc.ARCH_X86,
		ucMode: uc.MODE_64,
		regs: []int{
			uc.X86_REG_RAX, uc.X86_REG_RCX, uc.X86_REG_RDX, uc.X86_REG_RBX,
			uc.X86_REG_RSP, uc.X86_REG_RBP, uc.X86_REG_RSI, uc.X86_REG_RDI,
			uc.X86_REG_R8, uc.X86_REG_R9, uc.X86_REG_R10, uc.X86_REG_R11,
			uc.X86_REG_R12, uc.X86_REG_R13, uc.X86_REG_R14, uc.X86_REG_R15,
		},
		pc: uc.X86_REG_RIP,
		// xmm registers are 128 bits wide and not reachable through RegWrite
		floatArg: -1,
		trap:     []byte{0xcc, 0xcc, 0xcc, 0xcc}, // int3
	}
)

func machineFor(arch cpu.Arch) (machine, bool) {
	switch arch {
	case cpu.ARM64:
		return arm64Machine, true
	case cpu.AMD64:
		return amd64Machine, true
	}
	return machine{}, false
}

func (e *Emulator) readContext() (*cpu.Context, error) {
	ctx := cpu.NewContext(e.arch)
	for i, id := range e.m.regs {
		v, err := e.mu.RegRead(id)
		if err != nil {
			return nil, err
		}
		ctx.Regs[i] = v
	}
	pc, err := e.mu.RegRead(e.m.pc)
	if err != nil {
		return nil, err
	}
	ctx.PC = pc
	return ctx, nil
}

func (e *Emulator) writeContext(ctx *cpu.Context) error {
	for i, id := range e.m.regs {
		if err := e.mu.RegWrite(id, ctx.Regs[i]); err != nil {
			return err
		}
	}
	return e.mu.RegWrite(e.m.pc, ctx.PC)
}
