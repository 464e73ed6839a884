package cpu

import "fmt"

// Arch identifies the instruction set of the instrumented process together
// with the calling convention facts the installer and hosts need.
type Arch int

const (
	// ArchUnknown is the zero value
	ArchUnknown Arch = iota
	// ARM64 is AArch64 with the AAPCS64 calling convention
	ARM64
	// AMD64 is x86-64 with the System V calling convention
	AMD64
)

// amd64 register numbering follows the hardware encoding:
// RAX RCX RDX RBX RSP RBP RSI RDI R8..R15.
var (
	arm64Args = []int{0, 1, 2, 3, 4, 5, 6, 7}
	amd64Args = []int{7, 6, 2, 1, 8, 9}
)

func (a Arch) String() string {
	switch a {
	case ARM64:
		return "arm64"
	case AMD64:
		return "amd64"
	}
	return fmt.Sprintf("arch(%d)", int(a))
}

// NumRegs returns how many general purpose registers a context holds.
func (a Arch) NumRegs() int {
	switch a {
	case ARM64:
		return 32 // X0..X30 and SP
	case AMD64:
		return 16
	}
	return 0
}

// ArgReg returns the register index of the i-th integer argument, or -1
// when the argument is passed on the stack.
func (a Arch) ArgReg(i int) int {
	var regs []int
	switch a {
	case ARM64:
		regs = arm64Args
	case AMD64:
		regs = amd64Args
	}
	if i < 0 || i >= len(regs) {
		return -1
	}
	return regs[i]
}

// NumArgRegs returns the number of integer argument registers.
func (a Arch) NumArgRegs() int {
	switch a {
	case ARM64:
		return len(arm64Args)
	case AMD64:
		return len(amd64Args)
	}
	return 0
}

// ReturnReg is the register holding an integer return value.
func (a Arch) ReturnReg() int {
	return 0
}

// SPReg is the index of the stack pointer.
func (a Arch) SPReg() int {
	switch a {
	case ARM64:
		return 31
	case AMD64:
		return 4
	}
	return -1
}

// LinkReg is the index of the link register, -1 when return addresses
// live on the stack.
func (a Arch) LinkReg() int {
	if a == ARM64 {
		return 30
	}
	return -1
}
