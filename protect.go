package ardain

import (
	"github.com/pkg/errors"

	"github.com/k2io/ardain/internal/ffi"
)

// writeCode makes the pages of [addr, addr+len(code)) writable, copies
// code and protects them again as read+exec.
func writeCode(p ffi.Process, addr uintptr, code []byte) error {
	if err := protectPages(p, addr, len(code)); err != nil {
		return err
	}
	if err := p.WriteMemory(addr, code); err != nil {
		reProtectPages(p, addr, len(code))
		return errors.Wrapf(err, "write code at %#x", addr)
	}
	return reProtectPages(p, addr, len(code))
}

func protectPages(p ffi.Process, addr uintptr, size int) error {
	return errors.Wrapf(p.Protect(addr, size, ffi.ProtRWX), "unprotect %#x", addr)
}

func reProtectPages(p ffi.Process, addr uintptr, size int) error {
	return errors.Wrapf(p.Protect(addr, size, ffi.ProtRX), "reprotect %#x", addr)
}
