package ffi

import (
	"bytes"

	"github.com/pkg/errors"
)

// ErrNul means a string cannot be passed as a C string
var ErrNul = errors.New("string contains NUL byte")

// CString returns s as NUL-terminated bytes.
func CString(s string) ([]byte, error) {
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		return nil, ErrNul
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b, nil
}

// WithBytes copies data into freshly allocated process memory, runs fn
// with its address and frees it again.
func WithBytes(p Process, data []byte, fn func(addr uintptr) error) error {
	size := len(data)
	if size == 0 {
		size = 1
	}
	addr, err := p.Alloc(size, ProtRW)
	if err != nil {
		return errors.Wrap(err, "alloc scratch")
	}
	defer p.Free(addr)
	if len(data) > 0 {
		if err := p.WriteMemory(addr, data); err != nil {
			return errors.Wrap(err, "write scratch")
		}
	}
	return fn(addr)
}

// WithCString is WithBytes for a C string.
func WithCString(p Process, s string, fn func(addr uintptr) error) error {
	b, err := CString(s)
	if err != nil {
		return err
	}
	return WithBytes(p, b, fn)
}
