package ffi

import (
	"sync"

	"github.com/pkg/errors"
)

// Releaser destroys a foreign object in place.
type Releaser func(addr uintptr) error

// Resource is a fixed-size foreign object that is either owned (we
// constructed it in our own allocation and must destroy it) or borrowed
// (the foreign process owns it and we must never destroy it).
type Resource struct {
	p       Process
	addr    uintptr
	size    int
	owned   bool
	release Releaser
	once    sync.Once
	err     error
}

// Borrow wraps an object owned by the foreign process. A null address
// yields nil.
func Borrow(p Process, addr uintptr) *Resource {
	if addr == 0 {
		return nil
	}
	return &Resource{p: p, addr: addr}
}

// Own allocates size bytes, runs construct on them and returns a resource
// whose Close runs release and frees the allocation, exactly once.
func Own(p Process, size int, construct func(addr uintptr) error, release Releaser) (*Resource, error) {
	addr, err := p.Alloc(size, ProtRW)
	if err != nil {
		return nil, errors.Wrap(err, "alloc foreign object")
	}
	if construct != nil {
		if err := construct(addr); err != nil {
			p.Free(addr)
			return nil, errors.Wrap(err, "construct foreign object")
		}
	}
	return &Resource{p: p, addr: addr, size: size, owned: true, release: release}, nil
}

// Addr returns the object address.
func (r *Resource) Addr() uintptr { return r.addr }

// Owned reports whether Close destroys the object.
func (r *Resource) Owned() bool { return r.owned }

// Size returns the size of an owned object, 0 for borrowed ones.
func (r *Resource) Size() int { return r.size }

// Close destroys an owned object. It is a no-op for borrowed objects and
// for every call after the first.
func (r *Resource) Close() error {
	if !r.owned {
		return nil
	}
	r.once.Do(func() {
		if r.release != nil {
			r.err = r.release(r.addr)
		}
		if err := r.p.Free(r.addr); err != nil && r.err == nil {
			r.err = err
		}
	})
	return r.err
}
