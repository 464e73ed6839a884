// Package gameui wraps the host UI string and UI object accessor types
// used to inject text into host menus.
package gameui

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/k2io/ardain/internal/ffi"
	"github.com/k2io/ardain/internal/offsets"
	"github.com/k2io/ardain/internal/render"
)

// Object sizes in the supported host versions.
const (
	StrSize = 20
	AccSize = 20
)

// UI holds the host entry points for UI strings and object accessors.
type UI struct {
	proc ffi.Process

	strCon, strDes                  uintptr
	accCon, accDes, accPos, accText uintptr
	accDupChild                     uintptr
}

// New resolves every UI entry point; any missing one disables the
// feature as a whole.
func New(p ffi.Process, t *offsets.Table) (*UI, error) {
	req := t.Require()
	ui := &UI{
		proc:        p,
		strCon:      ffi.Addr(p, req.Function("ui-str-con")),
		strDes:      ffi.Addr(p, req.Function("ui-str-des")),
		accCon:      ffi.Addr(p, req.Function("ui-acc-con")),
		accDes:      ffi.Addr(p, req.Function("ui-acc-des")),
		accPos:      ffi.Addr(p, req.Function("ui-acc-pos")),
		accText:     ffi.Addr(p, req.Function("ui-acc-text")),
		accDupChild: ffi.Addr(p, req.Function("ui-acc-dup-child")),
	}
	if err := req.Err(); err != nil {
		return nil, err
	}
	return ui, nil
}

// Str is a host UI string.
type Str struct {
	ui  *UI
	res *ffi.Resource
}

// NewStr constructs a host string from text. With clone set the host
// keeps its own copy of the characters.
func (ui *UI) NewStr(text string, clone bool) (*Str, error) {
	cs, err := ffi.CString(text)
	if err != nil {
		return nil, err
	}
	// the source characters must outlive the string when it is not cloned
	src, err := ffi.Own(ui.proc, len(cs), func(addr uintptr) error {
		return ui.proc.WriteMemory(addr, cs)
	}, nil)
	if err != nil {
		return nil, err
	}
	var flag uint32
	if clone {
		flag = 1
	}
	res, err := ffi.Own(ui.proc, StrSize, func(addr uintptr) error {
		_, err := ui.proc.Call(ui.strCon, ffi.Ptr(addr), ffi.Ptr(src.Addr()), ffi.U32(flag))
		return err
	}, func(addr uintptr) error {
		_, err := ui.proc.Call(ui.strDes, ffi.Ptr(addr))
		if cerr := src.Close(); err == nil {
			err = cerr
		}
		return err
	})
	if err != nil {
		src.Close()
		return nil, errors.Wrap(err, "UIStr")
	}
	return &Str{ui: ui, res: res}, nil
}

// StrFromPtr borrows a host string; nil for a null pointer.
func (ui *UI) StrFromPtr(addr uintptr) *Str {
	res := ffi.Borrow(ui.proc, addr)
	if res == nil {
		return nil
	}
	return &Str{ui: ui, res: res}
}

// Addr returns the object address.
func (s *Str) Addr() uintptr { return s.res.Addr() }

// Close destroys an owned string.
func (s *Str) Close() error { return s.res.Close() }

// ObjectAcc is a host UI object accessor.
type ObjectAcc struct {
	ui  *UI
	res *ffi.Resource
}

// NewObjectAcc constructs an accessor for the UI object with the given id.
func (ui *UI) NewObjectAcc(id uint32) (*ObjectAcc, error) {
	res, err := ffi.Own(ui.proc, AccSize, func(addr uintptr) error {
		_, err := ui.proc.Call(ui.accCon, ffi.Ptr(addr), ffi.U32(id))
		return err
	}, func(addr uintptr) error {
		_, err := ui.proc.Call(ui.accDes, ffi.Ptr(addr))
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "UIObjectAcc")
	}
	return &ObjectAcc{ui: ui, res: res}, nil
}

// ObjectAccFromPtr borrows a host accessor; nil for a null pointer.
func (ui *UI) ObjectAccFromPtr(addr uintptr) *ObjectAcc {
	res := ffi.Borrow(ui.proc, addr)
	if res == nil {
		return nil
	}
	return &ObjectAcc{ui: ui, res: res}
}

// Addr returns the object address.
func (a *ObjectAcc) Addr() uintptr { return a.res.Addr() }

// Close destroys an owned accessor.
func (a *ObjectAcc) Close() error { return a.res.Close() }

// DuplicateChild clones the named child and returns the id of the copy.
func (a *ObjectAcc) DuplicateChild(name string) (uint32, error) {
	var id uint64
	err := ffi.WithCString(a.ui.proc, name, func(addr uintptr) error {
		var err error
		id, err = a.ui.proc.Call(a.ui.accDupChild, ffi.Ptr(a.Addr()), ffi.Ptr(addr))
		return err
	})
	return uint32(id), err
}

// SetPos moves the object. The host takes a Pnt<short>.
func (a *ObjectAcc) SetPos(p render.Point) error {
	var buf [4]byte
	binary.LittleEndian.PutUint16(buf[0:], uint16(int16(p.X)))
	binary.LittleEndian.PutUint16(buf[2:], uint16(int16(p.Y)))
	return ffi.WithBytes(a.ui.proc, buf[:], func(addr uintptr) error {
		_, err := a.ui.proc.Call(a.ui.accPos, ffi.Ptr(a.Addr()), ffi.Ptr(addr))
		return err
	})
}

// SetText replaces the text of the object.
func (a *ObjectAcc) SetText(s *Str) error {
	_, err := a.ui.proc.Call(a.ui.accText, ffi.Ptr(a.Addr()), ffi.Ptr(s.Addr()))
	return err
}
