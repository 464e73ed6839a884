// Package offsets holds the versioned mapping from symbolic names to code
// offsets and captured-register locations.
//
// A table is built once at startup from the offsets document of the running
// binary version and is never mutated afterwards. A code offset of zero marks
// a key as "not applicable to this version": lookups treat it as absent so
// every version's document can keep the same set of keys.
package offsets

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/k2io/ardain/internal/cpu"
)

// Namespace is one of the three top-level mappings of the document.
type Namespace string

const (
	// Hooks are code locations patched by the installer
	Hooks Namespace = "hooks"
	// Functions are foreign functions called by the framework
	Functions Namespace = "functions"
	// Registers are locations inside a capture context
	Registers Namespace = "registers"
)

// ErrMissing means a required key is absent from the table
var ErrMissing = errors.New("missing required offset")

// Entry is either a signed code offset or a register location.
type Entry struct {
	offset int64
	reg    cpu.Register
	isReg  bool
}

// Code returns an entry for a byte offset from the code section base.
func Code(offset int64) Entry {
	return Entry{offset: offset}
}

// Reg returns an entry for a register location.
func Reg(r cpu.Register) Entry {
	return Entry{reg: r, isReg: true}
}

// IsRegister reports whether the entry is a register location.
func (e Entry) IsRegister() bool { return e.isReg }

// Offset returns the code offset; zero and register entries are absent.
func (e Entry) Offset() (int64, bool) {
	if e.isReg || e.offset == 0 {
		return 0, false
	}
	return e.offset, true
}

// Raw returns the stored code offset, including the zero sentinel.
func (e Entry) Raw() int64 { return e.offset }

// Register returns the register location of a register entry.
func (e Entry) Register() (cpu.Register, bool) {
	return e.reg, e.isReg
}

// Table is the immutable offset table.
type Table struct {
	hooks     map[string]Entry
	functions map[string]Entry
	registers map[string]Entry
}

// New builds a table; the input maps are copied.
func New(hooks, functions map[string]int64, registers map[string]cpu.Register) *Table {
	t := &Table{
		hooks:     make(map[string]Entry, len(hooks)),
		functions: make(map[string]Entry, len(functions)),
		registers: make(map[string]Entry, len(registers)),
	}
	for k, v := range hooks {
		t.hooks[k] = Code(v)
	}
	for k, v := range functions {
		t.functions[k] = Code(v)
	}
	for k, v := range registers {
		t.registers[k] = Reg(v)
	}
	return t
}

func (t *Table) ns(ns Namespace) map[string]Entry {
	switch ns {
	case Hooks:
		return t.hooks
	case Functions:
		return t.functions
	case Registers:
		return t.registers
	}
	return nil
}

// Lookup returns the raw entry stored under key, zero offsets included.
func (t *Table) Lookup(ns Namespace, key string) (Entry, bool) {
	e, ok := t.ns(ns)[key]
	return e, ok
}

// Keys returns the sorted keys of a namespace.
func (t *Table) Keys(ns Namespace) []string {
	m := t.ns(ns)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Hook returns the offset of a hook point.
func (t *Table) Hook(key string) (int64, bool) {
	return t.hooks[key].Offset()
}

// Function returns the offset of a foreign function.
func (t *Table) Function(key string) (int64, bool) {
	return t.functions[key].Offset()
}

// Register returns a register location.
func (t *Table) Register(key string) (cpu.Register, bool) {
	return t.registers[key].Register()
}

// Require returns a resolver for keys the caller cannot run without.
func (t *Table) Require() *Resolver {
	return &Resolver{table: t}
}

// Resolver looks up required keys and remembers every miss so that a single
// error can name all of them.
type Resolver struct {
	table   *Table
	missing []string
}

func (r *Resolver) miss(ns Namespace, key string) {
	r.missing = append(r.missing, string(ns)+"."+key)
}

// Hook resolves a required hook offset.
func (r *Resolver) Hook(key string) int64 {
	off, ok := r.table.Hook(key)
	if !ok {
		r.miss(Hooks, key)
	}
	return off
}

// Function resolves a required function offset.
func (r *Resolver) Function(key string) int64 {
	off, ok := r.table.Function(key)
	if !ok {
		r.miss(Functions, key)
	}
	return off
}

// Register resolves a required register location.
func (r *Resolver) Register(key string) cpu.Register {
	reg, ok := r.table.Register(key)
	if !ok {
		r.miss(Registers, key)
	}
	return reg
}

// Err returns nil when every requested key was present.
func (r *Resolver) Err() error {
	if len(r.missing) == 0 {
		return nil
	}
	return errors.Wrap(ErrMissing, strings.Join(r.missing, ", "))
}
