package offsets

import (
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"

	"github.com/k2io/ardain/internal/cpu"
)

// ErrNoVersion means no offsets document exists for a binary version
var ErrNoVersion = errors.New("no offsets for version")

// document is the wire shape shared by the CBOR and TOML forms. Register
// entries are pairs of a one-character class tag and an index.
type document struct {
	Hooks     map[string]int64         `codec:"hooks" toml:"hooks"`
	Functions map[string]int64         `codec:"functions" toml:"functions"`
	Registers map[string][]interface{} `codec:"registers" toml:"registers"`
}

func cborHandle() *codec.CborHandle {
	h := &codec.CborHandle{}
	h.Canonical = true
	return h
}

// Decode reads a CBOR offsets document.
func Decode(r io.Reader) (*Table, error) {
	var doc document
	if err := codec.NewDecoder(r, cborHandle()).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode offsets")
	}
	return doc.table()
}

// Encode writes t as a CBOR offsets document.
func Encode(w io.Writer, t *Table) error {
	doc := fromTable(t)
	return errors.Wrap(codec.NewEncoder(w, cborHandle()).Encode(&doc), "encode offsets")
}

// ParseTOML reads the human-edited TOML form of an offsets document.
func ParseTOML(r io.Reader) (*Table, error) {
	var doc document
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "parse offsets")
	}
	return doc.table()
}

// Open loads the offsets for version from fsys, preferring the compiled
// CBOR document over the TOML source.
func Open(fsys fs.FS, version string) (*Table, error) {
	for _, ext := range []string{".cbor", ".toml"} {
		name := path.Clean(version + ext)
		f, err := fsys.Open(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "open %s", name)
		}
		var t *Table
		if ext == ".cbor" {
			t, err = Decode(f)
		} else {
			t, err = ParseTOML(f)
		}
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", name)
		}
		return t, nil
	}
	return nil, errors.Wrap(ErrNoVersion, version)
}

func (doc *document) table() (*Table, error) {
	regs := make(map[string]cpu.Register, len(doc.Registers))
	for k, v := range doc.Registers {
		r, err := parseRegister(v)
		if err != nil {
			return nil, errors.Wrapf(err, "registers.%s", k)
		}
		regs[k] = r
	}
	return New(doc.Hooks, doc.Functions, regs), nil
}

func parseRegister(v []interface{}) (cpu.Register, error) {
	if len(v) != 2 {
		return cpu.Register{}, fmt.Errorf("expected [class, index], got %d elements", len(v))
	}
	var tag string
	switch s := v[0].(type) {
	case string:
		tag = s
	case []byte:
		tag = string(s)
	default:
		return cpu.Register{}, fmt.Errorf("register class must be a string, got %T", v[0])
	}
	runes := []rune(tag)
	if len(runes) != 1 {
		return cpu.Register{}, fmt.Errorf("register class must be one character, got %q", tag)
	}
	class, err := cpu.ParseClass(runes[0])
	if err != nil {
		return cpu.Register{}, err
	}
	var index int64
	switch n := v[1].(type) {
	case int64:
		index = n
	case uint64:
		if n > cpu.MaxRegs {
			return cpu.Register{}, fmt.Errorf("register index %d out of range", n)
		}
		index = int64(n)
	case int:
		index = int64(n)
	default:
		return cpu.Register{}, fmt.Errorf("register index must be an integer, got %T", v[1])
	}
	if index < 0 || index >= cpu.MaxRegs {
		return cpu.Register{}, fmt.Errorf("register index %d out of range", index)
	}
	return cpu.Register{Class: class, Index: int(index)}, nil
}

func fromTable(t *Table) document {
	doc := document{
		Hooks:     make(map[string]int64, len(t.hooks)),
		Functions: make(map[string]int64, len(t.functions)),
		Registers: make(map[string][]interface{}, len(t.registers)),
	}
	for k, e := range t.hooks {
		doc.Hooks[k] = e.Raw()
	}
	for k, e := range t.functions {
		doc.Functions[k] = e.Raw()
	}
	for k, e := range t.registers {
		r, _ := e.Register()
		doc.Registers[k] = []interface{}{r.Class.String(), uint64(r.Index)}
	}
	return doc
}
