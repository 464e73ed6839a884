package objfile

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/pkg/errors"

	"github.com/k2io/ardain/internal/cpu"
)

type elfFile struct {
	data []byte
	elf  *elf.File
}

func openElf(data []byte) (rawFile, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &elfFile{data, f}, nil
}

func (e *elfFile) format() string { return "elf" }

func (e *elfFile) arch() cpu.Arch {
	switch e.elf.Machine {
	case elf.EM_AARCH64:
		return cpu.ARM64
	case elf.EM_X86_64:
		return cpu.AMD64
	}
	return cpu.ArchUnknown
}

func (e *elfFile) entry() uint64 { return e.elf.Entry }

// sections returns the PT_LOAD segments, the unit a loader maps.
func (e *elfFile) sections() ([]Section, error) {
	var out []Section
	for i, p := range e.elf.Progs {
		if p.Type != elf.PT_LOAD || p.Memsz == 0 {
			continue
		}
		data, err := loaded(e.data, p.Off, p.Filesz, p.Memsz)
		if err != nil {
			return nil, errors.Wrapf(err, "segment %d", i)
		}
		out = append(out, Section{
			Name: fmt.Sprintf("load%d", i),
			Addr: p.Vaddr,
			Data: data,
			Exec: p.Flags&elf.PF_X != 0,
		})
	}
	return out, nil
}

func (e *elfFile) symbols() (map[string]uint64, error) {
	syms := make(map[string]uint64)
	for _, read := range []func() ([]elf.Symbol, error){e.elf.Symbols, e.elf.DynamicSymbols} {
		stab, err := read()
		if errors.Is(err, elf.ErrNoSymbols) {
			continue
		} else if err != nil {
			return nil, err
		}
		for _, s := range stab {
			if s.Name == "" || s.Section == elf.SHN_UNDEF {
				continue
			}
			syms[s.Name] = s.Value
		}
	}
	return syms, nil
}
