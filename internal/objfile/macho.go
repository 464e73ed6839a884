package objfile

import (
	"bytes"
	"debug/macho"

	"github.com/pkg/errors"

	"github.com/k2io/ardain/internal/cpu"
)

const (
	machoProtExec = 4
	pageZero      = "__PAGEZERO"
)

type machoFile struct {
	data  []byte
	macho *macho.File
}

func openMacho(data []byte) (rawFile, error) {
	f, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &machoFile{data, f}, nil
}

func (f *machoFile) format() string { return "macho" }

func (f *machoFile) arch() cpu.Arch {
	switch f.macho.Cpu {
	case macho.CpuArm64:
		return cpu.ARM64
	case macho.CpuAmd64:
		return cpu.AMD64
	}
	return cpu.ArchUnknown
}

// entry is the address of _main; LC_MAIN is not decoded by debug/macho.
func (f *machoFile) entry() uint64 {
	if f.macho.Symtab == nil {
		return 0
	}
	for _, s := range f.macho.Symtab.Syms {
		if s.Name == "_main" {
			return s.Value
		}
	}
	return 0
}

func (f *machoFile) sections() ([]Section, error) {
	var out []Section
	for _, l := range f.macho.Loads {
		seg, ok := l.(*macho.Segment)
		if !ok || seg.Name == pageZero || seg.Memsz == 0 {
			continue
		}
		data, err := loaded(f.data, seg.Offset, seg.Filesz, seg.Memsz)
		if err != nil {
			return nil, errors.Wrap(err, seg.Name)
		}
		out = append(out, Section{
			Name: seg.Name,
			Addr: seg.Addr,
			Data: data,
			Exec: seg.Prot&machoProtExec != 0,
		})
	}
	return out, nil
}

func (f *machoFile) symbols() (map[string]uint64, error) {
	syms := make(map[string]uint64)
	if f.macho.Symtab == nil {
		return syms, nil
	}
	for _, s := range f.macho.Symtab.Syms {
		if s.Name == "" || s.Sect == 0 {
			continue
		}
		syms[s.Name] = s.Value
	}
	return syms, nil
}
