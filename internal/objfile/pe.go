package objfile

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/saferwall/pe"

	"github.com/k2io/ardain/internal/cpu"
)

const peSectionExecute = 0x20000000 // IMAGE_SCN_MEM_EXECUTE

type peFile struct {
	data []byte
	pe   *pe.File
	base uint64
	ep   uint32
}

func openPE(data []byte) (rawFile, error) {
	f, err := pe.NewBytes(data, &pe.Options{})
	if err != nil {
		return nil, err
	}
	if err := f.Parse(); err != nil {
		return nil, err
	}
	out := &peFile{data: data, pe: f}
	switch oh := f.NtHeader.OptionalHeader.(type) {
	case pe.ImageOptionalHeader64:
		out.base, out.ep = oh.ImageBase, oh.AddressOfEntryPoint
	case pe.ImageOptionalHeader32:
		out.base, out.ep = uint64(oh.ImageBase), oh.AddressOfEntryPoint
	default:
		return nil, fmt.Errorf("unexpected optional header %T", oh)
	}
	return out, nil
}

func (f *peFile) format() string { return "pe" }

func (f *peFile) arch() cpu.Arch {
	switch uint16(f.pe.NtHeader.FileHeader.Machine) {
	case uint16(pe.ImageFileMachineARM64):
		return cpu.ARM64
	case uint16(pe.ImageFileMachineAMD64):
		return cpu.AMD64
	}
	return cpu.ArchUnknown
}

func (f *peFile) entry() uint64 { return f.base + uint64(f.ep) }

func (f *peFile) sections() ([]Section, error) {
	var out []Section
	for _, s := range f.pe.Sections {
		h := s.Header
		name := strings.TrimRight(string(h.Name[:]), "\x00")
		size := uint64(h.VirtualSize)
		if size == 0 {
			size = uint64(h.SizeOfRawData)
		}
		raw := uint64(h.SizeOfRawData)
		if raw > size {
			raw = size
		}
		data, err := loaded(f.data, uint64(h.PointerToRawData), raw, size)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		out = append(out, Section{
			Name: name,
			Addr: f.base + uint64(h.VirtualAddress),
			Data: data,
			Exec: h.Characteristics&peSectionExecute != 0,
		})
	}
	return out, nil
}

// symbols lists the exports; COFF symbol tables are stripped from images.
func (f *peFile) symbols() (map[string]uint64, error) {
	syms := make(map[string]uint64)
	for _, fn := range f.pe.Export.Functions {
		if fn.Name == "" || fn.FunctionRVA == 0 {
			continue
		}
		syms[fn.Name] = f.base + uint64(fn.FunctionRVA)
	}
	return syms, nil
}
