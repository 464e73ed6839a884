// Package objfile reads the loadable parts of an executable image.
package objfile

import (
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/k2io/ardain/internal/cpu"
	"github.com/k2io/ardain/internal/logging"
	"github.com/k2io/ardain/internal/logging/logfields"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "objfile")

// ErrFormat means no reader recognized the file
var ErrFormat = errors.New("unrecognized object file")

// Section is a loadable range of the image.
type Section struct {
	Name string
	Addr uint64
	// Data is zero-extended to the in-memory size.
	Data []byte
	Exec bool
}

// End returns the first address after the section.
func (s Section) End() uint64 { return s.Addr + uint64(len(s.Data)) }

// Image is a parsed executable.
type Image struct {
	Format   string
	Arch     cpu.Arch
	Entry    uint64
	Sections []Section
	Symbols  map[string]uint64
}

type rawFile interface {
	format() string
	arch() cpu.Arch
	entry() uint64
	sections() ([]Section, error)
	symbols() (map[string]uint64, error)
}

var objType = []func([]byte) (rawFile, error){
	openElf,
	openMacho,
	openPE,
}

// Open maps the file at name and parses it.
func Open(name string) (*Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "map %s", name)
	}
	defer m.Unmap()

	img, err := Parse(m)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	log.WithFields(logrus.Fields{
		logfields.Path: name,
		logfields.Arch: img.Arch,
		"format":       img.Format,
		"sections":     len(img.Sections),
		"symbols":      len(img.Symbols),
	}).Debug("Loaded image")
	return img, nil
}

// Parse reads an image from data. The returned image does not retain data.
func Parse(data []byte) (*Image, error) {
	for _, try := range objType {
		raw, err := try(data)
		if err != nil {
			continue
		}
		return build(raw)
	}
	return nil, ErrFormat
}

func build(raw rawFile) (*Image, error) {
	img := &Image{
		Format: raw.format(),
		Arch:   raw.arch(),
		Entry:  raw.entry(),
	}
	if img.Arch == cpu.ArchUnknown {
		return nil, errors.Errorf("%s: unsupported machine", img.Format)
	}
	var err error
	if img.Sections, err = raw.sections(); err != nil {
		return nil, errors.Wrapf(err, "%s sections", img.Format)
	}
	sort.Slice(img.Sections, func(i, j int) bool { return img.Sections[i].Addr < img.Sections[j].Addr })
	if img.Symbols, err = raw.symbols(); err != nil {
		return nil, errors.Wrapf(err, "%s symbols", img.Format)
	}
	if img.Symbols == nil {
		img.Symbols = map[string]uint64{}
	}
	return img, nil
}

// Text returns the start of the first executable section, the base code
// offsets are relative to.
func (img *Image) Text() (uint64, bool) {
	for _, s := range img.Sections {
		if s.Exec {
			return s.Addr, true
		}
	}
	return 0, false
}

// Bounds returns the lowest and one past the highest mapped address.
func (img *Image) Bounds() (lo, hi uint64) {
	if len(img.Sections) == 0 {
		return 0, 0
	}
	lo = img.Sections[0].Addr
	for _, s := range img.Sections {
		if s.End() > hi {
			hi = s.End()
		}
	}
	return lo, hi
}

// Symbol looks up the address of name.
func (img *Image) Symbol(name string) (uint64, bool) {
	addr, ok := img.Symbols[name]
	return addr, ok
}

// GetSymbols returns the symbol table of the image at name.
func GetSymbols(name string) (map[string]uint64, error) {
	img, err := Open(name)
	if err != nil {
		return nil, err
	}
	return img.Symbols, nil
}

// loaded copies fileSize bytes at off and zero-extends them to memSize.
func loaded(data []byte, off, fileSize, memSize uint64) ([]byte, error) {
	if off+fileSize < off || off+fileSize > uint64(len(data)) {
		return nil, errors.Errorf("range %#x+%#x outside of file", off, fileSize)
	}
	if memSize < fileSize {
		memSize = fileSize
	}
	out := make([]byte, memSize)
	copy(out, data[off:off+fileSize])
	return out, nil
}
