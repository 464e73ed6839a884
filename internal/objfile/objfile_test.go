package objfile

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k2io/ardain/internal/cpu"
)

type segment struct {
	vaddr uint64
	flags elf.ProgFlag
	data  []byte
	memsz uint64
}

func buildELF(t *testing.T, machine elf.Machine, entry uint64, segs ...segment) []byte {
	t.Helper()
	const ehsize, phentsize = 64, 56

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     ehsize,
		Ehsize:    ehsize,
		Phentsize: phentsize,
		Phnum:     uint16(len(segs)),
		Shentsize: 64,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))
	off := uint64(ehsize + phentsize*len(segs))
	for _, s := range segs {
		memsz := s.memsz
		if memsz == 0 {
			memsz = uint64(len(s.data))
		}
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(s.flags),
			Off:    off,
			Vaddr:  s.vaddr,
			Paddr:  s.vaddr,
			Filesz: uint64(len(s.data)),
			Memsz:  memsz,
			Align:  0x1000,
		}))
		off += uint64(len(s.data))
	}
	for _, s := range segs {
		buf.Write(s.data)
	}
	return buf.Bytes()
}

var (
	code = []byte{0xff, 0x83, 0x00, 0xd1, 0xc0, 0x03, 0x5f, 0xd6}
	rw   = []byte{1, 2, 3, 4}
)

func TestParseELF(t *testing.T) {
	data := buildELF(t, elf.EM_AARCH64, 0x400004,
		segment{vaddr: 0x600000, flags: elf.PF_R | elf.PF_W, data: rw, memsz: 0x10},
		segment{vaddr: 0x400000, flags: elf.PF_R | elf.PF_X, data: code},
	)

	img, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "elf", img.Format)
	assert.Equal(t, cpu.ARM64, img.Arch)
	assert.Equal(t, uint64(0x400004), img.Entry)
	assert.Empty(t, img.Symbols)

	require.Len(t, img.Sections, 2)
	assert.Equal(t, uint64(0x400000), img.Sections[0].Addr, "sorted by address")
	assert.True(t, img.Sections[0].Exec)
	assert.Equal(t, code, img.Sections[0].Data)
	assert.False(t, img.Sections[1].Exec)
	assert.Len(t, img.Sections[1].Data, 0x10, "zero-extended to the memory size")
	assert.Equal(t, rw, img.Sections[1].Data[:4])
	assert.Equal(t, make([]byte, 12), img.Sections[1].Data[4:])

	text, ok := img.Text()
	assert.True(t, ok)
	assert.Equal(t, uint64(0x400000), text)

	lo, hi := img.Bounds()
	assert.Equal(t, uint64(0x400000), lo)
	assert.Equal(t, uint64(0x600010), hi)
}

func TestParseDoesNotRetainInput(t *testing.T) {
	data := buildELF(t, elf.EM_X86_64, 0x1000, segment{vaddr: 0x1000, flags: elf.PF_X, data: code})
	img, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cpu.AMD64, img.Arch)

	for i := range data {
		data[i] = 0
	}
	assert.Equal(t, code, img.Sections[0].Data)
}

func TestParseRejects(t *testing.T) {
	_, err := Parse(make([]byte, 512))
	assert.Equal(t, ErrFormat, err)

	_, err = Parse(buildELF(t, elf.EM_386, 0, segment{vaddr: 0x1000, flags: elf.PF_X, data: code}))
	assert.Error(t, err)

	truncated := buildELF(t, elf.EM_AARCH64, 0, segment{vaddr: 0x1000, flags: elf.PF_X, data: code})
	_, err = Parse(truncated[:len(truncated)-4])
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	name := filepath.Join(t.TempDir(), "main")
	data := buildELF(t, elf.EM_AARCH64, 0x400000, segment{vaddr: 0x400000, flags: elf.PF_R | elf.PF_X, data: code})
	require.NoError(t, os.WriteFile(name, data, 0o644))

	img, err := Open(name)
	require.NoError(t, err)
	assert.Equal(t, code, img.Sections[0].Data)

	syms, err := GetSymbols(name)
	require.NoError(t, err)
	assert.Empty(t, syms)

	_, err = Open(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, os.IsNotExist(err))
}
