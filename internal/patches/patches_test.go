package patches

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k2io/ardain/internal/config"
	"github.com/k2io/ardain/internal/cpu"
	"github.com/k2io/ardain/internal/ffi"
	"github.com/k2io/ardain/internal/ffitest"
	"github.com/k2io/ardain/internal/offsets"
)

type fakeCall struct {
	args     []uint64
	original func(args ...ffi.Arg) (uint64, error)
	calls    int
}

func (c *fakeCall) Arg(i int) uint64 { return c.args[i] }

func (c *fakeCall) Original(args ...ffi.Arg) (uint64, error) {
	c.calls++
	return c.original(args...)
}

var (
	idReg   = cpu.Register{Class: cpu.W, Index: 8}
	typeReg = cpu.Register{Class: cpu.R, Index: 9}
	uiReg   = cpu.Register{Class: cpu.W, Index: 1}
)

func hooks(names ...string) map[string]int64 {
	m := map[string]int64{}
	for i, n := range names {
		m[n] = int64(0x100 * (i + 1))
	}
	return m
}

func TestBladeCreateSave(t *testing.T) {
	p := BladeCreateSave()
	assert.Equal(t, "blade-create-save", p.Hook)
	assert.Equal(t, uint64(1), p.Replace(&fakeCall{args: []uint64{3}}))
}

func TestBdatItemCondition(t *testing.T) {
	table := offsets.New(nil, nil, map[string]cpu.Register{
		"bdat-item-cond-id":   idReg,
		"bdat-item-cond-type": typeReg,
	})
	p, err := BdatItemCondition(table)
	require.NoError(t, err)

	ctx := cpu.NewContext(cpu.ARM64)
	ctx.Regs[8] = 0xffffffff_0000012c // 300 in the low half
	ctx.Regs[9] = 0x11111111_00000004
	p.Inline(ctx)
	assert.Equal(t, uint64(0x11111111_0000001e), ctx.Regs[9])

	ctx.Regs[8] = 301
	ctx.Regs[9] = 4
	p.Inline(ctx)
	assert.Equal(t, uint64(4), ctx.Regs[9])
}

func TestBdatItemConditionNeedsBothRegisters(t *testing.T) {
	table := offsets.New(nil, nil, map[string]cpu.Register{"bdat-item-cond-id": idReg})
	_, err := BdatItemCondition(table)
	require.Error(t, err)
	assert.True(t, errors.Is(err, offsets.ErrMissing))
	assert.Contains(t, err.Error(), "bdat-item-cond-type")
}

func TestKeyItemMaxQuantity(t *testing.T) {
	p := KeyItemMaxQuantity()

	c := &fakeCall{args: []uint64{0xabc, 25447}}
	assert.Equal(t, uint64(99), p.Replace(c))
	assert.Zero(t, c.calls)

	c = &fakeCall{
		args: []uint64{0xabc, 0xffffffff_00000010},
		original: func(args ...ffi.Arg) (uint64, error) {
			require.Len(t, args, 2)
			assert.Equal(t, uint64(0xabc), args[0].Bits)
			assert.Equal(t, uint64(0x10), args[1].Bits)
			return 5, nil
		},
	}
	assert.Equal(t, uint64(5), p.Replace(c))
	assert.Equal(t, 1, c.calls)

	c = &fakeCall{
		args:     []uint64{0, 1},
		original: func(...ffi.Arg) (uint64, error) { return 7, errors.New("relocation") },
	}
	assert.Equal(t, uint64(0), p.Replace(c))
}

func TestTitleScreen(t *testing.T) {
	functions := map[string]int64{
		"ui-str-con":       0x3000,
		"ui-str-des":       0x3100,
		"ui-acc-con":       0x3200,
		"ui-acc-des":       0x3300,
		"ui-acc-pos":       0x3400,
		"ui-acc-text":      0x3500,
		"ui-acc-dup-child": 0x3600,
	}
	p := ffitest.New(cpu.AMD64)
	var ids []uint64
	var text string
	strs := map[uint64]string{}
	noop := func([]ffi.Arg) uint64 { return 0 }
	p.Stub(functions["ui-str-con"], func(args []ffi.Arg) uint64 {
		strs[args[0].Bits] = p.CString(uintptr(args[1].Bits))
		return 0
	})
	p.Stub(functions["ui-str-des"], noop)
	p.Stub(functions["ui-acc-con"], func(args []ffi.Arg) uint64 {
		ids = append(ids, args[1].Bits)
		return 0
	})
	p.Stub(functions["ui-acc-des"], noop)
	p.Stub(functions["ui-acc-pos"], noop)
	p.Stub(functions["ui-acc-text"], func(args []ffi.Arg) uint64 {
		text = strs[args[1].Bits]
		return 0
	})
	p.Stub(functions["ui-acc-dup-child"], func([]ffi.Arg) uint64 { return 0x99 })

	table := offsets.New(nil, functions, map[string]cpu.Register{"title-screen-ui": uiReg})
	patch, err := TitleScreen(p, table, "Mod Ardain v. test")
	require.NoError(t, err)
	assert.Equal(t, "title-screen", patch.Hook)

	ctx := cpu.NewContext(cpu.AMD64)
	ctx.Regs[1] = 0x42
	patch.Inline(ctx)

	assert.Equal(t, []uint64{0x42, 0x99}, ids)
	assert.Equal(t, "Mod Ardain v. test", text)
	assert.Empty(t, p.Live())
}

func TestBuild(t *testing.T) {
	p := ffitest.New(cpu.ARM64)
	table := offsets.New(
		hooks("blade-create-save", "bdat-item-condition", "key-item-max-quantity", "title-screen"),
		nil,
		map[string]cpu.Register{
			"bdat-item-cond-id":   idReg,
			"bdat-item-cond-type": typeReg,
		},
	)

	names := func(ps []Patch) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Hook)
		}
		return out
	}

	opts := config.Defaults()
	assert.Equal(t, []string{"blade-create-save", "bdat-item-condition", "key-item-max-quantity"},
		names(Build(p, table, opts)), "title screen lacks the ui functions")

	opts.InfiniteFlutterheart = false
	assert.Equal(t, []string{"blade-create-save"}, names(Build(p, table, opts)))

	opts.BladeCreateDisableSave = false
	assert.Empty(t, Build(p, table, opts))
}

func TestFields(t *testing.T) {
	assert.Equal(t, "replace", BladeCreateSave().Fields()["kind"])
	p, err := BdatItemCondition(offsets.New(nil, nil, map[string]cpu.Register{
		"bdat-item-cond-id":   idReg,
		"bdat-item-cond-type": typeReg,
	}))
	require.NoError(t, err)
	assert.Equal(t, "inline", p.Fields()["kind"])
}
