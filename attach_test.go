package ardain

import (
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k2io/ardain/internal/config"
	"github.com/k2io/ardain/internal/cpu"
	"github.com/k2io/ardain/internal/ffi"
	"github.com/k2io/ardain/internal/ffitest"
	"github.com/k2io/ardain/internal/input"
	"github.com/k2io/ardain/internal/logging"
	"github.com/k2io/ardain/internal/logging/logfields"
	"github.com/k2io/ardain/internal/offsets"
)

const (
	offInput      = 0x100
	offBladeSave  = 0x200
	offBdatCond   = 0x300
	offKeyItemMax = 0x400
	offRenderGet  = 0x500
	offRectFill   = 0x600
	offSetColor   = 0x700
	offReturn     = 0x800

	drawContext = 0x44000000
)

var regInput = cpu.Register{Class: cpu.X, Index: 20}

type game struct {
	p      *ffitest.Process
	table  *offsets.Table
	saves  int
	titles int
}

func newGame(t *testing.T, inputOff int64) *game {
	g := &game{p: ffitest.New(cpu.ARM64)}
	g.p.Site(offInput)
	g.p.Site(offBdatCond)
	g.p.Stub(offBladeSave, func([]ffi.Arg) uint64 {
		g.saves++
		return 0
	})
	g.p.Stub(offKeyItemMax, func(args []ffi.Arg) uint64 {
		return 10
	})
	g.p.Stub(offRenderGet, func([]ffi.Arg) uint64 { return drawContext })
	g.p.Stub(offRectFill, func([]ffi.Arg) uint64 { return 0 })
	g.p.Stub(offSetColor, func([]ffi.Arg) uint64 { return 0 })
	g.p.Stub(offReturn, func([]ffi.Arg) uint64 {
		g.titles++
		return 0
	})

	g.table = offsets.New(
		map[string]int64{
			"input":                 inputOff,
			"blade-create-save":     offBladeSave,
			"bdat-item-condition":   offBdatCond,
			"key-item-max-quantity": offKeyItemMax,
			"title-screen":          0,
		},
		map[string]int64{
			"render-get":       offRenderGet,
			"render-rect-fill": offRectFill,
			"render-set-color": offSetColor,
			"return-title":     offReturn,
		},
		map[string]cpu.Register{
			"input-pad-data":      regInput,
			"bdat-item-cond-id":   {Class: cpu.W, Index: 8},
			"bdat-item-cond-type": {Class: cpu.R, Index: 9},
		},
	)
	return g
}

func (g *game) frame(t *testing.T, in input.PadData) {
	t.Helper()
	ctx := cpu.NewContext(cpu.ARM64)
	ctx.Regs[regInput.Index] = uint64(in)
	require.NoError(t, g.p.Fire(ffitest.TextBase+offInput, ctx))
}

func hookNames(app *App) []string {
	var names []string
	for _, h := range app.Hooks() {
		names = append(names, h.Name())
	}
	return names
}

func TestAttach(t *testing.T) {
	g := newGame(t, offInput)
	app, err := Attach(g.p, g.table, config.Defaults())
	require.NoError(t, err)
	assert.Equal(t, []string{"input", "blade-create-save", "bdat-item-condition", "key-item-max-quantity"}, hookNames(app))

	t.Run("blade create save", func(t *testing.T) {
		ret, err := g.p.Call(ffitest.TextBase+offBladeSave, ffi.U64(0))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), ret)
		assert.Zero(t, g.saves)
	})

	t.Run("key item max quantity", func(t *testing.T) {
		ret, err := g.p.Call(ffitest.TextBase+offKeyItemMax, ffi.U64(0), ffi.U32(25447))
		require.NoError(t, err)
		assert.Equal(t, uint64(99), ret)

		ret, err = g.p.Call(ffitest.TextBase+offKeyItemMax, ffi.U64(0), ffi.U32(7))
		require.NoError(t, err)
		assert.Equal(t, uint64(10), ret, "other items keep the original limit")
	})

	t.Run("bdat item condition", func(t *testing.T) {
		ctx := cpu.NewContext(cpu.ARM64)
		ctx.Regs[8] = 300
		ctx.Regs[9] = 0xdead_0000_0005
		require.NoError(t, g.p.Fire(ffitest.TextBase+offBdatCond, ctx))
		assert.Equal(t, uint64(0xdead_0000_001e), ctx.Regs[9])

		ctx.Regs[8] = 301
		ctx.Regs[9] = 5
		require.NoError(t, g.p.Fire(ffitest.TextBase+offBdatCond, ctx))
		assert.Equal(t, uint64(5), ctx.Regs[9])
	})

	t.Run("overlay", func(t *testing.T) {
		rectFill := uintptr(ffitest.TextBase + offRectFill)
		for i := 0; i < 10; i++ {
			g.frame(t, input.ToggleOverlay)
		}
		assert.False(t, app.Overlay.Visible())
		assert.Empty(t, g.p.CallsTo(rectFill))

		g.frame(t, input.ToggleOverlay)
		assert.True(t, app.Overlay.Visible())
		calls := g.p.CallsTo(rectFill)
		require.NotEmpty(t, calls)
		assert.Equal(t, uint64(drawContext), calls[0].Args[0].Bits)
	})

	t.Run("return to title", func(t *testing.T) {
		for i := 0; i < 11; i++ {
			g.frame(t, input.ReturnToTitle)
		}
		assert.Equal(t, 1, g.titles)
		calls := g.p.CallsTo(ffitest.TextBase + offReturn)
		require.Len(t, calls, 1)
		assert.Equal(t, ffi.U32(0xffffffff), calls[0].Args[0])
	})
}

func TestAttachWithoutInputHook(t *testing.T) {
	g := newGame(t, 0)
	app, err := Attach(g.p, g.table, config.Defaults())
	require.NoError(t, err)
	assert.Equal(t, []string{"blade-create-save", "bdat-item-condition", "key-item-max-quantity"}, hookNames(app))
	assert.Error(t, g.p.Fire(ffitest.TextBase+offInput, cpu.NewContext(cpu.ARM64)))
}

func TestAttachLogsHookKind(t *testing.T) {
	logs := test.NewLocal(logging.DefaultLogger)
	logging.SetDebug(true)
	defer func() {
		logging.SetDebug(false)
		logging.DefaultLogger.ReplaceHooks(make(logrus.LevelHooks))
	}()

	g := newGame(t, offInput)
	_, err := Attach(g.p, g.table, config.Defaults())
	require.NoError(t, err)

	kinds := map[string]string{}
	for _, e := range logs.AllEntries() {
		if e.Message == "Installed hook" {
			kinds[e.Data[logfields.Hook].(string)] = fmt.Sprint(e.Data["kind"])
		}
	}
	assert.Equal(t, map[string]string{
		"input":                 "inline",
		"blade-create-save":     "replace",
		"bdat-item-condition":   "inline",
		"key-item-max-quantity": "replace",
	}, kinds)
}

func TestAttachDisabledFeatures(t *testing.T) {
	g := newGame(t, offInput)
	opts := config.Defaults()
	opts.BladeCreateDisableSave = false
	opts.InfiniteFlutterheart = false
	app, err := Attach(g.p, g.table, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"input"}, hookNames(app))

	ret, err := g.p.Call(ffitest.TextBase + offBladeSave)
	require.NoError(t, err)
	assert.Zero(t, ret)
	assert.Equal(t, 1, g.saves)
}

func TestAttachIncompleteTable(t *testing.T) {
	p := ffitest.New(cpu.ARM64)
	p.Site(offInput)
	table := offsets.New(map[string]int64{"input": offInput}, nil, nil)

	app, err := Attach(p, table, config.Defaults())
	require.Error(t, err)
	assert.Nil(t, app)
	assert.Contains(t, err.Error(), "input-pad-data")
	assert.Contains(t, err.Error(), "render-get")
	assert.Empty(t, p.Protects(), "nothing is patched")
}

const startTOML = `
[hooks]
input = 0x100
blade-create-save = 0x200

[functions]
render-get = 0x500

[registers]
input-pad-data = ["x", 20]
`

func TestStart(t *testing.T) {
	fsys := fstest.MapFS{"2.1.0.toml": {Data: []byte(startTOML)}}

	t.Run("known version", func(t *testing.T) {
		g := newGame(t, offInput)
		app, err := Start(g.p, fsys, config.Defaults())
		require.NoError(t, err)
		assert.Equal(t, []string{"input", "blade-create-save"}, hookNames(app))
	})

	t.Run("unknown version", func(t *testing.T) {
		g := newGame(t, offInput)
		opts := config.Defaults()
		opts.GameVersion = "9.9.9"
		app, err := Start(g.p, fsys, opts)
		assert.True(t, errors.Is(err, offsets.ErrNoVersion))
		assert.Nil(t, app)
		assert.Empty(t, g.p.Protects())
	})
}
