package ardain

import (
	"io/fs"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/k2io/ardain/internal/config"
	"github.com/k2io/ardain/internal/ffi"
	"github.com/k2io/ardain/internal/logging/logfields"
	"github.com/k2io/ardain/internal/offsets"
	"github.com/k2io/ardain/internal/overlay"
	"github.com/k2io/ardain/internal/patches"
	"github.com/k2io/ardain/internal/render"
)

// App is everything Attach set up.
type App struct {
	Table     *offsets.Table
	Installer *Installer
	Renderer  *render.Renderer
	Overlay   *overlay.Driver
}

// Hooks returns the installed hooks.
func (a *App) Hooks() []*Hook {
	return a.Installer.Hooks()
}

// Start loads the offsets of opts.GameVersion from fsys and attaches. When
// the offsets cannot be loaded nothing is installed.
func Start(p ffi.Process, fsys fs.FS, opts config.Options) (*App, error) {
	log.WithField(logfields.Version, opts.GameVersion).Info("Loading offsets")
	table, err := offsets.Open(fsys, opts.GameVersion)
	if err != nil {
		log.WithError(err).Error("Couldn't load offset config")
		return nil, err
	}
	return Attach(p, table, opts)
}

// Attach installs the overlay and every enabled patch. Missing required
// offsets abort before anything is patched; a hook that is absent or
// fails to install only disables its own feature.
func Attach(p ffi.Process, table *offsets.Table, opts config.Options) (*App, error) {
	req := table.Require()
	inputReg := req.Register("input-pad-data")
	req.Function("render-get")
	if err := req.Err(); err != nil {
		log.WithError(err).Error("Offset config is incomplete, not installing hooks")
		return nil, err
	}

	renderer, err := render.New(p, table)
	if err != nil {
		return nil, errors.Wrap(err, "renderer")
	}

	cfg := overlay.Config{
		Input:   inputReg,
		Visible: opts.UIVisible,
		Builder: overlay.DefaultBuilder(menuItems(opts)...),
	}
	if opts.ReturnTitle {
		if off, ok := table.Function("return-title"); ok {
			cfg.ReturnTitle = ffi.Addr(p, off)
		} else {
			log.WithField(logfields.Function, "return-title").Info("Feature unavailable")
		}
	}
	driver := overlay.New(p, renderer, cfg)

	app := &App{
		Table:     table,
		Installer: NewInstaller(p, table),
		Renderer:  renderer,
		Overlay:   driver,
	}

	log.Info("Installing hooks")
	app.install(log.WithFields(logrus.Fields{logfields.Hook: "input", "kind": KindInline}), func() (*Hook, error) {
		return app.Installer.Inline("input", driver.OnFrame)
	})
	for _, patch := range patches.Build(p, table, opts) {
		patch := patch
		app.install(log.WithFields(patch.Fields()), func() (*Hook, error) {
			if patch.Inline != nil {
				return app.Installer.Inline(patch.Hook, patch.Inline)
			}
			return app.Installer.Replace(patch.Hook, func(c *Call) uint64 {
				return patch.Replace(c)
			})
		})
	}
	log.WithField("hooks", len(app.Hooks())).Info("Loaded")
	return app, nil
}

func (a *App) install(scopedLog *logrus.Entry, fn func() (*Hook, error)) {
	h, err := fn()
	switch {
	case errors.Is(err, ErrUnavailable):
		scopedLog.Info("Feature unavailable")
	case err != nil:
		scopedLog.WithError(err).Warn("Couldn't install hook")
	default:
		scopedLog.WithField(logfields.Address, h.Target()).Debug("Installed hook")
	}
}

func menuItems(opts config.Options) []string {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	return []string{
		"Return to title: " + onOff(opts.ReturnTitle),
		"Skip blade save: " + onOff(opts.BladeCreateDisableSave),
		"Flutterheart: " + onOff(opts.InfiniteFlutterheart),
	}
}
