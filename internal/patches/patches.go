// Package patches holds the game-side hooks installed next to the overlay.
//
// Each patch is optional: it is left out when disabled in the options or
// when the running version lacks an offset it needs.
package patches

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/k2io/ardain/internal/config"
	"github.com/k2io/ardain/internal/cpu"
	"github.com/k2io/ardain/internal/ffi"
	"github.com/k2io/ardain/internal/gameui"
	"github.com/k2io/ardain/internal/logging"
	"github.com/k2io/ardain/internal/logging/logfields"
	"github.com/k2io/ardain/internal/offsets"
	"github.com/k2io/ardain/internal/render"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "patches")

// Version is shown on the title screen.
var Version = "0.1.0"

const (
	// conditionFlutterheart is the FLD_ConditionList item condition that
	// requires no Flutterheart Grass in the inventory.
	conditionFlutterheart = 300
	// conditionTypeUnknown makes the condition switch take its default
	// branch, which evaluates to true.
	conditionTypeUnknown = 30

	itemFlutterheart = 25447
	flutterheartMax  = 99

	versionChild = "txt_version"
)

var versionPos = render.Pt(20, 680)

// Call is what a replacement sees of the intercepted call.
type Call interface {
	// Arg returns the i-th integer argument.
	Arg(i int) uint64
	// Original runs the displaced function.
	Original(args ...ffi.Arg) (uint64, error)
}

// Patch describes one hook. Exactly one of Replace and Inline is set.
type Patch struct {
	Hook    string
	Replace func(c Call) uint64
	Inline  cpu.Probe
}

// Build returns the patches enabled by opts that t can support.
func Build(p ffi.Process, t *offsets.Table, opts config.Options) []Patch {
	var out []Patch
	add := func(enabled bool, option string, build func() (Patch, error)) {
		if !enabled {
			log.WithField(logfields.Feature, option).Debug("Feature disabled")
			return
		}
		patch, err := build()
		if err != nil {
			log.WithError(err).WithField(logfields.Feature, option).Info("Feature unavailable")
			return
		}
		out = append(out, patch)
	}

	add(opts.BladeCreateDisableSave, config.BladeCreateDisableSave, func() (Patch, error) {
		return BladeCreateSave(), nil
	})
	add(opts.InfiniteFlutterheart, config.InfiniteFlutterheart, func() (Patch, error) {
		return BdatItemCondition(t)
	})
	add(opts.InfiniteFlutterheart, config.InfiniteFlutterheart, func() (Patch, error) {
		return KeyItemMaxQuantity(), nil
	})
	add(opts.TitleVersion, config.TitleVersion, func() (Patch, error) {
		return TitleScreen(p, t, fmt.Sprintf("Mod Ardain v. %s / v. %s", Version, opts.GameVersion))
	})
	return out
}

// BladeCreateSave skips the save the game makes after creating a blade.
func BladeCreateSave() Patch {
	return Patch{
		Hook: "blade-create-save",
		Replace: func(Call) uint64 {
			return 1
		},
	}
}

// BdatItemCondition makes the Flutterheart Grass condition pass even when
// the item is already owned.
func BdatItemCondition(t *offsets.Table) (Patch, error) {
	req := t.Require()
	id := req.Register("bdat-item-cond-id")
	typ := req.Register("bdat-item-cond-type")
	if err := req.Err(); err != nil {
		return Patch{}, err
	}
	return Patch{
		Hook: "bdat-item-condition",
		Inline: func(ctx *cpu.Context) {
			if ctx.Get(id) == conditionFlutterheart {
				ctx.Set(typ, cpu.W32(conditionTypeUnknown))
			}
		},
	}, nil
}

// KeyItemMaxQuantity lifts the carry limit of Flutterheart Grass.
func KeyItemMaxQuantity() Patch {
	return Patch{
		Hook: "key-item-max-quantity",
		Replace: func(c Call) uint64 {
			id := uint32(c.Arg(1))
			if id == itemFlutterheart {
				return flutterheartMax
			}
			ret, err := c.Original(ffi.U64(c.Arg(0)), ffi.U32(id))
			if err != nil {
				log.WithError(err).WithField(logfields.Hook, "key-item-max-quantity").Warn("Original call failed")
				return 0
			}
			return ret
		},
	}
}

// TitleScreen writes text into a copy of the version label of the title
// screen.
func TitleScreen(p ffi.Process, t *offsets.Table, text string) (Patch, error) {
	req := t.Require()
	reg := req.Register("title-screen-ui")
	if err := req.Err(); err != nil {
		return Patch{}, err
	}
	ui, err := gameui.New(p, t)
	if err != nil {
		return Patch{}, err
	}
	return Patch{
		Hook: "title-screen",
		Inline: func(ctx *cpu.Context) {
			if err := injectText(ui, uint32(ctx.Get(reg)), text); err != nil {
				log.WithError(err).WithField(logfields.Hook, "title-screen").Warn("Couldn't add title screen text")
			}
		},
	}, nil
}

func injectText(ui *gameui.UI, id uint32, text string) error {
	screen, err := ui.NewObjectAcc(id)
	if err != nil {
		return err
	}
	defer screen.Close()

	child, err := screen.DuplicateChild(versionChild)
	if err != nil {
		return err
	}
	label, err := ui.NewObjectAcc(child)
	if err != nil {
		return err
	}
	defer label.Close()

	str, err := ui.NewStr(text, true)
	if err != nil {
		return err
	}
	defer str.Close()

	if err := label.SetPos(versionPos); err != nil {
		return err
	}
	return label.SetText(str)
}

// Fields returns log fields describing p.
func (p Patch) Fields() logrus.Fields {
	kind := "replace"
	if p.Inline != nil {
		kind = "inline"
	}
	return logrus.Fields{logfields.Hook: p.Hook, "kind": kind}
}
