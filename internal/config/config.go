// Package config holds the runtime options of the framework.
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Option keys, shared by flags, config files and ARDAIN_* variables.
const (
	GameVersion            = "game-version"
	OffsetsDir             = "offsets-dir"
	UIVisible              = "ui-visible"
	ReturnTitle            = "return-title"
	BladeCreateDisableSave = "blade-create-disable-save"
	InfiniteFlutterheart   = "infinite-flutterheart"
	TitleVersion           = "title-version"
	Debug                  = "debug"

	// EnvPrefix prefixes environment variables.
	EnvPrefix = "ardain"
)

// Options are the decoded runtime options.
type Options struct {
	// GameVersion selects the offsets document.
	GameVersion string
	// OffsetsDir holds one offsets document per version.
	OffsetsDir string

	UIVisible              bool
	ReturnTitle            bool
	BladeCreateDisableSave bool
	InfiniteFlutterheart   bool
	TitleVersion           bool

	Debug bool
}

// Defaults returns the options used when nothing is configured.
func Defaults() Options {
	return Options{
		GameVersion:            "2.1.0",
		OffsetsDir:             "offsets",
		ReturnTitle:            true,
		BladeCreateDisableSave: true,
		InfiniteFlutterheart:   true,
		TitleVersion:           true,
	}
}

// Flags registers every option on flags.
func Flags(flags *pflag.FlagSet) {
	def := Defaults()
	flags.String(GameVersion, def.GameVersion, "Version of the instrumented binary")
	flags.String(OffsetsDir, def.OffsetsDir, "Directory holding <version>.cbor or <version>.toml offsets")
	flags.Bool(UIVisible, def.UIVisible, "Show the overlay from the first frame")
	flags.Bool(ReturnTitle, def.ReturnTitle, "Enable the return to title chord")
	flags.Bool(BladeCreateDisableSave, def.BladeCreateDisableSave, "Skip the save after creating a blade")
	flags.Bool(InfiniteFlutterheart, def.InfiniteFlutterheart, "Allow collecting Flutterheart Grass repeatedly")
	flags.Bool(TitleVersion, def.TitleVersion, "Show the framework version on the title screen")
	flags.BoolP(Debug, "D", def.Debug, "Enable debug messages")
}

// NewViper returns a viper instance reading ARDAIN_* variables, with
// dashes in keys mapped to underscores.
func NewViper() *viper.Viper {
	vp := viper.New()
	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vp.AutomaticEnv()
	def := Defaults()
	vp.SetDefault(GameVersion, def.GameVersion)
	vp.SetDefault(OffsetsDir, def.OffsetsDir)
	vp.SetDefault(UIVisible, def.UIVisible)
	vp.SetDefault(ReturnTitle, def.ReturnTitle)
	vp.SetDefault(BladeCreateDisableSave, def.BladeCreateDisableSave)
	vp.SetDefault(InfiniteFlutterheart, def.InfiniteFlutterheart)
	vp.SetDefault(TitleVersion, def.TitleVersion)
	vp.SetDefault(Debug, def.Debug)
	return vp
}

// Populate decodes the options held by vp.
func Populate(vp *viper.Viper) Options {
	return Options{
		GameVersion:            vp.GetString(GameVersion),
		OffsetsDir:             vp.GetString(OffsetsDir),
		UIVisible:              vp.GetBool(UIVisible),
		ReturnTitle:            vp.GetBool(ReturnTitle),
		BladeCreateDisableSave: vp.GetBool(BladeCreateDisableSave),
		InfiniteFlutterheart:   vp.GetBool(InfiniteFlutterheart),
		TitleVersion:           vp.GetBool(TitleVersion),
		Debug:                  vp.GetBool(Debug),
	}
}
