package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, Defaults(), Populate(NewViper()))
}

func TestEnv(t *testing.T) {
	t.Setenv("ARDAIN_UI_VISIBLE", "true")
	t.Setenv("ARDAIN_GAME_VERSION", "2.0.0")
	t.Setenv("ARDAIN_BLADE_CREATE_DISABLE_SAVE", "false")

	opts := Populate(NewViper())
	assert.True(t, opts.UIVisible)
	assert.Equal(t, "2.0.0", opts.GameVersion)
	assert.False(t, opts.BladeCreateDisableSave)
	assert.True(t, opts.ReturnTitle)
}

func TestFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(flags)
	require.NoError(t, flags.Parse([]string{"--return-title=false", "-D", "--offsets-dir", "/srv/offsets"}))

	vp := NewViper()
	require.NoError(t, vp.BindPFlags(flags))
	opts := Populate(vp)
	assert.False(t, opts.ReturnTitle)
	assert.True(t, opts.Debug)
	assert.Equal(t, "/srv/offsets", opts.OffsetsDir)
	assert.Equal(t, "2.1.0", opts.GameVersion)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ardain.toml")
	require.NoError(t, os.WriteFile(path, []byte("game-version = \"2.1.0\"\ninfinite-flutterheart = false\n"), 0o600))

	vp := NewViper()
	vp.SetConfigFile(path)
	require.NoError(t, vp.ReadInConfig())

	opts := Populate(vp)
	assert.False(t, opts.InfiniteFlutterheart)
	assert.True(t, opts.TitleVersion)
}
