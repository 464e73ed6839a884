package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k2io/ardain/internal/config"
	"github.com/k2io/ardain/internal/objfile"
)

const fixture = "../../internal/offsets/testdata/2.1.0.toml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand(config.NewViper())
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestOffsetsCompileDump(t *testing.T) {
	compiled := filepath.Join(t.TempDir(), "2.1.0.cbor")
	_, err := execute(t, "offsets", "compile", fixture, compiled)
	require.NoError(t, err)

	fromCBOR, err := execute(t, "offsets", "dump", compiled)
	require.NoError(t, err)
	fromTOML, err := execute(t, "offsets", "dump", fixture)
	require.NoError(t, err)
	assert.Equal(t, fromTOML, fromCBOR)

	for _, line := range []string{
		"[hooks]\n",
		"input = 0x3267f0\n",
		"title-screen = absent\n",
		"draw-font-color = -0x10\n",
		"[registers]\n",
		"input-pad-data = x20\n",
		"bdat-item-cond-type = r9\n",
	} {
		assert.Contains(t, fromCBOR, line)
	}
}

func TestOffsetsErrors(t *testing.T) {
	_, err := execute(t, "offsets", "dump", filepath.Join(t.TempDir(), "missing.cbor"))
	assert.Error(t, err)
	_, err = execute(t, "offsets", "compile", fixture)
	assert.Error(t, err, "output argument is required")
}

func TestRunRequiresImage(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.toml"), "offsets", "dump", fixture)
	assert.Error(t, err)
}

func TestResolveEntry(t *testing.T) {
	img := &objfile.Image{Entry: 0x1000, Symbols: map[string]uint64{"main": 0x2000}}

	for in, want := range map[string]uint64{"": 0x1000, "main": 0x2000, "0x3000": 0x3000, "4096": 0x1000} {
		got, err := resolveEntry(img, in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := resolveEntry(img, "nope")
	assert.Error(t, err)
	_, err = resolveEntry(&objfile.Image{}, "")
	assert.Error(t, err)
}
