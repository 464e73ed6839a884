package main

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/k2io/ardain/internal/objfile"
)

type runFlags struct {
	image string
	entry string
	count uint64
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.image, "image", "", "Executable image to run")
	cmd.Flags().StringVar(&f.entry, "entry", "", "Symbol or address to start at, the image entry point by default")
	cmd.Flags().Uint64Var(&f.count, "count", 0, "Stop after this many instructions, 0 for no limit")
	cmd.MarkFlagRequired("image")
}

// resolveEntry turns an --entry value into an address of img.
func resolveEntry(img *objfile.Image, entry string) (uint64, error) {
	if entry == "" {
		if img.Entry == 0 {
			return 0, errors.New("image has no entry point, pass --entry")
		}
		return img.Entry, nil
	}
	if addr, err := strconv.ParseUint(entry, 0, 64); err == nil {
		return addr, nil
	}
	if addr, ok := img.Symbol(entry); ok {
		return addr, nil
	}
	return 0, errors.Errorf("unknown entry %q", entry)
}
