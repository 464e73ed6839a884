//go:build !unicorn

package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrNoEmulator means the binary was built without the unicorn tag
var ErrNoEmulator = errors.New("emulator support not built in, rebuild with -tags unicorn")

func newRunCommand(_ *viper.Viper) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Attach to an image and run it under emulation",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return ErrNoEmulator
		},
	}
	f.register(cmd)
	return cmd
}
