//go:build unicorn

package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/k2io/ardain"
	"github.com/k2io/ardain/internal/config"
	"github.com/k2io/ardain/internal/emu"
	"github.com/k2io/ardain/internal/logging/logfields"
	"github.com/k2io/ardain/internal/objfile"
)

func newRunCommand(vp *viper.Viper) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Attach to an image and run it under emulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImage(config.Populate(vp), f)
		},
	}
	f.register(cmd)
	return cmd
}

func runImage(opts config.Options, f runFlags) error {
	img, err := objfile.Open(f.image)
	if err != nil {
		return err
	}
	entry, err := resolveEntry(img, f.entry)
	if err != nil {
		return err
	}
	e, err := emu.New(img)
	if err != nil {
		return err
	}
	defer e.Close()

	app, err := ardain.Start(e, os.DirFS(opts.OffsetsDir), opts)
	if err != nil {
		return err
	}
	for _, h := range app.Hooks() {
		log.WithFields(logrus.Fields{
			logfields.Hook:    h.Name(),
			logfields.Address: h.Target(),
			"kind":            h.Kind(),
		}).Info("Hook active")
	}
	return e.Run(entry, f.count)
}
