package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/k2io/ardain"
	"github.com/k2io/ardain/internal/config"
	"github.com/k2io/ardain/internal/logging"
	"github.com/k2io/ardain/internal/logging/logfields"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "cli")

func newRootCommand(vp *viper.Viper) *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "ardain",
		Short:         "Offset-driven hooks and overlay",
		Long:          "ardain - instrument a game binary from a versioned offset table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgFile != "" {
				vp.SetConfigFile(cfgFile)
				if err := vp.ReadInConfig(); err != nil {
					return errors.Wrapf(err, "read config %s", cfgFile)
				}
			}
			ardain.SetDebug(vp.GetBool(config.Debug))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (TOML, YAML or JSON)")
	config.Flags(flags)
	if err := vp.BindPFlags(flags); err != nil {
		panic(err)
	}

	root.AddCommand(
		newRunCommand(vp),
		newOffsetsCommand(),
	)
	wrapErrors(root)
	return root
}

// wrapErrors logs the error a command fails with before it is returned.
func wrapErrors(cmd *cobra.Command) {
	for _, c := range cmd.Commands() {
		wrapErrors(c)
	}
	if cmd.RunE == nil {
		return
	}
	run := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if err != nil {
			log.WithError(err).WithField("command", cmd.CommandPath()).Error("Command failed")
		}
		return err
	}
}
