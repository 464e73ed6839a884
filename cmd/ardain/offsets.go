package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/k2io/ardain/internal/logging/logfields"
	"github.com/k2io/ardain/internal/offsets"
)

func newOffsetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offsets",
		Short: "Manage offset documents",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "compile IN.toml OUT.cbor",
			Short: "Compile a TOML offset document into CBOR",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return compileOffsets(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "dump FILE",
			Short: "Print the entries of an offset document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := loadOffsets(args[0])
				if err != nil {
					return err
				}
				return dumpOffsets(cmd.OutOrStdout(), t)
			},
		},
	)
	return cmd
}

// loadOffsets reads a CBOR document, or TOML when the name ends in .toml.
func loadOffsets(name string) (*offsets.Table, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if filepath.Ext(name) == ".toml" {
		return offsets.ParseTOML(f)
	}
	return offsets.Decode(f)
}

func compileOffsets(in, out string) error {
	t, err := loadOffsets(in)
	if err != nil {
		return errors.Wrapf(err, "load %s", in)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := offsets.Encode(f, t); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode %s", out)
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.WithField(logfields.Path, out).Info("Compiled offsets")
	return nil
}

func dumpOffsets(w io.Writer, t *offsets.Table) error {
	for _, ns := range []offsets.Namespace{offsets.Hooks, offsets.Functions, offsets.Registers} {
		if _, err := fmt.Fprintf(w, "[%s]\n", ns); err != nil {
			return err
		}
		for _, key := range t.Keys(ns) {
			e, _ := t.Lookup(ns, key)
			var val string
			if reg, ok := e.Register(); ok {
				val = reg.String()
			} else if off, ok := e.Offset(); ok {
				val = fmt.Sprintf("%#x", off)
			} else {
				val = "absent"
			}
			if _, err := fmt.Fprintf(w, "%s = %s\n", key, val); err != nil {
				return err
			}
		}
	}
	return nil
}
