package main

import (
	"os"

	"github.com/k2io/ardain/internal/config"
)

func main() {
	if err := newRootCommand(config.NewViper()).Execute(); err != nil {
		os.Exit(1)
	}
}
