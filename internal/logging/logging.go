// Package logging holds the process-wide logger shared by every subsystem.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// DefaultLogger is the base logger; subsystems derive from it with
// DefaultLogger.WithField(logfields.LogSubsys, "name").
var DefaultLogger = initializeDefaultLogger()

func initializeDefaultLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})
	logger.SetLevel(logrus.InfoLevel)
	return logger
}

// SetDebug toggles debug level output on the default logger.
func SetDebug(debug bool) {
	if debug {
		DefaultLogger.SetLevel(logrus.DebugLevel)
	} else {
		DefaultLogger.SetLevel(logrus.InfoLevel)
	}
}
