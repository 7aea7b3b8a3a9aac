// Package obslog wires the logrus logger used across the consensus engine.
package obslog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the base logger for the process. Level is parsed from a
// string ("debug", "info", "warn", "error"); unrecognized values fall
// back to info.
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// Component returns a child entry tagged with the owning component,
// the convention used throughout the codebase for per-package loggers.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	if logger == nil {
		logger = New("info")
	}
	return logger.WithField("component", name)
}
