// Package clog builds the process-wide *logrus.Logger every other
// package takes as a constructor argument, the same way the teacher's
// dispatcher and tracing manager take a shared *logrus.Logger rather
// than reaching for a package-level global.
package clog

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/LLNL/caliper-go/internal/config"
)

// New builds a *logrus.Logger configured from cfg.Logging: "json" or
// "text" formatter, and a level parsed from cfg.Logging.Level
// (defaulting to info on an unrecognized string rather than failing
// startup over a typo in a log level).
func New(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// WithComponent returns an entry pre-tagged with a component field,
// the pattern used throughout the teacher's dispatcher and sinks
// (`d.logger.WithFields(logrus.Fields{"component": ...})`).
func WithComponent(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}
