package clog

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/LLNL/caliper-go/internal/config"
)

func TestNewAppliesJSONFormatter(t *testing.T) {
	logger := New(config.LoggingConfig{Format: "json", Level: "debug"})
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	require.True(t, ok)
	require.Equal(t, logrus.DebugLevel, logger.Level)
}

func TestNewDefaultsToInfoOnBadLevel(t *testing.T) {
	logger := New(config.LoggingConfig{Format: "text", Level: "deafening"})
	require.Equal(t, logrus.InfoLevel, logger.Level)
}

func TestWithComponentTagsField(t *testing.T) {
	logger := New(config.LoggingConfig{Format: "text", Level: "info"})
	entry := WithComponent(logger, "pipeline")
	require.Equal(t, "pipeline", entry.Data["component"])
}
