package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	require.Equal(t, "caliper-go", cfg.App.Name)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
	require.Equal(t, 9097, cfg.Telemetry.Port)
	require.True(t, *cfg.App.ChannelFlushOnExit)
}

func TestApplyDefaultsDoesNotOverwriteExplicitValues(t *testing.T) {
	cfg := &Config{App: AppConfig{Name: "custom"}, Logging: LoggingConfig{Level: "debug"}}
	applyDefaults(cfg)

	require.Equal(t, "custom", cfg.App.Name)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverridesWinOverDefaults(t *testing.T) {
	t.Setenv("CALI_LOG_LEVEL", "trace")
	t.Setenv("CALI_TELEMETRY_ENABLED", "true")
	t.Setenv("CALI_TELEMETRY_PORT", "9191")

	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	require.Equal(t, "trace", cfg.Logging.Level)
	require.True(t, cfg.Telemetry.Enabled)
	require.Equal(t, 9191, cfg.Telemetry.Port)
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Logging.Level = "loudest"

	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid logging level")
}

func TestValidateRejectsKafkaSinkMissingBrokers(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Sinks.Kafka.Enabled = true
	cfg.Sinks.Kafka.Topic = "cali-records"

	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "at least one broker")
}

func TestValidatePassesWithDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	require.NoError(t, Validate(cfg))
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cali.yaml")
	yamlContent := "app:\n  name: from-file\nlogging:\n  level: warn\n  format: json\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.App.Name)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestRecorderPathExpandsPID(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Sinks.LocalFile.Directory = "/tmp/out"
	cfg.Sinks.LocalFile.Filename = "run-%p.cali"

	path := RecorderPath(cfg)
	require.Contains(t, path, "/tmp/out/run-")
	require.NotContains(t, path, "%p")
}
