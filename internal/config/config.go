// Package config loads Caliper's runtime configuration from an
// optional YAML file, applies defaults, and layers environment
// variable overrides on top (CALI_ prefix, matching the original
// library's env-var naming).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/LLNL/caliper-go/pkg/errors"
)

// Config is the top-level configuration for a caliper-go process
// (the cali-query and cali-stream commands, and anything embedding
// pkg/caliper that wants config-driven channel setup).
type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Otel      OtelConfig      `yaml:"otel"`
	Sinks     SinksConfig     `yaml:"sinks"`
	HostAttrs HostAttrsConfig `yaml:"host_attrs"`
	HotReload HotReloadConfig `yaml:"hot_reload"`
}

// AppConfig holds process identity and the channel-level defaults
// applied when CALI_SERVICES_ENABLE isn't set on a per-channel basis.
type AppConfig struct {
	Name            string `yaml:"name"`
	LogVerbosity    string `yaml:"log_verbosity"` // CALI_LOG_VERBOSITY
	ServicesEnable  string `yaml:"services_enable"` // CALI_SERVICES_ENABLE
	ChannelFlushOnExit *bool `yaml:"channel_flush_on_exit"` // CALI_CHANNEL_FLUSH_ON_EXIT
	RecorderFilename string `yaml:"recorder_filename"` // CALI_RECORDER_FILENAME
}

// LoggingConfig configures internal/clog's logrus logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// TelemetryConfig configures internal/telemetry's Prometheus + debug
// HTTP server.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// OtelConfig configures pkg/otelbridge's span exporter.
type OtelConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	Exporter     string `yaml:"exporter"` // "otlp" or "jaeger"
	Endpoint     string `yaml:"endpoint"`
}

// SinksConfig configures the channel output sinks.
type SinksConfig struct {
	LocalFile LocalFileSinkConfig `yaml:"local_file"`
	Kafka     KafkaSinkConfig     `yaml:"kafka"`
}

// LocalFileSinkConfig writes .cali stream records to a local file,
// rotating it once it crosses MaxSizeBytes.
type LocalFileSinkConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Directory    string `yaml:"directory"`
	Filename     string `yaml:"filename"`
	MaxSizeBytes int64  `yaml:"max_size_bytes"`
	Compress     bool   `yaml:"compress"`
}

// KafkaSinkConfig publishes .cali stream records to a Kafka topic,
// optionally authenticating with SASL/SCRAM.
type KafkaSinkConfig struct {
	Enabled      bool       `yaml:"enabled"`
	Brokers      []string   `yaml:"brokers"`
	Topic        string     `yaml:"topic"`
	Compression  string     `yaml:"compression"` // "none", "gzip", "snappy", "lz4"
	FlushBytes   int        `yaml:"flush_bytes"`
	SASL         SASLConfig `yaml:"sasl"`
}

// SASLConfig carries SCRAM credentials for the Kafka sink.
type SASLConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Mechanism string `yaml:"mechanism"` // "SCRAM-SHA-256" or "SCRAM-SHA-512"
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// HostAttrsConfig controls what pkg/hostattrs publishes as global
// attributes at channel init.
type HostAttrsConfig struct {
	Enabled         bool `yaml:"enabled"`
	IncludeDocker   bool `yaml:"include_docker"`
	DockerSocket    string `yaml:"docker_socket"`
}

// HotReloadConfig controls pkg/hotreload's fsnotify watch of the
// query file and this config file itself.
type HotReloadConfig struct {
	Enabled    bool   `yaml:"enabled"`
	QueryFile  string `yaml:"query_file"`
}

// Load reads configFile (if non-empty), applies defaults, then layers
// CALI_-prefixed environment variable overrides, and validates the
// result.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := loadFile(configFile, cfg); err != nil {
			return nil, errors.New(errors.CodeConfigError, "config", "load", err.Error())
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// applyDefaults fills in every field a caller left at its zero value.
// Fields explicitly set (via file or env) are never overwritten.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "caliper-go"
	}
	if cfg.App.LogVerbosity == "" {
		cfg.App.LogVerbosity = "0"
	}
	if cfg.App.ServicesEnable == "" {
		cfg.App.ServicesEnable = "event"
	}
	if cfg.App.ChannelFlushOnExit == nil {
		t := true
		cfg.App.ChannelFlushOnExit = &t
	}
	if cfg.App.RecorderFilename == "" {
		cfg.App.RecorderFilename = "caliper-%p.cali"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Telemetry.Host == "" {
		cfg.Telemetry.Host = "0.0.0.0"
	}
	if cfg.Telemetry.Port == 0 {
		cfg.Telemetry.Port = 9097
	}
	if cfg.Telemetry.Path == "" {
		cfg.Telemetry.Path = "/metrics"
	}

	if cfg.Otel.ServiceName == "" {
		cfg.Otel.ServiceName = cfg.App.Name
	}
	if cfg.Otel.Exporter == "" {
		cfg.Otel.Exporter = "otlp"
	}

	if cfg.Sinks.LocalFile.Directory == "" {
		cfg.Sinks.LocalFile.Directory = "."
	}
	if cfg.Sinks.LocalFile.Filename == "" {
		cfg.Sinks.LocalFile.Filename = cfg.App.RecorderFilename
	}
	if cfg.Sinks.LocalFile.MaxSizeBytes == 0 {
		cfg.Sinks.LocalFile.MaxSizeBytes = 64 * 1024 * 1024
	}

	if cfg.Sinks.Kafka.Compression == "" {
		cfg.Sinks.Kafka.Compression = "snappy"
	}
	if cfg.Sinks.Kafka.FlushBytes == 0 {
		cfg.Sinks.Kafka.FlushBytes = 32 * 1024
	}

	if cfg.HostAttrs.DockerSocket == "" {
		cfg.HostAttrs.DockerSocket = "unix:///var/run/docker.sock"
	}

	if cfg.Sinks.Kafka.SASL.Mechanism == "" {
		cfg.Sinks.Kafka.SASL.Mechanism = "SCRAM-SHA-256"
	}
}

// applyEnvOverrides mirrors the CALI_ environment variable surface
// documented in the original library (CALI_LOG_VERBOSITY,
// CALI_SERVICES_ENABLE, CALI_CHANNEL_FLUSH_ON_EXIT,
// CALI_RECORDER_FILENAME) plus a handful of Go-side additions for the
// ambient stack these env vars don't cover upstream.
func applyEnvOverrides(cfg *Config) {
	cfg.App.LogVerbosity = envString("CALI_LOG_VERBOSITY", cfg.App.LogVerbosity)
	cfg.App.ServicesEnable = envString("CALI_SERVICES_ENABLE", cfg.App.ServicesEnable)
	if v, ok := envBoolOK("CALI_CHANNEL_FLUSH_ON_EXIT"); ok {
		cfg.App.ChannelFlushOnExit = &v
	}
	cfg.App.RecorderFilename = envString("CALI_RECORDER_FILENAME", cfg.App.RecorderFilename)

	cfg.Logging.Level = envString("CALI_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envString("CALI_LOG_FORMAT", cfg.Logging.Format)

	cfg.Telemetry.Enabled = envBool("CALI_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Port = envInt("CALI_TELEMETRY_PORT", cfg.Telemetry.Port)

	cfg.Otel.Enabled = envBool("CALI_OTEL_ENABLED", cfg.Otel.Enabled)
	cfg.Otel.Endpoint = envString("CALI_OTEL_ENDPOINT", cfg.Otel.Endpoint)

	cfg.Sinks.LocalFile.Enabled = envBool("CALI_SINK_LOCALFILE_ENABLED", cfg.Sinks.LocalFile.Enabled)
	cfg.Sinks.LocalFile.Directory = envString("CALI_SINK_LOCALFILE_DIR", cfg.Sinks.LocalFile.Directory)

	cfg.Sinks.Kafka.Enabled = envBool("CALI_SINK_KAFKA_ENABLED", cfg.Sinks.Kafka.Enabled)
	if brokers := envString("CALI_SINK_KAFKA_BROKERS", ""); brokers != "" {
		cfg.Sinks.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Sinks.Kafka.Topic = envString("CALI_SINK_KAFKA_TOPIC", cfg.Sinks.Kafka.Topic)
	cfg.Sinks.Kafka.Compression = envString("CALI_SINK_KAFKA_COMPRESSION", cfg.Sinks.Kafka.Compression)
	cfg.Sinks.Kafka.SASL.Username = envString("CALI_SINK_KAFKA_SASL_USER", cfg.Sinks.Kafka.SASL.Username)
	cfg.Sinks.Kafka.SASL.Password = envString("CALI_SINK_KAFKA_SASL_PASSWORD", cfg.Sinks.Kafka.SASL.Password)
	if cfg.Sinks.Kafka.SASL.Username != "" {
		cfg.Sinks.Kafka.SASL.Enabled = true
	}

	cfg.HostAttrs.Enabled = envBool("CALI_HOSTATTRS_ENABLED", cfg.HostAttrs.Enabled)
	cfg.HostAttrs.IncludeDocker = envBool("CALI_HOSTATTRS_DOCKER", cfg.HostAttrs.IncludeDocker)

	cfg.HotReload.Enabled = envBool("CALI_HOTRELOAD_ENABLED", cfg.HotReload.Enabled)
	cfg.HotReload.QueryFile = envString("CALI_HOTRELOAD_QUERY_FILE", cfg.HotReload.QueryFile)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envBoolOK(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Validate checks a loaded Config for internal consistency. It
// accumulates every violation rather than stopping at the first, so a
// caller sees the whole list in one error.
func Validate(cfg *Config) error {
	var msgs []string

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}
	if !validLevels[cfg.Logging.Level] {
		msgs = append(msgs, fmt.Sprintf("invalid logging level: %s", cfg.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[cfg.Logging.Format] {
		msgs = append(msgs, fmt.Sprintf("invalid logging format: %s", cfg.Logging.Format))
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Port <= 0 || cfg.Telemetry.Port > 65535 {
			msgs = append(msgs, fmt.Sprintf("invalid telemetry port: %d", cfg.Telemetry.Port))
		}
		if cfg.Telemetry.Path == "" {
			msgs = append(msgs, "telemetry path cannot be empty when enabled")
		}
	}

	if cfg.Sinks.LocalFile.Enabled {
		if cfg.Sinks.LocalFile.Directory == "" {
			msgs = append(msgs, "local file sink directory cannot be empty when enabled")
		}
		if cfg.Sinks.LocalFile.MaxSizeBytes < 0 {
			msgs = append(msgs, "local file sink max_size_bytes cannot be negative")
		}
	}

	if cfg.Sinks.Kafka.Enabled {
		if len(cfg.Sinks.Kafka.Brokers) == 0 {
			msgs = append(msgs, "kafka sink requires at least one broker when enabled")
		}
		if cfg.Sinks.Kafka.Topic == "" {
			msgs = append(msgs, "kafka sink topic cannot be empty when enabled")
		}
		switch cfg.Sinks.Kafka.Compression {
		case "none", "gzip", "snappy", "lz4":
		default:
			msgs = append(msgs, fmt.Sprintf("invalid kafka compression: %s", cfg.Sinks.Kafka.Compression))
		}
		if cfg.Sinks.Kafka.SASL.Enabled {
			switch cfg.Sinks.Kafka.SASL.Mechanism {
			case "SCRAM-SHA-256", "SCRAM-SHA-512":
			default:
				msgs = append(msgs, fmt.Sprintf("invalid kafka SASL mechanism: %s", cfg.Sinks.Kafka.SASL.Mechanism))
			}
		}
	}

	if cfg.HotReload.Enabled && cfg.HotReload.QueryFile == "" {
		msgs = append(msgs, "hot reload enabled but no query_file configured")
	}

	if cfg.Otel.Enabled {
		switch cfg.Otel.Exporter {
		case "otlp", "jaeger":
		default:
			msgs = append(msgs, fmt.Sprintf("invalid otel exporter: %s", cfg.Otel.Exporter))
		}
	}

	if len(msgs) == 0 {
		return nil
	}
	return errors.New(errors.CodeConfigError, "config", "validate", strings.Join(msgs, "; "))
}

// RecorderPath expands the %p placeholder in RecorderFilename with
// the process id, matching CALI_RECORDER_FILENAME's original
// behaviour, and joins it onto the local file sink's directory.
func RecorderPath(cfg *Config) string {
	name := strings.ReplaceAll(cfg.Sinks.LocalFile.Filename, "%p", strconv.Itoa(os.Getpid()))
	return filepath.Join(cfg.Sinks.LocalFile.Directory, name)
}

// FlushTimeout is how long Flush() on exit is allowed to take before
// giving up, when App.ChannelFlushOnExit is set.
const FlushTimeout = 5 * time.Second
