// Package config handles global configuration loading using viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"firestige.xyz/pulso/internal/core"
)

// EnvPrefix prefixes every environment override (PULSO_LOG_LEVEL, ...).
const EnvPrefix = "PULSO"

// SecretEnv holds the anonymization key.
const SecretEnv = "PULSO_SECRET"

// GlobalConfig represents the top-level configuration.
// Maps to the `pulso:` root key in YAML.
type GlobalConfig struct {
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Capture CaptureConfig `mapstructure:"capture"`
	Privacy PrivacyConfig `mapstructure:"privacy"`
	Report  ReportConfig  `mapstructure:"report"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log destinations besides stderr.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Capture ───

// CaptureConfig tunes the capture handle.
type CaptureConfig struct {
	Engine       string        `mapstructure:"engine"` // pcap / afpacket
	SnapLen      int           `mapstructure:"snap_len"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	BufferSizeMB int           `mapstructure:"buffer_size_mb"` // afpacket ring size
	Promiscuous  bool          `mapstructure:"promiscuous"`
}

// ─── Privacy ───

// PrivacyConfig selects how source addresses are printed.
type PrivacyConfig struct {
	Anonymize bool   `mapstructure:"anonymize"`
	Secret    string `mapstructure:"secret"`
}

// ─── Report ───

// ReportConfig selects the report encoding and extra sinks.
type ReportConfig struct {
	Format string     `mapstructure:"format"` // text / json / yaml
	NATS   NATSConfig `mapstructure:"nats"`
}

// NATSConfig publishes the report on a NATS subject.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `pulso: ...`.
type configRoot struct {
	Pulso GlobalConfig `mapstructure:"pulso"`
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from defaults, the optional YAML file at path
// and PULSO_* environment variables, in increasing precedence.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Key "pulso.log.level" maps to env "PULSO_LOG_LEVEL".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("pulso.privacy.secret", SecretEnv); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", SecretEnv, err)
	}

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Pulso

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "pulso." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("pulso.log.level", "info")
	v.SetDefault("pulso.log.format", "text")
	v.SetDefault("pulso.log.outputs.file.enabled", false)
	v.SetDefault("pulso.log.outputs.file.path", "/var/log/pulso/pulso.log")
	v.SetDefault("pulso.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("pulso.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("pulso.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("pulso.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("pulso.metrics.enabled", false)
	v.SetDefault("pulso.metrics.listen", ":9091")
	v.SetDefault("pulso.metrics.path", "/metrics")

	// Capture defaults
	v.SetDefault("pulso.capture.engine", "pcap")
	v.SetDefault("pulso.capture.snap_len", 96)
	v.SetDefault("pulso.capture.poll_timeout", "100ms")
	v.SetDefault("pulso.capture.buffer_size_mb", 2)
	v.SetDefault("pulso.capture.promiscuous", false)

	// Privacy defaults
	v.SetDefault("pulso.privacy.anonymize", true)
	v.SetDefault("pulso.privacy.secret", "")

	// Report defaults
	v.SetDefault("pulso.report.format", "text")
	v.SetDefault("pulso.report.nats.enabled", false)
	v.SetDefault("pulso.report.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("pulso.report.nats.subject", "pulso.reports")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
// A missing secret is not checked here: it only matters once a run with
// anonymization starts.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}

	// ── Capture ──
	switch cfg.Capture.Engine {
	case "pcap", "afpacket":
	default:
		return fmt.Errorf("%w: invalid capture.engine: %s (must be pcap/afpacket)", core.ErrConfigInvalid, cfg.Capture.Engine)
	}
	if cfg.Capture.SnapLen < 64 || cfg.Capture.SnapLen > 65535 {
		return fmt.Errorf("%w: capture.snap_len %d out of range [64, 65535]", core.ErrConfigInvalid, cfg.Capture.SnapLen)
	}
	if cfg.Capture.PollTimeout <= 0 {
		return fmt.Errorf("%w: capture.poll_timeout must be positive", core.ErrConfigInvalid)
	}
	if cfg.Capture.BufferSizeMB <= 0 {
		return fmt.Errorf("%w: capture.buffer_size_mb must be positive", core.ErrConfigInvalid)
	}

	// ── Report ──
	switch cfg.Report.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("%w: invalid report.format: %s (must be text/json/yaml)", core.ErrConfigInvalid, cfg.Report.Format)
	}
	if cfg.Report.NATS.Enabled && (cfg.Report.NATS.URL == "" || cfg.Report.NATS.Subject == "") {
		return fmt.Errorf("%w: report.nats.url and report.nats.subject are required when report.nats.enabled=true", core.ErrConfigInvalid)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}
