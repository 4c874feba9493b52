package config

import (
	"strings"
	"time"
)

// DefaultConfig returns the configuration dbusd runs with when no config
// file is present: one unix: listener at the conventional system-bus path.
func DefaultConfig() *Config {
	cfg := &Config{
		Listen: []string{"unix:path=/run/dbusd/system_bus_socket"},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field of cfg with its default,
// after a config file has been decoded. Explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	if len(cfg.Listen) == 0 {
		cfg.Listen = []string{"unix:path=/run/dbusd/system_bus_socket"}
	}
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:9090"
	}
}
