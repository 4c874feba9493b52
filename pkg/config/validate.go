package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dbusd/dbusd/pkg/transport"
)

var validate = validator.New()

// Validate runs struct-tag validation (required/oneof/gte/lte) plus a
// handful of cross-field checks the tags alone can't express, mirroring the
// teacher's pkg/config.Validate split between mechanical and semantic checks.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, addr := range cfg.Listen {
		if _, err := transport.ParseAddress(addr); err != nil {
			return fmt.Errorf("config: listen address %q: %w", addr, err)
		}
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("config: telemetry.endpoint is required when telemetry.enabled is true")
	}
	return nil
}
