package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfigYAML is the commented starter config dbusd init writes out.
const sampleConfigYAML = `# dbusd configuration.
# See https://dbus.freedesktop.org/doc/dbus-specification.html for the wire
# protocol this broker implements.

# D-Bus listen addresses. At least one is required.
listen:
  - "unix:path=/run/dbusd/system_bus_socket"
  # - "tcp:host=0.0.0.0,port=12345"

logging:
  level: INFO       # DEBUG, INFO, WARN, ERROR
  format: text       # text, json
  output: stdout     # stdout, stderr, or a file path

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0

metrics:
  enabled: false
  addr: 127.0.0.1:9090

shutdown_timeout: 5s
`

// InitConfig writes a sample config to the default path, failing if one
// already exists unless force is set. Returns the path written.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a sample config to path, failing if one already
// exists unless force is set.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("config: create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfigYAML), 0o644); err != nil {
		return "", fmt.Errorf("config: write sample config: %w", err)
	}
	return path, nil
}
