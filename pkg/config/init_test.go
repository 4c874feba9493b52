package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempConfigHome(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	old, had := os.LookupEnv("XDG_CONFIG_HOME")
	require.NoError(t, os.Setenv("XDG_CONFIG_HOME", tmp))
	t.Cleanup(func() {
		if had {
			_ = os.Setenv("XDG_CONFIG_HOME", old)
		} else {
			_ = os.Unsetenv("XDG_CONFIG_HOME")
		}
	})
	return tmp
}

func TestInitConfigWritesSampleFile(t *testing.T) {
	withTempConfigHome(t)

	path, err := InitConfig(false)
	require.NoError(t, err)
	assert.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "listen:")
	assert.Contains(t, string(data), "system_bus_socket")
}

func TestInitConfigRefusesToOverwriteWithoutForce(t *testing.T) {
	withTempConfigHome(t)

	_, err := InitConfig(false)
	require.NoError(t, err)

	_, err = InitConfig(false)
	assert.Error(t, err)

	_, err = InitConfig(true)
	assert.NoError(t, err)
}
