package transport

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnixAddress(t *testing.T) {
	a, err := ParseAddress("unix:path=/tmp/dbusd.sock")
	require.NoError(t, err)
	assert.Equal(t, "unix", a.Transport)
	assert.Equal(t, "/tmp/dbusd.sock", a.Props["path"])
}

func TestParseTCPAddressWithBindSynonym(t *testing.T) {
	a, err := ParseAddress("tcp:bind=127.0.0.1,port=0")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", a.Props["host"])
}

func TestParseUnknownTransport(t *testing.T) {
	_, err := ParseAddress("gssapi:foo=bar")
	assert.Error(t, err)
}

func TestBindUnixWithoutPathUsesTempDir(t *testing.T) {
	b, err := Bind("unix:")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "dbus-socket", filepath.Base(b.unlinkPath))
}

func TestBindTCPAssignsKernelPort(t *testing.T) {
	b, err := Bind("tcp:host=127.0.0.1,port=0")
	require.NoError(t, err)
	defer b.Close()
	assert.Contains(t, b.Addr, "tcp:host=127.0.0.1,port=")
	assert.NotContains(t, b.Addr, "port=0")
}

func TestBindTCPMissingHost(t *testing.T) {
	_, err := Bind("tcp:port=0")
	assert.Error(t, err)
}
