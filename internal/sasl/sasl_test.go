package sasl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalInlineAuth(t *testing.T) {
	a := NewAuthServer("deadbeef")
	resp := a.ProcessRequest("AUTH EXTERNAL 31303030")
	require.Len(t, resp, 1)
	assert.Equal(t, "OK deadbeef", resp[0])
	assert.False(t, a.IsAuthenticated())

	resp = a.ProcessRequest("BEGIN")
	assert.Empty(t, resp)
	assert.True(t, a.IsAuthenticated())
}

func TestExternalDataRound(t *testing.T) {
	a := NewAuthServer("cafef00d")
	resp := a.ProcessRequest("AUTH EXTERNAL")
	require.Equal(t, []string{"DATA"}, resp)

	resp = a.ProcessRequest("DATA 31303030")
	require.Len(t, resp, 1)
	assert.Equal(t, "OK cafef00d", resp[0])

	a.ProcessRequest("BEGIN")
	assert.True(t, a.IsAuthenticated())
}

func TestAnonymous(t *testing.T) {
	a := NewAuthServer("abc123")
	resp := a.ProcessRequest("AUTH ANONYMOUS 636c69656e74")
	require.Len(t, resp, 1)
	assert.Equal(t, "OK abc123", resp[0])
}

func TestUnknownMechanismRejected(t *testing.T) {
	a := NewAuthServer("abc123")
	resp := a.ProcessRequest("AUTH GSSAPI")
	assert.Equal(t, []string{"REJECTED EXTERNAL ANONYMOUS"}, resp)
	assert.False(t, a.IsAuthenticated())
}

func TestBeginBeforeOkIsError(t *testing.T) {
	a := NewAuthServer("abc123")
	resp := a.ProcessRequest("BEGIN")
	assert.Equal(t, []string{"ERROR"}, resp)
	assert.False(t, a.IsAuthenticated())
}
