package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestNamePrimaryOwner(t *testing.T) {
	r := NewRegistry()
	code, change, err := r.RequestName("com.example.S", ":1.0", 0)
	require.NoError(t, err)
	assert.Equal(t, RequestNamePrimaryOwner, code)
	require.NotNil(t, change)
	assert.Equal(t, "", change.Old)
	assert.Equal(t, ":1.0", change.New)
}

func TestRequestNameQueueAndReplacement(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.RequestName("com.example.S", ":1.0", 0)
	require.NoError(t, err)

	code, change, err := r.RequestName("com.example.S", ":1.1", 0)
	require.NoError(t, err)
	assert.Equal(t, RequestNameInQueue, code)
	assert.Nil(t, change)

	// B requests replace_existing only; A has not allowed replacement yet.
	code, change, err = r.RequestName("com.example.S", ":1.1", FlagReplaceExisting)
	require.NoError(t, err)
	assert.Equal(t, RequestNameInQueue, code)
	assert.Nil(t, change)

	// A re-requests with allow_replacement only; flags are overwritten, A is
	// still the owner so this is already_owner.
	code, _, err = r.RequestName("com.example.S", ":1.0", FlagAllowReplacement)
	require.NoError(t, err)
	assert.Equal(t, RequestNameAlreadyOwner, code)

	// B requests replace_existing again; now it is honoured.
	code, change, err = r.RequestName("com.example.S", ":1.1", FlagReplaceExisting)
	require.NoError(t, err)
	assert.Equal(t, RequestNamePrimaryOwner, code)
	require.NotNil(t, change)
	assert.Equal(t, ":1.0", change.Old)
	assert.Equal(t, ":1.1", change.New)

	owner, ok := r.GetNameOwner("com.example.S")
	require.True(t, ok)
	assert.Equal(t, ":1.1", owner)

	queued := r.ListQueuedOwners("com.example.S")
	assert.Equal(t, []string{":1.1", ":1.0"}, queued)
}

func TestRequestNameIdempotentAlreadyOwner(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.RequestName("com.example.S", ":1.0", FlagAllowReplacement)
	require.NoError(t, err)

	code, change, err := r.RequestName("com.example.S", ":1.0", FlagAllowReplacement)
	require.NoError(t, err)
	assert.Equal(t, RequestNameAlreadyOwner, code)
	assert.Nil(t, change, "repeated identical RequestName by the owner must not emit a signal")
}

func TestRequestNameDoNotQueuePurge(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.RequestName("com.example.S", ":1.0", 0)
	require.NoError(t, err)

	code, change, err := r.RequestName("com.example.S", ":1.1", FlagDoNotQueue)
	require.NoError(t, err)
	assert.Equal(t, RequestNameExists, code)
	assert.Nil(t, change)

	owners := r.ListQueuedOwners("com.example.S")
	assert.Equal(t, []string{":1.0"}, owners)
}

func TestRequestNameRejectsUniqueName(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.RequestName(":1.0", ":1.0", 0)
	require.Error(t, err)
}

func TestReleaseName(t *testing.T) {
	r := NewRegistry()
	code, _, err := r.ReleaseName("com.example.S", ":1.0")
	require.NoError(t, err)
	assert.Equal(t, ReleaseNameNonExistent, code)

	_, _, err = r.RequestName("com.example.S", ":1.0", 0)
	require.NoError(t, err)

	code, _, err = r.ReleaseName("com.example.S", ":1.1")
	require.NoError(t, err)
	assert.Equal(t, ReleaseNameNotOwned, code)

	code, change, err := r.ReleaseName("com.example.S", ":1.0")
	require.NoError(t, err)
	assert.Equal(t, ReleaseNameReleased, code)
	require.NotNil(t, change)
	assert.Equal(t, ":1.0", change.Old)
	assert.Equal(t, "", change.New)

	assert.False(t, r.NameHasOwner("com.example.S"))
}

func TestRemoveSessionPurgesQueues(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.RequestName("com.example.S", ":1.0", 0)
	require.NoError(t, err)
	_, _, err = r.RequestName("com.example.S", ":1.1", 0)
	require.NoError(t, err)

	changes := r.RemoveSession(":1.0")
	require.Len(t, changes, 1)
	assert.Equal(t, "com.example.S", changes[0].Name)
	assert.Equal(t, ":1.0", changes[0].Old)
	assert.Equal(t, ":1.1", changes[0].New)

	owner, ok := r.GetNameOwner("com.example.S")
	require.True(t, ok)
	assert.Equal(t, ":1.1", owner)
}

func TestBusNameAlwaysOwnsItself(t *testing.T) {
	r := NewRegistry()
	owner, ok := r.GetNameOwner("org.freedesktop.DBus")
	require.True(t, ok)
	assert.Equal(t, "org.freedesktop.DBus", owner)
}
