package googleauth_test

import (
	"testing"
	"time"

	"github.com/markhive/go-auth/googleauth"
	"github.com/stretchr/testify/require"
)

func TestConsume_SingleUse(t *testing.T) {
	store := googleauth.NewInMemoryStateStore(10 * time.Minute)

	require.NoError(t, store.Put("state-1"))
	require.True(t, store.Consume("state-1"))
	require.False(t, store.Consume("state-1"), "a consumed state must not be replayable")
}

func TestConsume_UnknownState(t *testing.T) {
	store := googleauth.NewInMemoryStateStore(10 * time.Minute)

	require.False(t, store.Consume("never-issued"))
}

func TestConsume_ExpiredState(t *testing.T) {
	now := time.Now()
	store := googleauth.NewInMemoryStateStore(10*time.Minute,
		googleauth.WithStateNowFunc(func() time.Time { return now }))

	require.NoError(t, store.Put("state-1"))

	now = now.Add(11 * time.Minute)
	require.False(t, store.Consume("state-1"))
}

func TestPut_EvictsExpiredStates(t *testing.T) {
	now := time.Now()
	store := googleauth.NewInMemoryStateStore(10*time.Minute,
		googleauth.WithStateNowFunc(func() time.Time { return now }))

	require.NoError(t, store.Put("old-state"))

	now = now.Add(11 * time.Minute)
	require.NoError(t, store.Put("new-state"))

	require.False(t, store.Consume("old-state"))
	require.True(t, store.Consume("new-state"))
}
