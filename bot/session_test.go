package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	empty, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StepNone, empty.Step)

	description := "two liters"
	require.NoError(t, store.Save(ctx, 1, Session{Step: StepTaskRemindAt, Mode: ModeTeam, Title: "Buy milk", Description: &description}))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StepTaskRemindAt, got.Step)
	assert.Equal(t, ModeTeam, got.Mode)
	require.NotNil(t, got.Description)
	assert.Equal(t, "two liters", *got.Description)

	other, err := store.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StepNone, other.Step, "sessions are per user")

	require.NoError(t, store.Delete(ctx, 1))
	got, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Session{}, got)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	store := NewMemoryStore(10 * time.Minute)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, 7, Session{Step: StepJoinCode}))

	now = now.Add(9 * time.Minute)
	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StepJoinCode, got.Step)

	now = now.Add(2 * time.Minute)
	got, err = store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StepNone, got.Step, "expired session is dropped")
}
