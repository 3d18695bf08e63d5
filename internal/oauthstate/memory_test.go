package oauthstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreConsumesOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	want := State{UserID: "u1", TentID: "t1", Provider: "gmail"}

	require.NoError(t, s.Save(ctx, "nonce", want, TTL))

	got, err := s.Consume(ctx, "nonce")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = s.Consume(ctx, "nonce")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, "old", State{UserID: "u1"}, time.Minute))
	now = now.Add(2 * time.Minute)

	_, err := s.Consume(ctx, "old")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMemoryStoreSweepsExpiredOnSave(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, "a", State{}, time.Minute))
	now = now.Add(time.Hour)
	require.NoError(t, s.Save(ctx, "b", State{}, time.Minute))

	assert.Len(t, s.entries, 1)
}

func TestUnknownNonce(t *testing.T) {
	_, err := NewMemoryStore().Consume(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestNewNonce(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
