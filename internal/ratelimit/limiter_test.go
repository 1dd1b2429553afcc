package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_FixedWindow(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := m.Allow(ctx, "key", 3)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := m.Allow(ctx, "key", 3)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.ResetIn)

	// другой ключ считается отдельно
	d, err = m.Allow(ctx, "other", 3)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	now = now.Add(time.Minute)
	d, err = m.Allow(ctx, "key", 3)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "new window")
}

func TestMemory_ZeroLimitIsUnlimited(t *testing.T) {
	m := NewMemory(time.Second)
	for i := 0; i < 100; i++ {
		d, err := m.Allow(context.Background(), "key", 0)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
}
