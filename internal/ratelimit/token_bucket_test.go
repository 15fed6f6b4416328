package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, capacity int, rate float64) *Limiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client, capacity, rate, time.Minute)
}

func TestLimiterCapacity(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, 2, 1)

	allowed, _, err := l.Allow(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = l.Allow(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, remaining, err := l.Allow(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Less(t, remaining, 1.0)
}

func TestLimiterRefill(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, 1, 1)

	// The script takes its clock from the caller, so refill is testable by
	// advancing a fake clock.
	current := time.Now()
	l.now = func() time.Time { return current }

	allowed, _, err := l.Allow(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = l.Allow(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, allowed)

	current = current.Add(1500 * time.Millisecond)
	allowed, _, err = l.Allow(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiterIsolatesAccounts(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, 1, 0.1)

	allowed, _, err := l.Allow(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = l.Allow(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, _, err = l.Allow(ctx, "acct-2")
	require.NoError(t, err)
	assert.True(t, allowed)
}
