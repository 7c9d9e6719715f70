package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLimiterNeverBlocks(t *testing.T) {
	var l *Limiter
	assert.True(t, l.Allow())
	require.NoError(t, l.Wait(context.Background()))
	assert.Nil(t, NewPerSecond(0, 10))
}

func TestLimiter_Burst(t *testing.T) {
	l := NewPerSecond(1, 2)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := NewPerSecond(0.001, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestKeyed_PerKeyIsolationAndForget(t *testing.T) {
	k := NewKeyed(1, 1)
	require.True(t, k.Enabled())

	assert.True(t, k.Get("a").Allow())
	assert.False(t, k.Get("a").Allow())
	assert.True(t, k.Get("b").Allow())
	assert.Equal(t, 2, k.Len())

	k.Forget("a")
	assert.Equal(t, 1, k.Len())
	assert.True(t, k.Get("a").Allow())
}

func TestKeyed_Disabled(t *testing.T) {
	k := NewKeyed(0, 0)
	assert.False(t, k.Enabled())
	assert.Nil(t, k.Get("a"))
	require.NoError(t, k.Wait(context.Background(), "a"))
	assert.Equal(t, 0, k.Len())
}
