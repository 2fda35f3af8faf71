package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowPerKey(t *testing.T) {
	l := New(Config{PerSecond: 0.001, Burst: 2, MaxKeys: 10, IdleTTL: time.Minute})

	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	require.True(t, l.Allow("b"))
}

func TestBoundedKeys(t *testing.T) {
	l := New(Config{PerSecond: 1, Burst: 1, MaxKeys: 2, IdleTTL: time.Minute})

	l.Allow("a")
	l.Allow("b")
	l.Allow("c")
	require.Equal(t, 2, l.Len())

	// "a" was evicted and starts over with a full bucket
	require.True(t, l.Allow("a"))
}

func TestIdleKeysExpire(t *testing.T) {
	l := New(Config{PerSecond: 0.001, Burst: 1, MaxKeys: 10, IdleTTL: 50 * time.Millisecond})

	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 10*time.Millisecond)
	require.True(t, l.Allow("a"))
}

func TestDefaults(t *testing.T) {
	l := New(Config{})

	require.Equal(t, 1.0, l.cfg.PerSecond)
	require.Equal(t, 1, l.cfg.Burst)
	require.Equal(t, 10000, l.cfg.MaxKeys)
	require.Equal(t, 10*time.Minute, l.cfg.IdleTTL)
}
