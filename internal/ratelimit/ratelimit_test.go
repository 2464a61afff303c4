package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGateAllow(t *testing.T) {
	g := NewGate(30 * time.Minute)

	_, ok := g.Allow(1)
	require.True(t, ok)

	next, ok := g.Allow(1)
	require.False(t, ok)
	require.True(t, next.After(time.Now()))
	require.WithinDuration(t, time.Now().Add(30*time.Minute), next, time.Minute)
}

func TestGateIsPerCustomer(t *testing.T) {
	g := NewGate(30 * time.Minute)

	_, ok := g.Allow(1)
	require.True(t, ok)

	_, ok = g.Allow(2)
	require.True(t, ok)

	_, ok = g.Allow(1)
	require.False(t, ok)
}

func TestGateRefillsAfterInterval(t *testing.T) {
	g := NewGate(10 * time.Millisecond)

	_, ok := g.Allow(1)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = g.Allow(1)
	require.True(t, ok)
}

func TestGateRefusalDoesNotConsume(t *testing.T) {
	g := NewGate(50 * time.Millisecond)

	_, ok := g.Allow(1)
	require.True(t, ok)

	// Refused calls cancel their reservation, so the next eligible
	// time does not drift further out.
	first, _ := g.Allow(1)
	second, _ := g.Allow(1)
	require.WithinDuration(t, first, second, 25*time.Millisecond)
}
