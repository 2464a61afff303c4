package provider

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	t.Run("order update", func(t *testing.T) {
		ev, ok, err := ParseEvent([]byte(`{"event":{"reference":"105","id":"rmt-88","status":"success","code":"NCK=12345"}}`))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, Event{Reference: "105", RemoteID: "rmt-88", Status: "success", Code: "NCK=12345"}, ev)
	})

	t.Run("keepalive frame", func(t *testing.T) {
		_, ok, err := ParseEvent([]byte(`{"ping":1}`))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("event without reference", func(t *testing.T) {
		_, ok, err := ParseEvent([]byte(`{"event":{"status":"success"}}`))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("stream error", func(t *testing.T) {
		_, ok, err := ParseEvent([]byte(`{"error":{"message":"unauthorized"}}`))
		require.False(t, ok)
		require.EqualError(t, err, "unauthorized")
	})

	t.Run("not json", func(t *testing.T) {
		_, ok, err := ParseEvent([]byte(`pong`))
		require.False(t, ok)
		require.Error(t, err)
	})
}
