package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSignalURL(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		room string
		want string
	}{
		{"bare host", "example.com", "demo", "wss://example.com/signal/demo"},
		{"ws scheme keeps port", "ws://127.0.0.1:8080/anything", "demo", "ws://127.0.0.1:8080/signal/demo"},
		{"http maps to ws", "http://localhost:8080", "", "ws://localhost:8080/signal/default"},
		{"room is escaped", "wss://relay.example", "a b", "wss://relay.example/signal/a%20b"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeSignalURL(tc.raw, tc.room)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeSignalURLRejectsEmptyHost(t *testing.T) {
	_, err := NormalizeSignalURL("ws://", "demo")
	assert.Error(t, err)
}

func TestCallConfigValidate(t *testing.T) {
	cfg := DefaultCallConfig()
	require.Error(t, cfg.Validate(), "missing URL must fail")

	cfg.SignalURL = "ws://localhost:8080/signal/default"
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.PeerID, "peer id is generated")

	cfg.ICEServer = "turn:relay.example:3478"
	assert.Error(t, cfg.Validate())
}

func TestRelayConfigValidate(t *testing.T) {
	cfg := RelayConfig{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultListen, cfg.Listen)

	cfg.Listen = "nonsense"
	assert.Error(t, cfg.Validate())
}
