// Package config holds the CLI configuration types.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultICEServer = "stun:stun.l.google.com:19302"
	DefaultRoom      = "default"
	DefaultListen    = ":8080"
)

// CallConfig stores the parameters of one call, gathered from flags or the
// interactive prompts.
type CallConfig struct {
	SignalURL string // WebSocket URL of the relay, including the room path
	Room      string // session identifier stamped on every signaling message
	PeerID    string // local peer id, used for the glare tie-break
	ICEServer string // single STUN server URL; empty disables ICE servers
	Initiate  bool   // send the first offer instead of waiting for one
	Audio     bool
	Video     bool
}

// DefaultCallConfig returns a config with audio, video and the public STUN server.
func DefaultCallConfig() CallConfig {
	return CallConfig{
		Room:      DefaultRoom,
		ICEServer: DefaultICEServer,
		Audio:     true,
		Video:     true,
	}
}

// Validate checks the config and fills in a generated PeerID when empty.
func (c *CallConfig) Validate() error {
	if c.SignalURL == "" {
		return errors.New("missing signaling URL")
	}
	if c.Room == "" {
		c.Room = DefaultRoom
	}
	if c.PeerID == "" {
		c.PeerID = uuid.NewString()
	}
	if c.ICEServer != "" && !strings.HasPrefix(c.ICEServer, "stun:") && !strings.HasPrefix(c.ICEServer, "stuns:") {
		return fmt.Errorf("invalid ICE server %q: only stun: URLs are supported", c.ICEServer)
	}
	return nil
}

// RelayConfig stores the relay server parameters.
type RelayConfig struct {
	Listen string
}

// Validate checks the relay config.
func (c *RelayConfig) Validate() error {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if !strings.Contains(c.Listen, ":") {
		return fmt.Errorf("invalid listen address %q", c.Listen)
	}
	return nil
}

// NormalizeSignalURL turns a raw host or URL into the relay WebSocket URL for
// room, e.g. "example.com" → "wss://example.com/signal/demo".
func NormalizeSignalURL(raw, room string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "wss"
	switch u.Scheme {
	case "ws", "wss":
		scheme = u.Scheme
	case "http":
		scheme = "ws"
	}
	if room == "" {
		room = DefaultRoom
	}
	return fmt.Sprintf("%s://%s/signal/%s", scheme, u.Host, url.PathEscape(room)), nil
}
