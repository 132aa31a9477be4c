// Package capability obtains the local audio/video capability once per call
// and attaches its tracks to the peer connection.
package capability

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrDenied means the user or OS refused access to the devices.
	ErrDenied = errors.New("capability denied")
	// ErrUnavailable means no matching device exists.
	ErrUnavailable = errors.New("capability unavailable")
)

// Constraints selects which media kinds to request.
type Constraints struct {
	Audio bool
	Video bool
}

// Capability is an acquired set of local media tracks. It is shared by the
// local preview and the peer connection for the lifetime of one call.
type Capability struct {
	ID     string
	Tracks []webrtc.TrackLocal

	pump func(ctx context.Context)
}

// Kinds lists the codec kinds of the tracks, in track order.
func (c *Capability) Kinds() []webrtc.RTPCodecType {
	kinds := make([]webrtc.RTPCodecType, 0, len(c.Tracks))
	for _, t := range c.Tracks {
		kinds = append(kinds, t.Kind())
	}
	return kinds
}

// Pump feeds media into the tracks until ctx is cancelled. It is a no-op for
// capabilities that produce media on their own.
func (c *Capability) Pump(ctx context.Context) {
	if c.pump != nil {
		c.pump(ctx)
	}
}

// Source performs the underlying device request.
type Source interface {
	Request(ctx context.Context, c Constraints) (*Capability, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, c Constraints) (*Capability, error)

func (f SourceFunc) Request(ctx context.Context, c Constraints) (*Capability, error) {
	return f(ctx, c)
}

// TrackAdder is the part of the connection handle that accepts outgoing tracks.
type TrackAdder interface {
	AddTrack(track webrtc.TrackLocal) error
}
