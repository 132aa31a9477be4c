package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/1ureka/rtcall/internal/util"
)

// opusSilence is a single 20ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const opusFrame = 20 * time.Millisecond

// SyntheticSource stands in for camera and microphone on headless hosts: it
// builds an Opus audio track and a VP8 video track and feeds silence into
// the audio track.
type SyntheticSource struct {
	// Stats, if set, counts written samples.
	Stats *util.MediaStats
}

// NewSyntheticSource returns a SyntheticSource reporting into stats (may be nil).
func NewSyntheticSource(stats *util.MediaStats) *SyntheticSource {
	return &SyntheticSource{Stats: stats}
}

func (s *SyntheticSource) Request(ctx context.Context, c Constraints) (*Capability, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: no media kind requested", ErrUnavailable)
	}

	streamID := uuid.NewString()
	out := &Capability{ID: streamID}

	var audio *webrtc.TrackLocalStaticSample
	if c.Audio {
		t, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio-"+streamID[:8], streamID)
		if err != nil {
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		audio = t
		out.Tracks = append(out.Tracks, t)
	}
	if c.Video {
		t, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video-"+streamID[:8], streamID)
		if err != nil {
			return nil, fmt.Errorf("create video track: %w", err)
		}
		out.Tracks = append(out.Tracks, t)
	}

	if audio != nil {
		out.pump = func(ctx context.Context) { s.pumpSilence(ctx, audio) }
	}
	return out, nil
}

// pumpSilence writes one silence frame per Opus frame interval until ctx ends.
func (s *SyntheticSource) pumpSilence(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame}); err != nil {
				util.LogDebug("audio pump stopped: %v", err)
				return
			}
			if s.Stats != nil {
				s.Stats.AddSample()
			}
		case <-ctx.Done():
			return
		}
	}
}
