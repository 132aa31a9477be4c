package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/capability"
	"github.com/1ureka/rtcall/internal/util"
)

const pliInterval = 3 * time.Second

// rtcpWriter is the part of the transport used to request keyframes.
type rtcpWriter interface {
	WriteRTCP(pkts []rtcp.Packet) error
}

// console is the terminal stand-in for the call UI: it logs session events,
// feeds the local capability and drains remote tracks into the stats.
type console struct {
	ctx   context.Context
	stats *util.MediaStats

	mu     sync.Mutex
	writer rtcpWriter

	failed chan error
}

func newConsole(ctx context.Context, stats *util.MediaStats) *console {
	return &console{
		ctx:    ctx,
		stats:  stats,
		failed: make(chan error, 1),
	}
}

// bind sets the transport used for keyframe requests.
func (c *console) bind(w rtcpWriter) {
	c.mu.Lock()
	c.writer = w
	c.mu.Unlock()
}

func (c *console) rtcp() rtcpWriter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writer
}

func (c *console) OnLocalPreviewReady(capab *capability.Capability) {
	kinds := make([]string, 0, len(capab.Tracks))
	for _, k := range capab.Kinds() {
		kinds = append(kinds, k.String())
	}
	util.LogInfo("local media ready: %s", strings.Join(kinds, " + "))
	go capab.Pump(c.ctx)
}

func (c *console) OnRemoteStreamReady(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	c.stats.AddTrack()
	util.LogInfo("remote %s track %s (%s)", track.Kind(), track.ID(), track.Codec().MimeType)

	go c.drain(track)
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go c.requestKeyframes(track)
	}
}

func (c *console) OnConnected() {
	util.LogSuccess("media connected")
}

func (c *console) OnSessionFailed(err error) {
	select {
	case c.failed <- err:
	default:
	}
}

func (c *console) OnSessionClosed() {
	util.LogInfo("call closed")
}

// drain reads RTP from track until it ends, counting packets and bytes.
func (c *console) drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			util.LogDebug("remote %s track ended: %v", track.Kind(), err)
			return
		}
		c.stats.AddPacket(n)
	}
}

// requestKeyframes sends a PictureLossIndication for track periodically so a
// decoder joining late gets a keyframe.
func (c *console) requestKeyframes(track *webrtc.TrackRemote) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w := c.rtcp()
			if w == nil {
				continue
			}
			pli := &rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}
			if err := w.WriteRTCP([]rtcp.Packet{pli}); err != nil {
				util.LogDebug("keyframe requests stopped: %v", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}
