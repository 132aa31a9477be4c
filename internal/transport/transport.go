// Package transport wraps a single pion PeerConnection as the call's
// connection handle: session descriptions, ICE candidates, outgoing tracks.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/util"
)

// Config selects ICE servers and the logger used by the pion stack.
type Config struct {
	// ICEServers lists STUN URLs. No TURN: relayed media is out of scope.
	ICEServers []string

	// LoggerFactory for pion internals. If nil, NewLoggerFactory(false) is used.
	LoggerFactory logging.LoggerFactory
}

// Transport owns one PeerConnection. It is created once per call and never
// reused after Close.
//
// Its lifecycle is governed by the context passed at construction time and by
// Close; PeerConnection state changes are forwarded to the handler set with
// OnConnectionStateChange.
type Transport struct {
	pc *webrtc.PeerConnection

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	senders   map[string]*webrtc.RTPSender // outgoing track id → sender
	onPCState func(webrtc.PeerConnectionState)

	closeOnce sync.Once
	closeErr  error
}

// NewTransport creates a Transport backed by a new PeerConnection with the
// default codecs and interceptors registered.
func NewTransport(ctx context.Context, cfg Config) (*Transport, error) {
	api, err := newAPI(cfg)
	if err != nil {
		return nil, err
	}

	pcConfig := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		pcConfig.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	pc, err := api.NewPeerConnection(pcConfig)
	if err != nil {
		return nil, fmt.Errorf("create PeerConnection: %w", err)
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:      pc,
		ctx:     tCtx,
		cancel:  tCancel,
		senders: make(map[string]*webrtc.RTPSender),
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.mu.Lock()
		fn := t.onPCState
		t.mu.Unlock()

		if fn != nil {
			fn(state)
		}
	})

	return t, nil
}

func newAPI(cfg Config) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = cfg.LoggerFactory
	if se.LoggerFactory == nil {
		se.LoggerFactory = NewLoggerFactory(false)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Close shuts down the PeerConnection. Safe to call multiple times; only the
// first call touches the PeerConnection.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		t.closeErr = t.pc.Close()
	})
	return t.closeErr
}

// SignalingState returns the PeerConnection's current signaling state.
func (t *Transport) SignalingState() webrtc.SignalingState {
	return t.pc.SignalingState()
}

// OnConnectionStateChange registers the handler for PeerConnection state changes.
func (t *Transport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.mu.Lock()
	t.onPCState = fn
	t.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// LocalDescription returns the committed local description, or nil.
func (t *Transport) LocalDescription() *webrtc.SessionDescription {
	return t.pc.LocalDescription()
}

// OnNegotiationNeeded registers a callback invoked whenever the
// PeerConnection needs a new offer/answer round.
func (t *Transport) OnNegotiationNeeded(fn func()) {
	t.pc.OnNegotiationNeeded(fn)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (t *Transport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddTrack adds an outgoing track. Adding a track id twice is a no-op.
func (t *Transport) AddTrack(track webrtc.TrackLocal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.senders[track.ID()]; ok {
		return nil
	}
	if t.ctx.Err() != nil {
		return errors.New("transport closed")
	}

	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return err
	}
	t.senders[track.ID()] = sender

	// Interceptors only process RTCP that is read.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// OnTrack registers a callback invoked for every remote track.
func (t *Transport) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	t.pc.OnTrack(fn)
}

// WriteRTCP sends RTCP packets (e.g. PLI) to the remote peer.
func (t *Transport) WriteRTCP(pkts []rtcp.Packet) error {
	return t.pc.WriteRTCP(pkts)
}
