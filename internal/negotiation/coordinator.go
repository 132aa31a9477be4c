package negotiation

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/capability"
	"github.com/1ureka/rtcall/internal/signaling"
	"github.com/1ureka/rtcall/internal/util"
)

// Engine is the transport engine consumed by the Coordinator: one peer
// connection, owned exclusively by one Coordinator.
type Engine interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) error

	OnNegotiationNeeded(func())
	OnICECandidate(func(*webrtc.ICECandidate))
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))

	Close() error
}

// EngineFactory creates the session's Engine. It is called at most once per
// Coordinator.
type EngineFactory func(ctx context.Context) (Engine, error)

// Signaler sends messages to the remote peer and releases the channel.
type Signaler interface {
	Send(msg signaling.Message) error
	Close() error
}

// Config wires a Coordinator to its collaborators. All fields but Observer
// are required.
type Config struct {
	PeerID       string
	NewEngine    EngineFactory
	Signaler     Signaler
	Capabilities *capability.Acquirer
	Observer     Observer
}

const eventBuffer = 128

var errNoPendingOffer = errors.New("no pending offer")

// Coordinator runs the negotiation of one session on a single event loop.
// A closed Coordinator cannot be restarted; create a new one.
type Coordinator struct {
	cfg      Config
	observer Observer
	log      util.Scope

	m      *machine
	engine Engine

	events chan event
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	state State

	// pendingOffer is the sent but uncommitted offer of the current round.
	pendingOffer *webrtc.SessionDescription

	previewed bool
	closeOnce sync.Once
}

// New creates a Coordinator in state Idle. Call Run to process events.
func New(cfg Config) *Coordinator {
	obs := cfg.Observer
	if obs == nil {
		obs = ObserverFuncs{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:      cfg,
		observer: obs,
		log:      util.Scope("coordinator"),
		m:        newMachine(cfg.PeerID),
		events:   make(chan event, eventBuffer),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		state:    Idle,
	}
}

// ---------------------------------------------------------------------------
// Inputs
// ---------------------------------------------------------------------------

// Start begins a session as the initiating side: Idle → Connecting.
func (c *Coordinator) Start() { c.post(event{kind: evStart}) }

// Exit closes the session. Safe to call multiple times and from any goroutine.
func (c *Coordinator) Exit() { c.post(event{kind: evExit}) }

// HandleMessage feeds an inbound signaling message to the session. It has the
// signature expected by signaling.Client.Run.
func (c *Coordinator) HandleMessage(msg signaling.Message) {
	ev, ok := eventFromMessage(msg)
	if !ok {
		c.log.Debugf("ignoring %q message", msg.Kind)
		return
	}
	c.post(ev)
}

// post delivers ev to the loop, or drops it once the session is over.
func (c *Coordinator) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// State returns the current state snapshot.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Done is closed once the session reached Closed and released its resources.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

// Run processes events until the session is Closed. Cancelling ctx is
// equivalent to Exit.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case ev := <-c.events:
			c.dispatch(ev)
		case <-ctx.Done():
			c.dispatch(event{kind: evExit})
		}

		if c.State() == Closed {
			return
		}
	}
}

func (c *Coordinator) dispatch(ev event) {
	before := c.m.state
	effects := c.m.handle(ev)
	c.setState(c.m.state)

	if before != c.m.state {
		c.log.Debugf("%s: %s → %s", ev.kind, before, c.m.state)
	}

	for _, eff := range effects {
		if err := c.execute(eff); err != nil {
			c.log.Errorf("%v", err)
			// The failure event carries its own effects; drop the rest of this batch.
			for _, f := range c.m.handle(event{kind: evEffectFailed, err: err}) {
				_ = c.execute(f)
			}
			c.setState(c.m.state)
			return
		}
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Effects
// ---------------------------------------------------------------------------

func (c *Coordinator) execute(eff effect) error {
	switch eff.kind {
	case effOpenHandle:
		return c.openHandle()

	case effAcquire:
		c.acquire()

	case effAttach:
		return c.attach()

	case effSendOffer:
		offer, err := c.engine.CreateOffer()
		if err != nil {
			return &DescriptionRejectedError{Op: "create offer", Err: err}
		}
		c.pendingOffer = &offer
		c.send(signaling.Offer(offer))

	case effCommitOffer:
		if c.pendingOffer == nil {
			return &DescriptionRejectedError{Op: "set local offer", Err: errNoPendingOffer}
		}
		offer := *c.pendingOffer
		c.pendingOffer = nil
		if err := c.engine.SetLocalDescription(offer); err != nil {
			return &DescriptionRejectedError{Op: "set local offer", Err: err}
		}

	case effDiscardOffer:
		c.log.Infof("glare: dropping local offer")
		c.pendingOffer = nil

	case effApplyRemote:
		if err := c.engine.SetRemoteDescription(eff.sdp); err != nil {
			return &DescriptionRejectedError{Op: "set remote " + eff.sdp.Type.String(), Err: err}
		}

	case effApplyCandidates:
		for _, cand := range eff.candidates {
			if err := c.engine.AddICECandidate(cand); err != nil {
				c.log.Warnf("failed to add remote candidate %q: %v", cand.Candidate, err)
			}
		}

	case effSendAnswer:
		answer, err := c.engine.CreateAnswer()
		if err != nil {
			return &DescriptionRejectedError{Op: "create answer", Err: err}
		}
		if err := c.engine.SetLocalDescription(answer); err != nil {
			return &DescriptionRejectedError{Op: "set local answer", Err: err}
		}
		c.send(signaling.Answer(c.localDescription(answer)))

	case effSendCandidate:
		for _, cand := range eff.candidates {
			c.send(signaling.Candidate(cand))
		}

	case effRemoteTrack:
		c.observer.OnRemoteStreamReady(eff.track, eff.receiver)

	case effConnected:
		c.log.Infof("peer connected")
		c.observer.OnConnected()

	case effFail:
		c.log.Errorf("session failed: %v", eff.err)
		c.observer.OnSessionFailed(eff.err)

	case effClose:
		c.close(eff.err)

	case effAnomaly:
		c.log.Warnf("%v", eff.err)
	}
	return nil
}

func (c *Coordinator) openHandle() error {
	engine, err := c.cfg.NewEngine(c.ctx)
	if err != nil {
		return err
	}
	c.engine = engine

	engine.OnNegotiationNeeded(func() {
		c.post(event{kind: evNegotiationNeeded})
	})
	engine.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return // gathering complete
		}
		c.post(event{kind: evLocalCandidate, candidate: cand.ToJSON()})
	})
	engine.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.post(event{kind: evRemoteTrack, track: track, receiver: receiver})
	})
	engine.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			c.post(event{kind: evTransportConnected})
		case webrtc.PeerConnectionStateFailed:
			c.post(event{kind: evTransportFailed, err: errors.New("peer connection failed")})
		}
	})
	return nil
}

// acquire starts the capability request and reports its completion as an
// event.
func (c *Coordinator) acquire() {
	acq := c.cfg.Capabilities
	acq.Start()

	go func() {
		select {
		case <-acq.Ready():
		case <-c.done:
			return
		}
		if _, err := acq.Result(); err != nil {
			c.post(event{kind: evCapabilityFailed, err: err})
			return
		}
		c.post(event{kind: evCapabilityReady})
	}()
}

func (c *Coordinator) attach() error {
	if err := c.cfg.Capabilities.Attach(c.engine); err != nil {
		return err
	}
	if !c.previewed {
		c.previewed = true
		capab, _ := c.cfg.Capabilities.Result()
		c.observer.OnLocalPreviewReady(capab)
	}
	return nil
}

// localDescription prefers the committed description over the created one.
func (c *Coordinator) localDescription(created webrtc.SessionDescription) webrtc.SessionDescription {
	if d := c.engine.LocalDescription(); d != nil {
		return *d
	}
	return created
}

func (c *Coordinator) send(msg signaling.Message) {
	if err := c.cfg.Signaler.Send(msg); err != nil && !errors.Is(err, signaling.ErrChannelClosed) {
		c.log.Warnf("failed to send %s: %v", msg.Kind, err)
	}
}

// close releases everything exactly once: pending capability request,
// connection handle, signaling channel.
func (c *Coordinator) close(reason error) {
	c.closeOnce.Do(func() {
		if reason != nil {
			c.log.Warnf("closing session: %v", reason)
		} else {
			c.log.Infof("closing session")
		}

		c.cancel()
		c.cfg.Capabilities.Close()

		var errs []error
		if c.engine != nil {
			errs = append(errs, c.engine.Close())
		}
		errs = append(errs, c.cfg.Signaler.Close())
		if err := errors.Join(errs...); err != nil {
			c.log.Debugf("close: %v", err)
		}

		close(c.done)
		c.observer.OnSessionClosed()
	})
}
