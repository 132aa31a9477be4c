package negotiation

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/signaling"
)

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

type eventKind int

const (
	evStart eventKind = iota
	evExit
	evNegotiationNeeded
	evLocalCandidate
	evRemoteTrack
	evCapabilityReady
	evCapabilityFailed
	evRemoteOffer
	evRemoteAnswer
	evRemoteCandidate
	evTransportConnected
	evTransportFailed
	evEffectFailed
)

var eventNames = map[eventKind]string{
	evStart:              "start",
	evExit:               "exit",
	evNegotiationNeeded:  "negotiation-needed",
	evLocalCandidate:     "local-candidate",
	evRemoteTrack:        "remote-track",
	evCapabilityReady:    "capability-ready",
	evCapabilityFailed:   "capability-failed",
	evRemoteOffer:        "offer",
	evRemoteAnswer:       "answer",
	evRemoteCandidate:    "candidate",
	evTransportConnected: "transport-connected",
	evTransportFailed:    "transport-failed",
	evEffectFailed:       "effect-failed",
}

func (k eventKind) String() string { return eventNames[k] }

// event is one input to the state machine.
type event struct {
	kind      eventKind
	from      string                    // remote peer id (evRemoteOffer)
	sdp       webrtc.SessionDescription // evRemoteOffer, evRemoteAnswer
	candidate webrtc.ICECandidateInit   // evLocalCandidate, evRemoteCandidate
	track     *webrtc.TrackRemote       // evRemoteTrack
	receiver  *webrtc.RTPReceiver       // evRemoteTrack
	err       error                     // evCapabilityFailed, evTransportFailed, evEffectFailed
}

// eventFromMessage maps an inbound signaling message to its event.
func eventFromMessage(msg signaling.Message) (event, bool) {
	switch msg.Kind {
	case signaling.KindOffer:
		return event{kind: evRemoteOffer, from: msg.From, sdp: msg.SDP}, true
	case signaling.KindAnswer:
		return event{kind: evRemoteAnswer, from: msg.From, sdp: msg.SDP}, true
	case signaling.KindCandidate:
		return event{kind: evRemoteCandidate, from: msg.From, candidate: msg.Candidate}, true
	default:
		return event{}, false
	}
}

// ---------------------------------------------------------------------------
// Effects
// ---------------------------------------------------------------------------

type effectKind int

const (
	effOpenHandle      effectKind = iota // create the connection handle, register its reactions
	effAcquire                           // trigger the capability acquirer
	effAttach                            // attach capability tracks, show local preview
	effSendOffer                         // create offer and send it, uncommitted
	effCommitOffer                       // commit the pending offer as local description
	effDiscardOffer                      // drop the pending offer without committing it
	effApplyRemote                       // commit sdp as remote description
	effApplyCandidates                   // add candidates to the handle, in order
	effSendAnswer                        // create answer, commit as local, send
	effSendCandidate                     // forward a local candidate
	effRemoteTrack                       // hand a remote track to the observer
	effConnected                         // report media connectivity
	effFail                              // surface a terminal failure
	effClose                             // release handle and channel, notify closed
	effAnomaly                           // log a protocol anomaly
)

type effect struct {
	kind       effectKind
	sdp        webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	track      *webrtc.TrackRemote
	receiver   *webrtc.RTPReceiver
	err        error
}

// ---------------------------------------------------------------------------
// Machine
// ---------------------------------------------------------------------------

type capabilityState int

const (
	capNone capabilityState = iota
	capPending
	capReady
)

// machine holds the negotiation state of one session and decides, for each
// event, the next state and the effects to run. It performs no I/O.
//
// A local offer is sent first and committed only when its answer arrives, so
// the handle stays stable while a remote offer may still win a glare.
type machine struct {
	localID string
	state   State

	capability capabilityState

	// hasRemote is set once a remote description has been committed; remote
	// candidates are queued until then.
	hasRemote bool
	queue     []webrtc.ICECandidateInit
	seen      map[string]struct{}

	// pendingAnswer is set while the answerer waits for local media before
	// creating its answer.
	pendingAnswer bool

	// renegotiate records a negotiation-needed that arrived while a round
	// was in flight; it is served once the session is Stable again.
	renegotiate bool
}

func newMachine(localID string) *machine {
	return &machine{
		localID: localID,
		state:   Idle,
		seen:    make(map[string]struct{}),
	}
}

func (m *machine) anomaly(ev event, detail string) effect {
	return effect{kind: effAnomaly, err: &ProtocolAnomaly{State: m.state, Event: ev.kind.String(), Detail: detail}}
}

// handle applies ev and returns the effects to execute, in order.
func (m *machine) handle(ev event) []effect {
	if m.state.Phase == PhaseClosed {
		return nil
	}

	switch ev.kind {
	case evExit:
		m.state = Closed
		return []effect{{kind: effClose}}

	case evTransportFailed:
		m.state = Closed
		return []effect{{kind: effClose, err: ev.err}}
	}

	if m.state.Phase == PhaseFailed {
		return nil
	}

	switch ev.kind {
	case evStart:
		if m.state != Idle {
			return []effect{m.anomaly(ev, "session already started")}
		}
		return m.open()

	case evCapabilityReady:
		return m.onCapabilityReady()

	case evCapabilityFailed, evEffectFailed:
		m.state = Failed
		return []effect{{kind: effFail, err: ev.err}}

	case evNegotiationNeeded:
		return m.onNegotiationNeeded(ev)

	case evLocalCandidate:
		return []effect{{kind: effSendCandidate, candidates: []webrtc.ICECandidateInit{ev.candidate}}}

	case evRemoteTrack:
		return []effect{{kind: effRemoteTrack, track: ev.track, receiver: ev.receiver}}

	case evTransportConnected:
		return []effect{{kind: effConnected}}

	case evRemoteOffer:
		return m.onRemoteOffer(ev)

	case evRemoteAnswer:
		return m.onRemoteAnswer(ev)

	case evRemoteCandidate:
		return m.onRemoteCandidate(ev)
	}

	return nil
}

// open performs Idle → Connecting.
func (m *machine) open() []effect {
	m.state = Connecting
	m.capability = capPending
	return []effect{{kind: effOpenHandle}, {kind: effAcquire}}
}

func (m *machine) onCapabilityReady() []effect {
	m.capability = capReady
	effects := []effect{{kind: effAttach}}

	if m.pendingAnswer {
		m.pendingAnswer = false
		effects = append(effects, effect{kind: effSendAnswer})
		effects = append(effects, m.settle()...)
	}
	return effects
}

func (m *machine) onNegotiationNeeded(ev event) []effect {
	switch m.state.Phase {
	case PhaseConnecting, PhaseStable:
		m.state = NegotiatingOfferer
		return []effect{{kind: effSendOffer}}
	case PhaseNegotiating:
		m.renegotiate = true
		return nil
	default:
		return []effect{m.anomaly(ev, "no connection handle")}
	}
}

func (m *machine) onRemoteOffer(ev event) []effect {
	var effects []effect

	switch m.state {
	case Idle:
		effects = append(effects, m.open()...)

	case NegotiatingOfferer:
		if ev.from != "" && ev.from == m.localID {
			m.state = Failed
			return []effect{{kind: effFail, err: &ProtocolAnomaly{
				State:  NegotiatingOfferer,
				Event:  ev.kind.String(),
				Detail: fmt.Sprintf("glare with a peer using the local id %q", ev.from),
			}}}
		}
		if !m.politeTo(ev.from) {
			return []effect{m.anomaly(ev, fmt.Sprintf("glare with %q: keeping local offer", ev.from))}
		}
		// Our offer loses; its changes are offered again after this round.
		effects = append(effects, effect{kind: effDiscardOffer})
		m.renegotiate = true

	case NegotiatingAnswerer:
		return []effect{m.anomaly(ev, "answer to previous offer still pending")}
	}

	m.state = NegotiatingAnswerer
	effects = append(effects, m.commitRemote(ev.sdp)...)

	switch m.capability {
	case capNone:
		m.capability = capPending
		effects = append(effects, effect{kind: effAcquire})
		m.pendingAnswer = true
	case capPending:
		m.pendingAnswer = true
	case capReady:
		effects = append(effects, effect{kind: effSendAnswer})
		effects = append(effects, m.settle()...)
	}
	return effects
}

func (m *machine) onRemoteAnswer(ev event) []effect {
	if m.state != NegotiatingOfferer {
		return []effect{m.anomaly(ev, "no outstanding offer")}
	}
	effects := []effect{{kind: effCommitOffer}}
	effects = append(effects, m.commitRemote(ev.sdp)...)
	return append(effects, m.settle()...)
}

func (m *machine) onRemoteCandidate(ev event) []effect {
	key := candidateKey(ev.candidate)
	if _, dup := m.seen[key]; dup {
		return nil
	}
	m.seen[key] = struct{}{}

	if !m.hasRemote {
		m.queue = append(m.queue, ev.candidate)
		return nil
	}
	return []effect{{kind: effApplyCandidates, candidates: []webrtc.ICECandidateInit{ev.candidate}}}
}

// commitRemote applies a remote description and flushes queued candidates
// right behind it.
func (m *machine) commitRemote(sdp webrtc.SessionDescription) []effect {
	effects := []effect{{kind: effApplyRemote, sdp: sdp}}
	m.hasRemote = true

	if len(m.queue) > 0 {
		effects = append(effects, effect{kind: effApplyCandidates, candidates: m.queue})
		m.queue = nil
	}
	return effects
}

// settle moves to Stable, serving a coalesced renegotiation if one is due.
func (m *machine) settle() []effect {
	m.state = Stable
	if !m.renegotiate {
		return nil
	}
	m.renegotiate = false
	m.state = NegotiatingOfferer
	return []effect{{kind: effSendOffer}}
}

// politeTo decides glare: the peer with the lower id yields. A remote that
// did not identify itself is always yielded to. Equal ids are rejected before
// this is consulted.
func (m *machine) politeTo(remoteID string) bool {
	return remoteID == "" || m.localID < remoteID
}

func candidateKey(c webrtc.ICECandidateInit) string {
	key := c.Candidate
	if c.SDPMid != nil {
		key += "|mid=" + *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		key += fmt.Sprintf("|idx=%d", *c.SDPMLineIndex)
	}
	return key
}
