package negotiation

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(effects []effect) []effectKind {
	out := make([]effectKind, 0, len(effects))
	for _, e := range effects {
		out = append(out, e.kind)
	}
	return out
}

func remoteOffer(from string) event {
	return event{kind: evRemoteOffer, from: from, sdp: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}}
}

func remoteAnswer() event {
	return event{kind: evRemoteAnswer, sdp: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}}
}

func remoteCandidate(c string) event {
	return event{kind: evRemoteCandidate, candidate: webrtc.ICECandidateInit{Candidate: c}}
}

// stableOfferer drives a fresh machine through a full offerer round.
func stableOfferer(t *testing.T) *machine {
	t.Helper()
	m := newMachine("a")
	m.handle(event{kind: evStart})
	m.handle(event{kind: evCapabilityReady})
	m.handle(event{kind: evNegotiationNeeded})
	m.handle(remoteAnswer())
	require.Equal(t, Stable, m.state)
	return m
}

func TestStartOpensHandleAndAcquires(t *testing.T) {
	m := newMachine("a")

	effects := m.handle(event{kind: evStart})
	assert.Equal(t, Connecting, m.state)
	assert.Equal(t, []effectKind{effOpenHandle, effAcquire}, kinds(effects))

	effects = m.handle(event{kind: evStart})
	assert.Equal(t, []effectKind{effAnomaly}, kinds(effects))
	assert.Equal(t, Connecting, m.state)
}

func TestOffererRound(t *testing.T) {
	m := newMachine("a")
	m.handle(event{kind: evStart})

	assert.Equal(t, []effectKind{effAttach}, kinds(m.handle(event{kind: evCapabilityReady})))

	effects := m.handle(event{kind: evNegotiationNeeded})
	assert.Equal(t, []effectKind{effSendOffer}, kinds(effects))
	assert.Equal(t, NegotiatingOfferer, m.state)

	effects = m.handle(remoteAnswer())
	assert.Equal(t, []effectKind{effCommitOffer, effApplyRemote}, kinds(effects))
	assert.Equal(t, Stable, m.state)
}

func TestOfferWhileIdleWaitsForCapability(t *testing.T) {
	m := newMachine("b")

	effects := m.handle(remoteOffer("a"))
	assert.Equal(t, []effectKind{effOpenHandle, effAcquire, effApplyRemote}, kinds(effects))
	assert.Equal(t, NegotiatingAnswerer, m.state)

	effects = m.handle(event{kind: evCapabilityReady})
	assert.Equal(t, []effectKind{effAttach, effSendAnswer}, kinds(effects))
	assert.Equal(t, Stable, m.state)
}

func TestOfferInStableAnswersImmediately(t *testing.T) {
	m := stableOfferer(t)

	effects := m.handle(remoteOffer("b"))
	assert.Equal(t, []effectKind{effApplyRemote, effSendAnswer}, kinds(effects))
	assert.Equal(t, Stable, m.state)
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	m := newMachine("b")

	for _, c := range []string{"c1", "c2", "c3"} {
		assert.Empty(t, m.handle(remoteCandidate(c)))
	}
	assert.Equal(t, Idle, m.state)

	effects := m.handle(remoteOffer("a"))
	require.Equal(t, []effectKind{effOpenHandle, effAcquire, effApplyRemote, effApplyCandidates}, kinds(effects))

	var got []string
	for _, c := range effects[3].candidates {
		got = append(got, c.Candidate)
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, got)
	assert.Empty(t, m.queue)

	effects = m.handle(remoteCandidate("c4"))
	require.Equal(t, []effectKind{effApplyCandidates}, kinds(effects))
	assert.Equal(t, "c4", effects[0].candidates[0].Candidate)
}

func TestDuplicateCandidatesDropped(t *testing.T) {
	m := stableOfferer(t)

	mid := "0"
	idx := uint16(0)
	c := event{kind: evRemoteCandidate, candidate: webrtc.ICECandidateInit{Candidate: "c1", SDPMid: &mid, SDPMLineIndex: &idx}}

	assert.Len(t, m.handle(c), 1)
	assert.Empty(t, m.handle(c))
}

func TestRenegotiationCoalesced(t *testing.T) {
	m := newMachine("a")
	m.handle(event{kind: evStart})
	m.handle(event{kind: evCapabilityReady})
	m.handle(event{kind: evNegotiationNeeded})

	// Two more triggers while the first round is in flight collapse into one.
	assert.Empty(t, m.handle(event{kind: evNegotiationNeeded}))
	assert.Empty(t, m.handle(event{kind: evNegotiationNeeded}))

	effects := m.handle(remoteAnswer())
	assert.Equal(t, []effectKind{effCommitOffer, effApplyRemote, effSendOffer}, kinds(effects))
	assert.Equal(t, NegotiatingOfferer, m.state)

	effects = m.handle(remoteAnswer())
	assert.Equal(t, []effectKind{effCommitOffer, effApplyRemote}, kinds(effects))
	assert.Equal(t, Stable, m.state)
}

func TestGlarePoliteSideDropsOffer(t *testing.T) {
	m := newMachine("a")
	m.handle(event{kind: evStart})
	m.handle(event{kind: evCapabilityReady})
	m.handle(event{kind: evNegotiationNeeded})

	// Nothing was committed for the dropped offer, so the remote one applies
	// directly and the local changes are offered again.
	effects := m.handle(remoteOffer("b"))
	assert.Equal(t, []effectKind{effDiscardOffer, effApplyRemote, effSendAnswer, effSendOffer}, kinds(effects))
	assert.Equal(t, NegotiatingOfferer, m.state)

	effects = m.handle(remoteAnswer())
	assert.Equal(t, []effectKind{effCommitOffer, effApplyRemote}, kinds(effects))
	assert.Equal(t, Stable, m.state)
}

func TestGlareImpoliteSideKeepsOffer(t *testing.T) {
	m := newMachine("b")
	m.handle(event{kind: evStart})
	m.handle(event{kind: evCapabilityReady})
	m.handle(event{kind: evNegotiationNeeded})

	effects := m.handle(remoteOffer("a"))
	require.Equal(t, []effectKind{effAnomaly}, kinds(effects))

	var anomaly *ProtocolAnomaly
	require.ErrorAs(t, effects[0].err, &anomaly)
	assert.Equal(t, NegotiatingOfferer, anomaly.State)
	assert.Equal(t, NegotiatingOfferer, m.state)
}

func TestGlareWithOwnIDFails(t *testing.T) {
	m := newMachine("x")
	m.handle(event{kind: evStart})
	m.handle(event{kind: evCapabilityReady})
	m.handle(event{kind: evNegotiationNeeded})

	effects := m.handle(remoteOffer("x"))
	require.Equal(t, []effectKind{effFail}, kinds(effects))

	var anomaly *ProtocolAnomaly
	require.ErrorAs(t, effects[0].err, &anomaly)
	assert.Equal(t, NegotiatingOfferer, anomaly.State)
	assert.Equal(t, Failed, m.state)
}

func TestUnsolicitedAnswerIsAnomaly(t *testing.T) {
	m := stableOfferer(t)

	effects := m.handle(remoteAnswer())
	assert.Equal(t, []effectKind{effAnomaly}, kinds(effects))
	assert.Equal(t, Stable, m.state)
}

func TestCapabilityFailure(t *testing.T) {
	m := newMachine("a")
	m.handle(event{kind: evStart})

	effects := m.handle(event{kind: evCapabilityFailed, err: assert.AnError})
	require.Equal(t, []effectKind{effFail}, kinds(effects))
	assert.ErrorIs(t, effects[0].err, assert.AnError)
	assert.Equal(t, Failed, m.state)

	// Failed absorbs everything except exit.
	assert.Empty(t, m.handle(remoteOffer("b")))
	assert.Empty(t, m.handle(event{kind: evNegotiationNeeded}))

	assert.Equal(t, []effectKind{effClose}, kinds(m.handle(event{kind: evExit})))
	assert.Equal(t, Closed, m.state)
}

func TestClosedIgnoresEverything(t *testing.T) {
	m := stableOfferer(t)

	assert.Equal(t, []effectKind{effClose}, kinds(m.handle(event{kind: evExit})))
	assert.Empty(t, m.handle(event{kind: evExit}))
	assert.Empty(t, m.handle(remoteOffer("b")))
	assert.Empty(t, m.handle(event{kind: evCapabilityFailed, err: assert.AnError}))
	assert.Equal(t, Closed, m.state)
}

func TestTransportFailureCloses(t *testing.T) {
	m := stableOfferer(t)

	effects := m.handle(event{kind: evTransportFailed, err: assert.AnError})
	require.Equal(t, []effectKind{effClose}, kinds(effects))
	assert.Equal(t, assert.AnError, effects[0].err)
	assert.Equal(t, Closed, m.state)
}

func TestPoliteness(t *testing.T) {
	m := newMachine("b")
	assert.True(t, m.politeTo(""))
	assert.True(t, m.politeTo("c"))
	assert.False(t, m.politeTo("a"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Negotiating(Offerer)", NegotiatingOfferer.String())
	assert.Equal(t, "Stable", Stable.String())
	assert.True(t, Failed.Terminal())
	assert.False(t, Stable.Terminal())
}
