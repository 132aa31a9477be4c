// Package signaling carries offer/answer/candidate messages between two peers
// over a relayed WebSocket. It knows the wire format but no negotiation rules.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Kind is the tag of a signaling message.
type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
)

// Message is one signaling message. Exactly one of SDP (offer, answer) or
// Candidate (candidate) is meaningful, as selected by Kind. Build it with
// Offer, Answer or Candidate and treat it as a value.
type Message struct {
	Kind      Kind
	Session   string // room the message belongs to; empty when unscoped
	From      string // sender peer id; empty when the sender did not say
	SDP       webrtc.SessionDescription
	Candidate webrtc.ICECandidateInit
}

func Offer(sdp webrtc.SessionDescription) Message {
	return Message{Kind: KindOffer, SDP: sdp}
}

func Answer(sdp webrtc.SessionDescription) Message {
	return Message{Kind: KindAnswer, SDP: sdp}
}

func Candidate(c webrtc.ICECandidateInit) Message {
	return Message{Kind: KindCandidate, Candidate: c}
}

// ErrUnknownKind is returned by Decode for a well-formed envelope whose type
// this version does not understand. Receivers ignore such messages.
var ErrUnknownKind = errors.New("unknown signaling message type")

// DecodeError reports a malformed signaling payload.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode signaling message: %s: %v", e.Reason, e.Err)
	}
	return "decode signaling message: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Wire format
// ---------------------------------------------------------------------------

// envelope is the JSON structure exchanged over the relay. It matches what a
// browser produces from RTCSessionDescription / RTCIceCandidate.toJSON().
type envelope struct {
	Type      Kind       `json:"type"`
	Session   string     `json:"session,omitempty"`
	From      string     `json:"from,omitempty"`
	SDP       *sdp       `json:"sdp,omitempty"`
	Candidate *candidate `json:"candidate,omitempty"`
}

type sdp struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// toPion converts the wire description; an empty type is taken from the tag.
func (s sdp) toPion(tag Kind) (webrtc.SessionDescription, error) {
	typ := s.Type
	if typ == "" {
		typ = string(tag)
	}
	if typ != string(tag) {
		return webrtc.SessionDescription{}, fmt.Errorf("%s message has sdp.type=%q", tag, s.Type)
	}
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(typ), SDP: s.SDP}, nil
}

func (c candidate) toPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// Encode serializes a Message into its JSON envelope.
func Encode(msg Message) ([]byte, error) {
	env := envelope{Type: msg.Kind, Session: msg.Session, From: msg.From}

	switch msg.Kind {
	case KindOffer, KindAnswer:
		env.SDP = &sdp{Type: string(msg.Kind), SDP: msg.SDP.SDP}
	case KindCandidate:
		env.Candidate = &candidate{
			Candidate:        msg.Candidate.Candidate,
			SDPMid:           msg.Candidate.SDPMid,
			SDPMLineIndex:    msg.Candidate.SDPMLineIndex,
			UsernameFragment: msg.Candidate.UsernameFragment,
		}
	default:
		return nil, fmt.Errorf("encode signaling message: unsupported type %q", msg.Kind)
	}

	return json.Marshal(env)
}

// Decode parses one envelope. Malformed payloads yield a *DecodeError, unknown
// types yield ErrUnknownKind.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, &DecodeError{Reason: "invalid JSON", Err: err}
	}

	msg := Message{Kind: env.Type, Session: env.Session, From: env.From}

	switch env.Type {
	case KindOffer, KindAnswer:
		if env.SDP == nil || env.SDP.SDP == "" {
			return Message{}, &DecodeError{Reason: fmt.Sprintf("%s message missing sdp", env.Type)}
		}
		desc, err := env.SDP.toPion(env.Type)
		if err != nil {
			return Message{}, &DecodeError{Reason: "bad sdp", Err: err}
		}
		msg.SDP = desc

	case KindCandidate:
		if env.Candidate == nil {
			return Message{}, &DecodeError{Reason: "candidate message missing candidate"}
		}
		msg.Candidate = env.Candidate.toPion()

	case "":
		return Message{}, &DecodeError{Reason: "missing type"}

	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}

	return msg, nil
}
