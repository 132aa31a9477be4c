// Package negotiation drives the offer/answer exchange of one call.
//
// A Coordinator serializes every input (local engine callbacks, inbound
// signaling messages, capability completion, exit) onto a single event loop.
// The decisions themselves live in machine, which maps (state, event) to a
// list of effects and performs no I/O; the Coordinator executes the effects
// against the transport engine, the signaling client and the observer.
package negotiation

import "fmt"

// Phase is the coarse session state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseNegotiating
	PhaseStable
	PhaseClosed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseConnecting:
		return "Connecting"
	case PhaseNegotiating:
		return "Negotiating"
	case PhaseStable:
		return "Stable"
	case PhaseClosed:
		return "Closed"
	case PhaseFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Role is the local side's part in the current negotiation round. It is only
// meaningful while Negotiating and may flip between rounds.
type Role int

const (
	RoleNone Role = iota
	RoleOfferer
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "Offerer"
	case RoleAnswerer:
		return "Answerer"
	default:
		return ""
	}
}

// State is a snapshot of the session state.
type State struct {
	Phase Phase
	Role  Role
}

var (
	Idle                = State{Phase: PhaseIdle}
	Connecting          = State{Phase: PhaseConnecting}
	NegotiatingOfferer  = State{Phase: PhaseNegotiating, Role: RoleOfferer}
	NegotiatingAnswerer = State{Phase: PhaseNegotiating, Role: RoleAnswerer}
	Stable              = State{Phase: PhaseStable}
	Closed              = State{Phase: PhaseClosed}
	Failed              = State{Phase: PhaseFailed}
)

func (s State) String() string {
	if s.Phase == PhaseNegotiating {
		return fmt.Sprintf("Negotiating(%s)", s.Role)
	}
	return s.Phase.String()
}

// Terminal reports whether no further negotiation events are processed.
func (s State) Terminal() bool {
	return s.Phase == PhaseClosed || s.Phase == PhaseFailed
}
