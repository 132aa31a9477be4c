package negotiation

import "fmt"

// DescriptionRejectedError reports that the transport engine failed to create
// or refused to commit a session description. It is terminal for the session.
type DescriptionRejectedError struct {
	Op  string // e.g. "create offer", "set remote answer"
	Err error
}

func (e *DescriptionRejectedError) Error() string {
	return fmt.Sprintf("description rejected: %s: %v", e.Op, e.Err)
}

func (e *DescriptionRejectedError) Unwrap() error { return e.Err }

// ProtocolAnomaly describes a valid message or event that is unexpected in
// the current state. Anomalies are logged and ignored, except a glare with a
// peer using the local id, which fails the session.
type ProtocolAnomaly struct {
	State  State
	Event  string
	Detail string
}

func (a *ProtocolAnomaly) Error() string {
	return fmt.Sprintf("protocol anomaly: %s in %s: %s", a.Event, a.State, a.Detail)
}
