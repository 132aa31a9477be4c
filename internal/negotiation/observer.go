package negotiation

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/capability"
)

// Observer receives the session's user-facing notifications. Calls are made
// from the Coordinator's event loop and must not block.
type Observer interface {
	OnLocalPreviewReady(capab *capability.Capability)
	OnRemoteStreamReady(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	OnConnected()
	OnSessionFailed(err error)
	OnSessionClosed()
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	LocalPreviewReady func(*capability.Capability)
	RemoteStreamReady func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	Connected         func()
	SessionFailed     func(error)
	SessionClosed     func()
}

func (o ObserverFuncs) OnLocalPreviewReady(capab *capability.Capability) {
	if o.LocalPreviewReady != nil {
		o.LocalPreviewReady(capab)
	}
}

func (o ObserverFuncs) OnRemoteStreamReady(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	if o.RemoteStreamReady != nil {
		o.RemoteStreamReady(track, receiver)
	}
}

func (o ObserverFuncs) OnConnected() {
	if o.Connected != nil {
		o.Connected()
	}
}

func (o ObserverFuncs) OnSessionFailed(err error) {
	if o.SessionFailed != nil {
		o.SessionFailed(err)
	}
}

func (o ObserverFuncs) OnSessionClosed() {
	if o.SessionClosed != nil {
		o.SessionClosed()
	}
}
