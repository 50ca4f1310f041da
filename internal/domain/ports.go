package domain

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Signaler performs the HTTP signaling calls against the avatar service.
type Signaler interface {
	NewSession(ctx context.Context, req NewSessionRequest) (*Session, error)
	StartSession(ctx context.Context, sessionID string, sdp SDPPayload) (json.RawMessage, error)
	SubmitICECandidate(ctx context.Context, sessionID string, candidate ICECandidate) (json.RawMessage, error)
	SendTask(ctx context.Context, sessionID, text string, kind TaskType) (json.RawMessage, error)
	StopSession(ctx context.Context, sessionID string) (json.RawMessage, error)
}

// Peer manages the WebRTC peer connection of one session.
type Peer interface {
	// OnICECandidate receives every local candidate; nil marks the end of gathering.
	OnICECandidate(fn func(candidate *ICECandidate))
	OnICEConnectionStateChange(fn func(state string))
	// OnTrack is called after a remote track has been attached to the media sink.
	OnTrack(fn func(kind, mimeType string))
	OnDataChannelMessage(fn func(label string, data []byte))
	AddLocalTrack(track webrtc.TrackLocal) error
	SetRemoteDescription(sdp SDPPayload) error
	// CreateAnswer creates an SDP answer and applies it as the local description.
	CreateAnswer() (SDPPayload, error)
	Close() error
}

// PeerFactory builds a Peer for the ICE servers negotiated by a session.
type PeerFactory interface {
	NewPeer(iceServers []ICEServer) (Peer, error)
}

// AudioCapture is the local microphone stream. It starts disabled.
type AudioCapture interface {
	Track() webrtc.TrackLocal
	Enabled() bool
	SetEnabled(enabled bool)
	Close() error
}

// MediaDevices acquires local media.
type MediaDevices interface {
	CaptureAudio(ctx context.Context) (AudioCapture, error)
}

// Reporter receives user-facing status lines and alerts.
type Reporter interface {
	Status(msg string)
	Alert(msg string)
}
