package port

import (
	"context"

	"github.com/Wyydra/huddle/internal/core/domain"
)

type CaptureRequest struct {
	Audio bool
	Video bool
}

// Track is a local capture track. It is shared read-only by every peer
// connection; only the capture owner stops it.
type Track interface {
	ID() string
	Kind() domain.MediaKind
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
}

type Stream interface {
	Tracks() []Track
}

// Capture fails with domain.ErrPermissionDenied, domain.ErrDeviceNotFound or
// domain.ErrDeviceBusy.
type Capture interface {
	RequestCapture(ctx context.Context, req CaptureRequest) (Stream, error)
	RequestDisplay(ctx context.Context) (Track, error)
}

// PeerConnection is the native connection to one remote participant. Its
// events channel is the only way it reports back.
type PeerConnection interface {
	Events() <-chan domain.PeerEvent
	// SetTrack puts track on the sender of its kind. A nil track stops sending.
	SetTrack(kind domain.MediaKind, track Track) error
	CreateOffer(iceRestart bool) (domain.SessionDescription, error)
	CreateAnswer() (domain.SessionDescription, error)
	SetLocalDescription(sd domain.SessionDescription) error
	SetRemoteDescription(sd domain.SessionDescription) error
	AddICECandidate(c domain.ICECandidate) error
	Close() error
}

type PeerConnectionFactory interface {
	NewPeerConnection(remote domain.ParticipantID) (PeerConnection, error)
}
