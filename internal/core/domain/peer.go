package domain

type PeerState string

const (
	PeerNew       PeerState = "new"
	PeerOffering  PeerState = "offering"
	PeerAnswering PeerState = "answering"
	PeerConnected PeerState = "connected"
	PeerDegraded  PeerState = "degraded"
	PeerFailed    PeerState = "failed"
	PeerClosed    PeerState = "closed"
)

// Established reports whether negotiation finished for this state.
func (s PeerState) Established() bool {
	return s == PeerConnected || s == PeerDegraded
}

type ConnectivityState string

const (
	ConnectivityNew          ConnectivityState = "new"
	ConnectivityChecking     ConnectivityState = "checking"
	ConnectivityConnected    ConnectivityState = "connected"
	ConnectivityCompleted    ConnectivityState = "completed"
	ConnectivityDisconnected ConnectivityState = "disconnected"
	ConnectivityFailed       ConnectivityState = "failed"
	ConnectivityClosed       ConnectivityState = "closed"
)

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     MediaKind
}

// PeerEvent is posted by a peer connection to the negotiator that owns it.
type PeerEvent interface {
	peerEvent()
}

type CandidateProduced struct {
	Candidate ICECandidate
}

type TrackReceived struct {
	Track RemoteTrack
}

type ConnectivityChanged struct {
	State ConnectivityState
}

func (CandidateProduced) peerEvent()   {}
func (TrackReceived) peerEvent()       {}
func (ConnectivityChanged) peerEvent() {}
