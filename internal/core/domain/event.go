package domain

// CallEvent is what a running call reports to the UI layer.
type CallEvent interface {
	callEvent()
}

type Joined struct {
	Meeting Meeting
	Self    Participant
}

type ParticipantJoined struct {
	Participant Participant
}

type ParticipantUpdated struct {
	Participant Participant
}

type ParticipantLeft struct {
	Participant Participant
}

type PeerStateChanged struct {
	Remote ParticipantID
	State  PeerState
}

type RemoteTrackAdded struct {
	Remote ParticipantID
	Track  RemoteTrack
}

// PeerLost means ICE restarts toward Remote are exhausted.
type PeerLost struct {
	Remote ParticipantID
}

type CaptureFailed struct {
	Err      error
	Guidance string
}

type MeetingEndedEvent struct {
	Meeting MeetingID
}

type Left struct {
	Meeting MeetingID
}

func (Joined) callEvent()             {}
func (ParticipantJoined) callEvent()  {}
func (ParticipantUpdated) callEvent() {}
func (ParticipantLeft) callEvent()    {}
func (PeerStateChanged) callEvent()   {}
func (RemoteTrackAdded) callEvent()   {}
func (PeerLost) callEvent()           {}
func (CaptureFailed) callEvent()      {}
func (MeetingEndedEvent) callEvent()  {}
func (Left) callEvent()               {}
