package wire

import "time"

// Frame types pushed on a meeting's websocket.
const (
	FrameSignal  = "signal"
	FrameRoster  = "roster"
	FrameMeeting = "meeting"
)

// Feeds a websocket client can ask for with ?feed=.
const (
	FeedSignals = "signals"
	FeedRoster  = "roster"
	FeedMeeting = "meeting"
)

type Frame struct {
	Type    string        `json:"type"`
	Signal  *Signal       `json:"signal,omitempty"`
	Change  *RosterChange `json:"change,omitempty"`
	Meeting *Meeting      `json:"meeting,omitempty"`
}

type CreateMeetingRequest struct {
	HostID      string `json:"host_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type JoinRequest struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name,omitempty"`
}

// ParticipantRequest names the caller of leave and end.
type ParticipantRequest struct {
	ParticipantID string `json:"participant_id"`
}

type MediaRequest struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

// JoinResponse carries the relay time the join was accepted at. Clients
// subscribe to signals from Since.
type JoinResponse struct {
	Meeting     Meeting     `json:"meeting"`
	Participant Participant `json:"participant"`
	Since       time.Time   `json:"since"`
}

type MeetingResponse struct {
	Meeting      Meeting       `json:"meeting"`
	Participants []Participant `json:"participants"`
	// Connections counts open feed sockets into the meeting on this relay.
	Connections int `json:"connections"`
}

type NoteRequest struct {
	OwnerID string `json:"owner_id"`
	Content string `json:"content"`
}

type UpdateNoteRequest struct {
	EditorID string `json:"editor_id"`
	Content  string `json:"content"`
}
