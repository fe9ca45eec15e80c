package port

import (
	"context"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

type JoinResult struct {
	Meeting     domain.Meeting
	Participant domain.Participant
	// Since is the relay time the join was accepted at. Signals sent to the
	// participant after joining carry a later timestamp.
	Since time.Time
}

// Lifecycle gates a participant's presence in a meeting. It is served
// in-process by service.MeetingService or remotely over the relay's API.
type Lifecycle interface {
	Join(ctx context.Context, meetingID domain.MeetingID, who domain.Identity) (JoinResult, error)
	Leave(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID) error
	EndMeeting(ctx context.Context, meetingID domain.MeetingID, caller domain.ParticipantID) error
	UpdateMedia(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID, flags domain.MediaFlags) error
}
