package port

import (
	"context"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

type MeetingRepository interface {
	CreateMeeting(ctx context.Context, m domain.Meeting) error
	GetMeeting(ctx context.Context, id domain.MeetingID) (domain.Meeting, error)
	// EndMeeting reports whether this call moved the meeting to ended.
	EndMeeting(ctx context.Context, id domain.MeetingID, at time.Time) (domain.Meeting, bool, error)

	SaveParticipant(ctx context.Context, p domain.Participant) error
	GetParticipant(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID) (domain.Participant, error)
	RemoveParticipant(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID) error
	ListParticipants(ctx context.Context, meetingID domain.MeetingID) ([]domain.Participant, error)
}

// MeetingFeed is the change-notification side of the relay. Both watches
// start with the current state and close their channel when ctx is done.
type MeetingFeed interface {
	WatchMeeting(ctx context.Context, id domain.MeetingID) (<-chan domain.Meeting, error)
	WatchParticipants(ctx context.Context, id domain.MeetingID) (<-chan domain.RosterChange, error)
}

type NoteRepository interface {
	SaveNote(ctx context.Context, n domain.Note) error
	GetNote(ctx context.Context, id domain.NoteID) (domain.Note, error)
	ListNotes(ctx context.Context, owner domain.ParticipantID) ([]domain.Note, error)
}

type HistoryRepository interface {
	SaveHistory(ctx context.Context, e domain.HistoryEntry) error
	ListHistory(ctx context.Context, participant domain.ParticipantID) ([]domain.HistoryEntry, error)
}
