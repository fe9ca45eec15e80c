package domain

import (
	"errors"
	"strings"
	"time"
)

type NoteID string

type Note struct {
	ID        NoteID
	MeetingID MeetingID
	OwnerID   ParticipantID
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewNote(meetingID MeetingID, owner ParticipantID, content string, now time.Time) (*Note, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("note content cannot be empty")
	}
	if owner == "" {
		return nil, errors.New("note owner cannot be empty")
	}
	now = now.UTC()
	return &Note{
		ID:        NoteID(NewMessageID()),
		MeetingID: meetingID,
		OwnerID:   owner,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HistoryEntry records one participant's stay in a meeting.
type HistoryEntry struct {
	ID            string
	MeetingID     MeetingID
	ParticipantID ParticipantID
	JoinedAt      time.Time
	LeftAt        time.Time
	Duration      time.Duration
}

func NewHistoryEntry(p Participant, leftAt time.Time) HistoryEntry {
	leftAt = leftAt.UTC()
	d := leftAt.Sub(p.JoinedAt)
	if d < 0 {
		d = 0
	}
	return HistoryEntry{
		ID:            NewMessageID().String(),
		MeetingID:     p.MeetingID,
		ParticipantID: p.ID,
		JoinedAt:      p.JoinedAt,
		LeftAt:        leftAt,
		Duration:      d,
	}
}
