package domain

import (
	"errors"
	"time"
)

type MeetingStatus string

const (
	MeetingActive MeetingStatus = "active"
	MeetingEnded  MeetingStatus = "ended"
)

type Meeting struct {
	ID        MeetingID
	HostID    ParticipantID
	Status    MeetingStatus
	CreatedAt time.Time
	EndedAt   *time.Time
}

func NewMeeting(host ParticipantID, now time.Time) (*Meeting, error) {
	if host == "" {
		return nil, errors.New("meeting host cannot be empty")
	}
	return &Meeting{
		ID:        NewMeetingID(),
		HostID:    host,
		Status:    MeetingActive,
		CreatedAt: now.UTC(),
	}, nil
}

func (m Meeting) IsActive() bool {
	return m.Status == MeetingActive
}

func (m Meeting) IsHost(id ParticipantID) bool {
	return m.HostID == id
}

// End moves the meeting to its terminal state. It reports false when the
// meeting had already ended, in which case EndedAt keeps its first value.
func (m *Meeting) End(at time.Time) bool {
	if m.Status == MeetingEnded {
		return false
	}
	t := at.UTC()
	m.Status = MeetingEnded
	m.EndedAt = &t
	return true
}
