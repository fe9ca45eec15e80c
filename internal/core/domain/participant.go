package domain

import (
	"errors"
	"time"
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

type MediaFlags struct {
	Audio bool
	Video bool
}

// Identity is what the identity provider hands us for the local user.
type Identity struct {
	ID          ParticipantID
	DisplayName string
}

type Participant struct {
	MeetingID   MeetingID
	ID          ParticipantID
	DisplayName string
	Role        Role
	Media       MediaFlags
	JoinedAt    time.Time
	UpdatedAt   time.Time
}

func NewParticipant(m Meeting, who Identity, now time.Time) (*Participant, error) {
	if who.ID == "" {
		return nil, errors.New("participant id cannot be empty")
	}
	name := who.DisplayName
	if name == "" {
		name = who.ID.String()
	}
	role := RoleGuest
	if m.IsHost(who.ID) {
		role = RoleHost
	}
	now = now.UTC()
	return &Participant{
		MeetingID:   m.ID,
		ID:          who.ID,
		DisplayName: name,
		Role:        role,
		Media:       MediaFlags{Audio: true, Video: true},
		JoinedAt:    now,
		UpdatedAt:   now,
	}, nil
}

func (p Participant) IsHost() bool {
	return p.Role == RoleHost
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// RosterChange is one observation from a roster watch.
type RosterChange struct {
	Kind        ChangeKind
	Participant Participant
}
