package domain

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type MeetingID string
type ParticipantID string

// SessionID names one negotiation between two participants. The initiator picks it.
type SessionID string

type MessageID string

func NewMeetingID() MeetingID {
	return MeetingID(uuid.New().String())
}

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.New().String())
}

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a ULID, so ids minted by one process sort in creation order.
func NewMessageID() MessageID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return MessageID(ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String())
}

func (id MeetingID) String() string {
	return string(id)
}

func (id ParticipantID) String() string {
	return string(id)
}

func (id SessionID) String() string {
	return string(id)
}

func (id MessageID) String() string {
	return string(id)
}
