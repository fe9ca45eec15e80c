// Package wire holds the JSON shapes exchanged between a relay server and
// its remote clients.
package wire

import (
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type Signal struct {
	ID          string     `json:"id,omitempty"`
	MeetingID   string     `json:"meeting_id"`
	From        string     `json:"from"`
	To          string     `json:"to,omitempty"`
	Session     string     `json:"session"`
	Kind        string     `json:"kind"`
	SDP         string     `json:"sdp,omitempty"`
	Renegotiate bool       `json:"renegotiate,omitempty"`
	Candidate   *Candidate `json:"candidate,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func FromSignal(s domain.Signal) Signal {
	out := Signal{
		ID:          s.ID.String(),
		MeetingID:   s.MeetingID.String(),
		From:        s.From.String(),
		To:          s.To.String(),
		Session:     s.Session.String(),
		Kind:        string(s.Kind),
		SDP:         s.SDP,
		Renegotiate: s.Renegotiate,
		CreatedAt:   s.CreatedAt,
	}
	if s.Candidate != nil {
		out.Candidate = &Candidate{
			Candidate:        s.Candidate.Candidate,
			SDPMid:           s.Candidate.SDPMid,
			SDPMLineIndex:    s.Candidate.SDPMLineIndex,
			UsernameFragment: s.Candidate.UsernameFragment,
		}
	}
	return out
}

func (s Signal) Domain() domain.Signal {
	out := domain.Signal{
		ID:          domain.MessageID(s.ID),
		MeetingID:   domain.MeetingID(s.MeetingID),
		From:        domain.ParticipantID(s.From),
		To:          domain.ParticipantID(s.To),
		Session:     domain.SessionID(s.Session),
		Kind:        domain.SignalKind(s.Kind),
		SDP:         s.SDP,
		Renegotiate: s.Renegotiate,
		CreatedAt:   s.CreatedAt,
	}
	if s.Candidate != nil {
		out.Candidate = &domain.ICECandidate{
			Candidate:        s.Candidate.Candidate,
			SDPMid:           s.Candidate.SDPMid,
			SDPMLineIndex:    s.Candidate.SDPMLineIndex,
			UsernameFragment: s.Candidate.UsernameFragment,
		}
	}
	return out
}

type Meeting struct {
	ID        string     `json:"id"`
	HostID    string     `json:"host_id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func FromMeeting(m domain.Meeting) Meeting {
	return Meeting{
		ID:        m.ID.String(),
		HostID:    m.HostID.String(),
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
		EndedAt:   m.EndedAt,
	}
}

func (m Meeting) Domain() domain.Meeting {
	return domain.Meeting{
		ID:        domain.MeetingID(m.ID),
		HostID:    domain.ParticipantID(m.HostID),
		Status:    domain.MeetingStatus(m.Status),
		CreatedAt: m.CreatedAt,
		EndedAt:   m.EndedAt,
	}
}

type Participant struct {
	MeetingID   string    `json:"meeting_id"`
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Audio       bool      `json:"audio"`
	Video       bool      `json:"video"`
	JoinedAt    time.Time `json:"joined_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func FromParticipant(p domain.Participant) Participant {
	return Participant{
		MeetingID:   p.MeetingID.String(),
		ID:          p.ID.String(),
		DisplayName: p.DisplayName,
		Role:        string(p.Role),
		Audio:       p.Media.Audio,
		Video:       p.Media.Video,
		JoinedAt:    p.JoinedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func FromParticipants(ps []domain.Participant) []Participant {
	out := make([]Participant, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromParticipant(p))
	}
	return out
}

func (p Participant) Domain() domain.Participant {
	return domain.Participant{
		MeetingID:   domain.MeetingID(p.MeetingID),
		ID:          domain.ParticipantID(p.ID),
		DisplayName: p.DisplayName,
		Role:        domain.Role(p.Role),
		Media:       domain.MediaFlags{Audio: p.Audio, Video: p.Video},
		JoinedAt:    p.JoinedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type RosterChange struct {
	Kind        string      `json:"kind"`
	Participant Participant `json:"participant"`
}

func FromRosterChange(c domain.RosterChange) RosterChange {
	return RosterChange{Kind: string(c.Kind), Participant: FromParticipant(c.Participant)}
}

func (c RosterChange) Domain() domain.RosterChange {
	return domain.RosterChange{Kind: domain.ChangeKind(c.Kind), Participant: c.Participant.Domain()}
}

type Note struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meeting_id"`
	OwnerID   string    `json:"owner_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func FromNote(n domain.Note) Note {
	return Note{
		ID:        string(n.ID),
		MeetingID: n.MeetingID.String(),
		OwnerID:   n.OwnerID.String(),
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

type HistoryEntry struct {
	ID              string    `json:"id"`
	MeetingID       string    `json:"meeting_id"`
	ParticipantID   string    `json:"participant_id"`
	JoinedAt        time.Time `json:"joined_at"`
	LeftAt          time.Time `json:"left_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

func FromHistoryEntry(e domain.HistoryEntry) HistoryEntry {
	return HistoryEntry{
		ID:              e.ID,
		MeetingID:       e.MeetingID.String(),
		ParticipantID:   e.ParticipantID.String(),
		JoinedAt:        e.JoinedAt,
		LeftAt:          e.LeftAt,
		DurationSeconds: e.Duration.Seconds(),
	}
}
