package mongo

import (
	"strings"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

type meetingDoc struct {
	ID        string     `bson:"_id"`
	HostID    string     `bson:"host_id"`
	Status    string     `bson:"status"`
	CreatedAt time.Time  `bson:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty"`
}

func fromMeeting(m domain.Meeting) meetingDoc {
	return meetingDoc{
		ID:        m.ID.String(),
		HostID:    m.HostID.String(),
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
		EndedAt:   m.EndedAt,
	}
}

func (d meetingDoc) toDomain() domain.Meeting {
	m := domain.Meeting{
		ID:        domain.MeetingID(d.ID),
		HostID:    domain.ParticipantID(d.HostID),
		Status:    domain.MeetingStatus(d.Status),
		CreatedAt: d.CreatedAt.UTC(),
	}
	if d.EndedAt != nil {
		t := d.EndedAt.UTC()
		m.EndedAt = &t
	}
	return m
}

// participantDoc is keyed by meeting and participant so a delete event's
// document key still names both.
type participantDoc struct {
	ID            string    `bson:"_id"`
	MeetingID     string    `bson:"meeting_id"`
	ParticipantID string    `bson:"participant_id"`
	DisplayName   string    `bson:"display_name"`
	Role          string    `bson:"role"`
	Audio         bool      `bson:"audio"`
	Video         bool      `bson:"video"`
	JoinedAt      time.Time `bson:"joined_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func participantKey(meetingID domain.MeetingID, id domain.ParticipantID) string {
	return meetingID.String() + "/" + id.String()
}

// splitParticipantKey reverses participantKey. Meeting ids never contain a slash.
func splitParticipantKey(key string) (domain.MeetingID, domain.ParticipantID, bool) {
	m, p, ok := strings.Cut(key, "/")
	if !ok || m == "" || p == "" {
		return "", "", false
	}
	return domain.MeetingID(m), domain.ParticipantID(p), true
}

func fromParticipant(p domain.Participant) participantDoc {
	return participantDoc{
		ID:            participantKey(p.MeetingID, p.ID),
		MeetingID:     p.MeetingID.String(),
		ParticipantID: p.ID.String(),
		DisplayName:   p.DisplayName,
		Role:          string(p.Role),
		Audio:         p.Media.Audio,
		Video:         p.Media.Video,
		JoinedAt:      p.JoinedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (d participantDoc) toDomain() domain.Participant {
	return domain.Participant{
		MeetingID:   domain.MeetingID(d.MeetingID),
		ID:          domain.ParticipantID(d.ParticipantID),
		DisplayName: d.DisplayName,
		Role:        domain.Role(d.Role),
		Media:       domain.MediaFlags{Audio: d.Audio, Video: d.Video},
		JoinedAt:    d.JoinedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type candidateDoc struct {
	Candidate        string  `bson:"candidate"`
	SDPMid           *string `bson:"sdp_mid,omitempty"`
	SDPMLineIndex    *uint16 `bson:"sdp_mline_index,omitempty"`
	UsernameFragment *string `bson:"username_fragment,omitempty"`
}

type signalDoc struct {
	ID          string        `bson:"_id"`
	MeetingID   string        `bson:"meeting_id"`
	From        string        `bson:"from"`
	To          string        `bson:"to,omitempty"`
	Session     string        `bson:"session"`
	Kind        string        `bson:"kind"`
	SDP         string        `bson:"sdp,omitempty"`
	Renegotiate bool          `bson:"renegotiate,omitempty"`
	Candidate   *candidateDoc `bson:"candidate,omitempty"`
	CreatedAt   time.Time     `bson:"created_at"`
}

func fromSignal(s domain.Signal) signalDoc {
	d := signalDoc{
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
	if c := s.Candidate; c != nil {
		d.Candidate = &candidateDoc{
			Candidate:        c.Candidate,
			SDPMid:           c.SDPMid,
			SDPMLineIndex:    c.SDPMLineIndex,
			UsernameFragment: c.UsernameFragment,
		}
	}
	return d
}

func (d signalDoc) toDomain() domain.Signal {
	s := domain.Signal{
		ID:          domain.MessageID(d.ID),
		MeetingID:   domain.MeetingID(d.MeetingID),
		From:        domain.ParticipantID(d.From),
		To:          domain.ParticipantID(d.To),
		Session:     domain.SessionID(d.Session),
		Kind:        domain.SignalKind(d.Kind),
		SDP:         d.SDP,
		Renegotiate: d.Renegotiate,
		CreatedAt:   d.CreatedAt.UTC(),
	}
	if c := d.Candidate; c != nil {
		s.Candidate = &domain.ICECandidate{
			Candidate:        c.Candidate,
			SDPMid:           c.SDPMid,
			SDPMLineIndex:    c.SDPMLineIndex,
			UsernameFragment: c.UsernameFragment,
		}
	}
	return s
}

type noteDoc struct {
	ID        string    `bson:"_id"`
	MeetingID string    `bson:"meeting_id"`
	OwnerID   string    `bson:"owner_id"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func fromNote(n domain.Note) noteDoc {
	return noteDoc{
		ID:        string(n.ID),
		MeetingID: n.MeetingID.String(),
		OwnerID:   n.OwnerID.String(),
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func (d noteDoc) toDomain() domain.Note {
	return domain.Note{
		ID:        domain.NoteID(d.ID),
		MeetingID: domain.MeetingID(d.MeetingID),
		OwnerID:   domain.ParticipantID(d.OwnerID),
		Content:   d.Content,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type historyDoc struct {
	ID            string    `bson:"_id"`
	MeetingID     string    `bson:"meeting_id"`
	ParticipantID string    `bson:"participant_id"`
	JoinedAt      time.Time `bson:"joined_at"`
	LeftAt        time.Time `bson:"left_at"`
	DurationMS    int64     `bson:"duration_ms"`
}

func fromHistory(e domain.HistoryEntry) historyDoc {
	return historyDoc{
		ID:            e.ID,
		MeetingID:     e.MeetingID.String(),
		ParticipantID: e.ParticipantID.String(),
		JoinedAt:      e.JoinedAt,
		LeftAt:        e.LeftAt,
		DurationMS:    e.Duration.Milliseconds(),
	}
}

func (d historyDoc) toDomain() domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:            d.ID,
		MeetingID:     domain.MeetingID(d.MeetingID),
		ParticipantID: domain.ParticipantID(d.ParticipantID),
		JoinedAt:      d.JoinedAt.UTC(),
		LeftAt:        d.LeftAt.UTC(),
		Duration:      time.Duration(d.DurationMS) * time.Millisecond,
	}
}
