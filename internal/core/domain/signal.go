package domain

import (
	"fmt"
	"time"
)

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

type SessionDescription struct {
	Type SDPType
	SDP  string
}

// ICECandidate mirrors the browser's RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string
	SDPMid           *string
	SDPMLineIndex    *uint16
	UsernameFragment *string
}

// Signal is one immutable entry of a meeting's signaling log. Kind decides
// which of SDP or Candidate is set.
type Signal struct {
	ID          MessageID
	MeetingID   MeetingID
	From        ParticipantID
	To          ParticipantID // empty means every participant
	Session     SessionID
	Kind        SignalKind
	SDP         string
	Renegotiate bool
	Candidate   *ICECandidate
	CreatedAt   time.Time
}

func newSignal(meeting MeetingID, from, to ParticipantID, session SessionID, kind SignalKind) Signal {
	return Signal{
		ID:        NewMessageID(),
		MeetingID: meeting,
		From:      from,
		To:        to,
		Session:   session,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

func NewOffer(meeting MeetingID, from, to ParticipantID, session SessionID, sdp string, renegotiate bool) Signal {
	s := newSignal(meeting, from, to, session, SignalOffer)
	s.SDP = sdp
	s.Renegotiate = renegotiate
	return s
}

func NewAnswer(meeting MeetingID, from, to ParticipantID, session SessionID, sdp string) Signal {
	s := newSignal(meeting, from, to, session, SignalAnswer)
	s.SDP = sdp
	return s
}

func NewCandidate(meeting MeetingID, from, to ParticipantID, session SessionID, c ICECandidate) Signal {
	s := newSignal(meeting, from, to, session, SignalCandidate)
	s.Candidate = &c
	return s
}

func (s Signal) Validate() error {
	if s.MeetingID == "" || s.From == "" || s.Session == "" {
		return fmt.Errorf("%w: missing meeting, sender or session", ErrInvalidSignal)
	}
	switch s.Kind {
	case SignalOffer, SignalAnswer:
		if s.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrInvalidSignal, s.Kind)
		}
		if s.Candidate != nil {
			return fmt.Errorf("%w: %s carries a candidate", ErrInvalidSignal, s.Kind)
		}
	case SignalCandidate:
		if s.Candidate == nil || s.Candidate.Candidate == "" {
			return fmt.Errorf("%w: candidate without payload", ErrInvalidSignal)
		}
		if s.SDP != "" {
			return fmt.Errorf("%w: candidate carries sdp", ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSignal, s.Kind)
	}
	return nil
}

// AddressedTo reports whether id should consume s.
func (s Signal) AddressedTo(id ParticipantID) bool {
	if s.From == id {
		return false
	}
	return s.To == "" || s.To == id
}

func (s Signal) Description() SessionDescription {
	t := SDPOffer
	if s.Kind == SignalAnswer {
		t = SDPAnswer
	}
	return SessionDescription{Type: t, SDP: s.SDP}
}
