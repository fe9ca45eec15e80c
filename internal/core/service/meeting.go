package service

import (
	"context"
	"errors"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/rs/zerolog/log"
)

var _ port.Lifecycle = (*MeetingService)(nil)

// MeetingService owns meeting status, host checks and roster membership.
type MeetingService struct {
	meetings port.MeetingRepository
	history  port.HistoryRepository
	clock    port.Clock
	now      func() time.Time
}

// NewMeetingService takes join times from meetings when it is also a
// port.Clock, and from the local clock otherwise.
func NewMeetingService(meetings port.MeetingRepository, history port.HistoryRepository) *MeetingService {
	s := &MeetingService{
		meetings: meetings,
		history:  history,
		now:      time.Now,
	}
	if c, ok := meetings.(port.Clock); ok {
		s.clock = c
	}
	return s
}

func (s *MeetingService) relayNow(ctx context.Context) (time.Time, error) {
	if s.clock == nil {
		return s.now().UTC(), nil
	}
	return s.clock.Now(ctx)
}

func (s *MeetingService) Create(ctx context.Context, host domain.Identity) (domain.Meeting, error) {
	m, err := domain.NewMeeting(host.ID, s.now())
	if err != nil {
		return domain.Meeting{}, domain.NewOpError("create meeting", errors.Join(domain.ErrInvalidInput, err))
	}
	if err := s.meetings.CreateMeeting(ctx, *m); err != nil {
		return domain.Meeting{}, domain.NewOpError("create meeting", err)
	}
	log.Info().Str("meeting_id", m.ID.String()).Str("host_id", host.ID.String()).Msg("Meeting created")
	return *m, nil
}

func (s *MeetingService) Get(ctx context.Context, id domain.MeetingID) (domain.Meeting, []domain.Participant, error) {
	m, err := s.meetings.GetMeeting(ctx, id)
	if err != nil {
		return domain.Meeting{}, nil, domain.NewOpError("get meeting", err)
	}
	roster, err := s.meetings.ListParticipants(ctx, id)
	if err != nil {
		return domain.Meeting{}, nil, domain.NewOpError("list participants", err)
	}
	return m, roster, nil
}

// Join fails with ErrNotFound or ErrMeetingEnded before any record is written.
func (s *MeetingService) Join(ctx context.Context, meetingID domain.MeetingID, who domain.Identity) (port.JoinResult, error) {
	m, err := s.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		return port.JoinResult{}, domain.NewOpError("join", err)
	}
	if !m.IsActive() {
		return port.JoinResult{}, domain.NewOpError("join", domain.ErrMeetingEnded)
	}

	// Taken before the record is written, so any signal prompted by it is later.
	since, err := s.relayNow(ctx)
	if err != nil {
		return port.JoinResult{}, domain.NewOpError("join", err)
	}

	p, err := domain.NewParticipant(m, who, s.now())
	if err != nil {
		return port.JoinResult{}, domain.NewOpError("join", errors.Join(domain.ErrInvalidInput, err))
	}

	existing, err := s.meetings.GetParticipant(ctx, meetingID, who.ID)
	switch {
	case err == nil:
		p.JoinedAt = existing.JoinedAt
		p.Media = existing.Media
	case !errors.Is(err, domain.ErrNotFound):
		return port.JoinResult{}, domain.NewOpError("join", err)
	}

	if err := s.meetings.SaveParticipant(ctx, *p); err != nil {
		return port.JoinResult{}, domain.NewOpError("join", err)
	}

	log.Info().
		Str("meeting_id", meetingID.String()).
		Str("participant_id", who.ID.String()).
		Str("role", string(p.Role)).
		Msg("Participant joined")

	return port.JoinResult{Meeting: m, Participant: *p, Since: since}, nil
}

// Leave removes only the caller's record. Leaving twice is not an error.
func (s *MeetingService) Leave(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID) error {
	if _, err := s.meetings.GetMeeting(ctx, meetingID); err != nil {
		return domain.NewOpError("leave", err)
	}

	p, err := s.meetings.GetParticipant(ctx, meetingID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return domain.NewOpError("leave", err)
	}

	if err := s.meetings.RemoveParticipant(ctx, meetingID, id); err != nil {
		return domain.NewOpError("leave", err)
	}
	s.recordHistory(ctx, p)

	log.Info().Str("meeting_id", meetingID.String()).Str("participant_id", id.String()).Msg("Participant left")
	return nil
}

// EndMeeting is host-only. Ending an ended meeting does nothing.
func (s *MeetingService) EndMeeting(ctx context.Context, meetingID domain.MeetingID, caller domain.ParticipantID) error {
	m, err := s.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		return domain.NewOpError("end meeting", err)
	}
	if !m.IsHost(caller) {
		return domain.NewOpError("end meeting", domain.ErrPermissionDenied)
	}

	roster, err := s.meetings.ListParticipants(ctx, meetingID)
	if err != nil {
		return domain.NewOpError("end meeting", err)
	}

	_, changed, err := s.meetings.EndMeeting(ctx, meetingID, s.now())
	if err != nil {
		return domain.NewOpError("end meeting", err)
	}
	if !changed {
		return nil
	}

	for _, p := range roster {
		if err := s.meetings.RemoveParticipant(ctx, meetingID, p.ID); err != nil {
			log.Error().Err(err).Str("meeting_id", meetingID.String()).Str("participant_id", p.ID.String()).Msg("Failed to remove participant on end")
			continue
		}
		s.recordHistory(ctx, p)
	}

	log.Info().Str("meeting_id", meetingID.String()).Int("participants", len(roster)).Msg("Meeting ended")
	return nil
}

// UpdateMedia is the participant's own mutation of its media flags.
func (s *MeetingService) UpdateMedia(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID, flags domain.MediaFlags) error {
	m, err := s.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		return domain.NewOpError("update media", err)
	}
	if !m.IsActive() {
		return domain.NewOpError("update media", domain.ErrMeetingEnded)
	}

	p, err := s.meetings.GetParticipant(ctx, meetingID, id)
	if err != nil {
		return domain.NewOpError("update media", err)
	}
	if p.Media == flags {
		return nil
	}
	p.Media = flags
	p.UpdatedAt = s.now().UTC()
	if err := s.meetings.SaveParticipant(ctx, p); err != nil {
		return domain.NewOpError("update media", err)
	}
	return nil
}

func (s *MeetingService) History(ctx context.Context, id domain.ParticipantID) ([]domain.HistoryEntry, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListHistory(ctx, id)
}

func (s *MeetingService) recordHistory(ctx context.Context, p domain.Participant) {
	if s.history == nil {
		return
	}
	if err := s.history.SaveHistory(ctx, domain.NewHistoryEntry(p, s.now())); err != nil {
		log.Warn().Err(err).Str("participant_id", p.ID.String()).Msg("Failed to save meeting history")
	}
}
