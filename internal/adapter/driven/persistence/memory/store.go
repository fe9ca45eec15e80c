package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
)

var (
	_ port.MeetingRepository = (*Store)(nil)
	_ port.MeetingFeed       = (*Store)(nil)
	_ port.SignalGateway     = (*Store)(nil)
	_ port.NoteRepository    = (*Store)(nil)
	_ port.HistoryRepository = (*Store)(nil)
	_ port.Clock             = (*Store)(nil)
)

// Store keeps meetings, rosters, the signaling log, notes and history in
// process memory. Every watch gets its own ordered feed.
type Store struct {
	mu           sync.Mutex
	meetings     map[domain.MeetingID]domain.Meeting
	participants map[domain.MeetingID]map[domain.ParticipantID]domain.Participant
	signals      map[domain.MeetingID][]domain.Signal
	notes        map[domain.NoteID]domain.Note
	history      []domain.HistoryEntry

	meetingSubs map[domain.MeetingID]map[*subscription[domain.Meeting]]struct{}
	rosterSubs  map[domain.MeetingID]map[*subscription[domain.RosterChange]]struct{}
	signalSubs  map[domain.MeetingID]map[*signalSub]struct{}

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		meetings:     make(map[domain.MeetingID]domain.Meeting),
		participants: make(map[domain.MeetingID]map[domain.ParticipantID]domain.Participant),
		signals:      make(map[domain.MeetingID][]domain.Signal),
		notes:        make(map[domain.NoteID]domain.Note),
		meetingSubs:  make(map[domain.MeetingID]map[*subscription[domain.Meeting]]struct{}),
		rosterSubs:   make(map[domain.MeetingID]map[*subscription[domain.RosterChange]]struct{}),
		signalSubs:   make(map[domain.MeetingID]map[*signalSub]struct{}),
		now:          time.Now,
	}
}

// Now is the clock signals are stamped with on Publish.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	return s.now().UTC(), nil
}

func (s *Store) CreateMeeting(ctx context.Context, m domain.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[m.ID]; ok {
		return fmt.Errorf("meeting %s already exists", m.ID)
	}
	s.meetings[m.ID] = m
	s.participants[m.ID] = make(map[domain.ParticipantID]domain.Participant)
	return nil
}

func (s *Store) GetMeeting(ctx context.Context, id domain.MeetingID) (domain.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return domain.Meeting{}, fmt.Errorf("meeting %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

func (s *Store) EndMeeting(ctx context.Context, id domain.MeetingID, at time.Time) (domain.Meeting, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return domain.Meeting{}, false, fmt.Errorf("meeting %s: %w", id, domain.ErrNotFound)
	}
	if !m.End(at) {
		return m, false, nil
	}
	s.meetings[id] = m
	for sub := range s.meetingSubs[id] {
		sub.push(m)
	}
	return m, true, nil
}

func (s *Store) SaveParticipant(ctx context.Context, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	roster, ok := s.participants[p.MeetingID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", p.MeetingID, domain.ErrNotFound)
	}
	kind := domain.ChangeModified
	if _, exists := roster[p.ID]; !exists {
		kind = domain.ChangeAdded
	}
	roster[p.ID] = p
	s.notifyRosterLocked(p.MeetingID, domain.RosterChange{Kind: kind, Participant: p})
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[meetingID][id]
	if !ok {
		return domain.Participant{}, fmt.Errorf("participant %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (s *Store) RemoveParticipant(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[meetingID][id]
	if !ok {
		return nil
	}
	delete(s.participants[meetingID], id)
	s.notifyRosterLocked(meetingID, domain.RosterChange{Kind: domain.ChangeRemoved, Participant: p})
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, meetingID domain.MeetingID) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rosterLocked(meetingID), nil
}

func (s *Store) WatchMeeting(ctx context.Context, id domain.MeetingID) (<-chan domain.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, fmt.Errorf("meeting %s: %w", id, domain.ErrNotFound)
	}

	var sub *subscription[domain.Meeting]
	sub = newSubscription[domain.Meeting](ctx, func() {
		s.mu.Lock()
		delete(s.meetingSubs[id], sub)
		s.mu.Unlock()
	})
	sub.push(m)
	if s.meetingSubs[id] == nil {
		s.meetingSubs[id] = make(map[*subscription[domain.Meeting]]struct{})
	}
	s.meetingSubs[id][sub] = struct{}{}
	return sub.out, nil
}

func (s *Store) WatchParticipants(ctx context.Context, id domain.MeetingID) (<-chan domain.RosterChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[id]; !ok {
		return nil, fmt.Errorf("meeting %s: %w", id, domain.ErrNotFound)
	}

	var sub *subscription[domain.RosterChange]
	sub = newSubscription[domain.RosterChange](ctx, func() {
		s.mu.Lock()
		delete(s.rosterSubs[id], sub)
		s.mu.Unlock()
	})
	for _, p := range s.rosterLocked(id) {
		sub.push(domain.RosterChange{Kind: domain.ChangeAdded, Participant: p})
	}
	if s.rosterSubs[id] == nil {
		s.rosterSubs[id] = make(map[*subscription[domain.RosterChange]]struct{})
	}
	s.rosterSubs[id][sub] = struct{}{}
	return sub.out, nil
}

func (s *Store) notifyRosterLocked(id domain.MeetingID, ch domain.RosterChange) {
	for sub := range s.rosterSubs[id] {
		sub.push(ch)
	}
}

func (s *Store) rosterLocked(id domain.MeetingID) []domain.Participant {
	out := make([]domain.Participant, 0, len(s.participants[id]))
	for _, p := range s.participants[id] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
