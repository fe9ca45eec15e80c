package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

type signalSub struct {
	receiver domain.ParticipantID
	feed     *subscription[domain.Signal]
}

func (s *Store) Publish(ctx context.Context, sig domain.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[sig.MeetingID]; !ok {
		return fmt.Errorf("meeting %s: %w", sig.MeetingID, domain.ErrNotFound)
	}
	sig.CreatedAt = s.now().UTC()
	s.signals[sig.MeetingID] = append(s.signals[sig.MeetingID], sig)
	for sub := range s.signalSubs[sig.MeetingID] {
		if sig.AddressedTo(sub.receiver) {
			sub.feed.push(sig)
		}
	}
	return nil
}

// Subscribe replays the log from since before following new entries, with
// no gap between the two.
func (s *Store) Subscribe(ctx context.Context, meetingID domain.MeetingID, receiver domain.ParticipantID, since time.Time) (<-chan domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[meetingID]; !ok {
		return nil, fmt.Errorf("meeting %s: %w", meetingID, domain.ErrNotFound)
	}

	sub := &signalSub{receiver: receiver}
	sub.feed = newSubscription[domain.Signal](ctx, func() {
		s.mu.Lock()
		delete(s.signalSubs[meetingID], sub)
		s.mu.Unlock()
	})
	for _, sig := range s.signals[meetingID] {
		if sig.AddressedTo(receiver) && !sig.CreatedAt.Before(since) {
			sub.feed.push(sig)
		}
	}
	if s.signalSubs[meetingID] == nil {
		s.signalSubs[meetingID] = make(map[*signalSub]struct{})
	}
	s.signalSubs[meetingID][sub] = struct{}{}
	return sub.feed.out, nil
}

func (s *Store) logLen(meetingID domain.MeetingID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signals[meetingID])
}
