package redis

import (
	"context"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// subscribe confirms the pub/sub subscription before returning so a
// snapshot read afterwards cannot miss a change.
func (s *Store) subscribe(ctx context.Context, id domain.MeetingID) (*redis.PubSub, error) {
	if _, err := s.GetMeeting(ctx, id); err != nil {
		return nil, err
	}
	sub := s.rdb.Subscribe(ctx, eventsChannel(id))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return sub, nil
}

func (s *Store) WatchMeeting(ctx context.Context, id domain.MeetingID) (<-chan domain.Meeting, error) {
	sub, err := s.subscribe(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.GetMeeting(ctx, id)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan domain.Meeting, 1)
	out <- m
	go relay(ctx, sub, out, func(ev event) (domain.Meeting, bool) {
		if ev.Meeting == nil {
			return domain.Meeting{}, false
		}
		return *ev.Meeting, true
	})
	return out, nil
}

func (s *Store) WatchParticipants(ctx context.Context, id domain.MeetingID) (<-chan domain.RosterChange, error) {
	sub, err := s.subscribe(ctx, id)
	if err != nil {
		return nil, err
	}
	roster, err := s.ListParticipants(ctx, id)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan domain.RosterChange, len(roster))
	for _, p := range roster {
		out <- domain.RosterChange{Kind: domain.ChangeAdded, Participant: p}
	}
	go relay(ctx, sub, out, func(ev event) (domain.RosterChange, bool) {
		if ev.Change == nil {
			return domain.RosterChange{}, false
		}
		return *ev.Change, true
	})
	return out, nil
}

// relay forwards decoded events until ctx is done or the subscription drops.
func relay[T any](ctx context.Context, sub *redis.PubSub, out chan<- T, pick func(event) (T, bool)) {
	defer close(out)
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := decode[event]([]byte(msg.Payload))
			if err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping undecodable event")
				continue
			}
			v, ok := pick(ev)
			if !ok {
				continue
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}
}
