package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

// saveParticipant writes the roster entry only while the meeting exists and
// announces it as added or modified in the same step.
var saveParticipant = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return redis.error_reply('NOMEETING')
end
local created = redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
if created == 1 then
	redis.call('PUBLISH', KEYS[3], ARGV[3])
else
	redis.call('PUBLISH', KEYS[3], ARGV[4])
end
return created
`)

// removeParticipant returns the removed entry, or nil when there was none.
var removeParticipant = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if not v then
	return false
end
redis.call('HDEL', KEYS[1], ARGV[1])
return v
`)

const endRetries = 5

func (s *Store) CreateMeeting(ctx context.Context, m domain.Meeting) error {
	b, err := encode(m)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, meetingKey(m.ID), b, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("meeting %s already exists", m.ID)
	}
	return nil
}

func (s *Store) GetMeeting(ctx context.Context, id domain.MeetingID) (domain.Meeting, error) {
	b, err := s.rdb.Get(ctx, meetingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Meeting{}, fmt.Errorf("meeting %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Meeting{}, err
	}
	return decode[domain.Meeting](b)
}

// EndMeeting uses optimistic locking on the meeting key so two hosts ending
// at once publish a single transition.
func (s *Store) EndMeeting(ctx context.Context, id domain.MeetingID, at time.Time) (domain.Meeting, bool, error) {
	key := meetingKey(id)
	var (
		out     domain.Meeting
		changed bool
	)

	txf := func(tx *redis.Tx) error {
		changed = false
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("meeting %s: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}
		m, err := decode[domain.Meeting](b)
		if err != nil {
			return err
		}
		out = m
		if !m.End(at) {
			return nil
		}

		mb, err := encode(m)
		if err != nil {
			return err
		}
		eb, err := encode(event{Meeting: &m})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, mb, 0)
			pipe.Publish(ctx, eventsChannel(id), eb)
			return nil
		})
		if err == nil {
			out, changed = m, true
		}
		return err
	}

	for i := 0; i < endRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, changed, err
	}
	return domain.Meeting{}, false, fmt.Errorf("end meeting %s: %w", id, redis.TxFailedErr)
}

func (s *Store) SaveParticipant(ctx context.Context, p domain.Participant) error {
	b, err := encode(p)
	if err != nil {
		return err
	}
	added, err := encode(event{Change: &domain.RosterChange{Kind: domain.ChangeAdded, Participant: p}})
	if err != nil {
		return err
	}
	modified, err := encode(event{Change: &domain.RosterChange{Kind: domain.ChangeModified, Participant: p}})
	if err != nil {
		return err
	}

	keys := []string{meetingKey(p.MeetingID), participantsKey(p.MeetingID), eventsChannel(p.MeetingID)}
	err = saveParticipant.Run(ctx, s.rdb, keys, p.ID.String(), b, added, modified).Err()
	if err != nil && strings.Contains(err.Error(), "NOMEETING") {
		return fmt.Errorf("meeting %s: %w", p.MeetingID, domain.ErrNotFound)
	}
	return err
}

func (s *Store) GetParticipant(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID) (domain.Participant, error) {
	b, err := s.rdb.HGet(ctx, participantsKey(meetingID), id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, fmt.Errorf("participant %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return decode[domain.Participant](b)
}

func (s *Store) RemoveParticipant(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID) error {
	raw, err := removeParticipant.Run(ctx, s.rdb, []string{participantsKey(meetingID)}, id.String()).Text()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	p, err := decode[domain.Participant]([]byte(raw))
	if err != nil {
		return err
	}
	eb, err := encode(event{Change: &domain.RosterChange{Kind: domain.ChangeRemoved, Participant: p}})
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, eventsChannel(meetingID), eb).Err()
}

func (s *Store) ListParticipants(ctx context.Context, meetingID domain.MeetingID) ([]domain.Participant, error) {
	vals, err := s.rdb.HVals(ctx, participantsKey(meetingID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(vals))
	for _, v := range vals {
		p, err := decode[domain.Participant]([]byte(v))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sortRoster(out)
	return out, nil
}

func sortRoster(ps []domain.Participant) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].JoinedAt.Before(ps[j].JoinedAt)
	})
}
