package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	signalField  = "sig"
	signalMaxLen = 10000
	readBatch    = 100
	readBlock    = 5 * time.Second
)

// Now is the Redis server's clock, which stream ids are assigned from.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	t, err := s.rdb.Time(ctx).Result()
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (s *Store) Publish(ctx context.Context, sig domain.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	n, err := s.rdb.Exists(ctx, meetingKey(sig.MeetingID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("meeting %s: %w", sig.MeetingID, domain.ErrNotFound)
	}

	b, err := encode(sig)
	if err != nil {
		return err
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: signalsKey(sig.MeetingID),
		MaxLen: signalMaxLen,
		Approx: true,
		Values: map[string]any{signalField: b},
	}).Err()
}

// Subscribe reads the meeting's stream from since and keeps following it.
// Stream ids carry the Redis server's clock, and so does each signal's
// CreatedAt once read back.
func (s *Store) Subscribe(ctx context.Context, meetingID domain.MeetingID, receiver domain.ParticipantID, since time.Time) (<-chan domain.Signal, error) {
	if _, err := s.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}

	out := make(chan domain.Signal)
	go s.follow(ctx, signalsKey(meetingID), receiver, startID(since), out)
	return out, nil
}

func (s *Store) follow(ctx context.Context, stream string, receiver domain.ParticipantID, last string, out chan<- domain.Signal) {
	defer close(out)
	l := log.With().Str("stream", stream).Str("receiver", receiver.String()).Logger()

	for {
		res, err := s.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, last},
			Count:   readBatch,
			Block:   readBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				l.Warn().Err(err).Msg("Signal stream read failed")
			}
			return
		}

		for _, st := range res {
			for _, msg := range st.Messages {
				last = msg.ID
				sig, ok := signalOf(msg)
				if !ok {
					l.Warn().Str("id", msg.ID).Msg("Dropping undecodable signal")
					continue
				}
				if !sig.AddressedTo(receiver) {
					continue
				}
				select {
				case out <- sig:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// startID is the id just before the first entry appended at since, because
// XREAD returns entries strictly after the given id.
func startID(since time.Time) string {
	ms := since.UnixMilli()
	if ms <= 0 {
		return "0-0"
	}
	return fmt.Sprintf("%d-%d", ms-1, uint64(math.MaxUint64))
}

func signalOf(msg redis.XMessage) (domain.Signal, bool) {
	raw, ok := msg.Values[signalField].(string)
	if !ok {
		return domain.Signal{}, false
	}
	sig, err := decode[domain.Signal]([]byte(raw))
	if err != nil {
		return domain.Signal{}, false
	}
	if at, ok := idTime(msg.ID); ok {
		sig.CreatedAt = at
	}
	return sig, true
}

// idTime reads the millisecond part of a stream id.
func idTime(id string) (time.Time, bool) {
	ms, _, ok := strings.Cut(id, "-")
	if !ok {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(n).UTC(), true
}
