// Package redis keeps meetings, rosters, the signaling log, notes and
// history in Redis so several relay servers can share one deployment.
package redis

import (
	"context"
	"fmt"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ port.MeetingRepository = (*Store)(nil)
	_ port.MeetingFeed       = (*Store)(nil)
	_ port.SignalGateway     = (*Store)(nil)
	_ port.NoteRepository    = (*Store)(nil)
	_ port.HistoryRepository = (*Store)(nil)
	_ port.Clock             = (*Store)(nil)
)

type Store struct {
	rdb *redis.Client
}

// Connect opens a client and checks the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewStore(rdb), nil
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func meetingKey(id domain.MeetingID) string {
	return fmt.Sprintf("meetings:%s", id)
}

func participantsKey(id domain.MeetingID) string {
	return fmt.Sprintf("meetings:%s:participants", id)
}

func eventsChannel(id domain.MeetingID) string {
	return fmt.Sprintf("meetings:%s:events", id)
}

func signalsKey(id domain.MeetingID) string {
	return fmt.Sprintf("meetings:%s:signals", id)
}

func noteKey(id domain.NoteID) string {
	return fmt.Sprintf("notes:%s", id)
}

func ownerNotesKey(owner domain.ParticipantID) string {
	return fmt.Sprintf("owners:%s:notes", owner)
}

func historyKey(id domain.ParticipantID) string {
	return fmt.Sprintf("history:%s", id)
}

// event is what a meeting's pub/sub channel carries. Exactly one of
// Meeting and Change is set.
type event struct {
	Meeting *domain.Meeting      `msgpack:"meeting,omitempty"`
	Change  *domain.RosterChange `msgpack:"change,omitempty"`
}

func encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}

func decode[T any](b []byte) (T, error) {
	var v T
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
