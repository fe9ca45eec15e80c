package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

func (s *Store) SaveNote(ctx context.Context, n domain.Note) error {
	b, err := encode(n)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, noteKey(n.ID), b, 0)
		pipe.ZAdd(ctx, ownerNotesKey(n.OwnerID), redis.Z{Score: float64(n.CreatedAt.UnixNano()), Member: string(n.ID)})
		return nil
	})
	return err
}

func (s *Store) GetNote(ctx context.Context, id domain.NoteID) (domain.Note, error) {
	b, err := s.rdb.Get(ctx, noteKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Note{}, fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Note{}, err
	}
	return decode[domain.Note](b)
}

// ListNotes returns owner's notes newest first.
func (s *Store) ListNotes(ctx context.Context, owner domain.ParticipantID) ([]domain.Note, error) {
	ids, err := s.rdb.ZRevRange(ctx, ownerNotesKey(owner), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Note{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = noteKey(domain.NoteID(id))
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Note, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		n, err := decode[domain.Note]([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) SaveHistory(ctx context.Context, e domain.HistoryEntry) error {
	b, err := encode(e)
	if err != nil {
		return err
	}
	return s.rdb.LPush(ctx, historyKey(e.ParticipantID), b).Err()
}

// ListHistory returns newest first.
func (s *Store) ListHistory(ctx context.Context, participant domain.ParticipantID) ([]domain.HistoryEntry, error) {
	vals, err := s.rdb.LRange(ctx, historyKey(participant), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.HistoryEntry, 0, len(vals))
	for _, v := range vals {
		e, err := decode[domain.HistoryEntry]([]byte(v))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
