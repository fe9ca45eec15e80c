package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Wyydra/huddle/internal/core/domain"
)

func (s *Store) SaveNote(ctx context.Context, n domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.ID] = n
	return nil
}

func (s *Store) GetNote(ctx context.Context, id domain.NoteID) (domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return domain.Note{}, fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}
	return n, nil
}

func (s *Store) ListNotes(ctx context.Context, owner domain.ParticipantID) ([]domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Note, 0)
	for _, n := range s.notes {
		if n.OwnerID == owner {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SaveHistory(ctx context.Context, e domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, e)
	return nil
}

func (s *Store) ListHistory(ctx context.Context, participant domain.ParticipantID) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.HistoryEntry, 0)
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ParticipantID == participant {
			out = append(out, s.history[i])
		}
	}
	return out, nil
}
