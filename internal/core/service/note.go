package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
)

type NoteService struct {
	repo port.NoteRepository
	now  func() time.Time
}

func NewNoteService(repo port.NoteRepository) *NoteService {
	return &NoteService{
		repo: repo,
		now:  time.Now,
	}
}

func (s *NoteService) AddNote(ctx context.Context, meetingID domain.MeetingID, owner domain.ParticipantID, content string) (domain.Note, error) {
	n, err := domain.NewNote(meetingID, owner, content, s.now())
	if err != nil {
		return domain.Note{}, errors.Join(domain.ErrInvalidInput, err)
	}
	if err := s.repo.SaveNote(ctx, *n); err != nil {
		return domain.Note{}, err
	}
	return *n, nil
}

// UpdateNote replaces the content of a note owned by editor.
func (s *NoteService) UpdateNote(ctx context.Context, id domain.NoteID, editor domain.ParticipantID, content string) (domain.Note, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Note{}, errors.Join(domain.ErrInvalidInput, errors.New("note content cannot be empty"))
	}
	n, err := s.repo.GetNote(ctx, id)
	if err != nil {
		return domain.Note{}, err
	}
	if n.OwnerID != editor {
		return domain.Note{}, domain.ErrPermissionDenied
	}
	n.Content = content
	n.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveNote(ctx, n); err != nil {
		return domain.Note{}, err
	}
	return n, nil
}

func (s *NoteService) ListNotes(ctx context.Context, owner domain.ParticipantID) ([]domain.Note, error) {
	return s.repo.ListNotes(ctx, owner)
}
