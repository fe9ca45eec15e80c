package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

func TestNotesNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Now().UTC()

	first, _ := domain.NewNote("m", "alice", "agenda", base)
	second, _ := domain.NewNote("m", "alice", "actions", base.Add(time.Minute))
	other, _ := domain.NewNote("m", "bob", "mine", base)
	for _, n := range []domain.Note{*first, *second, *other} {
		if err := s.SaveNote(ctx, n); err != nil {
			t.Fatalf("SaveNote: %v", err)
		}
	}

	notes, err := s.ListNotes(ctx, "alice")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 2 || notes[0].ID != second.ID || notes[1].ID != first.ID {
		t.Fatalf("notes = %+v", notes)
	}

	if _, err := s.GetNote(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Now().UTC()

	p := domain.Participant{MeetingID: "m1", ID: "alice", JoinedAt: base}
	_ = s.SaveHistory(ctx, domain.NewHistoryEntry(p, base.Add(time.Minute)))
	p.MeetingID = "m2"
	_ = s.SaveHistory(ctx, domain.NewHistoryEntry(p, base.Add(2*time.Minute)))

	got, err := s.ListHistory(ctx, "alice")
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(got) != 2 || got[0].MeetingID != "m2" {
		t.Fatalf("history = %+v", got)
	}
	if got[1].Duration != time.Minute {
		t.Fatalf("duration = %s, want 1m", got[1].Duration)
	}
}
