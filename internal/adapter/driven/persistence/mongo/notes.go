package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/huddle/internal/core/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) SaveNote(ctx context.Context, n domain.Note) error {
	d := fromNote(n)
	_, err := s.notes.ReplaceOne(ctx, bson.D{{Key: "_id", Value: d.ID}}, d, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetNote(ctx context.Context, id domain.NoteID) (domain.Note, error) {
	var d noteDoc
	err := s.notes.FindOne(ctx, bson.D{{Key: "_id", Value: string(id)}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Note{}, fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Note{}, err
	}
	return d.toDomain(), nil
}

func (s *Store) ListNotes(ctx context.Context, owner domain.ParticipantID) ([]domain.Note, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.notes.Find(ctx, bson.D{{Key: "owner_id", Value: owner.String()}}, opts)
	if err != nil {
		return nil, err
	}
	var docs []noteDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Note, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) SaveHistory(ctx context.Context, e domain.HistoryEntry) error {
	_, err := s.history.InsertOne(ctx, fromHistory(e))
	return err
}

func (s *Store) ListHistory(ctx context.Context, participant domain.ParticipantID) ([]domain.HistoryEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "left_at", Value: -1}})
	cur, err := s.history.Find(ctx, bson.D{{Key: "participant_id", Value: participant.String()}}, opts)
	if err != nil {
		return nil, err
	}
	var docs []historyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.HistoryEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
