// Package mongo persists meetings in MongoDB and turns change streams into
// meeting feeds. Change streams need a replica set.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/Wyydra/huddle/internal/core/port"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ port.MeetingRepository = (*Store)(nil)
	_ port.MeetingFeed       = (*Store)(nil)
	_ port.SignalGateway     = (*Store)(nil)
	_ port.NoteRepository    = (*Store)(nil)
	_ port.HistoryRepository = (*Store)(nil)
	_ port.Clock             = (*Store)(nil)
)

const (
	meetingsColl     = "meetings"
	participantsColl = "participants"
	signalsColl      = "signals"
	notesColl        = "notes"
	historyColl      = "history"
)

type Store struct {
	client       *mongo.Client
	meetings     *mongo.Collection
	participants *mongo.Collection
	signals      *mongo.Collection
	notes        *mongo.Collection
	history      *mongo.Collection

	now func() time.Time
}

// Connect dials uri, checks the deployment answers and makes sure the
// indexes exist.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	s := NewStore(client, client.Database(database))
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func NewStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:       client,
		meetings:     db.Collection(meetingsColl),
		participants: db.Collection(participantsColl),
		signals:      db.Collection(signalsColl),
		notes:        db.Collection(notesColl),
		history:      db.Collection(historyColl),
		now:          time.Now,
	}
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.participants: {
			{Keys: bson.D{{Key: "meeting_id", Value: 1}, {Key: "joined_at", Value: 1}}},
		},
		s.signals: {
			{Keys: bson.D{{Key: "meeting_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		s.notes: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		s.history: {
			{Keys: bson.D{{Key: "participant_id", Value: 1}, {Key: "left_at", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll.Name(), err)
		}
	}
	return nil
}
