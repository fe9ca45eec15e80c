package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Now is the relay process clock that Publish stamps created_at with. BSON
// dates keep milliseconds, so it is truncated to match.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	return s.now().UTC().Truncate(time.Millisecond), nil
}

func (s *Store) Publish(ctx context.Context, sig domain.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if _, err := s.GetMeeting(ctx, sig.MeetingID); err != nil {
		return err
	}
	sig.CreatedAt, _ = s.Now(ctx)
	_, err := s.signals.InsertOne(ctx, fromSignal(sig))
	return err
}

// Subscribe watches inserts first, then replays stored signals from since,
// then follows the stream. Signals seen during the replay are skipped when
// the stream delivers them again.
func (s *Store) Subscribe(ctx context.Context, meetingID domain.MeetingID, receiver domain.ParticipantID, since time.Time) (<-chan domain.Signal, error) {
	if _, err := s.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}

	cs, err := s.signals.Watch(ctx, matchStage(bson.D{
		{Key: "operationType", Value: "insert"},
		{Key: "fullDocument.meeting_id", Value: meetingID.String()},
	}))
	if err != nil {
		return nil, err
	}

	filter := bson.D{
		{Key: "meeting_id", Value: meetingID.String()},
		{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since.UTC().Truncate(time.Millisecond)}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.signals.Find(ctx, filter, opts)
	if err != nil {
		_ = cs.Close(context.Background())
		return nil, err
	}

	out := make(chan domain.Signal)
	go s.follow(ctx, cur, cs, receiver, out)
	return out, nil
}

func (s *Store) follow(ctx context.Context, cur *mongo.Cursor, cs *mongo.ChangeStream, receiver domain.ParticipantID, out chan<- domain.Signal) {
	defer close(out)
	defer cs.Close(context.Background())
	l := log.With().Str("receiver", receiver.String()).Logger()

	send := func(d signalDoc) bool {
		sig := d.toDomain()
		if !sig.AddressedTo(receiver) {
			return true
		}
		select {
		case out <- sig:
			return true
		case <-ctx.Done():
			return false
		}
	}

	replayed := make(map[string]struct{})
	for cur.Next(ctx) {
		var d signalDoc
		if err := cur.Decode(&d); err != nil {
			l.Warn().Err(err).Msg("Dropping undecodable signal")
			continue
		}
		replayed[d.ID] = struct{}{}
		if !send(d) {
			_ = cur.Close(context.Background())
			return
		}
	}
	if err := cur.Err(); err != nil && ctx.Err() == nil {
		l.Warn().Err(err).Msg("Signal replay failed")
	}
	_ = cur.Close(context.Background())

	for cs.Next(ctx) {
		var ev changeEvent[signalDoc]
		if err := cs.Decode(&ev); err != nil || ev.FullDocument == nil {
			l.Warn().Err(err).Msg("Dropping undecodable signal event")
			continue
		}
		if _, ok := replayed[ev.FullDocument.ID]; ok {
			delete(replayed, ev.FullDocument.ID)
			continue
		}
		if !send(*ev.FullDocument) {
			return
		}
	}
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		l.Warn().Err(fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)).Msg("Signal stream stopped")
	}
}
