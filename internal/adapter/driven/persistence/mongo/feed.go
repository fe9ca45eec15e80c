package mongo

import (
	"context"
	"regexp"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type changeEvent[T any] struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *T `bson:"fullDocument"`
}

func matchStage(match bson.D) mongo.Pipeline {
	return mongo.Pipeline{{{Key: "$match", Value: match}}}
}

func lookupOpts() *options.ChangeStreamOptions {
	return options.ChangeStream().SetFullDocument(options.UpdateLookup)
}

// WatchMeeting opens the change stream before reading the snapshot so no
// update falls between the two.
func (s *Store) WatchMeeting(ctx context.Context, id domain.MeetingID) (<-chan domain.Meeting, error) {
	cs, err := s.meetings.Watch(ctx, matchStage(bson.D{
		{Key: "documentKey._id", Value: id.String()},
		{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"update", "replace"}}}},
	}), lookupOpts())
	if err != nil {
		return nil, err
	}
	m, err := s.GetMeeting(ctx, id)
	if err != nil {
		_ = cs.Close(context.Background())
		return nil, err
	}

	out := make(chan domain.Meeting, 1)
	out <- m
	go stream(ctx, cs, out, func(ev changeEvent[meetingDoc]) (domain.Meeting, bool) {
		if ev.FullDocument == nil {
			return domain.Meeting{}, false
		}
		return ev.FullDocument.toDomain(), true
	})
	return out, nil
}

func (s *Store) WatchParticipants(ctx context.Context, id domain.MeetingID) (<-chan domain.RosterChange, error) {
	if _, err := s.GetMeeting(ctx, id); err != nil {
		return nil, err
	}
	prefix := "^" + regexp.QuoteMeta(id.String()+"/")
	cs, err := s.participants.Watch(ctx, matchStage(bson.D{
		{Key: "documentKey._id", Value: bson.D{{Key: "$regex", Value: prefix}}},
	}), lookupOpts())
	if err != nil {
		return nil, err
	}
	roster, err := s.ListParticipants(ctx, id)
	if err != nil {
		_ = cs.Close(context.Background())
		return nil, err
	}

	out := make(chan domain.RosterChange, len(roster))
	for _, p := range roster {
		out <- domain.RosterChange{Kind: domain.ChangeAdded, Participant: p}
	}
	go stream(ctx, cs, out, rosterChange)
	return out, nil
}

// rosterChange maps a participants event. Deletes carry only the document
// key, which names the meeting and the participant.
func rosterChange(ev changeEvent[participantDoc]) (domain.RosterChange, bool) {
	switch ev.OperationType {
	case "insert":
		if ev.FullDocument != nil {
			return domain.RosterChange{Kind: domain.ChangeAdded, Participant: ev.FullDocument.toDomain()}, true
		}
	case "update", "replace":
		if ev.FullDocument != nil {
			return domain.RosterChange{Kind: domain.ChangeModified, Participant: ev.FullDocument.toDomain()}, true
		}
	case "delete":
		if m, p, ok := splitParticipantKey(ev.DocumentKey.ID); ok {
			return domain.RosterChange{Kind: domain.ChangeRemoved, Participant: domain.Participant{MeetingID: m, ID: p}}, true
		}
	}
	return domain.RosterChange{}, false
}

func stream[D, T any](ctx context.Context, cs *mongo.ChangeStream, out chan<- T, pick func(changeEvent[D]) (T, bool)) {
	defer close(out)
	defer cs.Close(context.Background())

	for cs.Next(ctx) {
		var ev changeEvent[D]
		if err := cs.Decode(&ev); err != nil {
			log.Warn().Err(err).Msg("Dropping undecodable change event")
			continue
		}
		v, ok := pick(ev)
		if !ok {
			continue
		}
		select {
		case out <- v:
		case <-ctx.Done():
			return
		}
	}
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("Change stream stopped")
	}
}
