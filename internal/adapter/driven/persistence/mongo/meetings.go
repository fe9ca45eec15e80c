package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) CreateMeeting(ctx context.Context, m domain.Meeting) error {
	_, err := s.meetings.InsertOne(ctx, fromMeeting(m))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("meeting %s already exists", m.ID)
	}
	return err
}

func (s *Store) GetMeeting(ctx context.Context, id domain.MeetingID) (domain.Meeting, error) {
	var d meetingDoc
	err := s.meetings.FindOne(ctx, bson.D{{Key: "_id", Value: id.String()}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Meeting{}, fmt.Errorf("meeting %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Meeting{}, err
	}
	return d.toDomain(), nil
}

// EndMeeting only matches an active meeting, so concurrent calls end it once.
func (s *Store) EndMeeting(ctx context.Context, id domain.MeetingID, at time.Time) (domain.Meeting, bool, error) {
	filter := bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "status", Value: string(domain.MeetingActive)},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: string(domain.MeetingEnded)},
		{Key: "ended_at", Value: at.UTC()},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var d meetingDoc
	err := s.meetings.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		m, gerr := s.GetMeeting(ctx, id)
		return m, false, gerr
	}
	if err != nil {
		return domain.Meeting{}, false, err
	}
	return d.toDomain(), true, nil
}

func (s *Store) SaveParticipant(ctx context.Context, p domain.Participant) error {
	if _, err := s.GetMeeting(ctx, p.MeetingID); err != nil {
		return err
	}
	d := fromParticipant(p)
	_, err := s.participants.ReplaceOne(ctx, bson.D{{Key: "_id", Value: d.ID}}, d, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetParticipant(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID) (domain.Participant, error) {
	var d participantDoc
	err := s.participants.FindOne(ctx, bson.D{{Key: "_id", Value: participantKey(meetingID, id)}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Participant{}, fmt.Errorf("participant %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return d.toDomain(), nil
}

func (s *Store) RemoveParticipant(ctx context.Context, meetingID domain.MeetingID, id domain.ParticipantID) error {
	_, err := s.participants.DeleteOne(ctx, bson.D{{Key: "_id", Value: participantKey(meetingID, id)}})
	return err
}

func (s *Store) ListParticipants(ctx context.Context, meetingID domain.MeetingID) ([]domain.Participant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "participant_id", Value: 1}})
	cur, err := s.participants.Find(ctx, bson.D{{Key: "meeting_id", Value: meetingID.String()}}, opts)
	if err != nil {
		return nil, err
	}
	var docs []participantDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
