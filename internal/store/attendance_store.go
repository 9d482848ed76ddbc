// Package store holds the MongoDB-backed document stores: attendance
// records, per-student summaries, the enrolled-student roster, and subject
// lookups.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
)

type AttendanceStore struct {
	collection *mongo.Collection
}

func NewAttendanceStore(db *mongo.Database) *AttendanceStore {
	return &AttendanceStore{collection: db.Collection("attendance")}
}

func (s *AttendanceStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "session_id", Value: 1},
			{Key: "date", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("attendance indexes: %w", err)
	}
	return nil
}

// CreateIfAbsent inserts the attendance record unless one already exists for
// the same (session, date). Returns whether this call inserted it, so
// at-least-once firing delivery never creates duplicates.
func (s *AttendanceStore) CreateIfAbsent(ctx context.Context, att domain.Attendance) (bool, error) {
	filter := bson.M{"session_id": att.SessionID, "date": att.Date}
	att.ID = primitive.NilObjectID
	res, err := s.collection.UpdateOne(
		ctx,
		filter,
		bson.M{"$setOnInsert": att},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("attendance upsert %s/%s: %w", att.SessionID, att.Date, err)
	}
	return res.UpsertedCount > 0, nil
}

func (s *AttendanceStore) GetByID(ctx context.Context, id string) (domain.Attendance, bool, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Attendance{}, false, fmt.Errorf("attendance id %q: %w", id, err)
	}
	var att domain.Attendance
	err = s.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&att)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Attendance{}, false, nil
	}
	if err != nil {
		return domain.Attendance{}, false, fmt.Errorf("attendance get %s: %w", id, err)
	}
	return att, true, nil
}

// SetBitmask replaces the presence bitmask on an attendance record. This is
// the attendance-marking write path that drives the mutation feed.
func (s *AttendanceStore) SetBitmask(ctx context.Context, id string, bitmask string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("attendance id %q: %w", id, err)
	}
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{
		"$set": bson.M{
			"presence_bitmask": bitmask,
			"updated_at":       time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("attendance set bitmask %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("attendance %s not found", id)
	}
	return nil
}
