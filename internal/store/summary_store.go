package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
)

type SummaryStore struct {
	collection *mongo.Collection
}

func NewSummaryStore(db *mongo.Database) *SummaryStore {
	return &SummaryStore{collection: db.Collection("student_attendance_summary")}
}

func (s *SummaryStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "student_id", Value: 1},
			{Key: "subject", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("summary indexes: %w", err)
	}
	return nil
}

func (s *SummaryStore) Get(ctx context.Context, studentID, subject string) (domain.StudentAttendanceSummary, bool, error) {
	var summary domain.StudentAttendanceSummary
	err := s.collection.FindOne(ctx, bson.M{"student_id": studentID, "subject": subject}).Decode(&summary)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.StudentAttendanceSummary{}, false, nil
	}
	if err != nil {
		return domain.StudentAttendanceSummary{}, false, fmt.Errorf("summary get %s/%s: %w", studentID, subject, err)
	}
	return summary, true, nil
}

func (s *SummaryStore) Save(ctx context.Context, summary domain.StudentAttendanceSummary) error {
	summary.UpdatedAt = time.Now()
	filter := bson.M{"student_id": summary.StudentID, "subject": summary.Subject}
	update := bson.M{"$set": bson.M{
		"student_id":    summary.StudentID,
		"subject":       summary.Subject,
		"total_classes": summary.TotalClasses,
		"attended":      summary.Attended,
		"percentage":    summary.Percentage,
		"present_in":    summary.PresentIn,
		"counted_in":    summary.CountedIn,
		"updated_at":    summary.UpdatedAt,
	}}
	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("summary save %s/%s: %w", summary.StudentID, summary.Subject, err)
	}
	return nil
}
