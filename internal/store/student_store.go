package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
)

type StudentStore struct {
	collection *mongo.Collection
}

func NewStudentStore(db *mongo.Database) *StudentStore {
	return &StudentStore{collection: db.Collection("students")}
}

// ListRoster returns the enrolled students for one cohort in roll-number
// order. Bitmask index i maps to the i-th student of this roster, so the
// ordering here is load-bearing for the aggregator.
func (s *StudentStore) ListRoster(ctx context.Context, program, department string, semester int) ([]domain.Student, error) {
	filter := bson.M{
		"program":    program,
		"department": department,
		"semester":   semester,
	}
	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "roll_number", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("roster query: %w", err)
	}
	defer cursor.Close(ctx)

	var students []domain.Student
	if err := cursor.All(ctx, &students); err != nil {
		return nil, fmt.Errorf("roster decode: %w", err)
	}
	return students, nil
}
