package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
)

var ErrSubjectNotFound = errors.New("subject not found")

type SubjectStore struct {
	collection *mongo.Collection
}

func NewSubjectStore(db *mongo.Database) *SubjectStore {
	return &SubjectStore{collection: db.Collection("subjects")}
}

// Resolve canonicalizes a SubjectRef into the subject's hex object id.
// This is the only place the id-or-code ambiguity is handled.
func (s *SubjectStore) Resolve(ctx context.Context, ref domain.SubjectRef) (string, error) {
	if ref.IsZero() {
		return "", domain.ErrBadSubjectRef
	}

	if ref.ID != "" {
		objectID, err := primitive.ObjectIDFromHex(ref.ID)
		if err != nil {
			return "", fmt.Errorf("subject id %q: %w", ref.ID, domain.ErrBadSubjectRef)
		}
		count, err := s.collection.CountDocuments(ctx, bson.M{"_id": objectID})
		if err != nil {
			return "", fmt.Errorf("subject lookup %s: %w", ref.ID, err)
		}
		if count == 0 {
			return "", ErrSubjectNotFound
		}
		return ref.ID, nil
	}

	var doc struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	err := s.collection.FindOne(ctx, bson.M{"code": ref.Code}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrSubjectNotFound
	}
	if err != nil {
		return "", fmt.Errorf("subject lookup by code %q: %w", ref.Code, err)
	}
	return doc.ID.Hex(), nil
}
