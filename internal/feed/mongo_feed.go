package feed

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoFeed watches the attendance collection's change stream for bitmask
// updates. Pre-images must be enabled on the collection
// (changeStreamPreAndPostImages), otherwise OldBitmask arrives empty and
// every event looks like a first write.
type MongoFeed struct {
	stream *mongo.ChangeStream
}

func OpenMongoFeed(ctx context.Context, db *mongo.Database) (*MongoFeed, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType":                            "update",
			"updateDescription.updatedFields.presence_bitmask": bson.M{"$exists": true},
		}}},
	}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	stream, err := db.Collection("attendance").Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("open attendance change stream: %w", err)
	}
	return &MongoFeed{stream: stream}, nil
}

type changeEvent struct {
	DocumentKey struct {
		ID primitive.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument struct {
		PresenceBitmask string `bson:"presence_bitmask"`
	} `bson:"fullDocument"`
	FullDocumentBeforeChange struct {
		PresenceBitmask string `bson:"presence_bitmask"`
	} `bson:"fullDocumentBeforeChange"`
}

func (f *MongoFeed) Next(ctx context.Context) (Change, error) {
	if !f.stream.Next(ctx) {
		if err := f.stream.Err(); err != nil {
			return Change{}, fmt.Errorf("attendance change stream: %w", err)
		}
		return Change{}, ctx.Err()
	}

	var event changeEvent
	if err := f.stream.Decode(&event); err != nil {
		return Change{}, fmt.Errorf("decode change event: %w", err)
	}
	return Change{
		AttendanceID: event.DocumentKey.ID.Hex(),
		OldBitmask:   event.FullDocumentBeforeChange.PresenceBitmask,
		NewBitmask:   event.FullDocument.PresenceBitmask,
	}, nil
}

func (f *MongoFeed) Close(ctx context.Context) error {
	return f.stream.Close(ctx)
}
