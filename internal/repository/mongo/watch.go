package mongo

import (
	"alcyxob/coach-schedule/internal/repository"
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoChangeWatcher implements repository.ChangeWatcher with change streams.
type mongoChangeWatcher struct {
	db *mongo.Database
}

// NewMongoChangeWatcher creates a ChangeWatcher over db.
func NewMongoChangeWatcher(db *mongo.Database) repository.ChangeWatcher {
	return &mongoChangeWatcher{db: db}
}

// coachChangePipeline matches inserts and updates of the coach's documents.
// Delete events carry no document body, so every delete is passed through and
// the listener simply re-reads its snapshot.
func coachChangePipeline(coachID primitive.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"$or": bson.A{
				bson.M{"fullDocument.coachId": coachID},
				bson.M{"operationType": "delete"},
			},
		}}},
	}
}

// Watch blocks until ctx is cancelled or the stream fails. The stream is open
// on the server when onReady runs; onChange runs for every matching event.
func (w *mongoChangeWatcher) Watch(ctx context.Context, collection repository.Collection, coachID primitive.ObjectID, onReady, onChange func()) error {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := w.db.Collection(string(collection)).Watch(ctx, coachChangePipeline(coachID), opts)
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())
	onReady()

	for stream.Next(ctx) {
		onChange()
	}
	if ctx.Err() != nil {
		return nil
	}
	return stream.Err()
}
