package mongo

import (
	"alcyxob/coach-schedule/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Default connection timeout
const defaultTimeout = 10 * time.Second

// ConnectDB establishes a connection to MongoDB using the provided URI and
// verifies it with a ping against the primary. Change streams and
// transactions both need a replica set or sharded cluster.
func ConnectDB(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	if err = client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes of every collection the engine reads.
// All collections are attempted; the returned error joins every failure.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ensure := map[repository.Collection]func(context.Context, *mongo.Collection) error{
		repository.CollectionSchedules:     EnsureScheduleIndexes,
		repository.CollectionPackages:      EnsurePackageIndexes,
		repository.CollectionLessonRecords: EnsureLessonRecordIndexes,
		repository.CollectionClients:       EnsureClientIndexes,
	}

	var errs []error
	for name, fn := range ensure {
		if err := fn(ctx, db.Collection(string(name))); err != nil {
			errs = append(errs, fmt.Errorf("indexes for %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
