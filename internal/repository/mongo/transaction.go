package mongo

import (
	"alcyxob/coach-schedule/internal/repository"
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// mongoTransactor implements repository.Transactor with multi-document
// transactions.
type mongoTransactor struct {
	client *mongo.Client
}

// NewMongoTransactor creates a Transactor bound to client.
func NewMongoTransactor(client *mongo.Client) repository.Transactor {
	return &mongoTransactor{client: client}
}

// WithTransaction runs fn inside a transaction. The driver retries fn on
// transient transaction errors, so fn must be safe to run more than once.
func (t *mongoTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(context.Background())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
