package mongo

import (
	"alcyxob/coach-schedule/internal/domain"
	"alcyxob/coach-schedule/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const packageCollectionName = string(repository.CollectionPackages)

// mongoPackageRepository implements repository.PackageRepository
type mongoPackageRepository struct {
	collection *mongo.Collection
}

// NewMongoPackageRepository creates a new package repository backed by MongoDB.
func NewMongoPackageRepository(db *mongo.Database) repository.PackageRepository {
	return &mongoPackageRepository{
		collection: db.Collection(packageCollectionName),
	}
}

// GetByID retrieves one of the coach's packages.
func (r *mongoPackageRepository) GetByID(ctx context.Context, coachID, id primitive.ObjectID) (*domain.Package, error) {
	var pkg domain.Package
	filter := bson.M{"_id": id, "coachId": coachID}

	err := r.collection.FindOne(ctx, filter).Decode(&pkg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &pkg, nil
}

// ListByCoach retrieves every package sold by a coach, newest first.
func (r *mongoPackageRepository) ListByCoach(ctx context.Context, coachID primitive.ObjectID) ([]domain.Package, error) {
	var packages []domain.Package
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"coachId": coachID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &packages); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return packages, nil
}

// DecrementRemaining atomically takes one session off the balance when the
// balance is above zero. The condition lives in the filter, so two concurrent
// decrements can never push the balance below zero.
func (r *mongoPackageRepository) DecrementRemaining(ctx context.Context, coachID, id primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"_id":               id,
		"coachId":           coachID,
		"remainingSessions": bson.M{"$gt": 0},
	}
	update := bson.M{
		"$inc": bson.M{"remainingSessions": -1},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	if result.MatchedCount == 0 {
		// Distinguish "balance already zero" from "package gone".
		if _, err := r.GetByID(ctx, coachID, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// SetRemaining writes all balances in a single ordered bulk write.
func (r *mongoPackageRepository) SetRemaining(ctx context.Context, coachID primitive.ObjectID, balances []repository.PackageBalance) error {
	if len(balances) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(balances))
	for _, b := range balances {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": b.PackageID, "coachId": coachID}).
			SetUpdate(bson.M{"$set": bson.M{"remainingSessions": b.RemainingSessions, "updatedAt": now}}))
	}

	result, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return err
	}
	if result.MatchedCount != int64(len(balances)) {
		return repository.ErrUpdateFailed
	}
	return nil
}

// EnsurePackageIndexes creates necessary indexes for the packages collection.
func EnsurePackageIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "coachId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
		{
			// Packages of one client
			Keys:    bson.D{{Key: "coachId", Value: 1}, {Key: "clientId", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
