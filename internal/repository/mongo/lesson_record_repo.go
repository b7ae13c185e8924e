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

const lessonRecordCollectionName = string(repository.CollectionLessonRecords)

// mongoLessonRecordRepository implements repository.LessonRecordRepository
type mongoLessonRecordRepository struct {
	collection *mongo.Collection
}

// NewMongoLessonRecordRepository creates a new lesson record repository.
func NewMongoLessonRecordRepository(db *mongo.Database) repository.LessonRecordRepository {
	return &mongoLessonRecordRepository{
		collection: db.Collection(lessonRecordCollectionName),
	}
}

// Create inserts a new lesson record.
func (r *mongoLessonRecordRepository) Create(ctx context.Context, record *domain.LessonRecord) (primitive.ObjectID, error) {
	if record.CoachID == primitive.NilObjectID || record.ClientID == primitive.NilObjectID || record.LessonDate == "" || record.LessonTime == "" {
		return primitive.NilObjectID, errors.New("lesson record requires coachId, clientId, lessonDate and lessonTime")
	}

	record.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicateKey
		}
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted lesson record ID")
	}
	return insertedID, nil
}

// GetByID retrieves one lesson record.
func (r *mongoLessonRecordRepository) GetByID(ctx context.Context, coachID, id primitive.ObjectID) (*domain.LessonRecord, error) {
	return r.findOne(ctx, bson.M{"_id": id, "coachId": coachID})
}

// FindBySlot retrieves the record linked to a client's session. When more
// than one record matches, the oldest id wins.
func (r *mongoLessonRecordRepository) FindBySlot(ctx context.Context, coachID, clientID primitive.ObjectID, date, lessonTime string) (*domain.LessonRecord, error) {
	filter := bson.M{
		"coachId":    coachID,
		"clientId":   clientID,
		"lessonDate": date,
		"lessonTime": lessonTime,
	}
	return r.findOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (r *mongoLessonRecordRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*domain.LessonRecord, error) {
	var record domain.LessonRecord
	err := r.collection.FindOne(ctx, filter, opts...).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ListByCoach retrieves every lesson record of a coach, most recent lesson first.
func (r *mongoLessonRecordRepository) ListByCoach(ctx context.Context, coachID primitive.ObjectID) ([]domain.LessonRecord, error) {
	var records []domain.LessonRecord
	findOptions := options.Find().SetSort(bson.D{{Key: "lessonDate", Value: -1}, {Key: "lessonTime", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"coachId": coachID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateSlot re-keys a record after its schedule entry was moved.
func (r *mongoLessonRecordRepository) UpdateSlot(ctx context.Context, coachID, id primitive.ObjectID, date, lessonTime string) error {
	filter := bson.M{"_id": id, "coachId": coachID}
	update := bson.M{
		"$set": bson.M{
			"lessonDate": date,
			"lessonTime": lessonTime,
			"updatedAt":  time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountByPackage groups the coach's records by package.
func (r *mongoLessonRecordRepository) CountByPackage(ctx context.Context, coachID primitive.ObjectID) (map[primitive.ObjectID]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"coachId": coachID, "packageId": bson.M{"$type": "objectId"}}}},
		{{Key: "$group", Value: bson.M{"_id": "$packageId", "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		PackageID primitive.ObjectID `bson:"_id"`
		Count     int                `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[primitive.ObjectID]int, len(rows))
	for _, row := range rows {
		counts[row.PackageID] = row.Count
	}
	return counts, nil
}

// EnsureLessonRecordIndexes creates necessary indexes for the lesson records
// collection. The slot index is unique for records that carry a client, so a
// client has at most one record per session. It is built on its own: legacy
// data holding duplicates makes that build fail without blocking the others.
func EnsureLessonRecordIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "coachId", Value: 1}, {Key: "packageId", Value: 1}},
			Options: options.Index(),
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return err
	}

	_, err := collection.Indexes().CreateOne(ctx, lessonSlotIndex())
	return err
}

// lessonSlotIndex serves the linkage lookup (client + date + time).
func lessonSlotIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{
			{Key: "coachId", Value: 1},
			{Key: "clientId", Value: 1},
			{Key: "lessonDate", Value: 1},
			{Key: "lessonTime", Value: 1},
		},
		Options: options.Index().
			SetName("lesson_slot_unique").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"clientId": bson.M{"$type": "objectId"}}),
	}
}
