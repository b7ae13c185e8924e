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

const scheduleCollectionName = string(repository.CollectionSchedules)

// scheduleDocument is the stored shape of a schedule entry. Older documents
// only carry the legacy "time" field, so it is still written alongside
// "startTime" and used as a fallback on read.
type scheduleDocument struct {
	domain.ScheduleEntry `bson:",inline"`
	LegacyTime           string `bson:"time,omitempty"`
}

func toScheduleDocument(e *domain.ScheduleEntry) scheduleDocument {
	return scheduleDocument{ScheduleEntry: *e, LegacyTime: e.StartTime}
}

func (d *scheduleDocument) entry() domain.ScheduleEntry {
	e := d.ScheduleEntry
	if e.StartTime == "" {
		e.StartTime = d.LegacyTime
	}
	return e
}

// mongoScheduleRepository implements repository.ScheduleRepository
type mongoScheduleRepository struct {
	collection *mongo.Collection
}

// NewMongoScheduleRepository creates a new schedule repository backed by MongoDB.
func NewMongoScheduleRepository(db *mongo.Database) repository.ScheduleRepository {
	return &mongoScheduleRepository{
		collection: db.Collection(scheduleCollectionName),
	}
}

// Create inserts a new schedule entry.
func (r *mongoScheduleRepository) Create(ctx context.Context, entry *domain.ScheduleEntry) (primitive.ObjectID, error) {
	if entry.CoachID == primitive.NilObjectID || entry.Date == "" || entry.StartTime == "" {
		return primitive.NilObjectID, errors.New("schedule entry requires coachId, date and startTime")
	}

	entry.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if entry.Status == "" {
		entry.Status = domain.ScheduleStatusScheduled
	}

	result, err := r.collection.InsertOne(ctx, toScheduleDocument(entry))
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted schedule ID")
	}
	return insertedID, nil
}

// GetByID retrieves one of the coach's entries.
func (r *mongoScheduleRepository) GetByID(ctx context.Context, coachID, id primitive.ObjectID) (*domain.ScheduleEntry, error) {
	var doc scheduleDocument
	filter := bson.M{"_id": id, "coachId": coachID}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	entry := doc.entry()
	return &entry, nil
}

// ListByCoach retrieves every entry of a coach, oldest slot first.
func (r *mongoScheduleRepository) ListByCoach(ctx context.Context, coachID primitive.ObjectID) ([]domain.ScheduleEntry, error) {
	return r.find(ctx, bson.M{"coachId": coachID})
}

// ListByCoachAndDate retrieves the coach's entries on one day.
func (r *mongoScheduleRepository) ListByCoachAndDate(ctx context.Context, coachID primitive.ObjectID, date string) ([]domain.ScheduleEntry, error) {
	return r.find(ctx, bson.M{"coachId": coachID, "date": date})
}

func (r *mongoScheduleRepository) find(ctx context.Context, filter bson.M) ([]domain.ScheduleEntry, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "startTime", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []scheduleDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}

	entries := make([]domain.ScheduleEntry, len(docs))
	for i := range docs {
		entries[i] = docs[i].entry()
	}
	return entries, nil
}

// UpdateSlot moves an entry, keeping the legacy "time" field in step.
func (r *mongoScheduleRepository) UpdateSlot(ctx context.Context, coachID, id primitive.ObjectID, date, startTime, endTime string) error {
	filter := bson.M{"_id": id, "coachId": coachID}
	update := bson.M{
		"$set": bson.M{
			"date":           date,
			"startTime":      startTime,
			"time":           startTime,
			"endTime":        endTime,
			"hasBeenChanged": true,
			"updatedAt":      time.Now().UTC(),
		},
	}
	return r.updateOne(ctx, filter, update)
}

// UpdateStatus sets a new status only if the stored status is still `from`.
func (r *mongoScheduleRepository) UpdateStatus(ctx context.Context, coachID, id primitive.ObjectID, from, to domain.ScheduleStatus) error {
	filter := bson.M{"_id": id, "coachId": coachID, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "updatedAt": time.Now().UTC()}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		// Either the entry is gone or someone else changed its status first.
		if _, err := r.GetByID(ctx, coachID, id); err != nil {
			return err
		}
		return repository.ErrStatusChanged
	}
	return nil
}

// UpdateClient reassigns the booked client in place.
func (r *mongoScheduleRepository) UpdateClient(ctx context.Context, coachID, id, clientID primitive.ObjectID, clientName string) error {
	filter := bson.M{"_id": id, "coachId": coachID}
	update := bson.M{
		"$set": bson.M{
			"clientId":   clientID,
			"clientName": clientName,
			"updatedAt":  time.Now().UTC(),
		},
	}
	return r.updateOne(ctx, filter, update)
}

// Delete removes the entry document. Linked records and packages are untouched.
func (r *mongoScheduleRepository) Delete(ctx context.Context, coachID, id primitive.ObjectID) error {
	filter := bson.M{"_id": id, "coachId": coachID}

	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mongoScheduleRepository) updateOne(ctx context.Context, filter, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureScheduleIndexes creates necessary indexes for the schedules collection.
// Slot uniqueness is checked by the booking service, so the slot index is not unique.
func EnsureScheduleIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Slot lookups for conflict checks
			Keys:    bson.D{{Key: "coachId", Value: 1}, {Key: "date", Value: 1}, {Key: "startTime", Value: 1}},
			Options: options.Index(),
		},
		{
			// Month statistics and status filters
			Keys:    bson.D{{Key: "coachId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "packageId", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
