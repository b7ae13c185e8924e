package repository

import (
	"alcyxob/coach-schedule/internal/domain" // Import our defined domain models
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive" // For using ObjectIDs
)

// Error constants for repository layer
var (
	ErrNotFound      = RepositoryError("not found")
	ErrUpdateFailed  = RepositoryError("update failed")
	ErrStatusChanged = RepositoryError("status changed concurrently") // Compare-and-set on status lost the race
	ErrDuplicateKey  = RepositoryError("duplicate key")               // A unique index rejected the write
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// Collection names a coach-scoped document collection.
type Collection string

const (
	CollectionSchedules     Collection = "schedules"
	CollectionPackages      Collection = "packages"
	CollectionLessonRecords Collection = "lessonRecords"
	CollectionClients       Collection = "clients"
)

// WatchedCollections are the collections a schedule session keeps in sync.
var WatchedCollections = []Collection{
	CollectionSchedules,
	CollectionPackages,
	CollectionLessonRecords,
	CollectionClients,
}

// ScheduleRepository defines the interface for interacting with schedule entries.
// Every method is scoped by coachID.
type ScheduleRepository interface {
	Create(ctx context.Context, entry *domain.ScheduleEntry) (primitive.ObjectID, error)
	GetByID(ctx context.Context, coachID, id primitive.ObjectID) (*domain.ScheduleEntry, error)
	ListByCoach(ctx context.Context, coachID primitive.ObjectID) ([]domain.ScheduleEntry, error)
	ListByCoachAndDate(ctx context.Context, coachID primitive.ObjectID, date string) ([]domain.ScheduleEntry, error)
	// UpdateSlot moves an entry to a new date and start time.
	UpdateSlot(ctx context.Context, coachID, id primitive.ObjectID, date, startTime, endTime string) error
	// UpdateStatus sets the status only if the stored status still equals from.
	// Returns ErrStatusChanged when it does not.
	UpdateStatus(ctx context.Context, coachID, id primitive.ObjectID, from, to domain.ScheduleStatus) error
	UpdateClient(ctx context.Context, coachID, id, clientID primitive.ObjectID, clientName string) error
	Delete(ctx context.Context, coachID, id primitive.ObjectID) error
}

// PackageBalance is one remaining-session write in a reconciliation batch.
type PackageBalance struct {
	PackageID         primitive.ObjectID
	RemainingSessions int
}

// PackageRepository defines the interface for interacting with session packages.
type PackageRepository interface {
	GetByID(ctx context.Context, coachID, id primitive.ObjectID) (*domain.Package, error)
	ListByCoach(ctx context.Context, coachID primitive.ObjectID) ([]domain.Package, error)
	// DecrementRemaining subtracts one session if the balance is above zero.
	// Reports false when the balance was already zero.
	DecrementRemaining(ctx context.Context, coachID, id primitive.ObjectID) (bool, error)
	// SetRemaining writes all balances as one batch.
	SetRemaining(ctx context.Context, coachID primitive.ObjectID, balances []PackageBalance) error
}

// LessonRecordRepository defines the interface for interacting with lesson records.
type LessonRecordRepository interface {
	Create(ctx context.Context, record *domain.LessonRecord) (primitive.ObjectID, error)
	GetByID(ctx context.Context, coachID, id primitive.ObjectID) (*domain.LessonRecord, error)
	ListByCoach(ctx context.Context, coachID primitive.ObjectID) ([]domain.LessonRecord, error)
	// FindBySlot returns the record linked to (clientID, date, time).
	FindBySlot(ctx context.Context, coachID, clientID primitive.ObjectID, date, time string) (*domain.LessonRecord, error)
	UpdateSlot(ctx context.Context, coachID, id primitive.ObjectID, date, time string) error
	// CountByPackage returns how many records reference each package.
	CountByPackage(ctx context.Context, coachID primitive.ObjectID) (map[primitive.ObjectID]int, error)
}

// ClientRepository gives read access to client reference data.
type ClientRepository interface {
	GetByID(ctx context.Context, coachID, id primitive.ObjectID) (*domain.Client, error)
	ListByCoach(ctx context.Context, coachID primitive.ObjectID) ([]domain.Client, error)
}

// Transactor runs fn so that all of its writes land together or not at all.
// Repository calls made with the ctx passed to fn join the transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ChangeWatcher streams change notifications for one coach's documents.
// Watch blocks until ctx is done (returns nil) or the stream fails (returns
// the error). onReady is called once the stream is open, before any onChange;
// every write committed after that point produces an onChange call. Both
// callbacks run on the caller's goroutine.
type ChangeWatcher interface {
	Watch(ctx context.Context, collection Collection, coachID primitive.ObjectID, onReady, onChange func()) error
}
