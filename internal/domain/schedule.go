package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScheduleStatus tracks where a booked slot is in its lifecycle.
type ScheduleStatus string

const (
	ScheduleStatusScheduled              ScheduleStatus = "scheduled"
	ScheduleStatusCompleted              ScheduleStatus = "completed"
	ScheduleStatusCancelled              ScheduleStatus = "cancelled"
	ScheduleStatusCancelledWithDeduction ScheduleStatus = "cancelled_with_deduction" // Cancelled, but the session still counts against the package
)

// SessionLength is the fixed duration of one booked session.
const SessionLength = 60 * time.Minute

// allowedTransitions lists every status change a user may trigger.
// Deletion is not a status and is always allowed.
var allowedTransitions = map[ScheduleStatus][]ScheduleStatus{
	ScheduleStatusScheduled: {
		ScheduleStatusCompleted,
		ScheduleStatusCancelled,
		ScheduleStatusCancelledWithDeduction,
	},
}

// IsValid reports whether s is one of the known statuses.
func (s ScheduleStatus) IsValid() bool {
	switch s {
	case ScheduleStatusScheduled, ScheduleStatusCompleted, ScheduleStatusCancelled, ScheduleStatusCancelledWithDeduction:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
// There are no backward transitions: once an entry leaves "scheduled" the only
// thing left to do with it is delete it.
func (s ScheduleStatus) CanTransitionTo(next ScheduleStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Deducts reports whether an entry in this status has consumed a package session.
func (s ScheduleStatus) Deducts() bool {
	return s == ScheduleStatusCompleted || s == ScheduleStatusCancelledWithDeduction
}

// ScheduleEntry is one booked (or formerly booked) hour on a coach's calendar.
// A slot is identified by (CoachID, Date, StartTime).
type ScheduleEntry struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	CoachID        primitive.ObjectID  `bson:"coachId" json:"coachId"`   // Owner scope, every query filters on it
	ClientID       primitive.ObjectID  `bson:"clientId" json:"clientId"` // Denormalized client reference
	ClientName     string              `bson:"clientName" json:"clientName"`
	PackageID      *primitive.ObjectID `bson:"packageId,omitempty" json:"packageId,omitempty"` // Package consumed by this booking, if any
	Date           string              `bson:"date" json:"date"`                               // YYYY-MM-DD
	StartTime      string              `bson:"startTime" json:"startTime"`                     // HH:MM, 30-minute aligned
	EndTime        string              `bson:"endTime" json:"endTime"`                         // StartTime + SessionLength
	Status         ScheduleStatus      `bson:"status" json:"status"`
	HasBeenChanged bool                `bson:"hasBeenChanged" json:"hasBeenChanged"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// HasPackage reports whether the entry is linked to a package.
func (e *ScheduleEntry) HasPackage() bool {
	return e.PackageID != nil && *e.PackageID != primitive.NilObjectID
}
