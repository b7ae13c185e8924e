// Package events publishes schedule lifecycle events for downstream
// consumers such as notification workers.
package events

import (
	"context"
	"time"
)

// Routing keys.
const (
	ScheduleCreated     = "schedule.created"
	ScheduleMoved       = "schedule.moved"
	ScheduleCompleted   = "schedule.completed"
	ScheduleCancelled   = "schedule.cancelled"
	ScheduleDeleted     = "schedule.deleted"
	ScheduleClientSet   = "schedule.client_changed"
	LessonRecordCreated = "lesson_record.created"
	PackagesReconciled  = "packages.reconciled"
)

// Event is the JSON body of every published message.
type Event struct {
	Type       string         `json:"type"`
	CoachID    string         `json:"coachId"`
	ScheduleID string         `json:"scheduleId,omitempty"`
	PackageID  string         `json:"packageId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
