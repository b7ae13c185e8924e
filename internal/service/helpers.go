package service

import (
	"context"
	"errors"
	"time"

	"alcyxob/coach-schedule/internal/domain"
	"alcyxob/coach-schedule/internal/events"
	"alcyxob/coach-schedule/internal/occupancy"
	"alcyxob/coach-schedule/internal/repository"
	"alcyxob/coach-schedule/internal/timegrid"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// eventPublisher wraps a Publisher so that delivery failures are logged and
// never reach the caller.
type eventPublisher struct {
	publisher events.Publisher
	logger    *zap.Logger
}

func (p eventPublisher) publish(ctx context.Context, event events.Event) {
	if p.publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("Failed to publish event", zap.String("type", event.Type), zap.Error(err))
	}
}

func scheduleEvent(eventType string, entry *domain.ScheduleEntry) events.Event {
	e := events.Event{
		Type:       eventType,
		CoachID:    entry.CoachID.Hex(),
		ScheduleID: entry.ID.Hex(),
		Data: map[string]any{
			"clientId":  entry.ClientID.Hex(),
			"date":      entry.Date,
			"startTime": entry.StartTime,
			"status":    string(entry.Status),
		},
	}
	if entry.HasPackage() {
		e.PackageID = entry.PackageID.Hex()
	}
	return e
}

// deductSession takes one session off the entry's package. A missing package
// is logged and skipped; an empty package stays at zero.
func deductSession(ctx context.Context, packageRepo repository.PackageRepository, entry *domain.ScheduleEntry, logger *zap.Logger) error {
	if !entry.HasPackage() {
		return nil
	}
	fields := []zap.Field{
		zap.String("schedule_id", entry.ID.Hex()),
		zap.String("package_id", entry.PackageID.Hex()),
	}

	decremented, err := packageRepo.DecrementRemaining(ctx, entry.CoachID, *entry.PackageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("Package not found, session not deducted", fields...)
			return nil
		}
		return err
	}
	if !decremented {
		logger.Info("Package already has no remaining sessions", fields...)
	}
	return nil
}

// resolveSlot validates date and picks the start time. With a drop point the
// time is the half of the hour cell that was hit; otherwise startTime is used
// as given. The result is always zero-padded HH:MM.
func resolveSlot(date, startTime string, drop *occupancy.DropPoint) (string, error) {
	if _, err := timegrid.ParseDate(date); err != nil {
		return "", ErrInvalidDate
	}
	if drop != nil {
		resolved, err := occupancy.ResolveHalfSlot(startTime, *drop)
		if err != nil {
			if errors.Is(err, occupancy.ErrInvalidCell) {
				return "", ErrInvalidDropPoint
			}
			return "", ErrInvalidSlotTime
		}
		startTime = resolved
	}
	if !timegrid.IsBookable(startTime) {
		return "", ErrInvalidSlotTime
	}
	m, _ := timegrid.TimeToMinutes(startTime)
	return timegrid.MinutesToTime(m), nil
}

// checkSlotFree reads the target day and reports ErrSlotConflict when another
// entry holds the slot.
func checkSlotFree(ctx context.Context, scheduleRepo repository.ScheduleRepository, coachID primitive.ObjectID, date, startTime string, excludeID primitive.ObjectID) error {
	day, err := scheduleRepo.ListByCoachAndDate(ctx, coachID, date)
	if err != nil {
		return err
	}
	if occupancy.HasConflict(day, date, startTime, excludeID) {
		return ErrSlotConflict
	}
	return nil
}
