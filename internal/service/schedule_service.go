package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"alcyxob/coach-schedule/internal/domain"
	"alcyxob/coach-schedule/internal/events"
	"alcyxob/coach-schedule/internal/linkage"
	"alcyxob/coach-schedule/internal/occupancy"
	"alcyxob/coach-schedule/internal/repository"
	"alcyxob/coach-schedule/internal/timegrid"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// CreateBookingInput describes a new booking. StartTime is either an exact
// half-slot, or the hour of the clicked cell when Click is set.
type CreateBookingInput struct {
	Date       string
	StartTime  string
	Click      *occupancy.DropPoint
	ClientID   primitive.ObjectID
	ClientName string // Looked up from the client when empty
	PackageID  *primitive.ObjectID
}

// MoveBookingInput describes a drag-and-drop target. TargetTime is the hour
// of the target cell when Drop is set.
type MoveBookingInput struct {
	TargetDate string
	TargetTime string
	Drop       *occupancy.DropPoint
}

// --- Service Interface ---
type ScheduleService interface {
	CreateBooking(ctx context.Context, coachID primitive.ObjectID, input CreateBookingInput) (*domain.ScheduleEntry, error)
	MoveBooking(ctx context.Context, coachID, scheduleID primitive.ObjectID, input MoveBookingInput) (*domain.ScheduleEntry, error)
	Complete(ctx context.Context, coachID, scheduleID primitive.ObjectID) (*domain.ScheduleEntry, error)
	Cancel(ctx context.Context, coachID, scheduleID primitive.ObjectID, deductSession bool) (*domain.ScheduleEntry, error)
	Delete(ctx context.Context, coachID, scheduleID primitive.ObjectID) error
	EditClient(ctx context.Context, coachID, scheduleID, clientID primitive.ObjectID) (*domain.ScheduleEntry, error)
}

// --- Service Implementation ---

// scheduleService implements ScheduleService.
type scheduleService struct {
	scheduleRepo     repository.ScheduleRepository
	packageRepo      repository.PackageRepository
	lessonRecordRepo repository.LessonRecordRepository
	clientRepo       repository.ClientRepository
	tx               repository.Transactor
	events           eventPublisher
	logger           *zap.Logger
	now              func() time.Time
}

// NewScheduleService creates a new instance of scheduleService.
func NewScheduleService(
	scheduleRepo repository.ScheduleRepository,
	packageRepo repository.PackageRepository,
	lessonRecordRepo repository.LessonRecordRepository,
	clientRepo repository.ClientRepository,
	tx repository.Transactor,
	publisher events.Publisher,
	logger *zap.Logger,
) ScheduleService {
	return &scheduleService{
		scheduleRepo:     scheduleRepo,
		packageRepo:      packageRepo,
		lessonRecordRepo: lessonRecordRepo,
		clientRepo:       clientRepo,
		tx:               tx,
		events:           eventPublisher{publisher: publisher, logger: logger},
		logger:           logger,
		now:              time.Now,
	}
}

// CreateBooking books an empty slot for a client.
func (s *scheduleService) CreateBooking(ctx context.Context, coachID primitive.ObjectID, input CreateBookingInput) (*domain.ScheduleEntry, error) {
	// 1. Validate Inputs
	startTime, err := resolveSlot(input.Date, input.StartTime, input.Click)
	if err != nil {
		return nil, err
	}
	clientName := strings.TrimSpace(input.ClientName)
	if clientName == "" {
		if input.ClientID == primitive.NilObjectID {
			return nil, ErrClientNameRequired
		}
		client, err := s.clientRepo.GetByID(ctx, coachID, input.ClientID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrClientNameRequired
			}
			s.logger.Error("Failed to load client", zap.String("client_id", input.ClientID.Hex()), zap.Error(err))
			return nil, fmt.Errorf("load client: %w", err)
		}
		clientName = strings.TrimSpace(client.Name)
		if clientName == "" {
			return nil, ErrClientNameRequired
		}
	}
	endTime, err := timegrid.EndTime(startTime)
	if err != nil {
		return nil, ErrInvalidSlotTime
	}

	// 2. The slot must be free
	if err := checkSlotFree(ctx, s.scheduleRepo, coachID, input.Date, startTime, primitive.NilObjectID); err != nil {
		if errors.Is(err, ErrSlotConflict) {
			return nil, err
		}
		s.logger.Error("Failed to check slot", zap.String("coach_id", coachID.Hex()), zap.Error(err))
		return nil, fmt.Errorf("check slot: %w", err)
	}

	// 3. Persist
	now := s.now().UTC()
	entry := &domain.ScheduleEntry{
		CoachID:    coachID,
		ClientID:   input.ClientID,
		ClientName: clientName,
		PackageID:  input.PackageID,
		Date:       input.Date,
		StartTime:  startTime,
		EndTime:    endTime,
		Status:     domain.ScheduleStatusScheduled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	id, err := s.scheduleRepo.Create(ctx, entry)
	if err != nil {
		s.logger.Error("Failed to create booking", zap.String("coach_id", coachID.Hex()), zap.Error(err))
		return nil, fmt.Errorf("create booking: %w", err)
	}
	entry.ID = id

	s.logger.Info("Booking created",
		zap.String("coach_id", coachID.Hex()),
		zap.String("schedule_id", id.Hex()),
		zap.String("date", entry.Date),
		zap.String("start_time", entry.StartTime),
	)
	s.events.publish(ctx, scheduleEvent(events.ScheduleCreated, entry))
	return entry, nil
}

// MoveBooking drops an existing entry onto another slot. A completed entry
// takes its lesson record along.
func (s *scheduleService) MoveBooking(ctx context.Context, coachID, scheduleID primitive.ObjectID, input MoveBookingInput) (*domain.ScheduleEntry, error) {
	// 1. Validate Inputs
	targetTime, err := resolveSlot(input.TargetDate, input.TargetTime, input.Drop)
	if err != nil {
		return nil, err
	}
	entry, err := s.getEntry(ctx, coachID, scheduleID)
	if err != nil {
		return nil, err
	}

	// 2. Dropping onto its own slot is a no-op
	if entry.Date == input.TargetDate && entry.StartTime == targetTime {
		return entry, nil
	}

	// 3. The target must be free of other entries
	if err := checkSlotFree(ctx, s.scheduleRepo, coachID, input.TargetDate, targetTime, entry.ID); err != nil {
		if errors.Is(err, ErrSlotConflict) {
			return nil, err
		}
		s.logger.Error("Failed to check slot", zap.String("schedule_id", scheduleID.Hex()), zap.Error(err))
		return nil, fmt.Errorf("check slot: %w", err)
	}
	endTime, err := timegrid.EndTime(targetTime)
	if err != nil {
		return nil, ErrInvalidSlotTime
	}

	// 4. Move the entry, and its lesson record when it has one
	oldKey := linkage.KeyForEntry(entry)
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.scheduleRepo.UpdateSlot(ctx, coachID, scheduleID, input.TargetDate, targetTime, endTime); err != nil {
			return err
		}
		if entry.Status != domain.ScheduleStatusCompleted {
			return nil
		}
		record, err := s.lessonRecordRepo.FindBySlot(ctx, coachID, oldKey.ClientID, oldKey.Date, oldKey.Time)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		return s.lessonRecordRepo.UpdateSlot(ctx, coachID, record.ID, input.TargetDate, targetTime)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrScheduleNotFound
		case errors.Is(err, repository.ErrDuplicateKey):
			// The client already has a record at the target slot.
			return nil, ErrLessonRecordExists
		}
		s.logger.Error("Failed to move booking", zap.String("schedule_id", scheduleID.Hex()), zap.Error(err))
		return nil, fmt.Errorf("move booking: %w", err)
	}

	from := map[string]any{"date": entry.Date, "startTime": entry.StartTime}
	entry.Date = input.TargetDate
	entry.StartTime = targetTime
	entry.EndTime = endTime
	entry.HasBeenChanged = true
	entry.UpdatedAt = s.now().UTC()

	s.logger.Info("Booking moved",
		zap.String("schedule_id", scheduleID.Hex()),
		zap.String("date", entry.Date),
		zap.String("start_time", entry.StartTime),
	)
	event := scheduleEvent(events.ScheduleMoved, entry)
	event.Data["from"] = from
	s.events.publish(ctx, event)
	return entry, nil
}

// Complete marks a scheduled entry as held and consumes one package session.
func (s *scheduleService) Complete(ctx context.Context, coachID, scheduleID primitive.ObjectID) (*domain.ScheduleEntry, error) {
	entry, err := s.transition(ctx, coachID, scheduleID, domain.ScheduleStatusCompleted)
	if err != nil {
		return nil, err
	}
	s.events.publish(ctx, scheduleEvent(events.ScheduleCompleted, entry))
	return entry, nil
}

// Cancel cancels a scheduled entry. With deductSession the package is still
// charged, as for a late cancellation.
func (s *scheduleService) Cancel(ctx context.Context, coachID, scheduleID primitive.ObjectID, deductSession bool) (*domain.ScheduleEntry, error) {
	to := domain.ScheduleStatusCancelled
	if deductSession {
		to = domain.ScheduleStatusCancelledWithDeduction
	}
	entry, err := s.transition(ctx, coachID, scheduleID, to)
	if err != nil {
		return nil, err
	}
	s.events.publish(ctx, scheduleEvent(events.ScheduleCancelled, entry))
	return entry, nil
}

// transition changes the status and, for statuses that consume a session,
// decrements the package in the same transaction.
func (s *scheduleService) transition(ctx context.Context, coachID, scheduleID primitive.ObjectID, to domain.ScheduleStatus) (*domain.ScheduleEntry, error) {
	entry, err := s.getEntry(ctx, coachID, scheduleID)
	if err != nil {
		return nil, err
	}
	from := entry.Status
	if !from.CanTransitionTo(to) {
		return nil, ErrInvalidTransition
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.scheduleRepo.UpdateStatus(ctx, coachID, scheduleID, from, to); err != nil {
			return err
		}
		if !to.Deducts() {
			return nil
		}
		return deductSession(ctx, s.packageRepo, entry, s.logger)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStatusChanged):
			return nil, ErrInvalidTransition
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrScheduleNotFound
		}
		s.logger.Error("Failed to change status",
			zap.String("schedule_id", scheduleID.Hex()),
			zap.String("to", string(to)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("change status: %w", err)
	}

	entry.Status = to
	entry.UpdatedAt = s.now().UTC()
	s.logger.Info("Booking status changed",
		zap.String("schedule_id", scheduleID.Hex()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return entry, nil
}

// Delete removes an entry in any status. Package balances are not restored.
func (s *scheduleService) Delete(ctx context.Context, coachID, scheduleID primitive.ObjectID) error {
	entry, err := s.getEntry(ctx, coachID, scheduleID)
	if err != nil {
		return err
	}
	if err := s.scheduleRepo.Delete(ctx, coachID, scheduleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrScheduleNotFound
		}
		s.logger.Error("Failed to delete booking", zap.String("schedule_id", scheduleID.Hex()), zap.Error(err))
		return fmt.Errorf("delete booking: %w", err)
	}
	s.logger.Info("Booking deleted", zap.String("schedule_id", scheduleID.Hex()))
	s.events.publish(ctx, scheduleEvent(events.ScheduleDeleted, entry))
	return nil
}

// EditClient reassigns the entry to another client of the same coach.
func (s *scheduleService) EditClient(ctx context.Context, coachID, scheduleID, clientID primitive.ObjectID) (*domain.ScheduleEntry, error) {
	client, err := s.clientRepo.GetByID(ctx, coachID, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		s.logger.Error("Failed to load client", zap.String("client_id", clientID.Hex()), zap.Error(err))
		return nil, fmt.Errorf("load client: %w", err)
	}
	entry, err := s.getEntry(ctx, coachID, scheduleID)
	if err != nil {
		return nil, err
	}

	if err := s.scheduleRepo.UpdateClient(ctx, coachID, scheduleID, client.ID, client.Name); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrScheduleNotFound
		}
		s.logger.Error("Failed to change client", zap.String("schedule_id", scheduleID.Hex()), zap.Error(err))
		return nil, fmt.Errorf("change client: %w", err)
	}

	entry.ClientID = client.ID
	entry.ClientName = client.Name
	entry.UpdatedAt = s.now().UTC()
	s.events.publish(ctx, scheduleEvent(events.ScheduleClientSet, entry))
	return entry, nil
}

func (s *scheduleService) getEntry(ctx context.Context, coachID, scheduleID primitive.ObjectID) (*domain.ScheduleEntry, error) {
	entry, err := s.scheduleRepo.GetByID(ctx, coachID, scheduleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrScheduleNotFound
		}
		s.logger.Error("Failed to load booking", zap.String("schedule_id", scheduleID.Hex()), zap.Error(err))
		return nil, fmt.Errorf("load booking: %w", err)
	}
	return entry, nil
}
