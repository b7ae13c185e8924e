package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alcyxob/coach-schedule/internal/domain"
	"alcyxob/coach-schedule/internal/events"
	"alcyxob/coach-schedule/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultLessonDuration is used when a record is saved without a duration.
const DefaultLessonDuration = 60

// LessonRecordInput is what the coach writes about a session. Who, when and
// which package are taken from the schedule entry.
type LessonRecordInput struct {
	Duration        int                     `json:"duration"`
	TrainingMode    string                  `json:"trainingMode"`
	ExerciseActions []domain.ExerciseAction `json:"exerciseActions"`
	Content         string                  `json:"content"`
	Notes           string                  `json:"notes"`
	Performance     string                  `json:"performance"`
	NextGoals       string                  `json:"nextGoals"`
}

// --- Service Interface ---
type LessonService interface {
	// CreateForSlot saves a lesson record for a schedule entry. A scheduled
	// entry is completed (and its package charged) in the same transaction.
	CreateForSlot(ctx context.Context, coachID, scheduleID primitive.ObjectID, input LessonRecordInput) (*domain.LessonRecord, *domain.ScheduleEntry, error)
	// RecordForSlot returns the record linked to a schedule entry.
	RecordForSlot(ctx context.Context, coachID, scheduleID primitive.ObjectID) (*domain.LessonRecord, error)
	GetRecord(ctx context.Context, coachID, recordID primitive.ObjectID) (*domain.LessonRecord, error)
}

// --- Service Implementation ---

type lessonService struct {
	scheduleRepo     repository.ScheduleRepository
	packageRepo      repository.PackageRepository
	lessonRecordRepo repository.LessonRecordRepository
	tx               repository.Transactor
	events           eventPublisher
	logger           *zap.Logger
	now              func() time.Time
}

// NewLessonService creates a new instance of lessonService.
func NewLessonService(
	scheduleRepo repository.ScheduleRepository,
	packageRepo repository.PackageRepository,
	lessonRecordRepo repository.LessonRecordRepository,
	tx repository.Transactor,
	publisher events.Publisher,
	logger *zap.Logger,
) LessonService {
	return &lessonService{
		scheduleRepo:     scheduleRepo,
		packageRepo:      packageRepo,
		lessonRecordRepo: lessonRecordRepo,
		tx:               tx,
		events:           eventPublisher{publisher: publisher, logger: logger},
		logger:           logger,
		now:              time.Now,
	}
}

func (s *lessonService) CreateForSlot(ctx context.Context, coachID, scheduleID primitive.ObjectID, input LessonRecordInput) (*domain.LessonRecord, *domain.ScheduleEntry, error) {
	// 1. Load the entry and decide what saving means for it
	entry, err := s.scheduleRepo.GetByID(ctx, coachID, scheduleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrScheduleNotFound
		}
		s.logger.Error("Failed to load booking", zap.String("schedule_id", scheduleID.Hex()), zap.Error(err))
		return nil, nil, fmt.Errorf("load booking: %w", err)
	}
	completes := false
	switch entry.Status {
	case domain.ScheduleStatusScheduled:
		completes = true
	case domain.ScheduleStatusCompleted:
	default:
		return nil, nil, ErrInvalidTransition
	}
	if entry.ClientID == primitive.NilObjectID {
		return nil, nil, ErrClientNotFound
	}

	// 2. Save record, status and package together. The slot holds one
	// record; the unique index rejects a concurrent second insert.
	now := s.now().UTC()
	record := &domain.LessonRecord{
		CoachID:         coachID,
		ClientID:        entry.ClientID,
		ClientName:      entry.ClientName,
		LessonDate:      entry.Date,
		LessonTime:      entry.StartTime,
		Duration:        input.Duration,
		PackageID:       entry.PackageID,
		TrainingMode:    input.TrainingMode,
		ExerciseActions: input.ExerciseActions,
		Content:         input.Content,
		Notes:           input.Notes,
		Performance:     input.Performance,
		NextGoals:       input.NextGoals,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if record.Duration <= 0 {
		record.Duration = DefaultLessonDuration
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := s.lessonRecordRepo.FindBySlot(ctx, coachID, entry.ClientID, entry.Date, entry.StartTime)
		switch {
		case err == nil:
			return ErrLessonRecordExists
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("find lesson record: %w", err)
		}
		id, err := s.lessonRecordRepo.Create(ctx, record)
		if err != nil {
			return err
		}
		record.ID = id
		if !completes {
			return nil
		}
		if err := s.scheduleRepo.UpdateStatus(ctx, coachID, scheduleID, domain.ScheduleStatusScheduled, domain.ScheduleStatusCompleted); err != nil {
			return err
		}
		return deductSession(ctx, s.packageRepo, entry, s.logger)
	})
	if err != nil {
		record.ID = primitive.NilObjectID
		switch {
		case errors.Is(err, ErrLessonRecordExists), errors.Is(err, repository.ErrDuplicateKey):
			return nil, nil, ErrLessonRecordExists
		case errors.Is(err, repository.ErrStatusChanged):
			return nil, nil, ErrInvalidTransition
		case errors.Is(err, repository.ErrNotFound):
			return nil, nil, ErrScheduleNotFound
		}
		s.logger.Error("Failed to save lesson record", zap.String("schedule_id", scheduleID.Hex()), zap.Error(err))
		return nil, nil, fmt.Errorf("save lesson record: %w", err)
	}

	if completes {
		entry.Status = domain.ScheduleStatusCompleted
		entry.UpdatedAt = now
		s.events.publish(ctx, scheduleEvent(events.ScheduleCompleted, entry))
	}
	s.logger.Info("Lesson record saved",
		zap.String("schedule_id", scheduleID.Hex()),
		zap.String("record_id", record.ID.Hex()),
		zap.Bool("completed_entry", completes),
	)
	event := events.Event{
		Type:       events.LessonRecordCreated,
		CoachID:    coachID.Hex(),
		ScheduleID: scheduleID.Hex(),
		Data: map[string]any{
			"recordId": record.ID.Hex(),
			"clientId": record.ClientID.Hex(),
			"date":     record.LessonDate,
			"time":     record.LessonTime,
		},
	}
	if record.PackageID != nil {
		event.PackageID = record.PackageID.Hex()
	}
	s.events.publish(ctx, event)
	return record, entry, nil
}

func (s *lessonService) RecordForSlot(ctx context.Context, coachID, scheduleID primitive.ObjectID) (*domain.LessonRecord, error) {
	entry, err := s.scheduleRepo.GetByID(ctx, coachID, scheduleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}
	record, err := s.lessonRecordRepo.FindBySlot(ctx, coachID, entry.ClientID, entry.Date, entry.StartTime)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLessonRecordNotFound
		}
		return nil, fmt.Errorf("find lesson record: %w", err)
	}
	return record, nil
}

func (s *lessonService) GetRecord(ctx context.Context, coachID, recordID primitive.ObjectID) (*domain.LessonRecord, error) {
	record, err := s.lessonRecordRepo.GetByID(ctx, coachID, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLessonRecordNotFound
		}
		return nil, fmt.Errorf("load lesson record: %w", err)
	}
	return record, nil
}
