package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"alcyxob/coach-schedule/internal/events"
	"alcyxob/coach-schedule/internal/repository"
	"alcyxob/coach-schedule/internal/storage"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// PackageReconciliation is one package's line in a reconciliation report.
type PackageReconciliation struct {
	PackageID     string `json:"packageId"`
	ClientID      string `json:"clientId"`
	TotalSessions int    `json:"totalSessions"`
	UsedSessions  int    `json:"usedSessions"` // Lesson records written against the package
	Before        int    `json:"before"`
	After         int    `json:"after"`
	Changed       bool   `json:"changed"`
}

// ReconcileReport summarises one reconciliation run.
type ReconcileReport struct {
	CoachID     string                  `json:"coachId"`
	DryRun      bool                    `json:"dryRun"`
	GeneratedAt time.Time               `json:"generatedAt"`
	Packages    []PackageReconciliation `json:"packages"`
	Changed     int                     `json:"changed"`
	ReportKey   string                  `json:"reportKey,omitempty"`
	ReportURL   string                  `json:"reportUrl,omitempty"`
}

// --- Service Interface ---

// ReconcileService recomputes package balances from lesson records:
// remaining = max(0, total - records referencing the package).
type ReconcileService interface {
	Reconcile(ctx context.Context, coachID primitive.ObjectID, dryRun bool) (*ReconcileReport, error)
}

// --- Service Implementation ---

type reconcileService struct {
	packageRepo      repository.PackageRepository
	lessonRecordRepo repository.LessonRecordRepository
	tx               repository.Transactor
	fileStorage      storage.FileStorage // nil disables report upload
	events           eventPublisher
	logger           *zap.Logger
	now              func() time.Time
}

// NewReconcileService creates a new instance of reconcileService. fileStorage
// may be nil.
func NewReconcileService(
	packageRepo repository.PackageRepository,
	lessonRecordRepo repository.LessonRecordRepository,
	tx repository.Transactor,
	fileStorage storage.FileStorage,
	publisher events.Publisher,
	logger *zap.Logger,
) ReconcileService {
	return &reconcileService{
		packageRepo:      packageRepo,
		lessonRecordRepo: lessonRecordRepo,
		tx:               tx,
		fileStorage:      fileStorage,
		events:           eventPublisher{publisher: publisher, logger: logger},
		logger:           logger,
		now:              time.Now,
	}
}

func (s *reconcileService) Reconcile(ctx context.Context, coachID primitive.ObjectID, dryRun bool) (*ReconcileReport, error) {
	// 1. Read packages and usage
	packages, err := s.packageRepo.ListByCoach(ctx, coachID)
	if err != nil {
		s.logger.Error("Failed to list packages", zap.String("coach_id", coachID.Hex()), zap.Error(err))
		return nil, fmt.Errorf("list packages: %w", err)
	}
	used, err := s.lessonRecordRepo.CountByPackage(ctx, coachID)
	if err != nil {
		s.logger.Error("Failed to count lesson records", zap.String("coach_id", coachID.Hex()), zap.Error(err))
		return nil, fmt.Errorf("count lesson records: %w", err)
	}

	// 2. Compute balances
	report := &ReconcileReport{
		CoachID:     coachID.Hex(),
		DryRun:      dryRun,
		GeneratedAt: s.now().UTC(),
		Packages:    make([]PackageReconciliation, 0, len(packages)),
	}
	var balances []repository.PackageBalance
	for i := range packages {
		p := &packages[i]
		after := p.ReconciledRemaining(used[p.ID])
		line := PackageReconciliation{
			PackageID:     p.ID.Hex(),
			ClientID:      p.ClientID.Hex(),
			TotalSessions: p.TotalSessions,
			UsedSessions:  used[p.ID],
			Before:        p.RemainingSessions,
			After:         after,
			Changed:       after != p.RemainingSessions,
		}
		if line.Changed {
			balances = append(balances, repository.PackageBalance{PackageID: p.ID, RemainingSessions: after})
			report.Changed++
		}
		report.Packages = append(report.Packages, line)
	}
	sort.Slice(report.Packages, func(i, j int) bool {
		return report.Packages[i].PackageID < report.Packages[j].PackageID
	})

	// 3. Apply as one batch
	if !dryRun && len(balances) > 0 {
		err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
			return s.packageRepo.SetRemaining(ctx, coachID, balances)
		})
		if err != nil {
			s.logger.Error("Failed to apply package balances", zap.String("coach_id", coachID.Hex()), zap.Error(err))
			return nil, fmt.Errorf("apply balances: %w", err)
		}
		s.events.publish(ctx, events.Event{
			Type:    events.PackagesReconciled,
			CoachID: coachID.Hex(),
			Data:    map[string]any{"changed": report.Changed},
		})
	}
	s.logger.Info("Packages reconciled",
		zap.String("coach_id", coachID.Hex()),
		zap.Int("packages", len(packages)),
		zap.Int("changed", report.Changed),
		zap.Bool("dry_run", dryRun),
	)

	// 4. Keep a copy of the report
	if s.fileStorage != nil {
		s.uploadReport(ctx, report)
	}
	return report, nil
}

// uploadReport stores the report as JSON. Upload failures are logged; the
// balances are already applied by now.
func (s *reconcileService) uploadReport(ctx context.Context, report *ReconcileReport) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		s.logger.Error("Failed to encode reconciliation report", zap.Error(err))
		return
	}
	key := path.Join("reconciliation", report.CoachID,
		fmt.Sprintf("%s-%s.json", report.GeneratedAt.Format("20060102T150405Z"), uuid.NewString()))
	if err := s.fileStorage.PutObject(ctx, key, "application/json", body); err != nil {
		s.logger.Error("Failed to upload reconciliation report", zap.String("key", key), zap.Error(err))
		return
	}
	report.ReportKey = key

	url, err := s.fileStorage.GeneratePresignedDownloadURL(ctx, key, storage.DefaultPresignedURLExpiry)
	if err != nil {
		s.logger.Warn("Failed to presign reconciliation report", zap.String("key", key), zap.Error(err))
		return
	}
	report.ReportURL = url
}
