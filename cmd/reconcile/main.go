package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"alcyxob/coach-schedule/internal/config"
	"alcyxob/coach-schedule/internal/events"
	"alcyxob/coach-schedule/internal/logger"
	"alcyxob/coach-schedule/internal/repository/mongo"
	"alcyxob/coach-schedule/internal/service"
	"alcyxob/coach-schedule/internal/storage"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	coachIDs   []string
	dryRun     bool
	upload     bool
	asJSON     bool
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute package balances from lesson records",
		Long: `Recompute remainingSessions for every package of the given coaches as
max(0, totalSessions - lesson records written against the package).

All changes for a coach are written in one transaction. Use --dry-run to
only print what would change.`,
		Example: `  reconcile --coach=65a1f0c2e4b0a1b2c3d4e5f6 --dry-run
  reconcile --coach=65a1f0c2e4b0a1b2c3d4e5f6 --coach=65a1f0c2e4b0a1b2c3d4e5f7 --upload`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			coachIDs, err := parseCoachIDs(opts.coachIDs)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), opts, coachIDs)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", ".", "Directory containing config.yaml")
	cmd.Flags().StringSliceVar(&opts.coachIDs, "coach", nil, "Coach ID to reconcile (repeatable)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Report changes without writing them")
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "Upload each report to the configured S3 bucket")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print reports as JSON")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall time limit")
	_ = cmd.MarkFlagRequired("coach")

	return cmd
}

func parseCoachIDs(raw []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, s := range raw {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, fmt.Errorf("invalid coach ID %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func run(ctx context.Context, out io.Writer, opts options, coachIDs []primitive.ObjectID) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	zapLogger, err := logger.New(cfg.Server.Env)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		return err
	}
	defer func() {
		if err := mongo.DisconnectDB(dbClient); err != nil {
			zapLogger.Warn("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)

	var fileStorage storage.FileStorage
	if opts.upload {
		if !cfg.S3.Enabled() {
			return fmt.Errorf("--upload needs s3.bucket_name to be configured")
		}
		fileStorage, err = storage.NewS3Storage(ctx, cfg.S3, zapLogger)
		if err != nil {
			return err
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.AMQPURL != "" && !opts.dryRun {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return err
		}
		publisher = amqpPublisher
	}
	defer func() { _ = publisher.Close() }()

	svc := service.NewReconcileService(
		mongo.NewMongoPackageRepository(appDB),
		mongo.NewMongoLessonRecordRepository(appDB),
		mongo.NewMongoTransactor(dbClient),
		fileStorage,
		publisher,
		zapLogger,
	)

	for _, coachID := range coachIDs {
		report, err := svc.Reconcile(ctx, coachID, opts.dryRun)
		if err != nil {
			return fmt.Errorf("reconciling coach %s: %w", coachID.Hex(), err)
		}
		if err := printReport(out, report, opts.asJSON); err != nil {
			return err
		}
	}
	return nil
}

func printReport(out io.Writer, report *service.ReconcileReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	mode := "applied"
	if report.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(out, "=== coach %s (%s) ===\n", report.CoachID, mode)
	for _, p := range report.Packages {
		marker := " "
		if p.Changed {
			marker = "*"
		}
		fmt.Fprintf(out, "  %s %s  total=%d used=%d remaining %d -> %d\n",
			marker, p.PackageID, p.TotalSessions, p.UsedSessions, p.Before, p.After)
	}
	fmt.Fprintf(out, "  %d of %d packages changed\n", report.Changed, len(report.Packages))
	if report.ReportURL != "" {
		fmt.Fprintf(out, "  report: %s\n", report.ReportURL)
	}
	return nil
}
