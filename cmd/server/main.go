package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alcyxob/coach-schedule/internal/api"
	"alcyxob/coach-schedule/internal/config"
	"alcyxob/coach-schedule/internal/events"
	"alcyxob/coach-schedule/internal/logger"
	"alcyxob/coach-schedule/internal/repository/mongo"
	"alcyxob/coach-schedule/internal/service"
	"alcyxob/coach-schedule/internal/session"
	"alcyxob/coach-schedule/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// @title Coach Schedule API
// @version 1.0
// @description Calendar, booking and lesson-record API for coaches.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Server.Env)
	if err != nil {
		log.Fatalf("FATAL: Could not create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zapLogger *zap.Logger) error {
	zapLogger.Info("Starting coach schedule server", zap.String("env", cfg.Server.Env))

	location, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		return err
	}
	defer func() {
		zapLogger.Info("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			zapLogger.Error("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	zapLogger.Info("Database connection established", zap.String("database", cfg.Database.Name))

	// --- Ensure Indexes ---
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		if err := mongo.EnsureIndexes(ctx, appDB); err != nil {
			zapLogger.Error("Index creation failed", zap.Error(err))
			return
		}
		zapLogger.Info("Index creation process completed")
	}()

	// --- Events ---
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return err
		}
		publisher = amqpPublisher
		zapLogger.Info("Publishing schedule events", zap.String("exchange", cfg.Events.Exchange))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			zapLogger.Warn("Failed to close event publisher", zap.Error(err))
		}
	}()

	// --- Initialize Storage ---
	var fileStorage storage.FileStorage
	if cfg.S3.Enabled() {
		fileStorage, err = storage.NewS3Storage(context.Background(), cfg.S3, zapLogger)
		if err != nil {
			return err
		}
	}

	// --- Initialize Repositories ---
	scheduleRepo := mongo.NewMongoScheduleRepository(appDB)
	packageRepo := mongo.NewMongoPackageRepository(appDB)
	lessonRecordRepo := mongo.NewMongoLessonRecordRepository(appDB)
	clientRepo := mongo.NewMongoClientRepository(appDB)
	transactor := mongo.NewMongoTransactor(dbClient)

	// --- Initialize Services ---
	scheduleService := service.NewScheduleService(scheduleRepo, packageRepo, lessonRecordRepo, clientRepo, transactor, publisher, zapLogger.Named("schedule"))
	lessonService := service.NewLessonService(scheduleRepo, packageRepo, lessonRecordRepo, transactor, publisher, zapLogger.Named("lesson"))
	reconcileService := service.NewReconcileService(packageRepo, lessonRecordRepo, transactor, fileStorage, publisher, zapLogger.Named("reconcile"))

	// --- Realtime sessions ---
	sessionCtx, stopSessions := context.WithCancel(context.Background())
	defer stopSessions()
	sessions := session.NewManager(sessionCtx, session.Source{
		Schedules:     scheduleRepo,
		Packages:      packageRepo,
		LessonRecords: lessonRecordRepo,
		Clients:       clientRepo,
		Watcher:       mongo.NewMongoChangeWatcher(appDB),
	}, zapLogger.Named("session"), cfg.Schedule.IdleTimeout)
	defer sessions.Close()

	// --- Initialize Gin Engine ---
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(api.RequestLogger(zapLogger.Named("http")), api.Recovery(zapLogger))

	api.SetupRoutes(router, cfg.JWT.Secret, api.Handlers{
		Schedule:  api.NewScheduleHandler(scheduleService, lessonService),
		Calendar:  api.NewCalendarHandler(sessions, location, cfg.Schedule.Locale),
		Reconcile: api.NewReconcileHandler(reconcileService),
	})

	// --- Start HTTP Server ---
	// No write timeout: calendar streams stay open.
	server := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		zapLogger.Info("Server starting", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}
	zapLogger.Info("Shutting down server...")

	// Close streams first so Shutdown does not wait on them.
	stopSessions()
	sessions.Close()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		return err
	}

	zapLogger.Info("Server exiting")
	return nil
}
