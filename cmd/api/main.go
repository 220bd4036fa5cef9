package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/fyp-go-api/internal/config"
	"github.com/noah-isme/fyp-go-api/internal/database"
	"github.com/noah-isme/fyp-go-api/internal/handler"
	"github.com/noah-isme/fyp-go-api/internal/lock"
	"github.com/noah-isme/fyp-go-api/internal/middleware"
	"github.com/noah-isme/fyp-go-api/internal/observability"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/router"
	"github.com/noah-isme/fyp-go-api/internal/service"
	cloud "github.com/noah-isme/fyp-go-api/pkg/cloudinary"
	"github.com/noah-isme/fyp-go-api/pkg/mailer"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	nodeID := uuid.NewString()

	// Redis and NATS are optional; without them the API runs as a single node.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName+"-"+nodeID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	storage, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create cloudinary client")
	}

	mail, err := mailer.New(mailer.Config{
		APIKey:      cfg.SendGridAPIKey,
		FromName:    cfg.MailFromName,
		FromAddress: cfg.MailFromAddress,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create mailer")
	}

	observability.RegisterMetrics()
	validate := validator.New(validator.WithRequiredStructEnabled())

	var locker lock.Locker = lock.NewKeyedMutex()
	var sweepLease lock.Locker = lock.NewKeyedMutex()
	if redisClient != nil {
		locker = lock.Chain{locker, lock.NewRedisLocker(redisClient, "fyp:lock", 30*time.Second)}
		sweepLease = lock.NewRedisLocker(redisClient, "fyp:lease", cfg.SweepLeaseTTL)
	}

	projectRepo := repository.NewProjectRepository(db)
	userRepo := repository.NewUserRepository(db)
	documentTypeRepo := repository.NewDocumentTypeRepository(db)
	deadlineRepo := repository.NewDeadlineRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.RealtimeChannel, natsConn, validate, logger)
	notificationService.Start(ctx)

	dispatcher := service.NewNotificationDispatcher(projectRepo, userRepo, notificationService, mail, cfg.NotificationWorkers, cfg.NotificationBuffer, logger)
	dispatcher.Start(ctx)

	deps := service.WorkflowDeps{
		Tx:            repository.NewTransactor(db),
		Projects:      projectRepo,
		DocumentTypes: documentTypeRepo,
		Deadlines:     deadlineRepo,
		Submissions:   repository.NewSubmissionRepository(db),
		Marks:         repository.NewMarkRepository(db),
		Results:       repository.NewFinalResultRepository(db),
		Locker:        locker,
		Publisher:     dispatcher,
		Clock:         service.SystemClock{},
		Options: service.WorkflowOptions{
			MaxAttempts:      cfg.WorkflowMaxAttempts,
			CompletionPolicy: cfg.CompletionPolicy,
			UploadMaxBytes:   cfg.UploadMaxBytes,
		},
	}

	projectService := service.NewProjectService(deps.Tx, projectRepo, activityService, validate, deps.Clock, logger)
	catalogService := service.NewCatalogService(documentTypeRepo, deadlineRepo, projectRepo, validate, logger)
	submissionService := service.NewSubmissionService(deps, storage, storage, validate, logger)
	scoringService := service.NewScoringService(deps, redisClient, cfg.ResultCacheTTL, activityService, logger)
	evaluationService := service.NewEvaluationService(deps, scoringService, validate, logger)

	processor := service.NewDeadlineProcessor(deps, logger)
	scheduler := service.NewDeadlineScheduler(processor, sweepLease, cfg.SweepSchedule, cfg.SweepTimeout, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start deadline scheduler")
	}

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.AllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		ProjectHandler:       handler.NewProjectHandler(projectService, logger),
		ResultHandler:        handler.NewResultHandler(scoringService, logger),
		SubmissionHandler:    handler.NewSubmissionHandler(submissionService, logger),
		EvaluationHandler:    handler.NewEvaluationHandler(evaluationService, logger),
		AdminCatalogHandler:  handler.NewAdminCatalogHandler(catalogService, scheduler, logger),
		AdminActivityHandler: handler.NewAdminActivityHandler(activityService, logger),
		NotificationHandler:  handler.NewNotificationHandler(notificationService, logger, 30*time.Second),
		HealthProbes:         probes,
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
		SubmissionLimiter:    middleware.RateLimit("submissions", 60, time.Minute),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("node_id", nodeID).Msg("http server listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	shutdown(logger, app, scheduler, dispatcher)
}

// shutdown stops intake first, then drains background work.
func shutdown(logger zerolog.Logger, app *fiber.App, scheduler *service.DeadlineScheduler, dispatcher *service.NotificationDispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	scheduler.Stop(ctx)
	dispatcher.Stop()

	logger.Info().Msg("server stopped")
}
