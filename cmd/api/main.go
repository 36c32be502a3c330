package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/promptforge/promptforge-api/internal/config"
	"github.com/promptforge/promptforge-api/internal/database"
	"github.com/promptforge/promptforge-api/internal/engine"
	"github.com/promptforge/promptforge-api/internal/handler"
	"github.com/promptforge/promptforge-api/internal/middleware"
	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/internal/repository"
	"github.com/promptforge/promptforge-api/internal/router"
	"github.com/promptforge/promptforge-api/internal/service"
	cloud "github.com/promptforge/promptforge-api/pkg/cloudinary"
	"github.com/promptforge/promptforge-api/pkg/ocr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Prompt{},
		&models.Provider{},
		&models.Model{},
		&models.Attachment{},
		&models.Evaluation{},
		&models.TestCase{},
		&models.EvaluationCriterion{},
		&models.EvaluationRun{},
		&models.TestCaseResult{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, run events stay node-local")
		} else {
			defer natsConn.Close()
		}
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	var extractor ocr.Extractor
	if cfg.OCREndpoint != "" {
		client, err := ocr.New(ocr.Config{
			Endpoint: cfg.OCREndpoint,
			APIKey:   cfg.OCRAPIKey,
			Logger:   logger,
		})
		if err != nil {
			log.Fatalf("failed to create ocr client: %v", err)
		}
		extractor = client
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	promptRepo := repository.NewPromptRepository(db)
	providerRepo := repository.NewProviderRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	runRepo := repository.NewRunRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hub := service.NewRunEventHub(redisClient, cfg.EventChannelBase, natsConn, logger)
	hub.Start(hubCtx)

	resolver := service.NewProviderGatewayResolver(logger)
	orchestrator := engine.NewOrchestrator(evaluationRepo, runRepo, resolver, extractor, hub, logger, engine.Config{
		Concurrency: cfg.RunConcurrency,
		CallTimeout: cfg.RunCallTimeout,
	})

	promptService := service.NewPromptService(promptRepo, validate, logger)
	providerService := service.NewProviderService(providerRepo, validate, logger)
	evaluationService := service.NewEvaluationService(evaluationRepo, attachmentRepo, validate, logger)
	attachmentService := service.NewAttachmentService(uploader, attachmentRepo, cfg.UploadMaxMB, logger)

	promptHandler := handler.NewPromptHandler(promptService, logger)
	providerHandler := handler.NewProviderHandler(providerService, logger)
	evaluationHandler := handler.NewEvaluationHandler(evaluationService, logger)
	runHandler := handler.NewRunHandler(orchestrator, logger)
	runStreamHandler := handler.NewRunStreamHandler(orchestrator, hub, logger)
	attachmentHandler := handler.NewAttachmentHandler(attachmentService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		PromptHandler:     promptHandler,
		ProviderHandler:   providerHandler,
		EvaluationHandler: evaluationHandler,
		RunHandler:        runHandler,
		RunStreamHandler:  runStreamHandler,
		AttachmentHandler: attachmentHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
