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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/devtrail/devtrail-api/internal/config"
	"github.com/devtrail/devtrail-api/internal/database"
	"github.com/devtrail/devtrail-api/internal/events"
	"github.com/devtrail/devtrail-api/internal/handler"
	"github.com/devtrail/devtrail-api/internal/middleware"
	"github.com/devtrail/devtrail-api/internal/models"
	"github.com/devtrail/devtrail-api/internal/repository"
	"github.com/devtrail/devtrail-api/internal/router"
	"github.com/devtrail/devtrail-api/internal/service"
	"github.com/devtrail/devtrail-api/pkg/ai"
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

	if err := db.AutoMigrate(&models.Trail{}, &models.Module{}, &models.Submission{}, &models.SubmissionReview{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Redis and NATS are optional; the review pipeline degrades gracefully
	// without them.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		natsConn, err := events.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
		publisher = events.NewNATSPublisher(natsConn, "reviews", logger)
	}

	generator := buildGenerator(cfg, logger)
	if generator == nil {
		logger.Warn().Str("provider", cfg.AIProvider).Msg("review generator not configured; review runs will be rejected")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)
	reviewRepo := repository.NewReviewRepository(db)

	reviewService := service.NewReviewService(submissionRepo, reviewRepo, generator, publisher, redisClient, validate, logger, service.ReviewConfig{
		GenerateTimeout: cfg.ReviewTimeout,
		CacheTTL:        cfg.ReviewCacheTTL,
	})

	reviewHandler := handler.NewReviewHandler(reviewService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ReviewHandler: reviewHandler,
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func buildGenerator(cfg config.Config, logger zerolog.Logger) ai.Generator {
	switch cfg.AIProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil
		}
		generator, err := ai.NewAnthropicGenerator(ai.AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.AIModel,
			MaxTokens: cfg.AIMaxTokens,
			Timeout:   cfg.ReviewTimeout,
			Logger:    logger,
		})
		if err != nil {
			log.Fatalf("failed to create anthropic generator: %v", err)
		}
		return generator
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil
		}
		generator, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.AIModel,
			MaxTokens: cfg.AIMaxTokens,
			Logger:    logger,
		})
		if err != nil {
			log.Fatalf("failed to create openai generator: %v", err)
		}
		return generator
	default:
		return nil
	}
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
