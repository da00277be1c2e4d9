package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/dealerscan/ingest-be/internal/api/handler"
	"github.com/dealerscan/ingest-be/internal/api/router"
	"github.com/dealerscan/ingest-be/internal/config"
	"github.com/dealerscan/ingest-be/internal/fetch"
	"github.com/dealerscan/ingest-be/internal/inference"
	"github.com/dealerscan/ingest-be/internal/ledger"
	"github.com/dealerscan/ingest-be/internal/pipeline"
	"github.com/dealerscan/ingest-be/internal/registry"
	"github.com/dealerscan/ingest-be/internal/scheduler"
	"github.com/dealerscan/ingest-be/internal/store"
	"github.com/dealerscan/ingest-be/shared/logger"
	"github.com/dealerscan/ingest-be/shared/postgresql"
	"github.com/dealerscan/ingest-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("INGEST_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/ingest-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting ingest service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	var publisher *rabbitmq.Publisher
	if cfg.RabbitMQ.Enabled {
		publisher, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		appLogger.Info("RabbitMQ connection established")
	}

	batchScheduler := initScheduler(cfg, dbClient, publisher, appLogger.Logger)

	r := initRouter(cfg, appLogger.Logger, dbClient, batchScheduler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Ingest service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer func() {
		cancel()
		if dbClient != nil {
			dbClient.Close()
		}
		if publisher != nil {
			publisher.Close()
		}
	}()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the outcome-event publisher
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Publisher, error) {
	return rabbitmq.NewPublisher(&rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		Exchange:          cfg.Exchange,
		RoutingKey:        cfg.RoutingKey,
		RetryAttempts:     cfg.RetryAttempts,
		RetryInterval:     cfg.RetryInterval,
		Heartbeat:         cfg.Heartbeat,
		ConnectionTimeout: cfg.ConnectionTimeout,
	}, logger)
}

// initScheduler wires the ingestion pipeline behind the batch scheduler
func initScheduler(cfg *config.Config, dbClient *postgresql.Client, publisher *rabbitmq.Publisher, logger *slog.Logger) *scheduler.Scheduler {
	fetchClient := fetch.NewClient(&fetch.Config{
		UserAgent:        cfg.Ingest.UserAgent,
		Timeout:          cfg.Ingest.FetchTimeout,
		PagesLimiter:     fetch.NewLimiter(cfg.RateLimit.Fetch.MaxRequests, cfg.RateLimit.Fetch.Window),
		InferenceLimiter: fetch.NewLimiter(cfg.RateLimit.Inference.MaxRequests, cfg.RateLimit.Inference.Window),
	}, logger)

	generator := inference.NewClient(&inference.Config{
		Endpoint:         cfg.Inference.Endpoint,
		Model:            cfg.Inference.Model,
		APIKey:           cfg.Inference.APIKey,
		Timeout:          cfg.Inference.Timeout,
		MaxResponseBytes: cfg.Inference.MaxResponseBytes,
	}, fetchClient)

	db := dbClient.GetDB()
	recordStore := store.NewStorage(db, logger)
	sourceStore := registry.NewStorage(db, logger)
	jobLedger := ledger.NewStorage(db, logger)

	orchestrator := pipeline.NewOrchestrator(fetchClient, generator, recordStore, pipeline.Config{
		CandidateCap:     cfg.Ingest.CandidateCap,
		QualityThreshold: cfg.Ingest.QualityThreshold,
	}, logger)

	var events scheduler.EventPublisher
	if publisher != nil {
		events = publisherAdapter{publisher}
	}

	return scheduler.New(sourceStore, jobLedger, orchestrator, events, scheduler.Config{
		DefaultLimit:  cfg.Ingest.BatchLimit,
		MaxLimit:      cfg.Ingest.MaxBatchLimit,
		SourceTimeout: cfg.Ingest.SourceTimeout,
	}, logger)
}

// publisherAdapter narrows the rabbitmq publisher to the scheduler's
// EventPublisher so a nil publisher stays a nil interface
type publisherAdapter struct {
	*rabbitmq.Publisher
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, dbClient *postgresql.Client, batchScheduler *scheduler.Scheduler) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	deps := &handler.Dependencies{
		Logger:        logger,
		Runner:        batchScheduler,
		Jobs:          ledger.NewStorage(dbClient.GetDB(), logger),
		Health:        dbClient,
		TriggerSecret: cfg.Ingest.TriggerSecret,
	}

	return router.SetupRouter(deps)
}
