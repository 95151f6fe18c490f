package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paggo-backend/config"
	"paggo-backend/events"
	"paggo-backend/extraction"
	"paggo-backend/handlers"
	"paggo-backend/logger"
	"paggo-backend/middleware"
	"paggo-backend/repository"
	"paggo-backend/service"
	"paggo-backend/storage"
	"paggo-backend/worker"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, logCloser, err := logger.Init(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logCloser.Close()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	db, err := initPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("postgres connection established")

	// Initialize storage
	fileStorage, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if c, ok := fileStorage.(io.Closer); ok {
		defer c.Close()
	}
	logger.Info("storage initialized", "type", cfg.Storage.Type)

	extractor, err := initExtractor(ctx, cfg.Extraction, logger)
	if err != nil {
		return err
	}
	if c, ok := extractor.(io.Closer); ok {
		defer c.Close()
	}
	logger.Info("extractor initialized", "provider", cfg.Extraction.Provider, "model", cfg.Extraction.Model)

	publisher, err := initPublisher(cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	if c, ok := publisher.(io.Closer); ok {
		defer c.Close()
	}

	pool, err := worker.NewPool(worker.WithSize(cfg.WorkerPoolSize), worker.WithLogger(logger))
	if err != nil {
		return err
	}

	// Initialize services
	fileService := service.NewFileService(
		service.FileWithRepository(repository.NewFileRepository(db)),
		service.FileWithStorage(fileStorage),
		service.FileWithExtractor(extractor),
		service.FileWithDispatcher(pool),
		service.FileWithPublisher(publisher),
		service.FileWithLogger(logger),
		service.FileWithMaxUploadBytes(cfg.MaxUploadBytes),
		service.FileWithExtractionTimeout(cfg.ExtractionTimeout),
		service.FileWithSignedURLTTL(cfg.SignedURLTTL),
	)

	// Initialize handlers
	fileHandler := handlers.NewFileHandler(fileService, logger)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.Auth(cfg.JWTSecret))
	fileHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	// In-flight extractions finish before the pool and its clients close
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker pool did not drain", "running", pool.Running(), "error", err)
	}
	return nil
}

func initPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func initExtractor(ctx context.Context, cfg config.ExtractionConfig, logger *slog.Logger) (extraction.Extractor, error) {
	switch cfg.Provider {
	case config.ProviderVertex:
		return extraction.NewVertexExtractor(ctx, cfg.VertexProjectID, cfg.VertexRegion, cfg.Model, logger)
	default:
		client, err := extraction.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return extraction.NewGeminiExtractor(client, cfg.Model, logger), nil
	}
}

func initPublisher(url string, logger *slog.Logger) (events.Publisher, error) {
	if url == "" {
		logger.Info("NATS_URL not set, enrichment events disabled")
		return events.NoopPublisher{}, nil
	}
	publisher, err := events.NewNATSPublisher(url, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing enrichment events", "url", url)
	return publisher, nil
}
