package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/supplyline/catalog-service/config"
	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/fieldmap"
	"github.com/supplyline/catalog-service/internal/handlers"
	"github.com/supplyline/catalog-service/internal/jobs"
	"github.com/supplyline/catalog-service/internal/middleware"
	"github.com/supplyline/catalog-service/internal/sweepers"
	"github.com/supplyline/catalog-service/internal/taskqueue"
	"github.com/supplyline/catalog-service/internal/telemetry"
	"github.com/supplyline/catalog-service/internal/workers"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting catalog service")

	if err := fieldmap.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Field mapping tables are inconsistent")
	}

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Telemetry init failed, continuing without it")
	}

	if err := database.Connect(
		ctx,
		dbURL,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("Database connected")

	queue := taskqueue.New(database.Pool())
	previewRepo := database.NewPreviewRepo(database.Pool())
	history := database.NewHistoryRepo(database.Pool())

	sweeperInterval := 5 * time.Minute
	taskSweeper := sweepers.NewTaskQueueSweeper(queue, logger, sweeperInterval, 10*time.Minute)
	go taskSweeper.Start(ctx)
	previewSweeper := sweepers.NewPreviewSweeper(previewRepo, logger, sweeperInterval, cfg.Retention.StalePreviewDeadline)
	go previewSweeper.Start(ctx)

	retention := jobs.NewRetention(previewRepo, history, queue,
		cfg.Retention.PreviewRetentionDays, cfg.Retention.HistoryRetentionDays)
	go retention.Start(ctx, 12*time.Hour)

	var worker *workers.Worker
	if cfg.Worker.Enabled {
		worker = workers.New(queue, workers.Config{
			WorkerID:  workerID(),
			TaskTypes: []string{taskqueue.TaskTypeAnalyze, taskqueue.TaskTypeExecute},
			MaxTasks:  cfg.Worker.MaxTasks,
			PollDelay: cfg.Worker.PollDelay,
		})
		workers.NewSyncHandlers(database.Pool(), catalog.NewPGStore(database.Pool())).Register(worker)
		worker.Start(ctx)
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuth(cfg.Auth.InternalAPIKey))
	internal.Use(middleware.RateLimit(middleware.RateLimiterConfig{
		RequestsPerSecond: float64(cfg.RateLimit.RequestsPerSecond),
		BurstSize:         cfg.RateLimit.BurstSize,
	}))
	{
		internal.GET("/health", handlers.HealthCheck)

		connections := internal.Group("/connections")
		{
			connections.GET("", handlers.ListConnections)
			connections.POST("", handlers.CreateConnection)
			connections.GET("/:id", handlers.GetConnection)
			connections.PUT("/:id", handlers.UpdateConnection)
			connections.DELETE("/:id", handlers.DeleteConnection)
			connections.POST("/:id/test", handlers.TestConnection)

			connections.GET("/:id/remote-categories", handlers.ListRemoteCategories)
			connections.GET("/:id/remote-partners", handlers.SearchRemotePartners)
			connections.POST("/:id/remote-partners", handlers.CreateRemotePartner)

			connections.GET("/:id/mappings", handlers.ListFieldMappings)
			connections.POST("/:id/mappings", handlers.CreateFieldMapping)
			connections.POST("/:id/mappings/defaults", handlers.InstallDefaultMappings)
			connections.PUT("/:id/mappings/:mappingId", handlers.UpdateFieldMapping)
			connections.DELETE("/:id/mappings/:mappingId", handlers.DeleteFieldMapping)

			connections.GET("/:id/category-mappings", handlers.ListCategoryMappings)
			connections.POST("/:id/category-mappings", handlers.SaveCategoryMapping)

			connections.POST("/:id/previews", handlers.CreatePreview)
			connections.GET("/:id/previews", handlers.ListPreviews)

			connections.GET("/:id/history", handlers.ListHistory)
			connections.GET("/:id/export", handlers.ExportCatalog)
		}

		previews := internal.Group("/previews")
		{
			previews.GET("/:previewId", handlers.GetPreviewStatus)
			previews.GET("/:previewId/changes", handlers.ListPreviewChanges)
			previews.POST("/:previewId/execute", handlers.ExecutePreview)
			previews.POST("/:previewId/cancel", handlers.CancelPreview)
		}

		internal.PATCH("/changes/:changeId", handlers.SetChangeExcluded)

		internal.GET("/history/:historyId", handlers.GetHistory)

		internal.GET("/export-fields", handlers.ListExportFields)
		internal.PUT("/export-fields", handlers.UpsertExportField)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	taskSweeper.Stop()
	previewSweeper.Stop()
	retention.Stop()
	if worker != nil {
		worker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if shutdownTelemetry != nil {
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}

	logger.Info().Msg("Server exited")
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "catalog-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
