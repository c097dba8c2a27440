package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/inkraft/sentinel/internal/anomaly"
	"github.com/inkraft/sentinel/internal/cache"
	"github.com/inkraft/sentinel/internal/db"
	"github.com/inkraft/sentinel/internal/sweep"
	"github.com/inkraft/sentinel/internal/trending"
	"github.com/inkraft/sentinel/pkg/config"
	"github.com/inkraft/sentinel/pkg/logging"
	"github.com/inkraft/sentinel/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Sentinel Sweeper")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Connect to the database
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Connect to Redis when configured
	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	repo := db.NewRepository(database.DB)
	detector := anomaly.New(repo)
	trendingSvc := trending.NewService(repo, redisCache, logger,
		cfg.Engine.TrendingWindowHours, cfg.Engine.TrendingCacheTTL)

	runner := sweep.NewRunner(detector, trendingSvc, cfg.Engine.SweepInterval)

	ctx, cancel := context.WithCancel(context.Background())

	// Run sweeps until interrupted
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down sweeper...")
	cancel()
	<-done
	logger.Info("Sweeper exited")
}
