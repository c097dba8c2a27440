package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkraft/sentinel/internal/alerts"
	"github.com/inkraft/sentinel/internal/anomaly"
	"github.com/inkraft/sentinel/internal/api"
	"github.com/inkraft/sentinel/internal/cache"
	"github.com/inkraft/sentinel/internal/db"
	"github.com/inkraft/sentinel/internal/ledger"
	"github.com/inkraft/sentinel/internal/ratelimit"
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
	logger.Info("Starting Sentinel API Server")

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

	if err := database.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Connect to Redis when configured
	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	// Assemble the engine
	repo := db.NewRepository(database.DB)

	limiter, err := buildLimiter(cfg, redisCache)
	if err != nil {
		logger.Fatal("Failed to build rate limiter", zap.Error(err))
	}
	defer limiter.Close()

	voteLedger := ledger.New(db.NewLedgerStore(repo))
	detector := anomaly.New(repo)
	manager := alerts.New(db.NewAlertStore(repo), voteLedger, cfg.Engine.NullifyDownvotes)
	trendingSvc := trending.NewService(repo, redisCache, logger,
		cfg.Engine.TrendingWindowHours, cfg.Engine.TrendingCacheTTL)

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	apiRouter := api.NewRouter(database, redisCache, api.Deps{
		Repo:     repo,
		Ledger:   voteLedger,
		Limiter:  limiter,
		Detector: detector,
		Manager:  manager,
		Trending: trendingSvc,
	})
	apiRouter.SetupRoutes(router)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// buildLimiter selects the rate limiter backend from configuration
func buildLimiter(cfg *config.Config, redisCache *cache.Cache) (ratelimit.Limiter, error) {
	switch cfg.Engine.RateLimitBackend {
	case "redis":
		client := redisCache.Client()
		if client == nil {
			return nil, fmt.Errorf("redis rate limit backend requires a redis connection")
		}
		return ratelimit.NewRedisLimiter(client), nil
	default:
		return ratelimit.NewMemoryLimiter(), nil
	}
}
