package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkraft/sentinel/internal/alerts"
	"github.com/inkraft/sentinel/internal/anomaly"
	"github.com/inkraft/sentinel/internal/cache"
	"github.com/inkraft/sentinel/internal/db"
	"github.com/inkraft/sentinel/internal/ledger"
	"github.com/inkraft/sentinel/internal/ratelimit"
	"github.com/inkraft/sentinel/internal/trending"
	"github.com/inkraft/sentinel/pkg/logging"
)

// Router sets up API routes
type Router struct {
	handler *JSONRPCHandler
	db      *db.DB
	cache   *cache.Cache
	logger  *zap.Logger
}

// Deps carries the engine components the API serves
type Deps struct {
	Repo     *db.Repository
	Ledger   *ledger.Ledger
	Limiter  ratelimit.Limiter
	Detector *anomaly.Detector
	Manager  *alerts.Manager
	Trending *trending.Service
}

// NewRouter creates a new API router
func NewRouter(database *db.DB, redisCache *cache.Cache, deps Deps) *Router {
	handler := NewJSONRPCHandler()
	router := &Router{
		handler: handler,
		db:      database,
		cache:   redisCache,
		logger:  logging.GetLogger().With(zap.String("component", "api-router")),
	}

	router.registerMethods(deps)

	return router
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	// JSON-RPC endpoint
	engine.POST("/", r.handler.Handle)
}

// registerMethods registers all API methods
func (r *Router) registerMethods(deps Deps) {
	engineAPI := NewEngineAPI(deps.Repo, deps.Ledger, deps.Limiter, deps.Detector, deps.Manager, deps.Trending)

	// Vote ledger
	r.handler.RegisterMethod("engine.cast_vote", engineAPI.CastVote)

	// Rate limiting
	r.handler.RegisterMethod("engine.check_rate_limit", engineAPI.CheckRateLimit)
	r.handler.RegisterMethod("engine.record_action", engineAPI.RecordAction)
	r.handler.RegisterMethod("engine.record_comment", engineAPI.RecordComment)

	// Trust gating
	r.handler.RegisterMethod("engine.gate_features", engineAPI.GateFeatures)
	r.handler.RegisterMethod("engine.sanitize", engineAPI.Sanitize)
	r.handler.RegisterMethod("engine.moderation_status", engineAPI.ModerationStatus)

	// Anomaly detection and alerting
	r.handler.RegisterMethod("engine.run_anomaly_sweep", engineAPI.RunAnomalySweep)
	r.handler.RegisterMethod("engine.resolve_alert", engineAPI.ResolveAlert)
	r.handler.RegisterMethod("engine.list_alerts", engineAPI.ListAlerts)
	r.handler.RegisterMethod("engine.report_content", engineAPI.ReportContent)

	// Ranking surfaces
	r.handler.RegisterMethod("engine.get_trending", engineAPI.GetTrending)
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "OK",
		"service": "sentinel-api",
	})
}
