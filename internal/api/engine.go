package api

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/inkraft/sentinel/internal/alerts"
	"github.com/inkraft/sentinel/internal/anomaly"
	"github.com/inkraft/sentinel/internal/db"
	"github.com/inkraft/sentinel/internal/errs"
	"github.com/inkraft/sentinel/internal/ledger"
	"github.com/inkraft/sentinel/internal/models"
	"github.com/inkraft/sentinel/internal/ratelimit"
	"github.com/inkraft/sentinel/internal/trending"
	"github.com/inkraft/sentinel/internal/trust"
	"github.com/inkraft/sentinel/pkg/logging"
	"github.com/inkraft/sentinel/pkg/telemetry"
)

// EngineAPI exposes the trust engine's operations over JSON-RPC
type EngineAPI struct {
	repo     *db.Repository
	ledger   *ledger.Ledger
	limiter  ratelimit.Limiter
	detector *anomaly.Detector
	manager  *alerts.Manager
	trending *trending.Service
	logger   *zap.Logger

	voteCounter metric.Int64Counter

	// now is injectable for tests
	now func() time.Time
}

// NewEngineAPI creates the engine API surface
func NewEngineAPI(repo *db.Repository, voteLedger *ledger.Ledger, limiter ratelimit.Limiter, detector *anomaly.Detector, manager *alerts.Manager, trendingSvc *trending.Service) *EngineAPI {
	voteCounter, err := telemetry.VoteCounter()
	if err != nil {
		logging.GetLogger().Warn("vote counter unavailable", zap.Error(err))
	}
	return &EngineAPI{
		repo:        repo,
		ledger:      voteLedger,
		limiter:     limiter,
		detector:    detector,
		manager:     manager,
		trending:    trendingSvc,
		logger:      logging.GetLogger().With(zap.String("component", "engine-api")),
		voteCounter: voteCounter,
		now:         time.Now,
	}
}

// CastVote handles engine.cast_vote
func (e *EngineAPI) CastVote(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		AccountID int64  `json:"account_id"`
		ContentID int64  `json:"content_id"`
		Direction string `json:"direction"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errs.InvalidInputf("malformed params: %v", err)
	}

	rctx, span := telemetry.StartSpan(ctx.Request.Context(), "engine.cast_vote")
	defer span.End()

	result, err := e.ledger.Cast(rctx, p.AccountID, p.ContentID, p.Direction)
	if err != nil {
		return nil, err
	}
	if e.voteCounter != nil {
		e.voteCounter.Add(rctx, 1)
	}
	return result, nil
}

// CheckRateLimit handles engine.check_rate_limit
func (e *EngineAPI) CheckRateLimit(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		AccountID int64 `json:"account_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errs.InvalidInputf("malformed params: %v", err)
	}

	rctx := ctx.Request.Context()
	account, err := e.repo.GetAccount(rctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errs.NotFoundf("account %d", p.AccountID)
	}

	result, err := e.limiter.Check(rctx, account.ID, trust.Recompute(account, e.now()))
	if err != nil {
		return nil, err
	}
	return gin.H{
		"allowed":   result.Allowed,
		"tier":      result.Tier,
		"limit":     result.Limit,
		"remaining": result.Remaining,
		"reset_at":  result.ResetAt,
	}, nil
}

// RecordAction handles engine.record_action. Callers invoke it only
// after the matching check was allowed and the action was committed.
func (e *EngineAPI) RecordAction(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		AccountID int64 `json:"account_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errs.InvalidInputf("malformed params: %v", err)
	}
	if p.AccountID <= 0 {
		return nil, errs.InvalidInputf("account_id required")
	}
	if err := e.limiter.Record(ctx.Request.Context(), p.AccountID); err != nil {
		return nil, err
	}
	return gin.H{"recorded": true}, nil
}

// RecordComment handles engine.record_comment: the platform reports an
// admitted comment so comment counts, engagement, and spam detection
// see it.
func (e *EngineAPI) RecordComment(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		AccountID int64 `json:"account_id"`
		ContentID int64 `json:"content_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errs.InvalidInputf("malformed params: %v", err)
	}

	rctx, span := telemetry.StartSpan(ctx.Request.Context(), "engine.record_comment")
	defer span.End()

	account, err := e.repo.GetAccount(rctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errs.NotFoundf("account %d", p.AccountID)
	}

	status := trust.ModerationStatus(account, e.now())
	result, err := e.ledger.RecordComment(rctx, p.AccountID, p.ContentID, status)
	if err != nil {
		return nil, err
	}

	return gin.H{
		"moderation_status": status,
		"comment_count":     result.CommentCount,
		"engagement_score":  result.EngagementScore,
	}, nil
}

// GateFeatures handles engine.gate_features
func (e *EngineAPI) GateFeatures(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		AccountID int64 `json:"account_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errs.InvalidInputf("malformed params: %v", err)
	}

	rctx := ctx.Request.Context()
	account, err := e.repo.GetAccount(rctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errs.NotFoundf("account %d", p.AccountID)
	}

	now := e.now()
	return gin.H{
		"trust_score": trust.Recompute(account, now),
		"features":    trust.Features(account, now),
	}, nil
}

// Sanitize handles engine.sanitize: strips links and code blocks the
// author's trust tier does not grant.
func (e *EngineAPI) Sanitize(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		AccountID int64  `json:"account_id"`
		Text      string `json:"text"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errs.InvalidInputf("malformed params: %v", err)
	}

	rctx := ctx.Request.Context()
	account, err := e.repo.GetAccount(rctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errs.NotFoundf("account %d", p.AccountID)
	}

	now := e.now()
	return gin.H{
		"text":              trust.Sanitize(p.Text, account, now),
		"moderation_status": trust.ModerationStatus(account, now),
	}, nil
}

// ModerationStatus handles engine.moderation_status
func (e *EngineAPI) ModerationStatus(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		AccountID int64 `json:"account_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errs.InvalidInputf("malformed params: %v", err)
	}

	account, err := e.repo.GetAccount(ctx.Request.Context(), p.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errs.NotFoundf("account %d", p.AccountID)
	}
	return gin.H{"moderation_status": trust.ModerationStatus(account, e.now())}, nil
}

// RunAnomalySweep handles engine.run_anomaly_sweep
func (e *EngineAPI) RunAnomalySweep(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	rctx, span := telemetry.StartSpan(ctx.Request.Context(), "engine.run_anomaly_sweep")
	defer span.End()

	created := e.detector.RunSweep(rctx)
	return gin.H{"alerts_created": created}, nil
}

// ResolveAlert handles engine.resolve_alert
func (e *EngineAPI) ResolveAlert(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		AlertID int64   `json:"alert_id"`
		Action  string  `json:"action"`
		ActorID int64   `json:"actor_id"`
		Reason  string  `json:"reason"`
		Penalty float64 `json:"penalty"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errs.InvalidInputf("malformed params: %v", err)
	}

	rctx, span := telemetry.StartSpan(ctx.Request.Context(), "engine.resolve_alert")
	defer span.End()

	alert, err := e.manager.Resolve(rctx, p.AlertID, p.Action, p.ActorID, p.Reason, p.Penalty)
	if err != nil {
		return nil, err
	}
	return alertView(alert), nil
}

// ListAlerts handles engine.list_alerts
func (e *EngineAPI) ListAlerts(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Limit int `json:"limit"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, errs.InvalidInputf("malformed params: %v", err)
		}
	}

	list, err := e.manager.ListOpen(ctx.Request.Context(), p.Limit)
	if err != nil {
		return nil, err
	}
	views := make([]gin.H, len(list))
	for i, alert := range list {
		views[i] = alertView(alert)
	}
	return views, nil
}

// ReportContent handles engine.report_content
func (e *EngineAPI) ReportContent(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		ReporterID int64  `json:"reporter_id"`
		TargetType string `json:"target_type"`
		TargetID   int64  `json:"target_id"`
		Reason     string `json:"reason"`
		Details    string `json:"details"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errs.InvalidInputf("malformed params: %v", err)
	}

	rctx, span := telemetry.StartSpan(ctx.Request.Context(), "engine.report_content")
	defer span.End()

	alert, err := e.manager.Report(rctx, p.ReporterID, p.TargetType, p.TargetID, p.Reason, p.Details)
	if err != nil {
		return nil, err
	}
	return alertView(alert), nil
}

// GetTrending handles engine.get_trending
func (e *EngineAPI) GetTrending(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Limit int `json:"limit"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, errs.InvalidInputf("malformed params: %v", err)
		}
	}
	return e.trending.Trending(ctx.Request.Context(), p.Limit)
}

// alertView renders an alert for the wire, decoding its typed metadata
func alertView(alert *models.Alert) gin.H {
	view := gin.H{
		"id":          alert.ID,
		"type":        alert.Type,
		"severity":    alert.Severity,
		"title":       alert.Title,
		"description": alert.Description,
		"resolved":    alert.Resolved,
		"created_at":  alert.CreatedAt,
	}
	if alert.TargetAccountID.Valid {
		view["target_account_id"] = alert.TargetAccountID.Int64
	}
	if alert.TargetContentID.Valid {
		view["target_content_id"] = alert.TargetContentID.Int64
	}
	if alert.Resolved {
		view["resolved_by"] = nullInt(alert.ResolvedBy)
		if alert.ResolvedAt.Valid {
			view["resolved_at"] = alert.ResolvedAt.Time
		}
		if alert.Action.Valid {
			view["action"] = alert.Action.String
		}
	}
	if meta, err := alert.DecodeMetadata(); err == nil && meta != nil {
		view["metadata"] = meta
	}
	return view
}

func nullInt(v sql.NullInt64) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Int64
}
