// Package alerts owns the alert lifecycle: open alerts raised by the
// detector or by user reports, and the remediation actions an operator
// applies to resolve them.
package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inkraft/sentinel/internal/errs"
	"github.com/inkraft/sentinel/internal/ledger"
	"github.com/inkraft/sentinel/internal/models"
	"github.com/inkraft/sentinel/pkg/logging"
)

// Remediation constants
const (
	// nullifyWindow bounds vote nullification to recent votes
	nullifyWindow = time.Hour

	// DefaultTrustPenalty applies when the operator gives no amount
	DefaultTrustPenalty = 0.2

	// Report volume escalation window and thresholds
	reportWindow       = 24 * time.Hour
	reportHighVolume   = 5
	reportMediumVolume = 2
)

// Store is the persistence surface the manager needs. InTx must run
// the callback atomically.
type Store interface {
	GetAlert(ctx context.Context, id int64) (*models.Alert, error)
	UpdateAlert(ctx context.Context, alert *models.Alert) error
	CreateAlert(ctx context.Context, alert *models.Alert) error
	ListOpenAlerts(ctx context.Context, limit int) ([]*models.Alert, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
	CreateReport(ctx context.Context, report *models.Report) error
	CountReportsForTarget(ctx context.Context, targetType string, targetID int64, since time.Time) (int64, error)
	InTx(ctx context.Context, fn func(Store) error) error
}

// VoteNullifier removes recent low trust votes from a content item.
// Satisfied by the vote ledger.
type VoteNullifier interface {
	Nullify(ctx context.Context, contentID int64, window time.Duration, splitDownvotes bool) (*ledger.NullifyResult, error)
}

// Manager applies alert resolutions and handles report intake
type Manager struct {
	store     Store
	nullifier VoteNullifier
	logger    *zap.Logger

	// splitDownvotes selects the nullification accounting mode; see
	// ledger.Nullify.
	splitDownvotes bool

	// now is injectable for tests
	now func() time.Time
}

// New creates an alert manager
func New(store Store, nullifier VoteNullifier, splitDownvotes bool) *Manager {
	return &Manager{
		store:          store,
		nullifier:      nullifier,
		splitDownvotes: splitDownvotes,
		logger:         logging.WithComponent("alerts"),
		now:            time.Now,
	}
}

// Resolve applies a remediation action and marks the alert resolved
// with the actor, timestamp, and action tag. Fails with a conflict if
// the alert is already resolved. penalty is only consulted for
// apply_trust_penalty; zero means the default amount.
func (m *Manager) Resolve(ctx context.Context, alertID int64, action string, actorID int64, reason string, penalty float64) (*models.Alert, error) {
	if !models.ValidAction(action) {
		return nil, errs.InvalidInputf("unknown resolution action %q", action)
	}

	now := m.now()
	var resolved *models.Alert

	err := m.store.InTx(ctx, func(tx Store) error {
		alert, err := tx.GetAlert(ctx, alertID)
		if err != nil {
			return errs.Store(err)
		}
		if alert == nil {
			return errs.NotFoundf("alert %d", alertID)
		}
		if alert.Resolved {
			return errs.Conflictf("alert %d is already resolved", alertID)
		}

		switch action {
		case models.ActionDismiss:
			// Resolve only

		case models.ActionBanUser:
			account, err := m.targetAccount(ctx, tx, alert)
			if err != nil {
				return err
			}
			account.Banned = true
			if err := tx.UpdateAccount(ctx, account); err != nil {
				return errs.Store(err)
			}

		case models.ActionFreezeTrust:
			account, err := m.targetAccount(ctx, tx, alert)
			if err != nil {
				return err
			}
			account.TrustFrozen = true
			account.TrustFrozenAt = sql.NullTime{Time: now, Valid: true}
			account.TrustFrozenBy = sql.NullInt64{Int64: actorID, Valid: true}
			account.TrustFrozenReason = sql.NullString{String: reason, Valid: reason != ""}
			if err := tx.UpdateAccount(ctx, account); err != nil {
				return errs.Store(err)
			}

		case models.ActionUnfreezeTrust:
			account, err := m.targetAccount(ctx, tx, alert)
			if err != nil {
				return err
			}
			account.TrustFrozen = false
			account.TrustFrozenAt = sql.NullTime{}
			account.TrustFrozenBy = sql.NullInt64{}
			account.TrustFrozenReason = sql.NullString{}
			if err := tx.UpdateAccount(ctx, account); err != nil {
				return errs.Store(err)
			}

		case models.ActionApplyTrustPenalty:
			account, err := m.targetAccount(ctx, tx, alert)
			if err != nil {
				return err
			}
			amount := penalty
			if amount <= 0 {
				amount = DefaultTrustPenalty
			}
			account.TrustScore = clampTrust(account.TrustScore - amount)
			if err := tx.UpdateAccount(ctx, account); err != nil {
				return errs.Store(err)
			}

		case models.ActionNullifyVotes:
			if !alert.TargetContentID.Valid {
				return errs.InvalidInputf("alert %d has no target content for %s", alertID, action)
			}
			result, err := m.nullifier.Nullify(ctx, alert.TargetContentID.Int64, nullifyWindow, m.splitDownvotes)
			if err != nil {
				return err
			}
			if err := m.writeNullifyAudit(ctx, tx, alert, result, now); err != nil {
				return err
			}
		}

		alert.Resolved = true
		alert.ResolvedBy = sql.NullInt64{Int64: actorID, Valid: true}
		alert.ResolvedAt = sql.NullTime{Time: now, Valid: true}
		alert.Action = sql.NullString{String: action, Valid: true}
		if err := tx.UpdateAlert(ctx, alert); err != nil {
			return errs.Store(err)
		}

		resolved = alert
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Alert resolved",
		zap.Int64("alert_id", alertID),
		zap.String("action", action),
		zap.Int64("actor_id", actorID))

	return resolved, nil
}

// Report records a user abuse report and raises the matching alert.
// Severity escalates with report volume on the same target inside the
// trailing day.
func (m *Manager) Report(ctx context.Context, reporterID int64, targetType string, targetID int64, reason, details string) (*models.Alert, error) {
	if !models.ValidReportTarget(targetType) {
		return nil, errs.InvalidInputf("unknown report target type %q", targetType)
	}
	if reason == "" {
		return nil, errs.InvalidInputf("report reason is required")
	}

	now := m.now()
	var alert *models.Alert

	err := m.store.InTx(ctx, func(tx Store) error {
		report := &models.Report{
			ReporterID: reporterID,
			TargetType: targetType,
			TargetID:   targetID,
			Reason:     reason,
			Details:    details,
			CreatedAt:  now,
		}
		if err := tx.CreateReport(ctx, report); err != nil {
			return errs.Store(err)
		}

		recent, err := tx.CountReportsForTarget(ctx, targetType, targetID, now.Add(-reportWindow))
		if err != nil {
			return errs.Store(err)
		}

		severity := models.SeverityLow
		switch {
		case recent > reportHighVolume:
			severity = models.SeverityHigh
		case recent > reportMediumVolume:
			severity = models.SeverityMedium
		}

		alert = &models.Alert{
			Type:        models.AlertUserReport,
			Severity:    severity,
			Title:       fmt.Sprintf("User report against %s %d", targetType, targetID),
			Description: fmt.Sprintf("Account %d reported %s %d: %s", reporterID, targetType, targetID, reason),
			CreatedAt:   now,
		}
		if targetType == models.ReportTargetAccount {
			alert.TargetAccountID = sql.NullInt64{Int64: targetID, Valid: true}
		} else {
			alert.TargetContentID = sql.NullInt64{Int64: targetID, Valid: true}
		}
		if err := alert.SetMetadata(&models.UserReportMetadata{
			ReporterID:    reporterID,
			TargetType:    targetType,
			Reason:        reason,
			RecentReports: recent,
		}); err != nil {
			return err
		}

		return errs.Store(tx.CreateAlert(ctx, alert))
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Report received",
		zap.Int64("reporter_id", reporterID),
		zap.String("target_type", targetType),
		zap.Int64("target_id", targetID),
		zap.String("severity", alert.Severity))

	return alert, nil
}

// ListOpen returns currently unresolved alerts, newest first
func (m *Manager) ListOpen(ctx context.Context, limit int) ([]*models.Alert, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	alerts, err := m.store.ListOpenAlerts(ctx, limit)
	if err != nil {
		return nil, errs.Store(err)
	}
	return alerts, nil
}

// targetAccount loads the alert's target account for account-directed
// actions
func (m *Manager) targetAccount(ctx context.Context, tx Store, alert *models.Alert) (*models.Account, error) {
	if !alert.TargetAccountID.Valid {
		return nil, errs.InvalidInputf("alert %d has no target account", alert.ID)
	}
	account, err := tx.GetAccount(ctx, alert.TargetAccountID.Int64)
	if err != nil {
		return nil, errs.Store(err)
	}
	if account == nil {
		return nil, errs.NotFoundf("account %d", alert.TargetAccountID.Int64)
	}
	return account, nil
}

// writeNullifyAudit records the audit trail for a nullification
func (m *Manager) writeNullifyAudit(ctx context.Context, tx Store, source *models.Alert, result *ledger.NullifyResult, now time.Time) error {
	audit := &models.Alert{
		Type:     models.AlertVotesNullified,
		Severity: models.SeverityLow,
		Title:    fmt.Sprintf("Nullified %d votes on content %d", result.NullifiedCount, source.TargetContentID.Int64),
		Description: fmt.Sprintf("Remediation for alert %d removed %d low trust votes",
			source.ID, result.NullifiedCount),
		TargetContentID: source.TargetContentID,
		// Audit records are informational, born resolved
		Resolved:  true,
		CreatedAt: now,
	}
	if err := audit.SetMetadata(&models.VotesNullifiedMetadata{
		SourceAlertID:     source.ID,
		NullifiedCount:    result.NullifiedCount,
		RemovedUpWeight:   result.RemovedUpWeight,
		RemovedDownWeight: result.RemovedDownWeight,
	}); err != nil {
		return err
	}
	return errs.Store(tx.CreateAlert(ctx, audit))
}

func clampTrust(score float64) float64 {
	if score < models.TrustScoreMin {
		return models.TrustScoreMin
	}
	if score > models.TrustScoreMax {
		return models.TrustScoreMax
	}
	return score
}
