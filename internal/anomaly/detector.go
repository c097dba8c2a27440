// Package anomaly scans recent activity for abusive patterns and
// raises deduplicated alerts. Detection is best effort: a failing rule
// or a failed alert insert never aborts the rest of the sweep.
package anomaly

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/inkraft/sentinel/internal/models"
	"github.com/inkraft/sentinel/pkg/logging"
	"github.com/inkraft/sentinel/pkg/telemetry"
)

// Rule thresholds
const (
	// vote_spike: votes on one content item in the trailing hour
	voteSpikeWindow   = time.Hour
	voteSpikeHigh     = 50
	voteSpikeCritical = 100
	// Batch pre-filter bounds the sweep's scan cost
	voteSpikePrefilter  = 30
	voteSpikeCandidates = 10

	// spam_velocity: comments by one account in the trailing hour
	spamWindow = time.Hour
	spamMedium = 10
	spamHigh   = 20

	// low_trust_engagement: votes by a low trust account in 24 hours
	lowTrustWindow        = 24 * time.Hour
	lowTrustScoreCeiling  = 0.5
	lowTrustVoteThreshold = 20
)

// ContentActivity is a per-content activity aggregate
type ContentActivity struct {
	ContentID int64
	Count     int64
}

// AccountActivity is a per-account activity aggregate
type AccountActivity struct {
	AccountID  int64
	Count      int64
	TrustScore float64
}

// Store is the read/write surface the detector needs
type Store interface {
	// VoteSpikeCandidates returns the top content items by vote count
	// since the cutoff, filtered to at least minVotes, newest counts
	// first.
	VoteSpikeCandidates(ctx context.Context, since time.Time, minVotes int64, limit int) ([]ContentActivity, error)
	// CommentVelocities returns accounts with at least minComments
	// comments since the cutoff.
	CommentVelocities(ctx context.Context, since time.Time, minComments int64) ([]AccountActivity, error)
	// LowTrustVoters returns accounts under the trust ceiling with
	// more than minVotes votes since the cutoff.
	LowTrustVoters(ctx context.Context, since time.Time, trustCeiling float64, minVotes int64) ([]AccountActivity, error)
	// HasUnresolvedAlert reports whether an unresolved alert of the
	// given type and target was created since the cutoff.
	HasUnresolvedAlert(ctx context.Context, alertType string, targetAccountID, targetContentID int64, since time.Time) (bool, error)
	CreateAlert(ctx context.Context, alert *models.Alert) error
}

// Detector runs the anomaly rule set
type Detector struct {
	store   Store
	logger  *zap.Logger
	counter metric.Int64Counter

	// now is injectable for tests
	now func() time.Time
}

// New creates a detector over the given store
func New(store Store) *Detector {
	counter, err := telemetry.AlertCounter()
	if err != nil {
		logging.WithComponent("anomaly").Warn("alert counter unavailable", zap.Error(err))
		counter = nil
	}
	return &Detector{
		store:   store,
		logger:  logging.WithComponent("anomaly"),
		counter: counter,
		now:     time.Now,
	}
}

// RunSweep evaluates every rule and returns the number of alerts
// created. Rules are isolated: one rule failing is logged and the
// remaining rules still run.
func (d *Detector) RunSweep(ctx context.Context) int {
	created := 0

	rules := []struct {
		name string
		fn   func(context.Context) (int, error)
	}{
		{"vote_spike", d.sweepVoteSpikes},
		{"spam_velocity", d.sweepSpamVelocity},
		{"low_trust_engagement", d.sweepLowTrustEngagement},
	}

	for _, rule := range rules {
		n, err := rule.fn(ctx)
		created += n
		if err != nil {
			d.logger.Error("Anomaly rule failed",
				zap.String("rule", rule.name),
				zap.Error(err))
		}
	}

	if d.counter != nil && created > 0 {
		d.counter.Add(ctx, int64(created))
	}
	d.logger.Info("Anomaly sweep complete", zap.Int("alerts_created", created))
	return created
}

func (d *Detector) sweepVoteSpikes(ctx context.Context) (int, error) {
	now := d.now()
	since := now.Add(-voteSpikeWindow)

	candidates, err := d.store.VoteSpikeCandidates(ctx, since, voteSpikePrefilter, voteSpikeCandidates)
	if err != nil {
		return 0, fmt.Errorf("failed to query vote spike candidates: %w", err)
	}

	created := 0
	for _, c := range candidates {
		severity := ""
		threshold := int64(0)
		switch {
		case c.Count >= voteSpikeCritical:
			severity, threshold = models.SeverityCritical, voteSpikeCritical
		case c.Count >= voteSpikeHigh:
			severity, threshold = models.SeverityHigh, voteSpikeHigh
		default:
			continue
		}

		alert := &models.Alert{
			Type:            models.AlertVoteSpike,
			Severity:        severity,
			Title:           fmt.Sprintf("Vote spike on content %d", c.ContentID),
			Description:     fmt.Sprintf("Content %d received %d votes in the last hour (threshold %d)", c.ContentID, c.Count, threshold),
			TargetContentID: sql.NullInt64{Int64: c.ContentID, Valid: true},
			CreatedAt:       now,
		}
		if err := alert.SetMetadata(&models.VoteSpikeMetadata{
			VoteCount:   c.Count,
			Threshold:   threshold,
			WindowStart: since,
			WindowEnd:   now,
		}); err != nil {
			d.logger.Error("Failed to encode vote spike metadata", zap.Error(err))
			continue
		}

		if d.createDeduplicated(ctx, alert, voteSpikeWindow) {
			created++
		}
	}
	return created, nil
}

func (d *Detector) sweepSpamVelocity(ctx context.Context) (int, error) {
	now := d.now()
	since := now.Add(-spamWindow)

	velocities, err := d.store.CommentVelocities(ctx, since, spamMedium)
	if err != nil {
		return 0, fmt.Errorf("failed to query comment velocities: %w", err)
	}

	created := 0
	for _, v := range velocities {
		severity := models.SeverityMedium
		threshold := int64(spamMedium)
		if v.Count >= spamHigh {
			severity, threshold = models.SeverityHigh, spamHigh
		}

		alert := &models.Alert{
			Type:            models.AlertSpamVelocity,
			Severity:        severity,
			Title:           fmt.Sprintf("Comment spam velocity from account %d", v.AccountID),
			Description:     fmt.Sprintf("Account %d posted %d comments in the last hour (threshold %d)", v.AccountID, v.Count, threshold),
			TargetAccountID: sql.NullInt64{Int64: v.AccountID, Valid: true},
			CreatedAt:       now,
		}
		if err := alert.SetMetadata(&models.SpamVelocityMetadata{
			CommentCount: v.Count,
			Threshold:    threshold,
			WindowStart:  since,
			WindowEnd:    now,
		}); err != nil {
			d.logger.Error("Failed to encode spam velocity metadata", zap.Error(err))
			continue
		}

		if d.createDeduplicated(ctx, alert, spamWindow) {
			created++
		}
	}
	return created, nil
}

func (d *Detector) sweepLowTrustEngagement(ctx context.Context) (int, error) {
	now := d.now()
	since := now.Add(-lowTrustWindow)

	voters, err := d.store.LowTrustVoters(ctx, since, lowTrustScoreCeiling, lowTrustVoteThreshold)
	if err != nil {
		return 0, fmt.Errorf("failed to query low trust voters: %w", err)
	}

	created := 0
	for _, v := range voters {
		alert := &models.Alert{
			Type:            models.AlertLowTrustEngagement,
			Severity:        models.SeverityMedium,
			Title:           fmt.Sprintf("High activity from low trust account %d", v.AccountID),
			Description:     fmt.Sprintf("Account %d (trust %.2f) cast %d votes in 24 hours", v.AccountID, v.TrustScore, v.Count),
			TargetAccountID: sql.NullInt64{Int64: v.AccountID, Valid: true},
			CreatedAt:       now,
		}
		if err := alert.SetMetadata(&models.LowTrustEngagementMetadata{
			TrustScore:  v.TrustScore,
			VoteCount:   v.Count,
			Threshold:   lowTrustVoteThreshold,
			WindowStart: since,
			WindowEnd:   now,
		}); err != nil {
			d.logger.Error("Failed to encode low trust metadata", zap.Error(err))
			continue
		}

		if d.createDeduplicated(ctx, alert, lowTrustWindow) {
			created++
		}
	}
	return created, nil
}

// createDeduplicated inserts the alert unless an unresolved alert of
// the same type and target already exists inside the dedup window.
// Insert failures are logged and swallowed: detection is best effort.
func (d *Detector) createDeduplicated(ctx context.Context, alert *models.Alert, window time.Duration) bool {
	since := d.now().Add(-window)

	exists, err := d.store.HasUnresolvedAlert(ctx,
		alert.Type, alert.TargetAccountID.Int64, alert.TargetContentID.Int64, since)
	if err != nil {
		d.logger.Error("Alert dedup check failed",
			zap.String("type", alert.Type),
			zap.Error(err))
		return false
	}
	if exists {
		return false
	}

	if err := d.store.CreateAlert(ctx, alert); err != nil {
		d.logger.Error("Failed to create alert",
			zap.String("type", alert.Type),
			zap.Error(err))
		return false
	}

	d.logger.Warn("Alert created",
		zap.String("type", alert.Type),
		zap.String("severity", alert.Severity),
		zap.Int64("target_account_id", alert.TargetAccountID.Int64),
		zap.Int64("target_content_id", alert.TargetContentID.Int64))
	return true
}
