package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkraft/sentinel/internal/alerts"
	"github.com/inkraft/sentinel/internal/anomaly"
	"github.com/inkraft/sentinel/internal/errs"
	"github.com/inkraft/sentinel/internal/ledger"
	"github.com/inkraft/sentinel/internal/models"
	"github.com/inkraft/sentinel/internal/trending"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetAccount retrieves an account by ID. Returns (nil, nil) when absent.
func (r *Repository) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errs.Store(err)
	}
	return &account, nil
}

// UpdateAccount updates an account
func (r *Repository) UpdateAccount(ctx context.Context, account *models.Account) error {
	if err := r.db.WithContext(ctx).Save(account).Error; err != nil {
		return errs.Store(err)
	}
	return nil
}

// GetContentForUpdate retrieves a content item under a row lock, so a
// transaction that writes the aggregates back reads totals no
// concurrent writer can change underneath it. Only meaningful inside
// InTx. Returns (nil, nil) when absent.
func (r *Repository) GetContentForUpdate(ctx context.Context, id int64) (*models.Content, error) {
	var content models.Content
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&content, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errs.Store(err)
	}
	return &content, nil
}

// UpdateContent updates a content item
func (r *Repository) UpdateContent(ctx context.Context, content *models.Content) error {
	if err := r.db.WithContext(ctx).Save(content).Error; err != nil {
		return errs.Store(err)
	}
	return nil
}

// GetVote retrieves the active vote for an (account, content) pair.
// Returns (nil, nil) when the account has no active vote.
func (r *Repository) GetVote(ctx context.Context, accountID, contentID int64) (*models.Vote, error) {
	var vote models.Vote
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND content_id = ?", accountID, contentID).
		First(&vote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errs.Store(err)
	}
	return &vote, nil
}

// CreateVote inserts a vote row
func (r *Repository) CreateVote(ctx context.Context, vote *models.Vote) error {
	if err := r.db.WithContext(ctx).Create(vote).Error; err != nil {
		return errs.Store(err)
	}
	return nil
}

// UpdateVote updates a vote row in place
func (r *Repository) UpdateVote(ctx context.Context, vote *models.Vote) error {
	err := r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Where("account_id = ? AND content_id = ?", vote.AccountID, vote.ContentID).
		Updates(map[string]interface{}{
			"direction":  vote.Direction,
			"weight":     vote.Weight,
			"created_at": vote.CreatedAt,
		}).Error
	if err != nil {
		return errs.Store(err)
	}
	return nil
}

// DeleteVote removes the vote row for an (account, content) pair
func (r *Repository) DeleteVote(ctx context.Context, accountID, contentID int64) error {
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND content_id = ?", accountID, contentID).
		Delete(&models.Vote{}).Error
	if err != nil {
		return errs.Store(err)
	}
	return nil
}

// ListVotesSince returns votes cast on a content item since the cutoff
func (r *Repository) ListVotesSince(ctx context.Context, contentID int64, since time.Time) ([]*models.Vote, error) {
	var votes []*models.Vote
	err := r.db.WithContext(ctx).
		Where("content_id = ? AND created_at >= ?", contentID, since).
		Find(&votes).Error
	if err != nil {
		return nil, errs.Store(err)
	}
	return votes, nil
}

// CreateComment inserts a comment activity row
func (r *Repository) CreateComment(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return errs.Store(err)
	}
	return nil
}

// VoteSpikeCandidates returns the top content items by vote count since
// the cutoff, highest counts first
func (r *Repository) VoteSpikeCandidates(ctx context.Context, since time.Time, minVotes int64, limit int) ([]anomaly.ContentActivity, error) {
	var rows []anomaly.ContentActivity
	err := r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Select("content_id, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("content_id").
		Having("COUNT(*) >= ?", minVotes).
		Order("count DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Store(err)
	}
	return rows, nil
}

// CommentVelocities returns accounts with at least minComments comments
// since the cutoff
func (r *Repository) CommentVelocities(ctx context.Context, since time.Time, minComments int64) ([]anomaly.AccountActivity, error) {
	var rows []anomaly.AccountActivity
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Select("account_id, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("account_id").
		Having("COUNT(*) >= ?", minComments).
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Store(err)
	}
	return rows, nil
}

// LowTrustVoters returns accounts under the trust ceiling with more than
// minVotes votes since the cutoff
func (r *Repository) LowTrustVoters(ctx context.Context, since time.Time, trustCeiling float64, minVotes int64) ([]anomaly.AccountActivity, error) {
	var rows []anomaly.AccountActivity
	err := r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Select("sentinel_votes.account_id, COUNT(*) AS count, sentinel_accounts.trust_score").
		Joins("JOIN sentinel_accounts ON sentinel_accounts.id = sentinel_votes.account_id").
		Where("sentinel_votes.created_at >= ? AND sentinel_accounts.trust_score < ?", since, trustCeiling).
		Group("sentinel_votes.account_id, sentinel_accounts.trust_score").
		Having("COUNT(*) > ?", minVotes).
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Store(err)
	}
	return rows, nil
}

// GetAlert retrieves an alert by ID. Returns (nil, nil) when absent.
func (r *Repository) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	var alert models.Alert
	if err := r.db.WithContext(ctx).First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errs.Store(err)
	}
	return &alert, nil
}

// CreateAlert inserts an alert row
func (r *Repository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if err := r.db.WithContext(ctx).Create(alert).Error; err != nil {
		return errs.Store(err)
	}
	return nil
}

// UpdateAlert updates an alert row
func (r *Repository) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	if err := r.db.WithContext(ctx).Save(alert).Error; err != nil {
		return errs.Store(err)
	}
	return nil
}

// ListOpenAlerts returns unresolved alerts, newest first
func (r *Repository) ListOpenAlerts(ctx context.Context, limit int) ([]*models.Alert, error) {
	var list []*models.Alert
	err := r.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, errs.Store(err)
	}
	return list, nil
}

// HasUnresolvedAlert reports whether an unresolved alert of the given
// type and target was created since the cutoff. A zero target ID
// matches alerts with that target unset.
func (r *Repository) HasUnresolvedAlert(ctx context.Context, alertType string, targetAccountID, targetContentID int64, since time.Time) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("type = ? AND resolved = ? AND created_at >= ?", alertType, false, since)
	if targetAccountID != 0 {
		q = q.Where("target_account_id = ?", targetAccountID)
	} else {
		q = q.Where("target_account_id IS NULL")
	}
	if targetContentID != 0 {
		q = q.Where("target_content_id = ?", targetContentID)
	} else {
		q = q.Where("target_content_id IS NULL")
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, errs.Store(err)
	}
	return count > 0, nil
}

// CreateReport inserts a report row
func (r *Repository) CreateReport(ctx context.Context, report *models.Report) error {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return errs.Store(err)
	}
	return nil
}

// CountReportsForTarget counts reports filed against a target since the
// cutoff
func (r *Repository) CountReportsForTarget(ctx context.Context, targetType string, targetID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("target_type = ? AND target_id = ? AND created_at >= ?", targetType, targetID, since).
		Count(&count).Error
	if err != nil {
		return 0, errs.Store(err)
	}
	return count, nil
}

// RecentContent returns trending candidates published since the cutoff
func (r *Repository) RecentContent(ctx context.Context, publishedSince time.Time, limit int) ([]models.Content, error) {
	var items []models.Content
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND is_deleted = ?", publishedSince, false).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, errs.Store(err)
	}
	return items, nil
}

// RecentVoteCounts returns per-content vote activity since the cutoff,
// keyed by content ID
func (r *Repository) RecentVoteCounts(ctx context.Context, since time.Time) (map[int64]trending.VoteActivity, error) {
	var rows []struct {
		ContentID int64
		Votes     int64
		Upvotes   int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Select("content_id, COUNT(*) AS votes, SUM(CASE WHEN direction = 'up' THEN 1 ELSE 0 END) AS upvotes").
		Where("created_at >= ?", since).
		Group("content_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Store(err)
	}
	counts := make(map[int64]trending.VoteActivity, len(rows))
	for _, row := range rows {
		counts[row.ContentID] = trending.VoteActivity{Votes: row.Votes, Upvotes: row.Upvotes}
	}
	return counts, nil
}

// RecentCommentCounts returns per-content comment counts since the
// cutoff, keyed by content ID
func (r *Repository) RecentCommentCounts(ctx context.Context, since time.Time) (map[int64]int64, error) {
	var rows []anomaly.ContentActivity
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Select("content_id, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("content_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Store(err)
	}
	counts := make(map[int64]int64, len(rows))
	for _, row := range rows {
		counts[row.ContentID] = row.Count
	}
	return counts, nil
}

// UpdateTrendingScore persists a recomputed trending score
func (r *Repository) UpdateTrendingScore(ctx context.Context, contentID int64, score float64) error {
	err := r.db.WithContext(ctx).
		Model(&models.Content{}).
		Where("id = ?", contentID).
		Update("trending_score", score).Error
	if err != nil {
		return errs.Store(err)
	}
	return nil
}

// inTx runs fn against a repository bound to a transaction
func (r *Repository) inTx(ctx context.Context, fn func(*Repository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
	if err != nil && !isDomainErr(err) {
		return errs.Store(err)
	}
	return err
}

// isDomainErr reports whether err already carries a taxonomy class, so
// transaction plumbing does not re-wrap it as a store failure
func isDomainErr(err error) bool {
	return errors.Is(err, errs.ErrInvalidInput) ||
		errors.Is(err, errs.ErrNotFound) ||
		errors.Is(err, errs.ErrConflict) ||
		errors.Is(err, errs.ErrTransientStore)
}

// LedgerStore adapts the repository to the vote ledger's store
// interface, carrying transactions through InTx.
type LedgerStore struct {
	*Repository
}

// NewLedgerStore wraps a repository for the vote ledger
func NewLedgerStore(repo *Repository) LedgerStore {
	return LedgerStore{Repository: repo}
}

// InTx runs fn inside a database transaction
func (s LedgerStore) InTx(ctx context.Context, fn func(ledger.Store) error) error {
	return s.inTx(ctx, func(tx *Repository) error {
		return fn(LedgerStore{Repository: tx})
	})
}

// AlertStore adapts the repository to the alert manager's store
// interface, carrying transactions through InTx.
type AlertStore struct {
	*Repository
}

// NewAlertStore wraps a repository for the alert manager
func NewAlertStore(repo *Repository) AlertStore {
	return AlertStore{Repository: repo}
}

// InTx runs fn inside a database transaction
func (s AlertStore) InTx(ctx context.Context, fn func(alerts.Store) error) error {
	return s.inTx(ctx, func(tx *Repository) error {
		return fn(AlertStore{Repository: tx})
	})
}

// compile-time interface checks
var (
	_ ledger.Store   = LedgerStore{}
	_ alerts.Store   = AlertStore{}
	_ anomaly.Store  = (*Repository)(nil)
	_ trending.Store = (*Repository)(nil)
)
