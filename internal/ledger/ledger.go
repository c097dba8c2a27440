// Package ledger owns the vote state machine: at most one active vote
// per (account, content) pair, with aggregate totals that move in
// lockstep with the vote and comment records.
package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/inkraft/sentinel/internal/errs"
	"github.com/inkraft/sentinel/internal/models"
	"github.com/inkraft/sentinel/internal/ranking"
	"github.com/inkraft/sentinel/internal/trust"
	"github.com/inkraft/sentinel/pkg/logging"
)

// Store is the persistence surface the ledger needs. InTx must run the
// callback atomically: either every mutation inside lands or none do.
type Store interface {
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	// GetContentForUpdate must hold a row lock on the content until the
	// surrounding transaction ends, so concurrent writers cannot read
	// the same totals and overwrite each other's aggregates.
	GetContentForUpdate(ctx context.Context, id int64) (*models.Content, error)
	GetVote(ctx context.Context, accountID, contentID int64) (*models.Vote, error)
	CreateVote(ctx context.Context, vote *models.Vote) error
	UpdateVote(ctx context.Context, vote *models.Vote) error
	DeleteVote(ctx context.Context, accountID, contentID int64) error
	ListVotesSince(ctx context.Context, contentID int64, since time.Time) ([]*models.Vote, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	UpdateContent(ctx context.Context, content *models.Content) error
	InTx(ctx context.Context, fn func(Store) error) error
}

// UserVote outcomes reported back to the caller
const (
	UserVoteNone = "none"
)

// CastResult is the post-transition view returned to the caller
type CastResult struct {
	Upvotes         float64 `json:"upvotes"`
	Downvotes       float64 `json:"downvotes"`
	EngagementScore float64 `json:"engagement_score"`
	UserVote        string  `json:"user_vote"`
}

// NullifyResult summarizes a vote nullification remediation
type NullifyResult struct {
	NullifiedCount    int64
	RemovedUpWeight   float64
	RemovedDownWeight float64
}

// stripes is the size of the per-pair lock table. Casts on the same
// pair always hash to the same stripe, so they serialize; unrelated
// pairs almost always proceed in parallel.
const stripes = 128

// Ledger applies vote transitions
type Ledger struct {
	store  Store
	logger *zap.Logger
	locks  [stripes]chan struct{}

	// now is injectable for tests
	now func() time.Time
}

// New creates a vote ledger over the given store
func New(store Store) *Ledger {
	l := &Ledger{
		store:  store,
		logger: logging.WithComponent("ledger"),
		now:    time.Now,
	}
	for i := range l.locks {
		l.locks[i] = make(chan struct{}, 1)
	}
	return l
}

// lockPair serializes writers on one (account, content) pair. Returns
// the unlock func, or an error when the context dies first.
func (l *Ledger) lockPair(ctx context.Context, accountID, contentID int64) (func(), error) {
	idx := uint64(accountID*2654435761+contentID) % stripes
	select {
	case l.locks[idx] <- struct{}{}:
		return func() { <-l.locks[idx] }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cast applies one of the three vote transitions for the pair:
// create, toggle off, or switch direction. The whole transition runs
// inside a single store transaction under the pair lock.
func (l *Ledger) Cast(ctx context.Context, accountID, contentID int64, direction string) (*CastResult, error) {
	if !models.ValidDirection(direction) {
		return nil, errs.InvalidInputf("direction must be %q or %q, got %q", models.VoteUp, models.VoteDown, direction)
	}

	unlock, err := l.lockPair(ctx, accountID, contentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := l.now()
	var result *CastResult

	err = l.store.InTx(ctx, func(tx Store) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return errs.Store(err)
		}
		if account == nil {
			return errs.NotFoundf("account %d", accountID)
		}
		if account.Banned {
			return errs.Conflictf("account %d is banned", accountID)
		}

		content, err := tx.GetContentForUpdate(ctx, contentID)
		if err != nil {
			return errs.Store(err)
		}
		if content == nil || content.IsDeleted {
			return errs.NotFoundf("content %d", contentID)
		}

		existing, err := tx.GetVote(ctx, accountID, contentID)
		if err != nil {
			return errs.Store(err)
		}

		// Weight is frozen at cast time from the account's current
		// trust multiplier.
		weight := trust.BaseVoteWeight * trust.Recompute(account, now)

		userVote := direction
		switch {
		case existing == nil:
			vote := &models.Vote{
				AccountID: accountID,
				ContentID: contentID,
				Direction: direction,
				Weight:    weight,
				CreatedAt: now,
			}
			if err := tx.CreateVote(ctx, vote); err != nil {
				return errs.Store(err)
			}
			addWeight(content, direction, weight)

		case existing.Direction == direction:
			// Toggle off: remove exactly the weight recorded at cast
			// time, never the current weight.
			if err := tx.DeleteVote(ctx, accountID, contentID); err != nil {
				return errs.Store(err)
			}
			subtractWeight(content, direction, existing.Weight)
			userVote = UserVoteNone

		default:
			subtractWeight(content, existing.Direction, existing.Weight)
			existing.Direction = direction
			existing.Weight = weight
			existing.CreatedAt = now
			if err := tx.UpdateVote(ctx, existing); err != nil {
				return errs.Store(err)
			}
			addWeight(content, direction, weight)
		}

		content.EngagementScore = ranking.EngagementScore(
			content.Upvotes, content.Downvotes, content.CommentCount,
			content.DaysSincePublish(now))

		if err := tx.UpdateContent(ctx, content); err != nil {
			return errs.Store(err)
		}

		result = &CastResult{
			Upvotes:         content.Upvotes,
			Downvotes:       content.Downvotes,
			EngagementScore: content.EngagementScore,
			UserVote:        userVote,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("Vote cast",
		zap.Int64("account_id", accountID),
		zap.Int64("content_id", contentID),
		zap.String("user_vote", result.UserVote))

	return result, nil
}

// nullifyTrustThreshold is the trust score below which recent votes
// are removed during nullification
const nullifyTrustThreshold = 0.5

// Nullify removes votes cast on the content within the window by
// accounts under the trust threshold and decrements the aggregates by
// the removed weight. When splitDownvotes is false the removed weight
// all comes off the upvote total, matching the platform's historical
// behavior; when true each side is decremented separately.
func (l *Ledger) Nullify(ctx context.Context, contentID int64, window time.Duration, splitDownvotes bool) (*NullifyResult, error) {
	now := l.now()
	since := now.Add(-window)
	result := &NullifyResult{}

	err := l.store.InTx(ctx, func(tx Store) error {
		content, err := tx.GetContentForUpdate(ctx, contentID)
		if err != nil {
			return errs.Store(err)
		}
		if content == nil {
			return errs.NotFoundf("content %d", contentID)
		}

		votes, err := tx.ListVotesSince(ctx, contentID, since)
		if err != nil {
			return errs.Store(err)
		}

		for _, vote := range votes {
			account, err := tx.GetAccount(ctx, vote.AccountID)
			if err != nil {
				return errs.Store(err)
			}
			if account == nil || account.TrustScore >= nullifyTrustThreshold {
				continue
			}

			if err := tx.DeleteVote(ctx, vote.AccountID, vote.ContentID); err != nil {
				return errs.Store(err)
			}
			result.NullifiedCount++
			if vote.Direction == models.VoteUp {
				result.RemovedUpWeight += vote.Weight
			} else {
				result.RemovedDownWeight += vote.Weight
			}
		}

		if result.NullifiedCount == 0 {
			return nil
		}

		if splitDownvotes {
			content.Upvotes = floorZero(content.Upvotes - result.RemovedUpWeight)
			content.Downvotes = floorZero(content.Downvotes - result.RemovedDownWeight)
		} else {
			// Historical behavior: every removed weight comes off the
			// upvote side, downvoted removals included.
			content.Upvotes = floorZero(content.Upvotes - result.RemovedUpWeight - result.RemovedDownWeight)
		}

		content.EngagementScore = ranking.EngagementScore(
			content.Upvotes, content.Downvotes, content.CommentCount,
			content.DaysSincePublish(now))

		return errs.Store(tx.UpdateContent(ctx, content))
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Votes nullified",
		zap.Int64("content_id", contentID),
		zap.Int64("count", result.NullifiedCount),
		zap.Float64("removed_up_weight", result.RemovedUpWeight),
		zap.Float64("removed_down_weight", result.RemovedDownWeight))

	return result, nil
}

// CommentResult is the post-insert view of the content's aggregates
type CommentResult struct {
	CommentCount    int64
	EngagementScore float64
}

// RecordComment inserts a comment row and moves the content's comment
// count and engagement score with it, in one transaction under the
// content row lock. A vote committed concurrently is never overwritten
// by the aggregate write-back.
func (l *Ledger) RecordComment(ctx context.Context, accountID, contentID int64, moderationStatus string) (*CommentResult, error) {
	now := l.now()
	var result *CommentResult

	err := l.store.InTx(ctx, func(tx Store) error {
		content, err := tx.GetContentForUpdate(ctx, contentID)
		if err != nil {
			return errs.Store(err)
		}
		if content == nil || content.IsDeleted {
			return errs.NotFoundf("content %d", contentID)
		}

		comment := &models.Comment{
			AccountID:        accountID,
			ContentID:        contentID,
			ModerationStatus: moderationStatus,
			CreatedAt:        now,
		}
		if err := tx.CreateComment(ctx, comment); err != nil {
			return errs.Store(err)
		}

		content.CommentCount++
		content.EngagementScore = ranking.EngagementScore(
			content.Upvotes, content.Downvotes, content.CommentCount,
			content.DaysSincePublish(now))

		if err := tx.UpdateContent(ctx, content); err != nil {
			return errs.Store(err)
		}

		result = &CommentResult{
			CommentCount:    content.CommentCount,
			EngagementScore: content.EngagementScore,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("Comment recorded",
		zap.Int64("account_id", accountID),
		zap.Int64("content_id", contentID),
		zap.Int64("comment_count", result.CommentCount))

	return result, nil
}

func addWeight(content *models.Content, direction string, weight float64) {
	if direction == models.VoteUp {
		content.Upvotes += weight
	} else {
		content.Downvotes += weight
	}
}

func subtractWeight(content *models.Content, direction string, weight float64) {
	if direction == models.VoteUp {
		content.Upvotes = floorZero(content.Upvotes - weight)
	} else {
		content.Downvotes = floorZero(content.Downvotes - weight)
	}
}

func floorZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
