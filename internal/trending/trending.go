// Package trending builds the "hot right now" surface: short-window
// velocity ranking over recent content, cached in Redis and persisted
// back to the content rows by the periodic sweep.
package trending

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/inkraft/sentinel/internal/cache"
	"github.com/inkraft/sentinel/internal/errs"
	"github.com/inkraft/sentinel/internal/models"
	"github.com/inkraft/sentinel/internal/ranking"
)

// candidateLimit caps how many recent items a single ranking pass
// considers
const candidateLimit = 500

// VoteActivity is a per-content vote aggregate over the trending window
type VoteActivity struct {
	Votes   int64
	Upvotes int64
}

// Store is the read/write surface the trending service needs
type Store interface {
	RecentContent(ctx context.Context, publishedSince time.Time, limit int) ([]models.Content, error)
	RecentVoteCounts(ctx context.Context, since time.Time) (map[int64]VoteActivity, error)
	RecentCommentCounts(ctx context.Context, since time.Time) (map[int64]int64, error)
	UpdateTrendingScore(ctx context.Context, contentID int64, score float64) error
}

// Entry is one ranked trending item
type Entry struct {
	ContentID      int64   `json:"content_id"`
	Author         string  `json:"author"`
	Permlink       string  `json:"permlink"`
	TrendingScore  float64 `json:"trending_score"`
	RecentVotes    int64   `json:"recent_votes"`
	RecentComments int64   `json:"recent_comments"`
}

// Service ranks recent content by trending score
type Service struct {
	store  Store
	cache  *cache.Cache
	logger *zap.Logger

	window   time.Duration
	cacheTTL time.Duration

	// now is injectable for tests
	now func() time.Time
}

// NewService creates a trending service. cache may be nil; ranking then
// always recomputes.
func NewService(store Store, redisCache *cache.Cache, logger *zap.Logger, windowHours int, cacheTTL time.Duration) *Service {
	return &Service{
		store:    store,
		cache:    redisCache,
		logger:   logger.With(zap.String("component", "trending")),
		window:   time.Duration(windowHours) * time.Hour,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Trending returns the top trending items, serving from cache when a
// fresh ranking exists.
func (s *Service) Trending(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	cacheKey := cache.HashKey("trending", fmt.Sprintf("%d", int(s.window.Hours())), fmt.Sprintf("%d", limit))
	if s.cache != nil {
		var cached []Entry
		if err := s.cache.GetJSON(cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	entries, err := s.rank(ctx, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(cacheKey, entries, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache trending ranking", zap.Error(err))
		}
	}
	return entries, nil
}

// Refresh recomputes the full ranking and persists the scores, so the
// stored trending_score column stays usable for ad hoc queries. Run by
// the periodic sweep.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	entries, err := s.rank(ctx, candidateLimit)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := s.store.UpdateTrendingScore(ctx, e.ContentID, e.TrendingScore); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// rank builds the eligible candidate set and orders it by trending
// score, highest first.
func (s *Service) rank(ctx context.Context, limit int) ([]Entry, error) {
	now := s.now()
	since := now.Add(-s.window)

	items, err := s.store.RecentContent(ctx, since, candidateLimit)
	if err != nil {
		return nil, errs.Store(err)
	}
	votes, err := s.store.RecentVoteCounts(ctx, since)
	if err != nil {
		return nil, errs.Store(err)
	}
	comments, err := s.store.RecentCommentCounts(ctx, since)
	if err != nil {
		return nil, errs.Store(err)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		v := votes[item.ID]
		c := comments[item.ID]
		if !ranking.TrendingEligible(v.Votes, c) {
			continue
		}
		entries = append(entries, Entry{
			ContentID:      item.ID,
			Author:         item.Author,
			Permlink:       item.Permlink,
			TrendingScore:  ranking.TrendingScore(v.Upvotes, c, item.HoursSincePublish(now)),
			RecentVotes:    v.Votes,
			RecentComments: c,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TrendingScore != entries[j].TrendingScore {
			return entries[i].TrendingScore > entries[j].TrendingScore
		}
		return entries[i].ContentID < entries[j].ContentID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
