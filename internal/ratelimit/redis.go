package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter keeps the sliding window in a Redis sorted set per
// account, so counters stay correct when the engine runs on several
// instances. Member scores are action timestamps in unix nanoseconds;
// key TTL doubles as the idle eviction sweep.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		now:    time.Now,
	}
}

func limiterKey(accountID int64) string {
	return fmt.Sprintf("sentinel:ratelimit:%d", accountID)
}

// Check implements Limiter
func (l *RedisLimiter) Check(ctx context.Context, accountID int64, trustScore float64) (*Result, error) {
	tier, limit := TierFor(trustScore)
	now := l.now()
	cutoff := now.Add(-Window).UnixNano()
	key := limiterKey(accountID)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := int(countCmd.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.Unix(0, int64(oldest[0].Score)).Add(Window)
	}

	return &Result{
		Allowed:   count < limit,
		Tier:      tier,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Record implements Limiter
func (l *RedisLimiter) Record(ctx context.Context, accountID int64) error {
	now := l.now()
	key := limiterKey(accountID)

	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, idleEvictAfter)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit record failed: %w", err)
	}
	return nil
}

// Close implements Limiter. The Redis client is owned by the caller.
func (l *RedisLimiter) Close() {}

var _ Limiter = (*RedisLimiter)(nil)
