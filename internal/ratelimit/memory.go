package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inkraft/sentinel/pkg/logging"
)

// entry tracks one account's action timestamps inside the window
type entry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// MemoryLimiter is the process-local sliding window limiter. Counters
// are not shared across instances; use the Redis backend when running
// more than one replica.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[int64]*entry
	logger  *zap.Logger

	// now is injectable for tests
	now func() time.Time

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewMemoryLimiter creates an in-memory limiter and starts its eviction
// sweep.
func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{
		entries:   make(map[int64]*entry),
		logger:    logging.WithComponent("ratelimit"),
		now:       time.Now,
		stopSweep: make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Check implements Limiter
func (l *MemoryLimiter) Check(ctx context.Context, accountID int64, trustScore float64) (*Result, error) {
	tier, limit := TierFor(trustScore)
	now := l.now()
	cutoff := now.Add(-Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[accountID]
	if !ok {
		return &Result{
			Allowed:   true,
			Tier:      tier,
			Limit:     limit,
			Remaining: limit,
			ResetAt:   now,
		}, nil
	}

	e.expire(cutoff)
	e.lastSeen = now

	count := len(e.timestamps)
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now
	if count > 0 {
		resetAt = e.timestamps[0].Add(Window)
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
func (l *MemoryLimiter) Record(ctx context.Context, accountID int64) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[accountID]
	if !ok {
		e = &entry{}
		l.entries[accountID] = e
	}
	e.expire(now.Add(-Window))
	e.timestamps = append(e.timestamps, now)
	e.lastSeen = now
	return nil
}

// Close stops the eviction sweep
func (l *MemoryLimiter) Close() {
	l.sweepOnce.Do(func() { close(l.stopSweep) })
}

// sweepLoop reclaims entries idle for longer than the eviction window.
// It runs hourly and holds the lock only for the map scan itself.
func (l *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopSweep:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *MemoryLimiter) evictIdle() {
	cutoff := l.now().Add(-idleEvictAfter)

	l.mu.Lock()
	evicted := 0
	for id, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, id)
			evicted++
		}
	}
	remaining := len(l.entries)
	l.mu.Unlock()

	if evicted > 0 {
		l.logger.Debug("Evicted idle rate limit entries",
			zap.Int("evicted", evicted),
			zap.Int("remaining", remaining))
	}
}

// expire drops timestamps older than the cutoff, keeping order
func (e *entry) expire(cutoff time.Time) {
	i := 0
	for ; i < len(e.timestamps); i++ {
		if e.timestamps[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		e.timestamps = append(e.timestamps[:0], e.timestamps[i:]...)
	}
}

var _ Limiter = (*MemoryLimiter)(nil)
