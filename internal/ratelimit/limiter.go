// Package ratelimit enforces per-account comment rate limits keyed by
// trust tier. Callers check first and record only after an allowed
// check; the two calls are deliberately separate so admission logic can
// look before it leaps.
package ratelimit

import (
	"context"
	"time"
)

// Window is the sliding window shared by every tier
const Window = time.Hour

// idleEvictAfter is how long an entry may sit untouched before the
// background sweep reclaims it
const idleEvictAfter = Window + time.Hour

// Tier names
const (
	TierTrusted = "trusted"
	TierRegular = "regular"
	TierNewUser = "new_user"
)

// Actions per hour by tier
const (
	trustedLimit = 30
	regularLimit = 10
	newUserLimit = 3
)

// Result reports the outcome of a rate limit check
type Result struct {
	Allowed   bool
	Tier      string
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is the rate limit backend. The in-memory implementation
// serves a single instance; the Redis implementation shares counters
// across instances.
type Limiter interface {
	// Check expires stale actions and reports whether another action
	// is currently admissible for the account.
	Check(ctx context.Context, accountID int64, trustScore float64) (*Result, error)
	// Record appends an action timestamp. Call only after an allowed
	// Check.
	Record(ctx context.Context, accountID int64) error
	// Close releases any background resources held by the backend.
	Close()
}

// TierFor maps a trust score to its rate limit tier
func TierFor(trustScore float64) (string, int) {
	switch {
	case trustScore >= 1.5:
		return TierTrusted, trustedLimit
	case trustScore >= 1.0:
		return TierRegular, regularLimit
	default:
		return TierNewUser, newUserLimit
	}
}
