package trust

import (
	"math"
	"time"

	"github.com/inkraft/sentinel/internal/models"
)

// Sub-score caps and the activity level at which each cap is reached
const (
	ageCap     = 0.3
	ageDaysMax = 90.0

	readingCap = 0.4
	readingMax = 100.0

	contributionCap = 0.3
	contributionMax = 20.0

	socialCap = 0.5
	socialMax = 50.0

	// BaseVoteWeight is the unscaled weight of a single vote
	BaseVoteWeight = 1.0
)

// Multiplier computes the trust multiplier from account signals. Each
// signal contributes a capped linear sub-score; the sum shifts a
// neutral 1.0 baseline and the result is clamped to the trust bounds.
// All-zero inputs yield exactly 1.0.
func Multiplier(accountAgeDays, articlesRead, contributions, followers int64) float64 {
	sum := cappedLinear(float64(accountAgeDays), ageDaysMax, ageCap) +
		cappedLinear(float64(articlesRead), readingMax, readingCap) +
		cappedLinear(float64(contributions), contributionMax, contributionCap) +
		cappedLinear(float64(followers), socialMax, socialCap)

	return Clamp(1.0 + sum)
}

// VoteWeight returns the weight a vote by this account carries at cast
// time.
func VoteWeight(accountAgeDays, articlesRead, contributions, followers int64) float64 {
	return BaseVoteWeight * Multiplier(accountAgeDays, articlesRead, contributions, followers)
}

// Recompute returns the account's current trust score. Frozen accounts
// keep their stored score regardless of signal changes; unfreezing
// makes the next recompute pick the signals back up.
func Recompute(account *models.Account, now time.Time) float64 {
	if account.TrustFrozen {
		return account.TrustScore
	}
	return Multiplier(account.AgeDays(now), account.ArticlesRead, account.Contributions, account.Followers)
}

// Clamp bounds a trust score to the platform trust range
func Clamp(score float64) float64 {
	return math.Min(models.TrustScoreMax, math.Max(models.TrustScoreMin, score))
}

// cappedLinear scales value linearly toward limit, reaching limit at max
func cappedLinear(value, max, limit float64) float64 {
	if value <= 0 {
		return 0
	}
	return math.Min(value/max, 1.0) * limit
}
