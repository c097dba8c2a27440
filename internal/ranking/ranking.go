// Package ranking holds the engagement and trending formulas. Both are
// pure; callers supply the aggregates and elapsed time.
package ranking

import "math"

// Gravity-decay and trending constants
const (
	commentWeight   = 2.0
	upvoteWeight    = 2.0
	gravityOffset   = 2.0
	gravityExponent = 1.8

	trendingCommentWeight = 2.0
	// minTrendingHours floors the trending denominator so content
	// published minutes ago does not divide by near zero.
	minTrendingHours = 0.5

	// Trending eligibility floor, applied by callers before ranking
	minTrendingVotes    = 5
	minTrendingComments = 3
)

// EngagementScore computes the gravity-decayed ranking score. Older
// content sinks super-linearly with age. Negative scores are valid and
// preserved: relative ordering matters even below zero.
func EngagementScore(upvotes, downvotes float64, commentCount int64, daysSincePublish float64) float64 {
	if daysSincePublish < 0 {
		daysSincePublish = 0
	}
	raw := (upvotes*upvoteWeight - downvotes) + float64(commentCount)*commentWeight
	return raw / math.Pow(daysSincePublish+gravityOffset, gravityExponent)
}

// TrendingScore computes the short-window velocity score used for
// "hot right now" surfaces. It only ranks among eligible items; see
// TrendingEligible for the activity floor.
func TrendingScore(recentUpvotes, recentComments int64, hoursSincePublish float64) float64 {
	return (float64(recentUpvotes) + float64(recentComments)*trendingCommentWeight) /
		math.Max(minTrendingHours, hoursSincePublish)
}

// TrendingEligible reports whether an item has enough recent activity
// to appear on the trending surface at all.
func TrendingEligible(recentVotes, recentComments int64) bool {
	return recentVotes >= minTrendingVotes || recentComments >= minTrendingComments
}
