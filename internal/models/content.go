package models

import "time"

// Content represents a ranked content item (post)
type Content struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Author    string    `gorm:"type:varchar(32);not null;column:author"`
	Permlink  string    `gorm:"type:varchar(255);not null;column:permlink"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`

	// Aggregate vote weight. Never negative; toggle-off subtracts exactly
	// the weight recorded at cast time.
	Upvotes   float64 `gorm:"type:decimal(12,4);not null;default:0;column:upvotes"`
	Downvotes float64 `gorm:"type:decimal(12,4);not null;default:0;column:downvotes"`

	CommentCount    int64   `gorm:"not null;default:0;column:comment_count"`
	EngagementScore float64 `gorm:"type:float(8);not null;default:0;column:engagement_score"`
	TrendingScore   float64 `gorm:"type:float(8);not null;default:0;column:trending_score"`

	IsDeleted bool `gorm:"not null;default:false;column:is_deleted"`
}

// TableName specifies the table name for Content
func (Content) TableName() string {
	return "sentinel_content"
}

// DaysSincePublish returns fractional days elapsed since publication
func (c *Content) DaysSincePublish(now time.Time) float64 {
	days := now.Sub(c.CreatedAt).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

// HoursSincePublish returns fractional hours elapsed since publication
func (c *Content) HoursSincePublish(now time.Time) float64 {
	hours := now.Sub(c.CreatedAt).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}
