package models

import "time"

// Moderation statuses assigned at comment admission
const (
	ModerationApproved = "approved"
	ModerationPending  = "pending"
)

// Comment tracks comment activity for rate limiting and anomaly
// detection. Comment bodies live in the platform's content store;
// only the activity record matters here.
type Comment struct {
	ID               int64     `gorm:"primaryKey;autoIncrement;column:id"`
	AccountID        int64     `gorm:"not null;index:sentinel_comments_ix1;column:account_id"`
	ContentID        int64     `gorm:"not null;column:content_id"`
	ModerationStatus string    `gorm:"type:varchar(16);not null;default:'pending';column:moderation_status"`
	CreatedAt        time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "sentinel_comments"
}
