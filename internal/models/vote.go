package models

import "time"

// Vote directions
const (
	VoteUp   = "up"
	VoteDown = "down"
)

// ValidDirection reports whether d is a recognized vote direction
func ValidDirection(d string) bool {
	return d == VoteUp || d == VoteDown
}

// Vote records a single account's active vote on a content item.
// At most one row exists per (account, content) pair. Weight is frozen
// at cast time and only changes through an explicit direction switch
// or remediation.
type Vote struct {
	AccountID int64     `gorm:"primaryKey;column:account_id"`
	ContentID int64     `gorm:"primaryKey;column:content_id"`
	Direction string    `gorm:"type:varchar(4);not null;column:direction"`
	Weight    float64   `gorm:"type:decimal(8,4);not null;column:weight"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Vote
func (Vote) TableName() string {
	return "sentinel_votes"
}
