package models

import (
	"database/sql"
	"time"
)

// Trust score bounds enforced across the engine
const (
	TrustScoreMin = 0.5
	TrustScoreMax = 2.5
)

// Account represents a platform account as seen by the trust engine
type Account struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Name      string    `gorm:"type:varchar(32);not null;uniqueIndex:sentinel_accounts_ux1;column:name"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`

	// Trust signals
	TrustScore    float64 `gorm:"type:float(6);not null;default:1.0;column:trust_score"`
	ArticlesRead  int64   `gorm:"not null;default:0;column:articles_read"`
	Contributions int64   `gorm:"not null;default:0;column:contributions"`
	Followers     int64   `gorm:"not null;default:0;column:followers"`
	Verified      bool    `gorm:"not null;default:false;column:verified"`

	// Moderation state
	TrustFrozen       bool           `gorm:"not null;default:false;column:trust_frozen"`
	TrustFrozenAt     sql.NullTime   `gorm:"column:trust_frozen_at"`
	TrustFrozenBy     sql.NullInt64  `gorm:"column:trust_frozen_by"`
	TrustFrozenReason sql.NullString `gorm:"type:varchar(255);column:trust_frozen_reason"`
	Banned            bool           `gorm:"not null;default:false;column:banned"`
}

// TableName specifies the table name for Account
func (Account) TableName() string {
	return "sentinel_accounts"
}

// AgeDays returns the account age in whole days at the given time
func (a *Account) AgeDays(now time.Time) int64 {
	days := int64(now.Sub(a.CreatedAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
