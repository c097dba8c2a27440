package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Alert types
const (
	AlertVoteSpike          = "vote_spike"
	AlertSpamVelocity       = "spam_velocity"
	AlertLowTrustEngagement = "low_trust_engagement"
	AlertRepeatedReports    = "repeated_reports"
	AlertUserReport         = "user_report"
	AlertCategoryRequest    = "category_request"
	AlertSuspiciousActivity = "suspicious_activity"
	AlertVotesNullified     = "votes_nullified"
)

// Alert severities
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Resolution actions
const (
	ActionDismiss           = "dismiss"
	ActionBanUser           = "ban_user"
	ActionFreezeTrust       = "freeze_trust"
	ActionUnfreezeTrust     = "unfreeze_trust"
	ActionNullifyVotes      = "nullify_votes"
	ActionApplyTrustPenalty = "apply_trust_penalty"
)

// Alert is an anomaly or report record. Alerts are never hard-deleted;
// resolution only flips the resolved flag and records the actor.
type Alert struct {
	ID          int64          `gorm:"primaryKey;autoIncrement;column:id"`
	Type        string         `gorm:"type:varchar(32);not null;index:sentinel_alerts_ix1;column:type"`
	Severity    string         `gorm:"type:varchar(16);not null;column:severity"`
	Title       string         `gorm:"type:varchar(255);not null;column:title"`
	Description string         `gorm:"type:text;column:description"`
	Metadata    sql.NullString `gorm:"type:text;column:metadata"`

	TargetAccountID sql.NullInt64 `gorm:"index:sentinel_alerts_ix2;column:target_account_id"`
	TargetContentID sql.NullInt64 `gorm:"index:sentinel_alerts_ix3;column:target_content_id"`

	Resolved   bool           `gorm:"not null;default:false;column:resolved"`
	ResolvedBy sql.NullInt64  `gorm:"column:resolved_by"`
	ResolvedAt sql.NullTime   `gorm:"column:resolved_at"`
	Action     sql.NullString `gorm:"type:varchar(32);column:action"`

	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Alert
func (Alert) TableName() string {
	return "sentinel_alerts"
}

// AlertMetadata is implemented by the per-type metadata payloads. Each
// alert type carries exactly one payload shape, so consumers decode by
// alert type instead of digging through an untyped map.
type AlertMetadata interface {
	AlertType() string
}

// VoteSpikeMetadata captures the counts behind a vote_spike alert
type VoteSpikeMetadata struct {
	VoteCount   int64     `json:"vote_count"`
	Threshold   int64     `json:"threshold"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// AlertType implements AlertMetadata
func (VoteSpikeMetadata) AlertType() string { return AlertVoteSpike }

// SpamVelocityMetadata captures the counts behind a spam_velocity alert
type SpamVelocityMetadata struct {
	CommentCount int64     `json:"comment_count"`
	Threshold    int64     `json:"threshold"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

// AlertType implements AlertMetadata
func (SpamVelocityMetadata) AlertType() string { return AlertSpamVelocity }

// LowTrustEngagementMetadata captures the signals behind a
// low_trust_engagement alert
type LowTrustEngagementMetadata struct {
	TrustScore  float64   `json:"trust_score"`
	VoteCount   int64     `json:"vote_count"`
	Threshold   int64     `json:"threshold"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// AlertType implements AlertMetadata
func (LowTrustEngagementMetadata) AlertType() string { return AlertLowTrustEngagement }

// UserReportMetadata captures report context on a user_report alert
type UserReportMetadata struct {
	ReporterID    int64  `json:"reporter_id"`
	TargetType    string `json:"target_type"`
	Reason        string `json:"reason"`
	RecentReports int64  `json:"recent_reports"`
}

// AlertType implements AlertMetadata
func (UserReportMetadata) AlertType() string { return AlertUserReport }

// VotesNullifiedMetadata is the audit payload written after a
// nullify_votes remediation
type VotesNullifiedMetadata struct {
	SourceAlertID     int64   `json:"source_alert_id"`
	NullifiedCount    int64   `json:"nullified_count"`
	RemovedUpWeight   float64 `json:"removed_up_weight"`
	RemovedDownWeight float64 `json:"removed_down_weight"`
}

// AlertType implements AlertMetadata
func (VotesNullifiedMetadata) AlertType() string { return AlertVotesNullified }

// SetMetadata encodes a typed payload into the metadata column. The
// payload's type must match the alert's type.
func (a *Alert) SetMetadata(meta AlertMetadata) error {
	if meta.AlertType() != a.Type {
		return fmt.Errorf("metadata type %s does not match alert type %s", meta.AlertType(), a.Type)
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode alert metadata: %w", err)
	}
	a.Metadata = sql.NullString{String: string(raw), Valid: true}
	return nil
}

// DecodeMetadata decodes the metadata column into the typed payload
// for the alert's type. Returns nil metadata when none was recorded.
func (a *Alert) DecodeMetadata() (AlertMetadata, error) {
	if !a.Metadata.Valid {
		return nil, nil
	}

	var meta AlertMetadata
	switch a.Type {
	case AlertVoteSpike:
		meta = &VoteSpikeMetadata{}
	case AlertSpamVelocity:
		meta = &SpamVelocityMetadata{}
	case AlertLowTrustEngagement:
		meta = &LowTrustEngagementMetadata{}
	case AlertUserReport:
		meta = &UserReportMetadata{}
	case AlertVotesNullified:
		meta = &VotesNullifiedMetadata{}
	default:
		return nil, fmt.Errorf("alert type %s carries no metadata", a.Type)
	}

	if err := json.Unmarshal([]byte(a.Metadata.String), meta); err != nil {
		return nil, fmt.Errorf("failed to decode alert metadata: %w", err)
	}
	return meta, nil
}

// ValidAction reports whether action is a recognized resolution action
func ValidAction(action string) bool {
	switch action {
	case ActionDismiss, ActionBanUser, ActionFreezeTrust, ActionUnfreezeTrust,
		ActionNullifyVotes, ActionApplyTrustPenalty:
		return true
	}
	return false
}
