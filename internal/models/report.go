package models

import "time"

// Report target types
const (
	ReportTargetContent = "content"
	ReportTargetAccount = "account"
	ReportTargetComment = "comment"
)

// ValidReportTarget reports whether t is a recognized report target type
func ValidReportTarget(t string) bool {
	return t == ReportTargetContent || t == ReportTargetAccount || t == ReportTargetComment
}

// Report is a user-submitted abuse report. Reports feed alert severity:
// repeated reports on the same target escalate the resulting alert.
type Report struct {
	ID         int64     `gorm:"primaryKey;autoIncrement;column:id"`
	ReporterID int64     `gorm:"not null;column:reporter_id"`
	TargetType string    `gorm:"type:varchar(16);not null;column:target_type"`
	TargetID   int64     `gorm:"not null;index:sentinel_reports_ix1;column:target_id"`
	Reason     string    `gorm:"type:varchar(64);not null;column:reason"`
	Details    string    `gorm:"type:text;column:details"`
	CreatedAt  time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Report
func (Report) TableName() string {
	return "sentinel_reports"
}
