package models

import "time"

// AuditStatus is the lifecycle state of an audit run
type AuditStatus string

// Audit lifecycle states. Pending and running are live; completed and
// failed are terminal.
const (
	AuditPending   AuditStatus = "pending"
	AuditRunning   AuditStatus = "running"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
)

// Terminal reports whether the status allows no further transitions
func (s AuditStatus) Terminal() bool {
	return s == AuditCompleted || s == AuditFailed
}

// Audit represents one execution of the full check sequence against a site
type Audit struct {
	ID          int64       `json:"id"`
	SiteID      int64       `json:"site_id"`
	Status      AuditStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	HealthScore *int        `json:"health_score,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	CurrentStep string      `json:"current_step,omitempty"`
	Progress    int         `json:"progress"`
	ErrorMsg    string      `json:"error_message,omitempty"`
	Results     string      `json:"results,omitempty"` // JSON, per-category raw data
}
