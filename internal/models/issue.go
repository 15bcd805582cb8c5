package models

import "time"

// IssueCategory identifies which check module produced an issue
type IssueCategory string

// Issue categories, one per check module
const (
	CategoryPlugins     IssueCategory = "plugins"
	CategoryDatabase    IssueCategory = "database"
	CategoryPerformance IssueCategory = "performance"
	CategorySecurity    IssueCategory = "security"
	CategorySEO         IssueCategory = "seo"
	CategoryCrawl       IssueCategory = "crawl"
)

// IssueSeverity ranks how urgent a finding is
type IssueSeverity string

// Issue severities
const (
	SeverityCritical IssueSeverity = "critical"
	SeverityWarning  IssueSeverity = "warning"
	SeverityInfo     IssueSeverity = "info"
)

// IssueStatus tracks the remediation state of an issue
type IssueStatus string

// Issue statuses
const (
	IssueOpen       IssueStatus = "open"
	IssueFixed      IssueStatus = "fixed"
	IssueIgnored    IssueStatus = "ignored"
	IssueInProgress IssueStatus = "in_progress"
)

// Issue represents one condition discovered by a check module
type Issue struct {
	ID             int64         `json:"id"`
	SiteID         int64         `json:"site_id"`
	AuditID        int64         `json:"audit_id"`
	Category       IssueCategory `json:"category"`
	Severity       IssueSeverity `json:"severity"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Recommendation string        `json:"recommendation,omitempty"`
	AutoFixable    bool          `json:"auto_fixable"`
	FixAction      string        `json:"fix_action,omitempty"`
	FixParams      string        `json:"fix_params,omitempty"` // JSON
	Status         IssueStatus   `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
}
