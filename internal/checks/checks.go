package checks

import (
	"context"
	"net/http"
	"time"

	"wpauditd/internal/crawler"
	"wpauditd/internal/models"
	"wpauditd/internal/remote"
	"wpauditd/internal/telemetry"
)

// Check is one independent analyzer. A check turns raw remote/telemetry
// data into a dataset plus findings. Partial-data conditions (a missing
// optional integration, one sub-probe failing) are reported as issues,
// never as errors; a check returns an error only when its entire result
// would be meaningless.
type Check interface {
	Name() string
	Category() models.IssueCategory
	Run(ctx context.Context, target *Target) (*models.CheckResult, error)
}

// Target bundles everything a check may need for one site. Collaborators
// are injected so checks stay testable in isolation.
type Target struct {
	Site       *models.Site
	Runner     remote.Runner
	Analytics  telemetry.Analytics
	Crawler    crawler.Crawler
	Thresholds *Thresholds
	HTTPClient *http.Client
}

// NewTarget creates a target with default thresholds and HTTP client
func NewTarget(site *models.Site, runner remote.Runner, analytics telemetry.Analytics, crawl crawler.Crawler) *Target {
	return &Target{
		Site:       site,
		Runner:     runner,
		Analytics:  analytics,
		Crawler:    crawl,
		Thresholds: DefaultThresholds(),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// All returns the check modules in their fixed execution order. Later
// checks may assume earlier ones completed; progress reporting depends
// on this ordering.
func All() []Check {
	return []Check{
		&PluginCheck{},
		&DatabaseCheck{},
		&PerformanceCheck{},
		&SecurityCheck{},
		&SEOCheck{},
		&CrawlCheck{},
	}
}

// issue is a small helper for building an unassigned finding
func issue(category models.IssueCategory, severity models.IssueSeverity, title, description, recommendation string) models.Issue {
	return models.Issue{
		Category:       category,
		Severity:       severity,
		Title:          title,
		Description:    description,
		Recommendation: recommendation,
	}
}

// fixableIssue builds a finding that carries an auto-remediation action
func fixableIssue(category models.IssueCategory, severity models.IssueSeverity, title, description, recommendation, fixAction, fixParams string) models.Issue {
	i := issue(category, severity, title, description, recommendation)
	i.AutoFixable = true
	i.FixAction = fixAction
	i.FixParams = fixParams
	return i
}
