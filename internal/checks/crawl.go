package checks

import (
	"context"
	"fmt"
	"time"

	"wpauditd/internal/crawler"
	"wpauditd/internal/models"
)

// CrawlData is the dataset produced by the crawl check
type CrawlData struct {
	Summary *crawler.Summary `json:"summary,omitempty"`
	Failed  bool             `json:"failed"`
}

// CrawlCheck runs the external crawl tool, through the retry
// controller, and turns its summary counters into backend-health
// findings
type CrawlCheck struct{}

// Name implements Check
func (c *CrawlCheck) Name() string { return "Crawl" }

// Category implements Check
func (c *CrawlCheck) Category() models.IssueCategory { return models.CategoryCrawl }

// Run implements Check. A fully failed crawl never aborts the audit: it
// degrades to a zero-page result plus one warning finding.
func (c *CrawlCheck) Run(ctx context.Context, target *Target) (*models.CheckResult, error) {
	settings := settingsFor(target.Site, target.Thresholds.Crawl)

	summary, err := target.Crawler.Crawl(ctx, settings)
	if err != nil {
		return &models.CheckResult{
			Data: &CrawlData{Failed: true},
			Issues: []models.Issue{issue(models.CategoryCrawl, models.SeverityWarning,
				"Site crawl failed",
				fmt.Sprintf("The crawl could not complete: %v", err),
				"Check that the site allows crawling and retry the audit.")},
		}, nil
	}

	data := &CrawlData{Summary: summary}
	var issues []models.Issue
	th := target.Thresholds.Crawl

	if summary.PagesCrawled > 0 {
		errorRate := float64(summary.ServerErrors) / float64(summary.PagesCrawled)
		if errorRate >= th.ServerErrorRateCritical {
			issues = append(issues, issue(models.CategoryCrawl, models.SeverityCritical,
				"Server errors across the site",
				fmt.Sprintf("%d of %d crawled pages returned a server error.", summary.ServerErrors, summary.PagesCrawled),
				"Check origin error logs; this level of 5xx responses affects visitors and ranking."))
		} else if errorRate >= th.ServerErrorRateWarning {
			issues = append(issues, issue(models.CategoryCrawl, models.SeverityWarning,
				"Server errors found during crawl",
				fmt.Sprintf("%d of %d crawled pages returned a server error.", summary.ServerErrors, summary.PagesCrawled),
				"Review origin error logs for the failing URLs."))
		}
	}

	if summary.SlowPages >= th.SlowPagesWarning {
		issues = append(issues, issue(models.CategoryCrawl, models.SeverityWarning,
			"Slow pages found",
			fmt.Sprintf("%d pages took longer than %dms to respond.", summary.SlowPages, th.SlowPageMs),
			"Profile the slowest templates and queries."))
	}

	if summary.BrokenLinks >= th.BrokenLinksCritical {
		issues = append(issues, issue(models.CategoryCrawl, models.SeverityCritical,
			"Widespread broken links",
			fmt.Sprintf("%d broken internal links found.", summary.BrokenLinks),
			"Fix or redirect the broken targets."))
	} else if summary.BrokenLinks >= th.BrokenLinksWarning {
		issues = append(issues, issue(models.CategoryCrawl, models.SeverityWarning,
			"Broken links found",
			fmt.Sprintf("%d broken internal links found.", summary.BrokenLinks),
			"Fix or redirect the broken targets."))
	}

	if summary.RedirectChains >= th.RedirectChainsWarning {
		issues = append(issues, issue(models.CategoryCrawl, models.SeverityWarning,
			"Redirect chains found",
			fmt.Sprintf("%d pages are reached through multi-hop redirects.", summary.RedirectChains),
			"Point links and redirects at the final URL."))
	}

	return &models.CheckResult{Data: data, Issues: issues}, nil
}

// settingsFor derives crawl settings from the site profile. E-commerce
// catalogs get a larger page budget; heavyweight page builders get the
// speed audit so template weight shows up in the report; staging sites
// crawl behind their auth profile.
func settingsFor(site *models.Site, th CrawlThresholds) crawler.Settings {
	settings := crawler.Settings{
		URL:        site.URL,
		MaxPages:   th.MaxPages,
		Timeout:    time.Duration(th.TimeoutMinutes) * time.Minute,
		SlowPageMs: th.SlowPageMs,
	}

	if site.IsEcommerce {
		settings.MaxPages = th.EcommerceMaxPages
	}

	switch site.PageBuilder {
	case "elementor", "divi", "wpbakery":
		settings.SpeedAudit = true
	}

	if site.Environment == models.EnvStaging {
		settings.AuthProfile = "staging"
	}

	return settings
}
