package checks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wpauditd/internal/models"
	"wpauditd/internal/telemetry"
)

// PerformanceData is the dataset produced by the performance check
type PerformanceData struct {
	Window        *models.TelemetryWindow `json:"window,omitempty"`
	CacheHitRatio float64                 `json:"cache_hit_ratio"`
	LatencyMs     int64                   `json:"latency_ms"`
	Reachable     bool                    `json:"reachable"`
}

// PerformanceCheck combines edge analytics with a direct latency probe
type PerformanceCheck struct{}

// Name implements Check
func (c *PerformanceCheck) Name() string { return "Performance" }

// Category implements Check
func (c *PerformanceCheck) Category() models.IssueCategory { return models.CategoryPerformance }

// Run implements Check. A missing telemetry zone is an info finding, a
// failed fetch is a warning finding, and an unreachable host is a
// critical finding. None of these error: the module always produces a
// result.
func (c *PerformanceCheck) Run(ctx context.Context, target *Target) (*models.CheckResult, error) {
	data := &PerformanceData{}
	var issues []models.Issue
	th := target.Thresholds.Performance

	if target.Site.CloudflareZoneID == "" {
		issues = append(issues, issue(models.CategoryPerformance, models.SeverityInfo,
			"Edge analytics not configured",
			"No Cloudflare zone is configured for this site, so cache and traffic metrics are unavailable.",
			"Add the site's Cloudflare zone ID to enable edge analytics."))
	} else {
		window, err := target.Analytics.Window(ctx, target.Site.CloudflareZoneID, 7*24)
		if err != nil {
			issues = append(issues, issue(models.CategoryPerformance, models.SeverityWarning,
				"Edge analytics unavailable",
				fmt.Sprintf("Analytics fetch failed: %v", err),
				telemetry.Hint(err)))
		} else {
			data.Window = window
			data.CacheHitRatio = window.CacheHitRatio()
			issues = append(issues, c.windowIssues(window, th)...)
		}
	}

	// Direct latency probe, independent of the edge
	latency, err := c.probe(ctx, target)
	if err != nil {
		issues = append(issues, issue(models.CategoryPerformance, models.SeverityCritical,
			"Site unreachable",
			fmt.Sprintf("HEAD request to %s failed: %v", target.Site.URL, err),
			"Check DNS, TLS and origin server health."))
	} else {
		data.Reachable = true
		data.LatencyMs = latency
		if latency >= th.LatencyCriticalMs {
			issues = append(issues, issue(models.CategoryPerformance, models.SeverityCritical,
				"Very slow response",
				fmt.Sprintf("Front page responded in %dms.", latency),
				"Investigate origin load, PHP workers and database queries."))
		} else if latency >= th.LatencyWarningMs {
			issues = append(issues, issue(models.CategoryPerformance, models.SeverityWarning,
				"Slow response",
				fmt.Sprintf("Front page responded in %dms.", latency),
				"Check page caching and origin load."))
		}
	}

	return &models.CheckResult{Data: data, Issues: issues}, nil
}

func (c *PerformanceCheck) windowIssues(w *models.TelemetryWindow, th PerformanceThresholds) []models.Issue {
	var issues []models.Issue

	ratio := w.CacheHitRatio()
	if w.Requests > 0 {
		if ratio < th.CacheHitCritical {
			issues = append(issues, issue(models.CategoryPerformance, models.SeverityCritical,
				"Edge cache barely used",
				fmt.Sprintf("Only %.0f%% of requests are served from cache.", ratio*100),
				"Check cache rules and cookie behavior; most anonymous traffic should be cached."))
		} else if ratio < th.CacheHitWarning {
			issues = append(issues, issue(models.CategoryPerformance, models.SeverityWarning,
				"Low edge cache hit ratio",
				fmt.Sprintf("%.0f%% of requests are served from cache.", ratio*100),
				"Review cache rules for bypassing paths."))
		}
	}

	if w.Status5xx >= th.Error5xxCritical {
		issues = append(issues, issue(models.CategoryPerformance, models.SeverityCritical,
			"High server error volume",
			fmt.Sprintf("%d 5xx responses in the last 7 days.", w.Status5xx),
			"Check origin error logs immediately."))
	} else if w.Status5xx >= th.Error5xxWarning {
		issues = append(issues, issue(models.CategoryPerformance, models.SeverityWarning,
			"Server errors observed",
			fmt.Sprintf("%d 5xx responses in the last 7 days.", w.Status5xx),
			"Review origin error logs."))
	}

	if w.Status4xx >= th.Error4xxWarning {
		issues = append(issues, issue(models.CategoryPerformance, models.SeverityWarning,
			"High client error volume",
			fmt.Sprintf("%d 4xx responses in the last 7 days.", w.Status4xx),
			"Crawl the site for broken links and check for scanning traffic."))
	}

	if w.ThreatRate() >= th.ThreatRateWarning {
		issues = append(issues, issue(models.CategoryPerformance, models.SeverityWarning,
			"Elevated threat traffic",
			fmt.Sprintf("%.1f%% of requests were classified as threats.", w.ThreatRate()*100),
			"Review firewall events and tighten security rules."))
	}

	if w.Requests > 0 && w.SSLRate() < th.SSLRateWarning {
		issues = append(issues, issue(models.CategoryPerformance, models.SeverityWarning,
			"Unencrypted traffic observed",
			fmt.Sprintf("Only %.0f%% of requests used TLS.", w.SSLRate()*100),
			"Enforce HTTPS with an Always Use HTTPS rule."))
	}

	if w.BotRequests > 0 && w.BotRate() >= th.BotRateWarning {
		issues = append(issues, issue(models.CategoryPerformance, models.SeverityWarning,
			"Heavy bot traffic",
			fmt.Sprintf("%.0f%% of requests look automated.", w.BotRate()*100),
			"Consider bot management rules."))
	}

	if w.TopCountryShare() >= th.CountryShareWarning && w.TopCountry != "" {
		issues = append(issues, issue(models.CategoryPerformance, models.SeverityInfo,
			"Traffic concentrated in one country",
			fmt.Sprintf("%.0f%% of requests come from %s.", w.TopCountryShare()*100, w.TopCountry),
			"If the audience is single-region, geo-blocking the rest reduces attack surface."))
	}

	return issues
}

// probe measures a HEAD request round trip against the site URL
func (c *PerformanceCheck) probe(ctx context.Context, target *Target) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.Site.URL, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := target.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return 0, errors.New(resp.Status)
	}

	return time.Since(start).Milliseconds(), nil
}
