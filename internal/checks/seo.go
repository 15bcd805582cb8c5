package checks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"wpauditd/internal/models"
	"wpauditd/internal/remote"
)

// seoPlugins is the designated SEO plugin followed by accepted alternates
var seoPlugins = []string{"wordpress-seo", "seo-by-rank-math", "all-in-one-seo-pack"}

// sitemapPaths are the conventional sitemap locations, probed in order;
// the first hit wins
var sitemapPaths = []string{"/sitemap.xml", "/sitemap_index.xml", "/wp-sitemap.xml"}

// SEOData is the dataset produced by the SEO check
type SEOData struct {
	HasRobotsTxt bool   `json:"has_robots_txt"`
	SitemapURL   string `json:"sitemap_url,omitempty"`
	SitemapURLs  int    `json:"sitemap_urls"`
	SEOPlugin    string `json:"seo_plugin,omitempty"`
}

// SEOCheck verifies crawlability basics: robots.txt, a discoverable
// sitemap, and an SEO plugin
type SEOCheck struct{}

// Name implements Check
func (c *SEOCheck) Name() string { return "SEO" }

// Category implements Check
func (c *SEOCheck) Category() models.IssueCategory { return models.CategorySEO }

// Run implements Check
func (c *SEOCheck) Run(ctx context.Context, target *Target) (*models.CheckResult, error) {
	data := &SEOData{}
	var issues []models.Issue
	base := strings.TrimRight(target.Site.URL, "/")

	// robots.txt
	body, status, err := c.fetch(ctx, target, base+"/robots.txt")
	if err == nil && status == http.StatusOK && strings.TrimSpace(body) != "" {
		data.HasRobotsTxt = true
	} else {
		issues = append(issues, issue(models.CategorySEO, models.SeverityWarning,
			"robots.txt missing",
			"The site serves no robots.txt, leaving crawler behavior undefined.",
			"Publish a robots.txt that references the sitemap."))
	}

	// Sitemap: first conventional path that answers wins. URL count is
	// approximated by counting location tags in the returned document.
	for _, path := range sitemapPaths {
		body, status, err := c.fetch(ctx, target, base+path)
		if err != nil || status != http.StatusOK {
			continue
		}
		data.SitemapURL = base + path
		data.SitemapURLs = strings.Count(body, "<loc>")
		break
	}

	if data.SitemapURL == "" {
		issues = append(issues, issue(models.CategorySEO, models.SeverityWarning,
			"No sitemap found",
			fmt.Sprintf("None of the conventional sitemap paths responded (%s).", strings.Join(sitemapPaths, ", ")),
			"Enable XML sitemaps in the SEO plugin."))
	} else if data.SitemapURLs == 0 {
		issues = append(issues, issue(models.CategorySEO, models.SeverityInfo,
			"Sitemap is empty",
			fmt.Sprintf("%s contains no URL entries.", data.SitemapURL),
			"Check the sitemap configuration."))
	}

	// SEO plugin, designated first with fallback alternates
	var active []struct {
		Name string `json:"name"`
	}
	if err := remote.RunJSON(ctx, target.Runner,
		wpCmd(target.Site, "plugin list --status=active --format=json --fields=name"),
		remote.DefaultTimeout, &active); err != nil {
		issues = append(issues, issue(models.CategorySEO, models.SeverityInfo,
			"SEO plugin detection unavailable",
			fmt.Sprintf("Could not list active plugins: %v", err), ""))
	} else {
		activeSlugs := map[string]bool{}
		for _, p := range active {
			activeSlugs[p.Name] = true
		}
		for _, canonical := range seoPlugins {
			if matchesAny(activeSlugs, canonical) {
				data.SEOPlugin = canonical
				break
			}
		}
		if data.SEOPlugin == "" {
			issues = append(issues, issue(models.CategorySEO, models.SeverityWarning,
				"No SEO plugin active",
				"No recognized SEO plugin is active; meta tags and sitemaps are unmanaged.",
				"Install and configure Yoast SEO or an equivalent."))
		}
	}

	return &models.CheckResult{Data: data, Issues: issues}, nil
}

func (c *SEOCheck) fetch(ctx context.Context, target *Target, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}

	resp, err := target.HTTPClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", resp.StatusCode, err
	}

	return string(body), resp.StatusCode, nil
}
