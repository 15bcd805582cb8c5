package checks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"wpauditd/internal/models"
)

// seoSite serves robots.txt and sitemaps from an in-memory path map
func seoSite(t *testing.T, paths map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := paths[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func seoRunner(activePlugins string) *fakeRunner {
	return &fakeRunner{responses: map[string]string{
		"--status=active": activePlugins,
	}}
}

func TestSEOCheckHealthy(t *testing.T) {
	server := seoSite(t, map[string]string{
		"/robots.txt":  "User-agent: *\nSitemap: /sitemap.xml\n",
		"/sitemap.xml": "<urlset><url><loc>https://example.com/</loc></url><url><loc>https://example.com/about</loc></url></urlset>",
	})

	target := testTarget(&models.Site{URL: server.URL}, seoRunner(`[{"name":"wordpress-seo"}]`))

	result, err := (&SEOCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Issues) != 0 {
		t.Errorf("expected no issues, got %v", issueTitles(result.Issues))
	}

	data := result.Data.(*SEOData)
	if !data.HasRobotsTxt {
		t.Error("robots.txt should be detected")
	}
	if data.SitemapURL != server.URL+"/sitemap.xml" {
		t.Errorf("SitemapURL = %q", data.SitemapURL)
	}
	if data.SitemapURLs != 2 {
		t.Errorf("SitemapURLs = %d, want 2", data.SitemapURLs)
	}
	if data.SEOPlugin != "wordpress-seo" {
		t.Errorf("SEOPlugin = %q", data.SEOPlugin)
	}
}

func TestSEOCheckMissingRobotsAndSitemap(t *testing.T) {
	server := seoSite(t, nil)
	target := testTarget(&models.Site{URL: server.URL}, seoRunner(`[{"name":"rank-math"}]`))

	result, err := (&SEOCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	assertIssue(t, result.Issues, "robots.txt missing", models.SeverityWarning)
	assertIssue(t, result.Issues, "No sitemap found", models.SeverityWarning)

	// rank-math is an alias of seo-by-rank-math, so no plugin issue
	assertNoIssue(t, result.Issues, "No SEO plugin")
}

func TestSEOCheckEmptyRobotsDoesNotCount(t *testing.T) {
	server := seoSite(t, map[string]string{
		"/robots.txt":  "   \n",
		"/sitemap.xml": "<urlset><url><loc>https://example.com/</loc></url></urlset>",
	})
	target := testTarget(&models.Site{URL: server.URL}, seoRunner(`[{"name":"wordpress-seo"}]`))

	result, err := (&SEOCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertIssue(t, result.Issues, "robots.txt missing", models.SeverityWarning)
}

func TestSEOCheckSitemapFallbackPaths(t *testing.T) {
	server := seoSite(t, map[string]string{
		"/robots.txt":     "User-agent: *\n",
		"/wp-sitemap.xml": "<sitemapindex><sitemap><loc>https://example.com/wp-sitemap-posts-1.xml</loc></sitemap></sitemapindex>",
	})
	target := testTarget(&models.Site{URL: server.URL}, seoRunner(`[{"name":"wordpress-seo"}]`))

	result, err := (&SEOCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertNoIssue(t, result.Issues, "No sitemap found")

	data := result.Data.(*SEOData)
	if data.SitemapURL != server.URL+"/wp-sitemap.xml" {
		t.Errorf("SitemapURL = %q", data.SitemapURL)
	}
}

func TestSEOCheckEmptySitemapIsInfo(t *testing.T) {
	server := seoSite(t, map[string]string{
		"/robots.txt":  "User-agent: *\n",
		"/sitemap.xml": "<urlset></urlset>",
	})
	target := testTarget(&models.Site{URL: server.URL}, seoRunner(`[{"name":"wordpress-seo"}]`))

	result, err := (&SEOCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertIssue(t, result.Issues, "Sitemap is empty", models.SeverityInfo)
}

func TestSEOCheckNoPluginActive(t *testing.T) {
	server := seoSite(t, map[string]string{
		"/robots.txt":  "User-agent: *\n",
		"/sitemap.xml": "<urlset><url><loc>x</loc></url></urlset>",
	})
	target := testTarget(&models.Site{URL: server.URL}, seoRunner(`[{"name":"wp-rocket"}]`))

	result, err := (&SEOCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertIssue(t, result.Issues, "No SEO plugin active", models.SeverityWarning)
}

func TestSEOCheckPluginListFailureDegrades(t *testing.T) {
	server := seoSite(t, map[string]string{
		"/robots.txt":  "User-agent: *\n",
		"/sitemap.xml": "<urlset><url><loc>x</loc></url></urlset>",
	})
	runner := &fakeRunner{errs: map[string]error{
		"--status=active": errors.New("host unreachable"),
	}}
	target := testTarget(&models.Site{URL: server.URL}, runner)

	result, err := (&SEOCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("plugin detection failure must not fail the module: %v", err)
	}
	assertIssue(t, result.Issues, "SEO plugin detection unavailable", models.SeverityInfo)
}
