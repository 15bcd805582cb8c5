package checks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"wpauditd/internal/models"
)

func pluginListJSON(t *testing.T, plugins []PluginInfo) string {
	t.Helper()
	data, err := json.Marshal(plugins)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func runPluginCheck(t *testing.T, plugins []PluginInfo) *models.CheckResult {
	t.Helper()
	runner := &fakeRunner{responses: map[string]string{
		"plugin list": pluginListJSON(t, plugins),
	}}
	target := testTarget(&models.Site{URL: "https://example.com"}, runner)

	result, err := (&PluginCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return result
}

func TestPluginCheckHealthySite(t *testing.T) {
	result := runPluginCheck(t, []PluginInfo{
		{Name: "wp-rocket", Status: "active", Version: "3.15"},
		{Name: "wordfence", Status: "active", Version: "7.11"},
		{Name: "wordpress-seo", Status: "active", Version: "21.0"},
	})

	if len(result.Issues) != 0 {
		t.Errorf("expected no issues, got %v", issueTitles(result.Issues))
	}

	data := result.Data.(*PluginData)
	if data.Total != 3 || data.Active != 3 {
		t.Errorf("counts = %d/%d, want 3/3", data.Total, data.Active)
	}
}

func TestPluginCheckBaselineMissing(t *testing.T) {
	result := runPluginCheck(t, []PluginInfo{
		{Name: "wordfence", Status: "active"},
	})

	assertIssue(t, result.Issues, "No caching plugin", models.SeverityCritical)
}

func TestPluginCheckBaselineInstalledNotActive(t *testing.T) {
	result := runPluginCheck(t, []PluginInfo{
		{Name: "wp-rocket", Status: "inactive"},
		{Name: "wordfence", Status: "active"},
	})

	assertIssue(t, result.Issues, "installed but not active", models.SeverityCritical)
	assertNoIssue(t, result.Issues, "No caching plugin")
}

func TestPluginCheckBaselineAliasCounts(t *testing.T) {
	result := runPluginCheck(t, []PluginInfo{
		{Name: "wp-rocket-premium", Status: "active"},
	})

	assertNoIssue(t, result.Issues, "caching")
}

func TestPluginCheckDeprecatedAlternative(t *testing.T) {
	result := runPluginCheck(t, []PluginInfo{
		{Name: "w3-total-cache", Status: "active"},
	})

	// An active alternative downgrades the missing baseline to a warning
	issue := assertIssue(t, result.Issues, "Deprecated caching plugin", models.SeverityWarning)
	if issue.Recommendation != "Replace w3-total-cache with wp-rocket." {
		t.Errorf("recommendation = %q", issue.Recommendation)
	}
	assertNoIssue(t, result.Issues, "No caching plugin")
}

func TestPluginCheckCountThresholds(t *testing.T) {
	many := []PluginInfo{{Name: "wp-rocket", Status: "active"}}
	for i := 0; i < 40; i++ {
		status := "active"
		if i < 10 {
			status = "inactive"
		}
		many = append(many, PluginInfo{Name: fmt.Sprintf("plugin-%d", i), Status: status})
	}

	result := runPluginCheck(t, many)

	assertIssue(t, result.Issues, "Excessive plugin count", models.SeverityCritical)
	assertIssue(t, result.Issues, "Many inactive plugins", models.SeverityWarning)
}

func TestPluginCheckPendingUpdates(t *testing.T) {
	plugins := []PluginInfo{{Name: "wp-rocket", Status: "active"}}
	for i := 0; i < 6; i++ {
		plugins = append(plugins, PluginInfo{
			Name:   fmt.Sprintf("plugin-%d", i),
			Status: "active",
			Update: "available",
		})
	}

	result := runPluginCheck(t, plugins)
	assertIssue(t, result.Issues, "Plugin updates pending", models.SeverityWarning)
}

func TestPluginCheckProblematicPlugin(t *testing.T) {
	result := runPluginCheck(t, []PluginInfo{
		{Name: "wp-rocket", Status: "active"},
		{Name: "broken-link-checker", Status: "active"},
	})

	assertIssue(t, result.Issues, "Problematic plugin active: broken-link-checker", models.SeverityWarning)
}

func TestPluginCheckListFailureErrors(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{
		"plugin list": errors.New("ssh transport error: connection refused"),
	}}
	target := testTarget(&models.Site{URL: "https://example.com"}, runner)

	if _, err := (&PluginCheck{}).Run(context.Background(), target); err == nil {
		t.Error("expected error when the plugin inventory is unavailable")
	}
}
