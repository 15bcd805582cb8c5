package checks

import (
	"context"
	"fmt"
	"strings"

	"wpauditd/internal/models"
	"wpauditd/internal/remote"
)

// pluginAliases maps a canonical plugin identity onto its historical
// slugs. A plugin is "present" when its slug matches the canonical id or
// any alias. The table is data so new renames are an entry, not code.
var pluginAliases = map[string][]string{
	"wp-rocket":         {"wprocket", "wp_rocket", "wp-rocket-premium"},
	"wordfence":         {"wordfence-security", "wordfence-login-security"},
	"wordpress-seo":     {"yoast-seo", "wordpress-seo-premium"},
	"w3-total-cache":    {"w3tc", "w3-total-cache-fixed"},
	"wp-super-cache":    {"wpsupercache"},
	"all-in-one-seo-pack": {"aioseo", "all-in-one-seo-pack-pro"},
	"seo-by-rank-math":  {"rank-math", "seo-by-rank-math-pro"},
	"sucuri-scanner":    {"sucuri-security"},
	"better-wp-security": {"ithemes-security", "ithemes-security-pro", "solid-security"},
}

// requiredBaseline is the caching plugin every managed site is expected
// to run; its absence is critical unless a deprecated alternative covers
// the same ground.
const requiredBaseline = "wp-rocket"

// deprecatedAlternatives are caching plugins that still work but should
// be replaced with the baseline.
var deprecatedAlternatives = []string{"w3-total-cache", "wp-super-cache"}

// problematicPlugins are components with a known history of performance
// or security trouble on managed sites.
var problematicPlugins = map[string]string{
	"broken-link-checker": "Continuously rescans all content and bloats the database. Use the crawl report for broken links instead.",
	"wp-file-manager":     "Repeated remote code execution history. Manage files over SFTP instead.",
	"wp-slimstat":         "Heavy tracking tables slow the database. Use edge analytics instead.",
}

// PluginInfo is one row of the remote plugin inventory
type PluginInfo struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Update  string `json:"update"`
	Version string `json:"version"`
}

// PluginData is the dataset produced by the plugin check
type PluginData struct {
	Total           int          `json:"total"`
	Active          int          `json:"active"`
	Inactive        int          `json:"inactive"`
	UpdatesAvailable int         `json:"updates_available"`
	Plugins         []PluginInfo `json:"plugins"`
}

// PluginCheck inventories installed plugins and flags count, baseline
// and known-problematic conditions
type PluginCheck struct{}

// Name implements Check
func (c *PluginCheck) Name() string { return "Plugins" }

// Category implements Check
func (c *PluginCheck) Category() models.IssueCategory { return models.CategoryPlugins }

// Run implements Check. Failing to list plugins at all makes the whole
// module meaningless, so that is the one condition that errors.
func (c *PluginCheck) Run(ctx context.Context, target *Target) (*models.CheckResult, error) {
	var plugins []PluginInfo
	cmd := wpCmd(target.Site, "plugin list --format=json --fields=name,status,update,version")
	if err := remote.RunJSON(ctx, target.Runner, cmd, remote.DefaultTimeout, &plugins); err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}

	data := &PluginData{Plugins: plugins, Total: len(plugins)}
	activeSlugs := map[string]bool{}
	installedSlugs := map[string]bool{}

	for _, p := range plugins {
		installedSlugs[p.Name] = true
		switch p.Status {
		case "active", "active-network":
			data.Active++
			activeSlugs[p.Name] = true
		case "inactive":
			data.Inactive++
		}
		if p.Update == "available" {
			data.UpdatesAvailable++
		}
	}

	var issues []models.Issue
	th := target.Thresholds.Plugins

	// Inventory size
	if data.Total >= th.TotalCritical {
		issues = append(issues, issue(models.CategoryPlugins, models.SeverityCritical,
			"Excessive plugin count",
			fmt.Sprintf("%d plugins installed; every plugin adds load and attack surface.", data.Total),
			"Remove plugins the site does not actively need."))
	} else if data.Total >= th.TotalWarning {
		issues = append(issues, issue(models.CategoryPlugins, models.SeverityWarning,
			"High plugin count",
			fmt.Sprintf("%d plugins installed.", data.Total),
			"Review the plugin list and remove what is unused."))
	}

	if data.Inactive >= th.InactiveWarning {
		issues = append(issues, issue(models.CategoryPlugins, models.SeverityWarning,
			"Many inactive plugins",
			fmt.Sprintf("%d plugins are installed but inactive. Inactive code still receives no security updates in practice.", data.Inactive),
			"Delete inactive plugins."))
	}

	if data.UpdatesAvailable >= th.UpdatesCritical {
		issues = append(issues, issue(models.CategoryPlugins, models.SeverityCritical,
			"Plugins badly out of date",
			fmt.Sprintf("%d plugins have pending updates.", data.UpdatesAvailable),
			"Update all plugins, starting with security-sensitive ones."))
	} else if data.UpdatesAvailable >= th.UpdatesWarning {
		issues = append(issues, issue(models.CategoryPlugins, models.SeverityWarning,
			"Plugin updates pending",
			fmt.Sprintf("%d plugins have pending updates.", data.UpdatesAvailable),
			"Schedule a plugin update pass."))
	}

	// Required baseline, with deprecated-alternative handling
	baselineActive := matchesAny(activeSlugs, requiredBaseline)
	var activeAlternative string
	for _, alt := range deprecatedAlternatives {
		if matchesAny(activeSlugs, alt) {
			activeAlternative = alt
			break
		}
	}

	if !baselineActive {
		if activeAlternative != "" {
			issues = append(issues, issue(models.CategoryPlugins, models.SeverityWarning,
				"Deprecated caching plugin in use",
				fmt.Sprintf("%s is active instead of the standard caching setup.", activeAlternative),
				fmt.Sprintf("Replace %s with %s.", activeAlternative, requiredBaseline)))
		} else if matchesAny(installedSlugs, requiredBaseline) {
			issues = append(issues, issue(models.CategoryPlugins, models.SeverityCritical,
				"Caching plugin installed but not active",
				fmt.Sprintf("%s is installed but deactivated; the site runs uncached.", requiredBaseline),
				fmt.Sprintf("Activate %s.", requiredBaseline)))
		} else {
			issues = append(issues, issue(models.CategoryPlugins, models.SeverityCritical,
				"No caching plugin",
				"No page caching plugin is installed; every request hits PHP and the database.",
				fmt.Sprintf("Install and configure %s.", requiredBaseline)))
		}
	}

	// Known-problematic components
	for canonical, reason := range problematicPlugins {
		if matchesAny(activeSlugs, canonical) {
			issues = append(issues, issue(models.CategoryPlugins, models.SeverityWarning,
				fmt.Sprintf("Problematic plugin active: %s", canonical),
				reason,
				fmt.Sprintf("Deactivate and remove %s.", canonical)))
		}
	}

	return &models.CheckResult{Data: data, Issues: issues}, nil
}

// matchesAny reports whether the canonical plugin or any of its known
// historical slugs appears in the slug set
func matchesAny(slugs map[string]bool, canonical string) bool {
	if slugs[canonical] {
		return true
	}
	for _, alias := range pluginAliases[canonical] {
		if slugs[alias] {
			return true
		}
	}
	return false
}

// wpCmd builds a WP-CLI invocation rooted at the site's WordPress path
func wpCmd(site *models.Site, args string) string {
	path := site.WPPath
	if path == "" {
		path = "."
	}
	return fmt.Sprintf("wp %s --path=%s", args, shellQuote(path))
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
