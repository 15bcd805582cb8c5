package checks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wpauditd/internal/models"
	"wpauditd/internal/remote"
)

// securityPlugins are the hardening plugins we accept as baseline
// protection, by canonical identity
var securityPlugins = []string{"wordfence", "sucuri-scanner", "better-wp-security"}

// SecurityData is the dataset produced by the security check
type SecurityData struct {
	CoreVersion       string   `json:"core_version"`
	CoreUpdatePending bool     `json:"core_update_pending"`
	ChecksumsVerified bool     `json:"checksums_verified"`
	ModifiedFiles     []string `json:"modified_files,omitempty"`
	AdminUsers        []string `json:"admin_users"`
	WeakAdminUsers    []string `json:"weak_admin_users,omitempty"`
	SecurityPlugin    string   `json:"security_plugin,omitempty"`
	DebugEnabled      bool     `json:"debug_enabled"`
}

// SecurityCheck audits core integrity, updates, admin accounts,
// hardening plugins and debug flags
type SecurityCheck struct{}

// Name implements Check
func (c *SecurityCheck) Name() string { return "Security" }

// Category implements Check
func (c *SecurityCheck) Category() models.IssueCategory { return models.CategorySecurity }

// Run implements Check. If the core version cannot even be read the host
// is effectively unauditable and the module errors; all narrower probes
// degrade to findings.
func (c *SecurityCheck) Run(ctx context.Context, target *Target) (*models.CheckResult, error) {
	data := &SecurityData{}
	var issues []models.Issue
	th := target.Thresholds.Security

	version, err := target.Runner.Run(ctx,
		wpCmd(target.Site, "core version"),
		remote.Options{Timeout: remote.DefaultTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to read core version: %w", err)
	}
	data.CoreVersion = strings.TrimSpace(version)

	// Pending core updates are always critical
	var updates []struct {
		Version    string `json:"version"`
		UpdateType string `json:"update_type"`
	}
	if err := remote.RunJSON(ctx, target.Runner,
		wpCmd(target.Site, "core check-update --format=json"),
		remote.DefaultTimeout, &updates); err != nil {
		issues = append(issues, issue(models.CategorySecurity, models.SeverityInfo,
			"Update status unavailable",
			fmt.Sprintf("Could not check for core updates: %v", err), ""))
	} else if len(updates) > 0 {
		data.CoreUpdatePending = true
		issues = append(issues, issue(models.CategorySecurity, models.SeverityCritical,
			"WordPress core update pending",
			fmt.Sprintf("Core %s is installed; %s is available.", data.CoreVersion, updates[0].Version),
			"Update WordPress core after a backup."))
	}

	// Core file integrity. The command exits non-zero when files fail
	// verification, with the affected files listed on stderr.
	_, sumErr := target.Runner.Run(ctx,
		wpCmd(target.Site, "core verify-checksums"),
		remote.Options{Timeout: remote.ChecksumTimeout})
	if sumErr == nil {
		data.ChecksumsVerified = true
	} else {
		var exitErr *remote.ExitError
		if errors.As(sumErr, &exitErr) {
			data.ModifiedFiles = parseChecksumFailures(exitErr.Stderr)
			desc := "Core files do not match the official checksums."
			if len(data.ModifiedFiles) > 0 {
				desc = fmt.Sprintf("Files failing verification: %s.", strings.Join(data.ModifiedFiles, ", "))
			}
			issues = append(issues, issue(models.CategorySecurity, models.SeverityCritical,
				"Core file integrity failure",
				desc,
				"Reinstall core files (wp core download --force) and investigate how they changed."))
		} else {
			issues = append(issues, issue(models.CategorySecurity, models.SeverityInfo,
				"Checksum verification unavailable",
				fmt.Sprintf("Could not verify core checksums: %v", sumErr), ""))
		}
	}

	// Administrator accounts
	var admins []struct {
		UserLogin string `json:"user_login"`
	}
	if err := remote.RunJSON(ctx, target.Runner,
		wpCmd(target.Site, "user list --role=administrator --format=json --fields=user_login"),
		remote.DefaultTimeout, &admins); err != nil {
		issues = append(issues, issue(models.CategorySecurity, models.SeverityInfo,
			"Administrator list unavailable",
			fmt.Sprintf("Could not enumerate administrators: %v", err), ""))
	} else {
		for _, a := range admins {
			data.AdminUsers = append(data.AdminUsers, a.UserLogin)
			for _, weak := range th.WeakUsernames {
				if strings.EqualFold(a.UserLogin, weak) {
					data.WeakAdminUsers = append(data.WeakAdminUsers, a.UserLogin)
				}
			}
		}

		if len(data.WeakAdminUsers) > 0 {
			issues = append(issues, issue(models.CategorySecurity, models.SeverityWarning,
				"Guessable administrator username",
				fmt.Sprintf("Administrator accounts with guessable names: %s.", strings.Join(data.WeakAdminUsers, ", ")),
				"Rename these accounts; brute-force attempts start with them."))
		}
		if len(data.AdminUsers) > th.AdminCountWarning {
			issues = append(issues, issue(models.CategorySecurity, models.SeverityWarning,
				"Many administrator accounts",
				fmt.Sprintf("%d accounts hold the administrator role.", len(data.AdminUsers)),
				"Demote accounts that do not need full administration."))
		}
	}

	// Active hardening plugin
	var active []struct {
		Name string `json:"name"`
	}
	if err := remote.RunJSON(ctx, target.Runner,
		wpCmd(target.Site, "plugin list --status=active --format=json --fields=name"),
		remote.DefaultTimeout, &active); err != nil {
		issues = append(issues, issue(models.CategorySecurity, models.SeverityInfo,
			"Plugin inventory unavailable",
			fmt.Sprintf("Could not list active plugins: %v", err), ""))
	} else {
		activeSlugs := map[string]bool{}
		for _, p := range active {
			activeSlugs[p.Name] = true
		}
		for _, canonical := range securityPlugins {
			if matchesAny(activeSlugs, canonical) {
				data.SecurityPlugin = canonical
				break
			}
		}
		if data.SecurityPlugin == "" {
			issues = append(issues, issue(models.CategorySecurity, models.SeverityWarning,
				"No security plugin active",
				"No recognized security hardening plugin is active.",
				"Install and configure Wordfence or an equivalent."))
		}
	}

	// Debug flag. A non-zero exit means the constant is not defined,
	// which is equivalent to disabled; only transport-level failures
	// degrade to a finding.
	debugOut, debugErr := target.Runner.Run(ctx,
		wpCmd(target.Site, "config get WP_DEBUG"),
		remote.Options{Timeout: remote.DefaultTimeout})
	if debugErr == nil {
		val := strings.ToLower(strings.TrimSpace(debugOut))
		if val == "1" || val == "true" {
			data.DebugEnabled = true
			severity := models.SeverityWarning
			if target.Site.Environment == models.EnvProduction {
				severity = models.SeverityCritical
			}
			issues = append(issues, issue(models.CategorySecurity, severity,
				"WP_DEBUG enabled",
				"Debug mode is enabled, which can leak paths and queries to visitors.",
				"Set WP_DEBUG to false outside development."))
		}
	} else {
		var exitErr *remote.ExitError
		if !errors.As(debugErr, &exitErr) {
			issues = append(issues, issue(models.CategorySecurity, models.SeverityInfo,
				"Debug flag unavailable",
				fmt.Sprintf("Could not read WP_DEBUG: %v", debugErr), ""))
		}
	}

	return &models.CheckResult{Data: data, Issues: issues}, nil
}

// parseChecksumFailures extracts file paths from verify-checksums stderr.
// Lines look like:
//
//	Warning: File doesn't verify against checksum: wp-includes/version.php
func parseChecksumFailures(stderr string) []string {
	var files []string
	for _, line := range strings.Split(stderr, "\n") {
		idx := strings.LastIndex(line, "checksum: ")
		if idx < 0 {
			continue
		}
		file := strings.TrimSpace(line[idx+len("checksum: "):])
		if file != "" {
			files = append(files, file)
		}
	}
	return files
}
