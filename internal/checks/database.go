package checks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"wpauditd/internal/models"
	"wpauditd/internal/remote"
)

// DatabaseData is the dataset produced by the database check
type DatabaseData struct {
	TotalSizeBytes    int64           `json:"total_size_bytes"`
	AutoloadBytes     int64           `json:"autoload_bytes"`
	LargestAutoload   []AutoloadEntry `json:"largest_autoload"`
	RevisionCount     int             `json:"revision_count"`
	TransientCount    int             `json:"transient_count"`
}

// AutoloadEntry is one oversized autoloaded option
type AutoloadEntry struct {
	Name  string `json:"name"`
	Bytes int64  `json:"bytes"`
}

// DatabaseCheck measures database footprint: total size, autoload
// payload, stale revisions and expired transients
type DatabaseCheck struct{}

// Name implements Check
func (c *DatabaseCheck) Name() string { return "Database" }

// Category implements Check
func (c *DatabaseCheck) Category() models.IssueCategory { return models.CategoryDatabase }

// Run implements Check. The total-size query failing means the database
// is unreachable and the module errors; the narrower probes degrade to
// info issues.
func (c *DatabaseCheck) Run(ctx context.Context, target *Target) (*models.CheckResult, error) {
	data := &DatabaseData{}
	var issues []models.Issue
	th := target.Thresholds.Database

	out, err := target.Runner.Run(ctx,
		wpCmd(target.Site, "db size --size_format=b"),
		remote.Options{Timeout: remote.DefaultTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to measure database size: %w", err)
	}
	data.TotalSizeBytes = parseSizeBytes(out)

	if data.TotalSizeBytes >= th.TotalSizeCritical {
		issues = append(issues, issue(models.CategoryDatabase, models.SeverityCritical,
			"Database critically large",
			fmt.Sprintf("Database is %s.", humanBytes(data.TotalSizeBytes)),
			"Archive old data and clean up bloated tables."))
	} else if data.TotalSizeBytes >= th.TotalSizeWarning {
		issues = append(issues, issue(models.CategoryDatabase, models.SeverityWarning,
			"Database growing large",
			fmt.Sprintf("Database is %s.", humanBytes(data.TotalSizeBytes)),
			"Review table sizes and schedule a cleanup."))
	}

	// Autoload payload: loaded on every request, so size matters directly
	entries, autoloadErr := c.autoloadEntries(ctx, target)
	if autoloadErr != nil {
		issues = append(issues, issue(models.CategoryDatabase, models.SeverityInfo,
			"Autoload size unavailable",
			fmt.Sprintf("Could not measure autoloaded options: %v", autoloadErr),
			"Check that the options table is readable."))
	} else {
		for _, e := range entries {
			data.AutoloadBytes += e.Bytes
			if e.Bytes >= th.AutoloadSingleEntry {
				data.LargestAutoload = append(data.LargestAutoload, e)
				issues = append(issues, issue(models.CategoryDatabase, models.SeverityWarning,
					fmt.Sprintf("Oversized autoloaded option: %s", e.Name),
					fmt.Sprintf("Option %s autoloads %s on every request.", e.Name, humanBytes(e.Bytes)),
					"Set the option to autoload=no or remove it."))
			}
		}

		if data.AutoloadBytes >= th.AutoloadCritical {
			issues = append(issues, issue(models.CategoryDatabase, models.SeverityCritical,
				"Autoload payload critically large",
				fmt.Sprintf("%s of options autoload on every request.", humanBytes(data.AutoloadBytes)),
				"Audit autoloaded options and disable autoload on the heavy ones."))
		} else if data.AutoloadBytes >= th.AutoloadWarning {
			issues = append(issues, issue(models.CategoryDatabase, models.SeverityWarning,
				"Autoload payload growing",
				fmt.Sprintf("%s of options autoload on every request.", humanBytes(data.AutoloadBytes)),
				"Review autoloaded options."))
		}
	}

	// Stale post revisions
	revOut, revErr := target.Runner.Run(ctx,
		wpCmd(target.Site, "post list --post_type=revision --format=count"),
		remote.Options{Timeout: remote.DefaultTimeout})
	if revErr != nil {
		issues = append(issues, issue(models.CategoryDatabase, models.SeverityInfo,
			"Revision count unavailable",
			fmt.Sprintf("Could not count post revisions: %v", revErr), ""))
	} else {
		data.RevisionCount, _ = strconv.Atoi(strings.TrimSpace(revOut))
		if data.RevisionCount >= th.RevisionsCritical {
			issues = append(issues, fixableIssue(models.CategoryDatabase, models.SeverityCritical,
				"Excessive post revisions",
				fmt.Sprintf("%d revisions stored.", data.RevisionCount),
				"Delete old revisions and cap revision retention.",
				"delete_revisions", `{"keep": 5}`))
		} else if data.RevisionCount >= th.RevisionsWarning {
			issues = append(issues, fixableIssue(models.CategoryDatabase, models.SeverityWarning,
				"Many post revisions",
				fmt.Sprintf("%d revisions stored.", data.RevisionCount),
				"Delete old revisions.",
				"delete_revisions", `{"keep": 5}`))
		}
	}

	// Expired transients
	trOut, trErr := target.Runner.Run(ctx,
		wpCmd(target.Site, `db query "SELECT COUNT(*) FROM wp_options WHERE option_name LIKE '\_transient\_timeout\_%' AND option_value < UNIX_TIMESTAMP()" --skip-column-names`),
		remote.Options{Timeout: remote.DefaultTimeout})
	if trErr != nil {
		issues = append(issues, issue(models.CategoryDatabase, models.SeverityInfo,
			"Transient count unavailable",
			fmt.Sprintf("Could not count expired transients: %v", trErr), ""))
	} else {
		data.TransientCount, _ = strconv.Atoi(strings.TrimSpace(trOut))
		if data.TransientCount >= th.TransientsCritical {
			issues = append(issues, fixableIssue(models.CategoryDatabase, models.SeverityCritical,
				"Expired transients piling up",
				fmt.Sprintf("%d expired transients remain in the options table.", data.TransientCount),
				"Delete expired transients and check object caching.",
				"delete_transients", `{"expired_only": true}`))
		} else if data.TransientCount >= th.TransientsWarning {
			issues = append(issues, fixableIssue(models.CategoryDatabase, models.SeverityWarning,
				"Expired transients accumulating",
				fmt.Sprintf("%d expired transients remain in the options table.", data.TransientCount),
				"Delete expired transients.",
				"delete_transients", `{"expired_only": true}`))
		}
	}

	return &models.CheckResult{Data: data, Issues: issues}, nil
}

// autoloadEntries fetches per-option autoload sizes, largest first
func (c *DatabaseCheck) autoloadEntries(ctx context.Context, target *Target) ([]AutoloadEntry, error) {
	query := `db query "SELECT option_name, LENGTH(option_value) FROM wp_options WHERE autoload='yes' ORDER BY LENGTH(option_value) DESC" --skip-column-names`
	out, err := target.Runner.Run(ctx, wpCmd(target.Site, query),
		remote.Options{Timeout: remote.DefaultTimeout})
	if err != nil {
		return nil, err
	}

	var entries []AutoloadEntry
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		size, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, AutoloadEntry{
			Name:  strings.Join(fields[:len(fields)-1], " "),
			Bytes: size,
		})
	}
	return entries, nil
}

// parseSizeBytes pulls the leading integer out of `wp db size` output
func parseSizeBytes(out string) int64 {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) == 0 {
		return 0
	}
	n, _ := strconv.ParseInt(strings.TrimSuffix(fields[0], "B"), 10, 64)
	return n
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/float64(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
