package checks

import (
	"context"
	"errors"
	"testing"

	"wpauditd/internal/models"
)

func TestDatabaseCheckHealthy(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"db size":        "52428800 B",
		"autoload='yes'": "siteurl\t40\nactive_plugins\t2048",
		"post list":      "120",
		"transient":      "15",
	}}
	target := testTarget(&models.Site{}, runner)

	result, err := (&DatabaseCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Issues) != 0 {
		t.Errorf("expected no issues, got %v", issueTitles(result.Issues))
	}

	data := result.Data.(*DatabaseData)
	if data.TotalSizeBytes != 52428800 {
		t.Errorf("TotalSizeBytes = %d", data.TotalSizeBytes)
	}
	if data.AutoloadBytes != 2088 {
		t.Errorf("AutoloadBytes = %d, want 2088", data.AutoloadBytes)
	}
	if data.RevisionCount != 120 || data.TransientCount != 15 {
		t.Errorf("revisions/transients = %d/%d", data.RevisionCount, data.TransientCount)
	}
}

func TestDatabaseCheckSizeThresholds(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"db size":        "3221225472 B", // 3 GB
		"autoload='yes'": "",
		"post list":      "0",
		"transient":      "0",
	}}
	target := testTarget(&models.Site{}, runner)

	result, err := (&DatabaseCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertIssue(t, result.Issues, "Database critically large", models.SeverityCritical)
}

func TestDatabaseCheckAutoloadFindings(t *testing.T) {
	// One 600 KB option plus filler pushing the total past the warning line
	runner := &fakeRunner{responses: map[string]string{
		"db size":        "104857600 B",
		"autoload='yes'": "huge_widget_cache\t614400\nfiller_option\t409600",
		"post list":      "0",
		"transient":      "0",
	}}
	target := testTarget(&models.Site{}, runner)

	result, err := (&DatabaseCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	assertIssue(t, result.Issues, "Oversized autoloaded option: huge_widget_cache", models.SeverityWarning)
	assertIssue(t, result.Issues, "Autoload payload growing", models.SeverityWarning)

	data := result.Data.(*DatabaseData)
	if len(data.LargestAutoload) != 1 || data.LargestAutoload[0].Bytes != 614400 {
		t.Errorf("LargestAutoload = %+v", data.LargestAutoload)
	}
}

func TestDatabaseCheckRevisionsAreFixable(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"db size":        "104857600 B",
		"autoload='yes'": "",
		"post list":      "6200",
		"transient":      "450",
	}}
	target := testTarget(&models.Site{}, runner)

	result, err := (&DatabaseCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rev := assertIssue(t, result.Issues, "Excessive post revisions", models.SeverityCritical)
	if !rev.AutoFixable || rev.FixAction != "delete_revisions" {
		t.Errorf("revision issue fix = %v/%q", rev.AutoFixable, rev.FixAction)
	}

	tr := assertIssue(t, result.Issues, "Expired transients accumulating", models.SeverityWarning)
	if !tr.AutoFixable || tr.FixAction != "delete_transients" {
		t.Errorf("transient issue fix = %v/%q", tr.AutoFixable, tr.FixAction)
	}
}

func TestDatabaseCheckSubProbeFailuresDegrade(t *testing.T) {
	runner := &fakeRunner{
		responses: map[string]string{
			"db size": "104857600 B",
		},
		errs: map[string]error{
			"autoload='yes'": errors.New("table read failed"),
			"post list":      errors.New("post query failed"),
			"transient":      errors.New("transient query failed"),
		},
	}
	target := testTarget(&models.Site{}, runner)

	result, err := (&DatabaseCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("sub-probe failures must not fail the module: %v", err)
	}

	assertIssue(t, result.Issues, "Autoload size unavailable", models.SeverityInfo)
	assertIssue(t, result.Issues, "Revision count unavailable", models.SeverityInfo)
	assertIssue(t, result.Issues, "Transient count unavailable", models.SeverityInfo)
}

func TestDatabaseCheckSizeFailureErrors(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{
		"db size": errors.New("database is gone"),
	}}
	target := testTarget(&models.Site{}, runner)

	if _, err := (&DatabaseCheck{}).Run(context.Background(), target); err == nil {
		t.Error("expected error when the total size query fails")
	}
}

func TestParseSizeBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"52428800 B", 52428800},
		{"52428800B", 52428800},
		{"  1024 B\n", 1024},
		{"", 0},
		{"garbage", 0},
	}

	for _, tt := range tests {
		if got := parseSizeBytes(tt.in); got != tt.want {
			t.Errorf("parseSizeBytes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
		{2 * 1024 * 1024 * 1024, "2.0 GB"},
	}

	for _, tt := range tests {
		if got := humanBytes(tt.in); got != tt.want {
			t.Errorf("humanBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
