package checks

import (
	"context"
	"errors"
	"testing"

	"wpauditd/internal/models"
	"wpauditd/internal/remote"
)

func securityRunner(overrides map[string]string, errs map[string]error) *fakeRunner {
	responses := map[string]string{
		"core version":     "6.5.2",
		"check-update":     "[]",
		"verify-checksums": "Success: WordPress installation verifies against checksums.",
		"user list":        `[{"user_login":"site_owner"}]`,
		"--status=active":  `[{"name":"wordfence"},{"name":"wp-rocket"}]`,
		"config get":       "false",
	}
	for k, v := range overrides {
		responses[k] = v
	}
	return &fakeRunner{responses: responses, errs: errs}
}

func TestSecurityCheckHealthy(t *testing.T) {
	runner := securityRunner(nil, nil)
	target := testTarget(&models.Site{Environment: models.EnvProduction}, runner)

	result, err := (&SecurityCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Issues) != 0 {
		t.Errorf("expected no issues, got %v", issueTitles(result.Issues))
	}

	data := result.Data.(*SecurityData)
	if data.CoreVersion != "6.5.2" {
		t.Errorf("CoreVersion = %q", data.CoreVersion)
	}
	if !data.ChecksumsVerified {
		t.Error("ChecksumsVerified should be true")
	}
	if data.SecurityPlugin != "wordfence" {
		t.Errorf("SecurityPlugin = %q", data.SecurityPlugin)
	}
}

func TestSecurityCheckCoreUpdatePending(t *testing.T) {
	runner := securityRunner(map[string]string{
		"check-update": `[{"version":"6.6","update_type":"major"}]`,
	}, nil)
	target := testTarget(&models.Site{}, runner)

	result, err := (&SecurityCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertIssue(t, result.Issues, "core update pending", models.SeverityCritical)
}

func TestSecurityCheckChecksumFailure(t *testing.T) {
	runner := securityRunner(nil, map[string]error{
		"verify-checksums": &remote.ExitError{Code: 1, Stderr: "Warning: File doesn't verify against checksum: wp-includes/version.php\n" +
			"Warning: File doesn't verify against checksum: wp-login.php\n" +
			"Error: WordPress installation doesn't verify against checksums.\n"},
	})
	target := testTarget(&models.Site{}, runner)

	result, err := (&SecurityCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	found := assertIssue(t, result.Issues, "Core file integrity failure", models.SeverityCritical)
	if found.Description != "Files failing verification: wp-includes/version.php, wp-login.php." {
		t.Errorf("description = %q", found.Description)
	}

	data := result.Data.(*SecurityData)
	if len(data.ModifiedFiles) != 2 {
		t.Errorf("ModifiedFiles = %v", data.ModifiedFiles)
	}
}

func TestSecurityCheckChecksumTransportFailureDegrades(t *testing.T) {
	runner := securityRunner(nil, map[string]error{
		"verify-checksums": errors.New("connection dropped"),
	})
	target := testTarget(&models.Site{}, runner)

	result, err := (&SecurityCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertIssue(t, result.Issues, "Checksum verification unavailable", models.SeverityInfo)
	assertNoIssue(t, result.Issues, "Core file integrity failure")
}

func TestSecurityCheckWeakAdminUsernames(t *testing.T) {
	runner := securityRunner(map[string]string{
		"user list": `[{"user_login":"Admin"},{"user_login":"site_owner"}]`,
	}, nil)
	target := testTarget(&models.Site{}, runner)

	result, err := (&SecurityCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Matching is case-insensitive
	assertIssue(t, result.Issues, "Guessable administrator username", models.SeverityWarning)
	data := result.Data.(*SecurityData)
	if len(data.WeakAdminUsers) != 1 || data.WeakAdminUsers[0] != "Admin" {
		t.Errorf("WeakAdminUsers = %v", data.WeakAdminUsers)
	}
}

func TestSecurityCheckTooManyAdmins(t *testing.T) {
	runner := securityRunner(map[string]string{
		"user list": `[{"user_login":"u1"},{"user_login":"u2"},{"user_login":"u3"},{"user_login":"u4"},{"user_login":"u5"},{"user_login":"u6"}]`,
	}, nil)
	target := testTarget(&models.Site{}, runner)

	result, err := (&SecurityCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertIssue(t, result.Issues, "Many administrator accounts", models.SeverityWarning)
}

func TestSecurityCheckNoHardeningPlugin(t *testing.T) {
	runner := securityRunner(map[string]string{
		"--status=active": `[{"name":"wp-rocket"}]`,
	}, nil)
	target := testTarget(&models.Site{}, runner)

	result, err := (&SecurityCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertIssue(t, result.Issues, "No security plugin active", models.SeverityWarning)
}

func TestSecurityCheckDebugSeverityByEnvironment(t *testing.T) {
	tests := []struct {
		env  string
		want models.IssueSeverity
	}{
		{models.EnvProduction, models.SeverityCritical},
		{models.EnvStaging, models.SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			runner := securityRunner(map[string]string{"config get": "true"}, nil)
			target := testTarget(&models.Site{Environment: tt.env}, runner)

			result, err := (&SecurityCheck{}).Run(context.Background(), target)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			assertIssue(t, result.Issues, "WP_DEBUG enabled", tt.want)
		})
	}
}

func TestSecurityCheckSubProbeFailuresDegrade(t *testing.T) {
	runner := securityRunner(nil, map[string]error{
		"check-update":    errors.New("connection dropped"),
		"--status=active": errors.New("connection dropped"),
		"config get":      errors.New("connection dropped"),
	})
	target := testTarget(&models.Site{Environment: models.EnvProduction}, runner)

	result, err := (&SecurityCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	assertIssue(t, result.Issues, "Update status unavailable", models.SeverityInfo)
	assertIssue(t, result.Issues, "Plugin inventory unavailable", models.SeverityInfo)
	assertIssue(t, result.Issues, "Debug flag unavailable", models.SeverityInfo)
	assertNoIssue(t, result.Issues, "No security plugin active")
	assertNoIssue(t, result.Issues, "WP_DEBUG enabled")
}

func TestSecurityCheckUndefinedDebugConstantIsClean(t *testing.T) {
	runner := securityRunner(nil, map[string]error{
		"config get": &remote.ExitError{Code: 1, Stderr: "Error: The constant 'WP_DEBUG' is not defined in the 'wp-config.php' file.\n"},
	})
	target := testTarget(&models.Site{Environment: models.EnvProduction}, runner)

	result, err := (&SecurityCheck{}).Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertNoIssue(t, result.Issues, "Debug flag unavailable")
	assertNoIssue(t, result.Issues, "WP_DEBUG enabled")
}

func TestSecurityCheckCoreVersionFailureErrors(t *testing.T) {
	runner := securityRunner(nil, map[string]error{
		"core version": errors.New("host unreachable"),
	})
	target := testTarget(&models.Site{}, runner)

	if _, err := (&SecurityCheck{}).Run(context.Background(), target); err == nil {
		t.Error("expected error when the core version is unreadable")
	}
}

func TestParseChecksumFailures(t *testing.T) {
	stderr := "Warning: File doesn't verify against checksum: wp-admin/about.php\n" +
		"Some unrelated line\n" +
		"Warning: File doesn't verify against checksum: index.php\n"

	files := parseChecksumFailures(stderr)
	if len(files) != 2 || files[0] != "wp-admin/about.php" || files[1] != "index.php" {
		t.Errorf("parseChecksumFailures = %v", files)
	}

	if got := parseChecksumFailures(""); got != nil {
		t.Errorf("empty stderr should yield nil, got %v", got)
	}
}
