package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"wpauditd/internal/checks"
	"wpauditd/internal/config"
	"wpauditd/internal/db"
	"wpauditd/internal/db/repository"
	"wpauditd/internal/models"
)

// stubCheck is a scriptable check module
type stubCheck struct {
	name     string
	category models.IssueCategory
	issues   []models.Issue
	err      error

	// failFor makes the check error only for one hostname
	failFor string

	// when set, Run blocks until released or the context is cancelled
	started chan struct{}
	release chan struct{}

	// ignoreCancel keeps Run blocked on release even after cancellation,
	// like a remote command that only observes the context when it returns
	ignoreCancel bool
}

func (s *stubCheck) Name() string                   { return s.name }
func (s *stubCheck) Category() models.IssueCategory { return s.category }

func (s *stubCheck) Run(ctx context.Context, target *checks.Target) (*models.CheckResult, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		if s.ignoreCancel {
			<-s.release
		} else {
			select {
			case <-s.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.failFor != "" && target.Site.Hostname == s.failFor {
		return nil, fmt.Errorf("simulated failure for %s", s.failFor)
	}
	return &models.CheckResult{Data: map[string]int{"ok": 1}, Issues: s.issues}, nil
}

type testEnv struct {
	orch   *Orchestrator
	sites  *repository.SiteRepository
	audits *repository.AuditRepository
	issues *repository.IssueRepository
}

func newTestEnv(t *testing.T, checkList ...checks.Check) *testEnv {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	cfg := &config.Config{}
	siteRepo := repository.NewSiteRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)
	issueRepo := repository.NewIssueRepository(database.DB)

	orch := New(cfg, siteRepo, auditRepo, issueRepo)
	orch.checks = checkList
	orch.newTarget = func(site *models.Site) (*checks.Target, error) {
		return &checks.Target{Site: site, Thresholds: checks.DefaultThresholds()}, nil
	}

	return &testEnv{orch: orch, sites: siteRepo, audits: auditRepo, issues: issueRepo}
}

func (e *testEnv) createSite(t *testing.T, hostname string) *models.Site {
	t.Helper()
	site := &models.Site{Name: hostname, URL: "https://" + hostname, Hostname: hostname}
	if err := e.sites.Create(site); err != nil {
		t.Fatalf("failed to create site: %v", err)
	}
	return site
}

func (e *testEnv) waitTerminal(t *testing.T, auditID int64) *models.Audit {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		auditRow, err := e.audits.Get(auditID)
		if err != nil {
			t.Fatalf("failed to load audit: %v", err)
		}
		if auditRow.Status.Terminal() {
			return auditRow
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("audit never reached a terminal state")
	return nil
}

func TestRunSiteSuccess(t *testing.T) {
	env := newTestEnv(t,
		&stubCheck{name: "Plugins", category: models.CategoryPlugins, issues: []models.Issue{
			{Category: models.CategoryPlugins, Severity: models.SeverityCritical, Title: "No caching plugin", Description: "d"},
		}},
		&stubCheck{name: "Database", category: models.CategoryDatabase, issues: []models.Issue{
			{Category: models.CategoryDatabase, Severity: models.SeverityWarning, Title: "Many post revisions", Description: "d"},
		}},
	)
	site := env.createSite(t, "wp1.example.com")

	if err := env.orch.RunSite(context.Background(), site.ID); err != nil {
		t.Fatalf("RunSite failed: %v", err)
	}

	auditRow, err := env.audits.LatestBySite(site.ID)
	if err != nil || auditRow == nil {
		t.Fatalf("no audit recorded: %v", err)
	}
	if auditRow.Status != models.AuditCompleted {
		t.Fatalf("status = %s, want completed", auditRow.Status)
	}
	if auditRow.HealthScore == nil || *auditRow.HealthScore != 80 {
		t.Errorf("HealthScore = %v, want 80", auditRow.HealthScore)
	}
	if auditRow.Summary != "Health: 80/100. Found 1 critical, 1 warning issues." {
		t.Errorf("Summary = %q", auditRow.Summary)
	}
	if auditRow.Results == "" {
		t.Error("Results should carry the per-category datasets")
	}

	open, err := env.issues.ListOpenBySite(site.ID)
	if err != nil {
		t.Fatalf("ListOpenBySite failed: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("open issues = %d, want 2", len(open))
	}
}

func TestRunSiteReplacesOpenIssues(t *testing.T) {
	check := &stubCheck{name: "Plugins", category: models.CategoryPlugins, issues: []models.Issue{
		{Category: models.CategoryPlugins, Severity: models.SeverityWarning, Title: "first run", Description: "d"},
	}}
	env := newTestEnv(t, check)
	site := env.createSite(t, "wp1.example.com")

	if err := env.orch.RunSite(context.Background(), site.ID); err != nil {
		t.Fatalf("RunSite failed: %v", err)
	}

	check.issues = []models.Issue{
		{Category: models.CategoryPlugins, Severity: models.SeverityWarning, Title: "second run", Description: "d"},
	}
	if err := env.orch.RunSite(context.Background(), site.ID); err != nil {
		t.Fatalf("RunSite failed: %v", err)
	}

	open, _ := env.issues.ListOpenBySite(site.ID)
	if len(open) != 1 || open[0].Title != "second run" {
		t.Errorf("open = %+v", open)
	}
}

func TestRunSiteModuleFailure(t *testing.T) {
	env := newTestEnv(t,
		&stubCheck{name: "Plugins", category: models.CategoryPlugins, issues: []models.Issue{
			{Category: models.CategoryPlugins, Severity: models.SeverityWarning, Title: "stays open", Description: "d"},
		}},
	)
	site := env.createSite(t, "wp1.example.com")

	// Seed an open issue set from a successful run
	if err := env.orch.RunSite(context.Background(), site.ID); err != nil {
		t.Fatalf("RunSite failed: %v", err)
	}

	env.orch.checks = []checks.Check{
		&stubCheck{name: "Database", category: models.CategoryDatabase, err: errors.New("ssh transport error: connection refused")},
	}
	err := env.orch.RunSite(context.Background(), site.ID)
	if err == nil {
		t.Fatal("expected the module failure to surface")
	}

	auditRow, _ := env.audits.LatestBySite(site.ID)
	if auditRow.Status != models.AuditFailed {
		t.Errorf("status = %s, want failed", auditRow.Status)
	}
	if auditRow.ErrorMsg == "" {
		t.Error("failed audit should carry an error message")
	}

	// The previous open set survives a failed run untouched
	open, _ := env.issues.ListOpenBySite(site.ID)
	if len(open) != 1 || open[0].Title != "stays open" {
		t.Errorf("open = %+v", open)
	}
}

func TestRunSiteUnknownSite(t *testing.T) {
	env := newTestEnv(t)
	if err := env.orch.RunSite(context.Background(), 12345); !errors.Is(err, ErrSiteNotFound) {
		t.Errorf("err = %v, want ErrSiteNotFound", err)
	}
}

func TestStartAuditDetached(t *testing.T) {
	check := &stubCheck{
		name:     "Plugins",
		category: models.CategoryPlugins,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	env := newTestEnv(t, check)
	site := env.createSite(t, "wp1.example.com")

	auditRow, err := env.orch.StartAudit(site.ID)
	if err != nil {
		t.Fatalf("StartAudit failed: %v", err)
	}
	if auditRow.ID == 0 || auditRow.Status != models.AuditPending {
		t.Errorf("started audit = %+v", auditRow)
	}

	<-check.started

	// A second start for the same site is rejected while the first is live
	if _, err := env.orch.StartAudit(site.ID); !errors.Is(err, ErrAuditInProgress) {
		t.Errorf("err = %v, want ErrAuditInProgress", err)
	}

	close(check.release)
	final := env.waitTerminal(t, auditRow.ID)
	if final.Status != models.AuditCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
}

func TestStartAuditUnknownSite(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.orch.StartAudit(12345); !errors.Is(err, ErrSiteNotFound) {
		t.Errorf("err = %v, want ErrSiteNotFound", err)
	}
}

func TestStartAuditStaleLeftoverDoesNotBlock(t *testing.T) {
	env := newTestEnv(t, &stubCheck{name: "Plugins", category: models.CategoryPlugins})
	site := env.createSite(t, "wp1.example.com")

	// A leftover past the staleness threshold must not block new runs
	leftover := &models.Audit{SiteID: site.ID, StartedAt: time.Now().UTC().Add(-time.Hour)}
	if err := env.audits.Create(leftover); err != nil {
		t.Fatalf("failed to seed leftover: %v", err)
	}

	auditRow, err := env.orch.StartAudit(site.ID)
	if err != nil {
		t.Fatalf("StartAudit failed: %v", err)
	}
	env.waitTerminal(t, auditRow.ID)
}

func TestCancelRunningAudit(t *testing.T) {
	check := &stubCheck{
		name:     "Plugins",
		category: models.CategoryPlugins,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	env := newTestEnv(t, check)
	site := env.createSite(t, "wp1.example.com")

	auditRow, err := env.orch.StartAudit(site.ID)
	if err != nil {
		t.Fatalf("StartAudit failed: %v", err)
	}
	<-check.started

	if err := env.orch.Cancel(auditRow.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	final := env.waitTerminal(t, auditRow.ID)
	if final.Status != models.AuditFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
	if final.ErrorMsg != CancelledMessage {
		t.Errorf("ErrorMsg = %q, want %q", final.ErrorMsg, CancelledMessage)
	}

	// The cancelled run must not overwrite the terminal state afterwards
	time.Sleep(50 * time.Millisecond)
	after, _ := env.audits.Get(auditRow.ID)
	if after.Status != models.AuditFailed || after.ErrorMsg != CancelledMessage {
		t.Errorf("terminal state was overwritten: %+v", after)
	}

	// Terminal audits cannot be cancelled again
	if err := env.orch.Cancel(auditRow.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("err = %v, want ErrNotCancellable", err)
	}
}

func TestCancelDuringFinalCheckKeepsCancelledState(t *testing.T) {
	seed := &stubCheck{name: "Plugins", category: models.CategoryPlugins, issues: []models.Issue{
		{Category: models.CategoryPlugins, Severity: models.SeverityWarning, Title: "stays open", Description: "d"},
	}}
	env := newTestEnv(t, seed)
	site := env.createSite(t, "wp1.example.com")

	// Seed an open issue set from a successful run
	if err := env.orch.RunSite(context.Background(), site.ID); err != nil {
		t.Fatalf("RunSite failed: %v", err)
	}

	slow := &stubCheck{
		name:         "Database",
		category:     models.CategoryDatabase,
		started:      make(chan struct{}),
		release:      make(chan struct{}),
		ignoreCancel: true,
		issues: []models.Issue{
			{Category: models.CategoryDatabase, Severity: models.SeverityCritical, Title: "late result", Description: "d"},
		},
	}
	env.orch.checks = []checks.Check{slow}

	auditRow, err := env.orch.StartAudit(site.ID)
	if err != nil {
		t.Fatalf("StartAudit failed: %v", err)
	}
	<-slow.started

	if err := env.orch.Cancel(auditRow.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	// The last check finishes after the cancel; its completion must lose
	close(slow.release)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		after, _ := env.audits.Get(auditRow.ID)
		if after.Status != models.AuditFailed || after.ErrorMsg != CancelledMessage {
			t.Fatalf("cancelled state was overwritten: %+v", after)
		}
		if after.HealthScore != nil {
			t.Fatalf("cancelled audit gained a score: %+v", after)
		}
		time.Sleep(20 * time.Millisecond)
	}

	open, _ := env.issues.ListOpenBySite(site.ID)
	if len(open) != 1 || open[0].Title != "stays open" {
		t.Errorf("open = %+v, want the seeded set untouched", open)
	}
}

func TestCancelUnknownAudit(t *testing.T) {
	env := newTestEnv(t)
	if err := env.orch.Cancel(12345); !errors.Is(err, ErrAuditNotFound) {
		t.Errorf("err = %v, want ErrAuditNotFound", err)
	}
}

func TestRunAllCountsPerSiteFailures(t *testing.T) {
	env := newTestEnv(t, &stubCheck{
		name:     "Plugins",
		category: models.CategoryPlugins,
		failFor:  "bad.example.com",
	})
	env.createSite(t, "good.example.com")
	env.createSite(t, "bad.example.com")

	succeeded, failed := env.orch.RunAll(context.Background())
	if succeeded != 1 || failed != 1 {
		t.Errorf("RunAll = %d/%d, want 1/1", succeeded, failed)
	}
}

func TestCleanupStale(t *testing.T) {
	env := newTestEnv(t)
	site := env.createSite(t, "wp1.example.com")

	stale := &models.Audit{SiteID: site.ID, StartedAt: time.Now().UTC().Add(-time.Hour)}
	if err := env.audits.Create(stale); err != nil {
		t.Fatalf("failed to seed stale audit: %v", err)
	}
	fresh := &models.Audit{SiteID: site.ID}
	if err := env.audits.Create(fresh); err != nil {
		t.Fatalf("failed to seed fresh audit: %v", err)
	}

	cleaned, err := env.orch.CleanupStale()
	if err != nil {
		t.Fatalf("CleanupStale failed: %v", err)
	}
	if cleaned != 1 {
		t.Errorf("cleaned = %d, want 1", cleaned)
	}

	got, _ := env.audits.Get(stale.ID)
	if got.Status != models.AuditFailed {
		t.Errorf("stale audit status = %s, want failed", got.Status)
	}
	if got.ErrorMsg != "audit abandoned: no terminal state after 5m0s" {
		t.Errorf("ErrorMsg = %q", got.ErrorMsg)
	}

	untouched, _ := env.audits.Get(fresh.ID)
	if untouched.Status != models.AuditPending {
		t.Errorf("fresh audit status = %s, want pending", untouched.Status)
	}

	// Idempotent: terminal audits are never reaped twice
	cleaned, err = env.orch.CleanupStale()
	if err != nil {
		t.Fatalf("CleanupStale failed: %v", err)
	}
	if cleaned != 0 {
		t.Errorf("second cleanup = %d, want 0", cleaned)
	}
}

func TestGet(t *testing.T) {
	env := newTestEnv(t)
	site := env.createSite(t, "wp1.example.com")

	seeded := &models.Audit{SiteID: site.ID}
	env.audits.Create(seeded)

	got, err := env.orch.Get(seeded.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != seeded.ID {
		t.Errorf("got audit %d, want %d", got.ID, seeded.ID)
	}

	if _, err := env.orch.Get(99999); !errors.Is(err, ErrAuditNotFound) {
		t.Errorf("err = %v, want ErrAuditNotFound", err)
	}
}

func TestBuildSummary(t *testing.T) {
	issues := []models.Issue{
		{Severity: models.SeverityCritical},
		{Severity: models.SeverityWarning},
		{Severity: models.SeverityWarning},
		{Severity: models.SeverityInfo},
	}
	got := buildSummary(74, issues)
	want := "Health: 74/100. Found 1 critical, 2 warning issues."
	if got != want {
		t.Errorf("buildSummary = %q, want %q", got, want)
	}
}
