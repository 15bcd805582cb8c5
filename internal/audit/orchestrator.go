package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"wpauditd/internal/checks"
	"wpauditd/internal/config"
	"wpauditd/internal/crawler"
	"wpauditd/internal/db/repository"
	"wpauditd/internal/models"
	"wpauditd/internal/remote"
	"wpauditd/internal/scoring"
	"wpauditd/internal/telemetry"
)

// Orchestrator sentinel errors
var (
	ErrSiteNotFound     = errors.New("site not found")
	ErrAuditNotFound    = errors.New("audit not found")
	ErrAuditInProgress  = errors.New("an audit is already in progress for this site")
	ErrNotCancellable   = errors.New("only pending/running audits may be cancelled")
)

// CancelledMessage is the terminal error message written by Cancel
const CancelledMessage = "manually cancelled"

// progressStep is one entry of the fixed progress layout
type progressStep struct {
	label   string
	percent int
}

// Progress layout for the seven-step sequence. Percent only moves
// forward; the repository enforces monotonicity as well.
var progressSteps = []progressStep{
	{"Checking plugins", 15},
	{"Analyzing database", 30},
	{"Measuring performance", 45},
	{"Auditing security", 60},
	{"Reviewing SEO", 75},
	{"Crawling site", 90},
}

// Orchestrator sequences the check modules against one site, tracks
// progress for polling clients, and persists every state transition.
type Orchestrator struct {
	cfg    *config.Config
	sites  *repository.SiteRepository
	audits *repository.AuditRepository
	issues *repository.IssueRepository
	checks []checks.Check

	mu      sync.Mutex
	running map[int64]context.CancelFunc

	// newTarget is swappable for tests
	newTarget func(site *models.Site) (*checks.Target, error)
}

// New creates an orchestrator wired to the real collaborators
func New(cfg *config.Config, sites *repository.SiteRepository, audits *repository.AuditRepository, issues *repository.IssueRepository) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		sites:   sites,
		audits:  audits,
		issues:  issues,
		checks:  checks.All(),
		running: make(map[int64]context.CancelFunc),
	}
	o.newTarget = o.buildTarget
	return o
}

func (o *Orchestrator) buildTarget(site *models.Site) (*checks.Target, error) {
	runner, err := remote.NewRunner(o.cfg, site)
	if err != nil {
		return nil, err
	}

	analytics := telemetry.NewCloudflareClient(o.cfg)
	tool := crawler.NewToolCrawler(o.cfg)
	retrying := crawler.NewRetryController(tool, o.cfg.GetRetryAttempts(), o.cfg.GetRetryDelay())

	return checks.NewTarget(site, runner, analytics, retrying), nil
}

// StartAudit creates an audit record synchronously, so the caller has an
// id to poll, then launches the run detached. Errors inside the detached
// run are written into the audit's terminal state, never propagated.
func (o *Orchestrator) StartAudit(siteID int64) (*models.Audit, error) {
	site, err := o.sites.Get(siteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSiteNotFound
		}
		return nil, err
	}

	// Advisory guard: one live audit per site. Stale leftovers do not
	// block a new run; the watchdog will reap them.
	live, err := o.audits.LiveBySite(siteID)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-o.cfg.GetStaleAfter())
	for _, a := range live {
		if a.StartedAt.After(cutoff) {
			return nil, ErrAuditInProgress
		}
	}

	auditRow := &models.Audit{SiteID: siteID, Status: models.AuditPending, CurrentStep: "Queued"}
	if err := o.audits.Create(auditRow); err != nil {
		return nil, err
	}

	go o.runDetached(auditRow.ID, site)

	return auditRow, nil
}

// runDetached executes the audit with a trap that always writes a
// terminal state, including on panic
func (o *Orchestrator) runDetached(auditID int64, site *models.Site) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Audit %d panicked: %v", auditID, r)
			o.failIfLive(auditID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.running[auditID] = cancel
	o.mu.Unlock()
	defer func() {
		cancel()
		o.mu.Lock()
		delete(o.running, auditID)
		o.mu.Unlock()
	}()

	if err := o.run(ctx, auditID, site); err != nil {
		log.Printf("Audit %d failed: %v", auditID, err)
		o.failIfLive(auditID, err.Error())
	}
}

// RunSite executes one audit synchronously. Used by the bulk runner and
// the admin CLI; the HTTP boundary goes through StartAudit instead.
func (o *Orchestrator) RunSite(ctx context.Context, siteID int64) error {
	site, err := o.sites.Get(siteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSiteNotFound
		}
		return err
	}

	auditRow := &models.Audit{SiteID: siteID, Status: models.AuditPending, CurrentStep: "Queued"}
	if err := o.audits.Create(auditRow); err != nil {
		return err
	}

	if err := o.run(ctx, auditRow.ID, site); err != nil {
		o.failIfLive(auditRow.ID, err.Error())
		return err
	}
	return nil
}

// run is the state machine body: running, per-check progress, scoring,
// then terminal persistence with the open-issue replacement.
func (o *Orchestrator) run(ctx context.Context, auditID int64, site *models.Site) error {
	ok, err := o.audits.MarkRunning(auditID)
	if err != nil {
		return err
	}
	if !ok {
		// Cancelled or reaped before the run picked it up
		return nil
	}

	target, err := o.newTarget(site)
	if err != nil {
		return err
	}

	var allIssues []models.Issue
	results := make(map[models.IssueCategory]any, len(o.checks))

	for i, check := range o.checks {
		// Cancellation is observed at check boundaries. Cancel has
		// already written the terminal state, so just stop.
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		o.reportProgress(auditID, i)

		result, err := check.Run(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s check failed: %w", check.Name(), err)
		}

		allIssues = append(allIssues, result.Issues...)
		results[check.Category()] = result.Data
	}

	score := scoring.Score(allIssues)
	summary := buildSummary(score, allIssues)

	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	ok, err = o.audits.MarkCompleted(auditID, score, summary, string(resultsJSON))
	if err != nil {
		return err
	}
	if !ok {
		// A cancel or stale reap landed during the final check. The
		// terminal state they wrote wins; the open issue set must not
		// be rewritten by a run the client was told failed.
		log.Printf("Audit %d for %s finished after termination; results discarded", auditID, site.Hostname)
		return nil
	}

	// Replace the open issue set for this site as one unit. Every
	// previously open issue closes, even when the new set re-reports
	// the same condition.
	if err := o.issues.ReplaceOpenSet(site.ID, auditID, allIssues); err != nil {
		return fmt.Errorf("failed to store issues: %w", err)
	}

	log.Printf("Audit %d for %s completed: score=%d issues=%d", auditID, site.Hostname, score, len(allIssues))
	return nil
}

// reportProgress writes the step label and percent without blocking the
// run on the write's durability. The MAX() in the update keeps progress
// monotonic even if writes land out of order.
func (o *Orchestrator) reportProgress(auditID int64, stepIndex int) {
	step := progressSteps[stepIndex]
	go func() {
		if err := o.audits.UpdateProgress(auditID, step.label, step.percent); err != nil {
			log.Printf("Audit %d: progress update failed: %v", auditID, err)
		}
	}()
}

// Cancel force-fails a pending or running audit. This is the only
// externally triggered transition.
func (o *Orchestrator) Cancel(auditID int64) error {
	auditRow, err := o.audits.Get(auditID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAuditNotFound
		}
		return err
	}

	if auditRow.Status.Terminal() {
		return ErrNotCancellable
	}

	ok, err := o.audits.MarkFailed(auditID, CancelledMessage)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race to another terminal transition
		return ErrNotCancellable
	}

	o.mu.Lock()
	if cancel, ok := o.running[auditID]; ok {
		cancel()
	}
	o.mu.Unlock()

	return nil
}

// RunAll sweeps every site sequentially. Per-site failures are logged
// and counted, never fatal to the batch.
func (o *Orchestrator) RunAll(ctx context.Context) (succeeded, failed int) {
	sites, err := o.sites.List()
	if err != nil {
		log.Printf("Bulk audit: failed to list sites: %v", err)
		return 0, 0
	}

	for _, site := range sites {
		if err := o.RunSite(ctx, site.ID); err != nil {
			log.Printf("Bulk audit: site %s failed: %v", site.Hostname, err)
			failed++
			continue
		}
		succeeded++
	}

	log.Printf("Bulk audit finished: %d succeeded, %d failed", succeeded, failed)
	return succeeded, failed
}

// CleanupStale force-fails audits stuck in a non-terminal state past the
// staleness threshold. Terminal audits are never touched, so a second
// call is a no-op.
func (o *Orchestrator) CleanupStale() (int, error) {
	cutoff := time.Now().UTC().Add(-o.cfg.GetStaleAfter())
	stale, err := o.audits.ListStale(cutoff)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, a := range stale {
		msg := fmt.Sprintf("audit abandoned: no terminal state after %s", o.cfg.GetStaleAfter())
		ok, err := o.audits.MarkFailed(a.ID, msg)
		if err != nil {
			log.Printf("Stale cleanup: audit %d: %v", a.ID, err)
			continue
		}
		if !ok {
			// Reached a terminal state between the listing and the write
			continue
		}

		o.mu.Lock()
		if cancel, ok := o.running[a.ID]; ok {
			cancel()
		}
		o.mu.Unlock()

		cleaned++
	}

	return cleaned, nil
}

// Get returns the current state of an audit for polling
func (o *Orchestrator) Get(auditID int64) (*models.Audit, error) {
	auditRow, err := o.audits.Get(auditID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuditNotFound
		}
		return nil, err
	}
	return auditRow, nil
}

// failIfLive writes a failed terminal state unless another path already
// terminated the audit (cancel, stale cleanup). The repository's status
// guard makes the earlier terminal write win.
func (o *Orchestrator) failIfLive(auditID int64, msg string) {
	if _, err := o.audits.MarkFailed(auditID, msg); err != nil {
		log.Printf("Audit %d: could not write failed state: %v", auditID, err)
	}
}

func buildSummary(score int, issues []models.Issue) string {
	critical, warning := 0, 0
	for _, i := range issues {
		switch i.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityWarning:
			warning++
		}
	}
	return fmt.Sprintf("Health: %d/100. Found %d critical, %d warning issues.", score, critical, warning)
}
