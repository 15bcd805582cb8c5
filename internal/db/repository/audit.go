package repository

import (
	"database/sql"
	"fmt"
	"time"

	"wpauditd/internal/models"
)

// AuditRepository handles audit data access
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `id, site_id, status, started_at, completed_at, health_score,
	summary, current_step, progress, error_message, results`

// Create creates a new audit in pending state
func (r *AuditRepository) Create(audit *models.Audit) error {
	if audit.Status == "" {
		audit.Status = models.AuditPending
	}
	if audit.StartedAt.IsZero() {
		audit.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audits (site_id, status, started_at, current_step, progress)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		audit.SiteID,
		audit.Status,
		audit.StartedAt,
		audit.CurrentStep,
		audit.Progress,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	audit.ID = id
	return nil
}

// Get retrieves an audit by ID
func (r *AuditRepository) Get(id int64) (*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE id = ?`
	return scanAudit(r.db.QueryRow(query, id))
}

// ListBySite lists audits for a site, newest first
func (r *AuditRepository) ListBySite(siteID int64, limit int) ([]*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits
		WHERE site_id = ? ORDER BY started_at DESC LIMIT ?`

	rows, err := r.db.Query(query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audits: %w", err)
	}
	defer rows.Close()

	var audits []*models.Audit
	for rows.Next() {
		audit, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, audit)
	}

	return audits, rows.Err()
}

// LatestBySite returns the most recent audit for a site, or nil
func (r *AuditRepository) LatestBySite(siteID int64) (*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits
		WHERE site_id = ? ORDER BY started_at DESC LIMIT 1`

	audit, err := scanAudit(r.db.QueryRow(query, siteID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return audit, err
}

// LiveBySite returns pending/running audits for a site
func (r *AuditRepository) LiveBySite(siteID int64) ([]*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits
		WHERE site_id = ? AND status IN (?, ?) ORDER BY started_at DESC`

	rows, err := r.db.Query(query, siteID, models.AuditPending, models.AuditRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to list live audits: %w", err)
	}
	defer rows.Close()

	var audits []*models.Audit
	for rows.Next() {
		audit, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, audit)
	}

	return audits, rows.Err()
}

// MarkRunning transitions a pending audit to running and resets progress.
// Returns false when the audit already left the pending state, so a
// cancelled or reaped audit is never resurrected.
func (r *AuditRepository) MarkRunning(id int64) (bool, error) {
	query := `
		UPDATE audits SET status = ?, started_at = ?, current_step = 'Queued', progress = 0
		WHERE id = ? AND status = ?
	`
	result, err := r.db.Exec(query, models.AuditRunning, time.Now().UTC(), id, models.AuditPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark audit running: %w", err)
	}
	return applied(result)
}

// UpdateProgress updates the current step label and percent.
// Progress never moves backwards within a run.
func (r *AuditRepository) UpdateProgress(id int64, step string, percent int) error {
	query := `
		UPDATE audits SET current_step = ?, progress = MAX(progress, ?)
		WHERE id = ?
	`
	_, err := r.db.Exec(query, step, percent, id)
	if err != nil {
		return fmt.Errorf("failed to update audit progress: %w", err)
	}
	return nil
}

// MarkCompleted transitions a live audit to completed with its final
// score, summary and raw results. Terminal states are sticky: once an
// audit is failed or completed no transition rewrites it, so a cancel
// racing the final check cannot be overwritten. Returns false when the
// audit was already terminal.
func (r *AuditRepository) MarkCompleted(id int64, score int, summary, results string) (bool, error) {
	query := `
		UPDATE audits SET status = ?, completed_at = ?, health_score = ?,
			summary = ?, results = ?, current_step = 'Done', progress = 100
		WHERE id = ? AND status IN (?, ?)
	`
	result, err := r.db.Exec(query, models.AuditCompleted, time.Now().UTC(), score, summary, results,
		id, models.AuditPending, models.AuditRunning)
	if err != nil {
		return false, fmt.Errorf("failed to mark audit completed: %w", err)
	}
	return applied(result)
}

// MarkFailed transitions a live audit to failed with the captured error
// message. Returns false when the audit was already terminal.
func (r *AuditRepository) MarkFailed(id int64, errMsg string) (bool, error) {
	query := `
		UPDATE audits SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ? AND status IN (?, ?)
	`
	result, err := r.db.Exec(query, models.AuditFailed, time.Now().UTC(), errMsg,
		id, models.AuditPending, models.AuditRunning)
	if err != nil {
		return false, fmt.Errorf("failed to mark audit failed: %w", err)
	}
	return applied(result)
}

// applied reports whether a guarded UPDATE changed its row
func applied(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListStale returns non-terminal audits started before the cutoff
func (r *AuditRepository) ListStale(cutoff time.Time) ([]*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits
		WHERE status IN (?, ?) AND started_at < ?
		ORDER BY started_at`

	rows, err := r.db.Query(query, models.AuditPending, models.AuditRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale audits: %w", err)
	}
	defer rows.Close()

	var audits []*models.Audit
	for rows.Next() {
		audit, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, audit)
	}

	return audits, rows.Err()
}

func scanAudit(s rowScanner) (*models.Audit, error) {
	audit := &models.Audit{}
	var completedAt sql.NullTime
	var healthScore sql.NullInt64
	var summary, currentStep, errorMsg, results sql.NullString

	err := s.Scan(
		&audit.ID,
		&audit.SiteID,
		&audit.Status,
		&audit.StartedAt,
		&completedAt,
		&healthScore,
		&summary,
		&currentStep,
		&audit.Progress,
		&errorMsg,
		&results,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan audit: %w", err)
	}

	if completedAt.Valid {
		t := completedAt.Time
		audit.CompletedAt = &t
	}
	if healthScore.Valid {
		score := int(healthScore.Int64)
		audit.HealthScore = &score
	}
	if summary.Valid {
		audit.Summary = summary.String
	}
	if currentStep.Valid {
		audit.CurrentStep = currentStep.String
	}
	if errorMsg.Valid {
		audit.ErrorMsg = errorMsg.String
	}
	if results.Valid {
		audit.Results = results.String
	}

	return audit, nil
}
