package repository

import (
	"database/sql"
	"fmt"

	"wpauditd/internal/models"
)

// IssueRepository handles issue data access
type IssueRepository struct {
	db *sql.DB
}

// NewIssueRepository creates a new issue repository
func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

const issueColumns = `id, site_id, audit_id, category, severity, title, description,
	recommendation, auto_fixable, fix_action, fix_params, status, created_at`

// ReplaceOpenSet closes all currently open issues for the site and inserts
// the new set as open, as a single transaction. This preserves the invariant
// that at most one open issue set is current per site.
func (r *IssueRepository) ReplaceOpenSet(siteID, auditID int64, issues []models.Issue) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE issues SET status = ? WHERE site_id = ? AND status = ?`,
		models.IssueFixed, siteID, models.IssueOpen,
	)
	if err != nil {
		return fmt.Errorf("failed to close open issues: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO issues (site_id, audit_id, category, severity, title, description,
			recommendation, auto_fixable, fix_action, fix_params, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare issue insert: %w", err)
	}
	defer stmt.Close()

	for i := range issues {
		issue := &issues[i]
		autoFixable := 0
		if issue.AutoFixable {
			autoFixable = 1
		}

		result, err := stmt.Exec(
			siteID,
			auditID,
			issue.Category,
			issue.Severity,
			issue.Title,
			issue.Description,
			issue.Recommendation,
			autoFixable,
			issue.FixAction,
			issue.FixParams,
			models.IssueOpen,
		)
		if err != nil {
			return fmt.Errorf("failed to insert issue: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		issue.ID = id
		issue.SiteID = siteID
		issue.AuditID = auditID
		issue.Status = models.IssueOpen
	}

	return tx.Commit()
}

// ListOpenBySite lists open issues for a site, critical first
func (r *IssueRepository) ListOpenBySite(siteID int64) ([]*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues
		WHERE site_id = ? AND status = ?
		ORDER BY CASE severity
			WHEN 'critical' THEN 0
			WHEN 'warning' THEN 1
			ELSE 2
		END, category`

	return r.queryIssues(query, siteID, models.IssueOpen)
}

// ListByAudit lists all issues created by one audit
func (r *IssueRepository) ListByAudit(auditID int64) ([]*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues
		WHERE audit_id = ? ORDER BY id`

	return r.queryIssues(query, auditID)
}

// UpdateStatus sets the remediation status of a single issue
func (r *IssueRepository) UpdateStatus(id int64, status models.IssueStatus) error {
	result, err := r.db.Exec(`UPDATE issues SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update issue status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *IssueRepository) queryIssues(query string, args ...any) ([]*models.Issue, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []*models.Issue
	for rows.Next() {
		issue := &models.Issue{}
		var recommendation, fixAction, fixParams sql.NullString
		var autoFixable int

		err := rows.Scan(
			&issue.ID,
			&issue.SiteID,
			&issue.AuditID,
			&issue.Category,
			&issue.Severity,
			&issue.Title,
			&issue.Description,
			&recommendation,
			&autoFixable,
			&fixAction,
			&fixParams,
			&issue.Status,
			&issue.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}

		issue.AutoFixable = autoFixable == 1
		if recommendation.Valid {
			issue.Recommendation = recommendation.String
		}
		if fixAction.Valid {
			issue.FixAction = fixAction.String
		}
		if fixParams.Valid {
			issue.FixParams = fixParams.String
		}

		issues = append(issues, issue)
	}

	return issues, rows.Err()
}
