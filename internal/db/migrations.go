package db

import (
	"database/sql"
	"fmt"
)

// RunMigrations executes all database migrations
func RunMigrations(db *DB) error {
	// Check if schema_version table exists
	var tableExists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		// First time initialization
		if err := initializeSchema(db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow(`
		SELECT version FROM schema_version
		ORDER BY applied_at DESC LIMIT 1
	`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Apply migrations if needed
	// Currently only version 1 exists
	if currentVersion < 1 {
		return fmt.Errorf("invalid schema version: %d", currentVersion)
	}

	return nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(db *DB) error {
	tx, err := db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Schema version table
	if err := execSQL(tx, schemaVersionTable); err != nil {
		return err
	}

	// Sites table
	if err := execSQL(tx, sitesTable); err != nil {
		return err
	}
	if err := execSQL(tx, sitesIndexes); err != nil {
		return err
	}

	// Audits table
	if err := execSQL(tx, auditsTable); err != nil {
		return err
	}
	if err := execSQL(tx, auditsIndexes); err != nil {
		return err
	}

	// Issues table
	if err := execSQL(tx, issuesTable); err != nil {
		return err
	}
	if err := execSQL(tx, issuesIndexes); err != nil {
		return err
	}

	// Insert initial schema version
	if err := execSQL(tx, `INSERT INTO schema_version (version) VALUES (1)`); err != nil {
		return err
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	sitesTable = `
CREATE TABLE sites (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    name                TEXT NOT NULL,
    url                 TEXT NOT NULL,
    hostname            TEXT NOT NULL UNIQUE,
    ssh_user            TEXT,
    ssh_port            INTEGER NOT NULL DEFAULT 0,
    wp_path             TEXT NOT NULL DEFAULT '.',
    cloudflare_zone_id  TEXT,
    page_builder        TEXT,
    is_ecommerce        INTEGER NOT NULL DEFAULT 0,
    environment         TEXT NOT NULL DEFAULT 'production',
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	sitesIndexes = `
CREATE INDEX idx_sites_hostname ON sites(hostname)`

	auditsTable = `
CREATE TABLE audits (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id       INTEGER NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending',
    started_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at  DATETIME,
    health_score  INTEGER,
    summary       TEXT,
    current_step  TEXT,
    progress      INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    results       TEXT,

    FOREIGN KEY (site_id) REFERENCES sites(id) ON DELETE CASCADE
)`

	auditsIndexes = `
CREATE INDEX idx_audits_site_id ON audits(site_id);
CREATE INDEX idx_audits_status ON audits(status);
CREATE INDEX idx_audits_started_at ON audits(started_at)`

	issuesTable = `
CREATE TABLE issues (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id        INTEGER NOT NULL,
    audit_id       INTEGER NOT NULL,
    category       TEXT NOT NULL,
    severity       TEXT NOT NULL,
    title          TEXT NOT NULL,
    description    TEXT NOT NULL,
    recommendation TEXT,
    auto_fixable   INTEGER NOT NULL DEFAULT 0,
    fix_action     TEXT,
    fix_params     TEXT,
    status         TEXT NOT NULL DEFAULT 'open',
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (site_id) REFERENCES sites(id) ON DELETE CASCADE,
    FOREIGN KEY (audit_id) REFERENCES audits(id) ON DELETE CASCADE
)`

	issuesIndexes = `
CREATE INDEX idx_issues_site_id ON issues(site_id);
CREATE INDEX idx_issues_audit_id ON issues(audit_id);
CREATE INDEX idx_issues_status ON issues(status);
CREATE INDEX idx_issues_severity ON issues(severity)`
)
