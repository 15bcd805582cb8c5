package repository

import (
	"database/sql"
	"fmt"

	"wpauditd/internal/models"
)

// SiteRepository handles site data access
type SiteRepository struct {
	db *sql.DB
}

// NewSiteRepository creates a new site repository
func NewSiteRepository(db *sql.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

const siteColumns = `id, name, url, hostname, ssh_user, ssh_port, wp_path,
	cloudflare_zone_id, page_builder, is_ecommerce, environment, created_at, updated_at`

// Create creates a new site
func (r *SiteRepository) Create(site *models.Site) error {
	query := `
		INSERT INTO sites (name, url, hostname, ssh_user, ssh_port, wp_path,
			cloudflare_zone_id, page_builder, is_ecommerce, environment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ecommerce := 0
	if site.IsEcommerce {
		ecommerce = 1
	}
	if site.Environment == "" {
		site.Environment = models.EnvProduction
	}
	if site.WPPath == "" {
		site.WPPath = "."
	}

	result, err := r.db.Exec(query,
		site.Name,
		site.URL,
		site.Hostname,
		site.SSHUser,
		site.SSHPort,
		site.WPPath,
		site.CloudflareZoneID,
		site.PageBuilder,
		ecommerce,
		site.Environment,
	)
	if err != nil {
		return fmt.Errorf("failed to create site: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	site.ID = id
	return nil
}

// Update rewrites a site's mutable fields
func (r *SiteRepository) Update(site *models.Site) error {
	query := `
		UPDATE sites SET name = ?, url = ?, hostname = ?, ssh_user = ?, ssh_port = ?,
			wp_path = ?, cloudflare_zone_id = ?, page_builder = ?, is_ecommerce = ?,
			environment = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	ecommerce := 0
	if site.IsEcommerce {
		ecommerce = 1
	}
	if site.Environment == "" {
		site.Environment = models.EnvProduction
	}
	if site.WPPath == "" {
		site.WPPath = "."
	}

	result, err := r.db.Exec(query,
		site.Name,
		site.URL,
		site.Hostname,
		site.SSHUser,
		site.SSHPort,
		site.WPPath,
		site.CloudflareZoneID,
		site.PageBuilder,
		ecommerce,
		site.Environment,
		site.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
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

// Get retrieves a site by ID
func (r *SiteRepository) Get(id int64) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = ?`
	return r.scanSite(r.db.QueryRow(query, id))
}

// GetByHostname retrieves a site by hostname
func (r *SiteRepository) GetByHostname(hostname string) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE hostname = ?`
	return r.scanSite(r.db.QueryRow(query, hostname))
}

// List lists all sites ordered by name
func (r *SiteRepository) List() ([]*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites ORDER BY name`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		site, err := r.scanSiteRows(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}

	return sites, rows.Err()
}

// Delete deletes a site and, via cascade, its audits and issues
func (r *SiteRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SiteRepository) scanSite(row *sql.Row) (*models.Site, error) {
	return scanSiteFrom(row)
}

func (r *SiteRepository) scanSiteRows(rows *sql.Rows) (*models.Site, error) {
	return scanSiteFrom(rows)
}

func scanSiteFrom(s rowScanner) (*models.Site, error) {
	site := &models.Site{}
	var sshUser, zoneID, pageBuilder sql.NullString
	var ecommerce int

	err := s.Scan(
		&site.ID,
		&site.Name,
		&site.URL,
		&site.Hostname,
		&sshUser,
		&site.SSHPort,
		&site.WPPath,
		&zoneID,
		&pageBuilder,
		&ecommerce,
		&site.Environment,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan site: %w", err)
	}

	site.IsEcommerce = ecommerce == 1
	if sshUser.Valid {
		site.SSHUser = sshUser.String
	}
	if zoneID.Valid {
		site.CloudflareZoneID = zoneID.String
	}
	if pageBuilder.Valid {
		site.PageBuilder = pageBuilder.String
	}

	return site, nil
}
