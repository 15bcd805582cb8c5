package models

import "time"

// Site represents a monitored WordPress installation
type Site struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	URL              string    `json:"url"`
	Hostname         string    `json:"hostname"`
	SSHUser          string    `json:"ssh_user,omitempty"`
	SSHPort          int       `json:"ssh_port,omitempty"`
	WPPath           string    `json:"wp_path"`
	CloudflareZoneID string    `json:"cloudflare_zone_id,omitempty"`
	PageBuilder      string    `json:"page_builder,omitempty"`
	IsEcommerce      bool      `json:"is_ecommerce"`
	Environment      string    `json:"environment"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Environment constants
const (
	EnvProduction = "production"
	EnvStaging    = "staging"
)
