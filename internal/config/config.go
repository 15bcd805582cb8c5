package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	SSH        SSHConfig        `yaml:"ssh"`
	Cloudflare CloudflareConfig `yaml:"cloudflare"`
	Crawler    CrawlerConfig    `yaml:"crawler"`
	Audit      AuditConfig      `yaml:"audit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	AdminToken string `yaml:"admin_token"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SSHConfig contains the credentials used to reach monitored hosts.
// The private key may be supplied inline (env-friendly, literal \n
// sequences allowed) or as a file path; inline wins when both are set.
type SSHConfig struct {
	User           string `yaml:"user"`
	Port           int    `yaml:"port"`
	PrivateKey     string `yaml:"private_key"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// CloudflareConfig contains telemetry provider configuration
type CloudflareConfig struct {
	APIToken     string `yaml:"api_token"`
	UseLegacyAPI bool   `yaml:"use_legacy_api"`
}

// CrawlerConfig contains external crawl tool configuration.
// RetryAttempts is a pointer so an explicit 0 (no retries) is
// distinguishable from the key being absent.
type CrawlerConfig struct {
	BinaryPath    string `yaml:"binary_path"`
	OutputDir     string `yaml:"output_dir"`
	RetryAttempts *int   `yaml:"retry_attempts"`
	RetryDelay    string `yaml:"retry_delay"`
}

// AuditConfig contains orchestrator tuning
type AuditConfig struct {
	StaleAfter string `yaml:"stale_after"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.AdminToken == "" {
		return fmt.Errorf("server.admin_token is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.SSH.User == "" {
		return fmt.Errorf("ssh.user is required")
	}
	if c.SSH.PrivateKey == "" && c.SSH.PrivateKeyPath == "" {
		return fmt.Errorf("one of ssh.private_key or ssh.private_key_path is required")
	}
	if c.SSH.Port < 0 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port must be a valid port number")
	}

	if c.Crawler.RetryAttempts != nil && *c.Crawler.RetryAttempts < 0 {
		return fmt.Errorf("crawler.retry_attempts must not be negative")
	}
	if c.Crawler.RetryDelay != "" {
		if _, err := time.ParseDuration(c.Crawler.RetryDelay); err != nil {
			return fmt.Errorf("crawler.retry_delay is invalid: %w", err)
		}
	}

	if c.Audit.StaleAfter != "" {
		if _, err := time.ParseDuration(c.Audit.StaleAfter); err != nil {
			return fmt.Errorf("audit.stale_after is invalid: %w", err)
		}
	}

	validLogLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}

// GetSSHPort returns the configured SSH port, defaulting to 22
func (c *Config) GetSSHPort() int {
	if c.SSH.Port == 0 {
		return 22
	}
	return c.SSH.Port
}

// GetRetryDelay returns the crawl retry backoff as time.Duration
func (c *Config) GetRetryDelay() time.Duration {
	if c.Crawler.RetryDelay == "" {
		return 30 * time.Second
	}
	d, _ := time.ParseDuration(c.Crawler.RetryDelay)
	return d
}

// GetRetryAttempts returns the number of crawl retries after the first
// attempt, defaulting to 2. An explicit 0 disables retries.
func (c *Config) GetRetryAttempts() int {
	if c.Crawler.RetryAttempts == nil {
		return 2
	}
	return *c.Crawler.RetryAttempts
}

// GetStaleAfter returns the audit staleness threshold as time.Duration
func (c *Config) GetStaleAfter() time.Duration {
	if c.Audit.StaleAfter == "" {
		return 5 * time.Minute
	}
	d, _ := time.ParseDuration(c.Audit.StaleAfter)
	return d
}
