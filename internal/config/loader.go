package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment variable overrides
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	if listenAddr := os.Getenv("WPAUDIT_LISTEN_ADDR"); listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	if adminToken := os.Getenv("WPAUDIT_ADMIN_TOKEN"); adminToken != "" {
		cfg.Server.AdminToken = adminToken
	}

	if dbPath := os.Getenv("WPAUDIT_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if privateKey := os.Getenv("WPAUDIT_SSH_PRIVATE_KEY"); privateKey != "" {
		cfg.SSH.PrivateKey = privateKey
	}

	if sshUser := os.Getenv("WPAUDIT_SSH_USER"); sshUser != "" {
		cfg.SSH.User = sshUser
	}

	if cfToken := os.Getenv("WPAUDIT_CLOUDFLARE_API_TOKEN"); cfToken != "" {
		cfg.Cloudflare.APIToken = cfToken
	}

	// Validate again after env overrides
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}

	return cfg, nil
}
