package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"wpauditd/internal/api"
	"wpauditd/internal/audit"
	"wpauditd/internal/config"
	"wpauditd/internal/db"
	"wpauditd/internal/db/repository"
	"wpauditd/internal/remote"
	"wpauditd/internal/telemetry"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/wpaudit/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("WordPress Audit Server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	log.Printf("Starting WordPress Audit Server %s (commit: %s)", Version, Commit)

	// Load configuration
	log.Printf("Loading configuration from %s", *configPath)
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Log the SSH key fingerprint so operators can match the deployed key
	if cfg.SSH.PrivateKey != "" {
		if fp, err := remote.KeyFingerprint(cfg.SSH.PrivateKey); err == nil {
			log.Printf("SSH key fingerprint: %s", fp)
		}
	}

	// Initialize database
	log.Printf("Connecting to database: %s", cfg.Database.Path)
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	log.Printf("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	siteRepo := repository.NewSiteRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)
	issueRepo := repository.NewIssueRepository(database.DB)

	// Initialize orchestrator and telemetry client
	orchestrator := audit.New(cfg, siteRepo, auditRepo, issueRepo)
	cfClient := telemetry.NewCloudflareClient(cfg)

	// Reap audits abandoned by a previous process crash
	if cleaned, err := orchestrator.CleanupStale(); err != nil {
		log.Printf("Startup stale cleanup failed: %v", err)
	} else if cleaned > 0 {
		log.Printf("Cleaned up %d stale audits from previous runs", cleaned)
	}

	// Create HTTP server
	server := api.NewServer(cfg, orchestrator, siteRepo, issueRepo, cfClient)

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Printf("Starting HTTP server on %s", cfg.Server.ListenAddr)
		if err := server.Run(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("WordPress Audit Server is running")
	log.Printf("Press Ctrl+C to shutdown")

	// Wait for interrupt signal
	<-quit
	log.Printf("Shutting down server...")

	// Cleanup
	database.Close()

	log.Printf("Server stopped")
}
