package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wpauditd/internal/audit"
	"wpauditd/internal/config"
	"wpauditd/internal/db"
	"wpauditd/internal/db/repository"
	"wpauditd/internal/models"
	"wpauditd/internal/scoring"
)

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "wpaudit-admin",
	Short: "WordPress Audit Server administration tool",
	Long:  "Administrative tool for managing audited sites and running audits from the command line",
}

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage sites",
}

var siteAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new site",
	RunE:  addSite,
}

var siteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sites",
	RunE:  listSites,
}

var siteRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a site and its audit history",
	RunE:  removeSite,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run and maintain audits",
}

var auditRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one audit synchronously",
	RunE:  runAudit,
}

var auditSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run audits for all sites",
	RunE:  sweepAudits,
}

var auditCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Force-fail stale audits",
	RunE:  cleanupAudits,
}

var (
	siteName    string
	siteURL     string
	hostname    string
	sshUser     string
	sshPort     int
	wpPath      string
	zoneID      string
	pageBuilder string
	ecommerce   bool
	environment string
	siteID      int64
)

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/wpaudit/config.yaml", "Config file path")

	// Site add flags
	siteAddCmd.Flags().StringVarP(&siteName, "name", "n", "", "Site name (required)")
	siteAddCmd.Flags().StringVarP(&siteURL, "url", "u", "", "Site URL (required)")
	siteAddCmd.Flags().StringVar(&hostname, "hostname", "", "SSH hostname (required)")
	siteAddCmd.Flags().StringVar(&sshUser, "ssh-user", "", "Per-site SSH user override")
	siteAddCmd.Flags().IntVar(&sshPort, "ssh-port", 0, "Per-site SSH port override")
	siteAddCmd.Flags().StringVar(&wpPath, "wp-path", ".", "WordPress install path on the host")
	siteAddCmd.Flags().StringVar(&zoneID, "zone-id", "", "Cloudflare zone ID")
	siteAddCmd.Flags().StringVar(&pageBuilder, "page-builder", "", "Page builder in use (elementor, divi, ...)")
	siteAddCmd.Flags().BoolVar(&ecommerce, "ecommerce", false, "Site runs a shop")
	siteAddCmd.Flags().StringVar(&environment, "environment", models.EnvProduction, "Environment (production or staging)")

	siteAddCmd.MarkFlagRequired("name")
	siteAddCmd.MarkFlagRequired("url")
	siteAddCmd.MarkFlagRequired("hostname")

	// Site remove flags
	siteRemoveCmd.Flags().Int64Var(&siteID, "site", 0, "Site ID (required)")
	siteRemoveCmd.MarkFlagRequired("site")

	// Audit run flags
	auditRunCmd.Flags().Int64Var(&siteID, "site", 0, "Site ID (required)")
	auditRunCmd.MarkFlagRequired("site")

	// Add commands
	siteCmd.AddCommand(siteAddCmd)
	siteCmd.AddCommand(siteListCmd)
	siteCmd.AddCommand(siteRemoveCmd)
	auditCmd.AddCommand(auditRunCmd)
	auditCmd.AddCommand(auditSweepCmd)
	auditCmd.AddCommand(auditCleanupCmd)
	rootCmd.AddCommand(siteCmd)
	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads config and opens the database; called by every subcommand
func setup() error {
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err = db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func addSite(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer database.Close()

	site := &models.Site{
		Name:             siteName,
		URL:              siteURL,
		Hostname:         hostname,
		SSHUser:          sshUser,
		SSHPort:          sshPort,
		WPPath:           wpPath,
		CloudflareZoneID: zoneID,
		PageBuilder:      pageBuilder,
		IsEcommerce:      ecommerce,
		Environment:      environment,
	}

	siteRepo := repository.NewSiteRepository(database.DB)
	if err := siteRepo.Create(site); err != nil {
		return err
	}

	fmt.Printf("Site created: id=%d name=%s hostname=%s\n", site.ID, site.Name, site.Hostname)
	return nil
}

func listSites(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer database.Close()

	siteRepo := repository.NewSiteRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)

	sites, err := siteRepo.List()
	if err != nil {
		return err
	}

	if len(sites) == 0 {
		fmt.Println("No sites registered")
		return nil
	}

	fmt.Printf("%-5s %-25s %-30s %-10s %s\n", "ID", "NAME", "HOSTNAME", "ENV", "LAST AUDIT")
	for _, site := range sites {
		lastAudit := "-"
		if latest, err := auditRepo.LatestBySite(site.ID); err == nil && latest != nil {
			if latest.HealthScore != nil {
				lastAudit = fmt.Sprintf("%d/100 (%s)", *latest.HealthScore, scoring.StatusFor(*latest.HealthScore))
			} else {
				lastAudit = string(latest.Status)
			}
		}
		fmt.Printf("%-5d %-25s %-30s %-10s %s\n", site.ID, site.Name, site.Hostname, site.Environment, lastAudit)
	}

	return nil
}

func removeSite(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer database.Close()

	siteRepo := repository.NewSiteRepository(database.DB)
	if err := siteRepo.Delete(siteID); err != nil {
		return err
	}

	fmt.Printf("Site %d removed\n", siteID)
	return nil
}

func newOrchestrator() *audit.Orchestrator {
	siteRepo := repository.NewSiteRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)
	issueRepo := repository.NewIssueRepository(database.DB)
	return audit.New(cfg, siteRepo, auditRepo, issueRepo)
}

func runAudit(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer database.Close()

	orchestrator := newOrchestrator()
	if err := orchestrator.RunSite(context.Background(), siteID); err != nil {
		return err
	}

	fmt.Printf("Audit for site %d completed\n", siteID)
	return nil
}

func sweepAudits(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer database.Close()

	orchestrator := newOrchestrator()
	succeeded, failed := orchestrator.RunAll(context.Background())
	fmt.Printf("Sweep finished: %d succeeded, %d failed\n", succeeded, failed)
	return nil
}

func cleanupAudits(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer database.Close()

	orchestrator := newOrchestrator()
	cleaned, err := orchestrator.CleanupStale()
	if err != nil {
		return err
	}

	fmt.Printf("Cleaned up %d stale audits\n", cleaned)
	return nil
}
