package crawler

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"wpauditd/internal/config"
)

// Settings controls one crawl invocation
type Settings struct {
	URL          string
	MaxPages     int
	Timeout      time.Duration
	SpeedAudit   bool
	AuthProfile  string
	SlowPageMs   int
}

// Summary is the parsed result of a crawl run
type Summary struct {
	PagesCrawled      int
	ServerErrors      int
	SlowPages         int
	BrokenLinks       int
	RedirectChains    int
	AvgResponseMillis int
}

// Crawler runs one crawl of a site and returns its summary
type Crawler interface {
	Crawl(ctx context.Context, settings Settings) (*Summary, error)
}

// ToolCrawler invokes the external crawl binary. The tool communicates
// results via CSV exports written to a per-run output directory.
type ToolCrawler struct {
	binaryPath string
	outputDir  string
}

// NewToolCrawler creates a crawler around the configured external binary
func NewToolCrawler(cfg *config.Config) *ToolCrawler {
	return &ToolCrawler{
		binaryPath: cfg.Crawler.BinaryPath,
		outputDir:  cfg.Crawler.OutputDir,
	}
}

// Crawl runs the external tool and parses its exports. The output
// directory is removed after parsing; a run that exits 0 but writes no
// pages export is reported as an error so the retry controller can act.
func (t *ToolCrawler) Crawl(ctx context.Context, settings Settings) (*Summary, error) {
	runDir := filepath.Join(t.outputDir, uuid.NewString())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create crawl output dir: %w", err)
	}
	defer os.RemoveAll(runDir)

	args := []string{
		"--url", settings.URL,
		"--output-dir", runDir,
		"--max-pages", strconv.Itoa(settings.MaxPages),
		"--timeout", strconv.Itoa(int(settings.Timeout.Seconds())),
		"--export", "pages,links",
	}
	if settings.SpeedAudit {
		args = append(args, "--speed-audit")
	}
	if settings.AuthProfile != "" {
		args = append(args, "--auth-profile", settings.AuthProfile)
	}

	runCtx, cancel := context.WithTimeout(ctx, settings.Timeout+time.Minute)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.binaryPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("crawl timeout exceeded after %s", settings.Timeout)
		}
		return nil, fmt.Errorf("crawl failed: %s", firstLine(string(output)))
	}

	summary, err := parseExports(runDir, settings.SlowPageMs)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// parseExports reads pages.csv and links.csv from the run directory.
// pages.csv columns: url, status, response_ms, redirect_hops
// links.csv columns: source, target, status
func parseExports(runDir string, slowPageMs int) (*Summary, error) {
	pages, err := readCSV(filepath.Join(runDir, "pages.csv"))
	if err != nil {
		return nil, fmt.Errorf("crawl produced no pages export: %w", err)
	}

	summary := &Summary{}
	totalResponseMs := 0

	for _, row := range pages {
		if len(row) < 4 {
			continue
		}
		summary.PagesCrawled++

		status, _ := strconv.Atoi(row[1])
		responseMs, _ := strconv.Atoi(row[2])
		redirectHops, _ := strconv.Atoi(row[3])

		totalResponseMs += responseMs
		if status >= 500 {
			summary.ServerErrors++
		}
		if slowPageMs > 0 && responseMs > slowPageMs {
			summary.SlowPages++
		}
		if redirectHops > 1 {
			summary.RedirectChains++
		}
	}

	if summary.PagesCrawled > 0 {
		summary.AvgResponseMillis = totalResponseMs / summary.PagesCrawled
	}

	// links.csv is optional: older tool versions only export pages
	links, err := readCSV(filepath.Join(runDir, "links.csv"))
	if err == nil {
		for _, row := range links {
			if len(row) < 3 {
				continue
			}
			status, _ := strconv.Atoi(row[2])
			if status == 404 || status == 410 {
				summary.BrokenLinks++
			}
		}
	}

	return summary, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	// Skip header row
	if len(rows) > 0 {
		rows = rows[1:]
	}
	return rows, nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return "unknown error"
}
