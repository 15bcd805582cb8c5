package crawler

import (
	"context"
	"log"
	"strings"
	"time"
)

// Default retry policy: 2 retries (3 total attempts), 30s apart
const (
	DefaultRetryAttempts = 2
	DefaultRetryDelay    = 30 * time.Second
)

// terminalFailures lists error-message fragments that no retry can fix.
// Matching is case-insensitive substring, evaluated top to bottom.
var terminalFailures = []string{
	"authentication required",
	"site unreachable",
	"timeout exceeded",
	"license invalid",
}

// RetryController wraps a Crawler with bounded retries. Retries run with
// a narrowed fallback settings profile that replaces, not merges with,
// the original settings.
type RetryController struct {
	crawler  Crawler
	attempts int // retries after the first attempt
	delay    time.Duration

	// sleep is swappable for tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryController creates a retry controller with the given policy.
// attempts is the number of retries after the first attempt.
func NewRetryController(c Crawler, attempts int, delay time.Duration) *RetryController {
	if attempts < 0 {
		attempts = DefaultRetryAttempts
	}
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &RetryController{
		crawler:  c,
		attempts: attempts,
		delay:    delay,
		sleep:    sleepCtx,
	}
}

// Crawl attempts the crawl up to attempts+1 times. The first retryable
// failure switches to the fallback profile; a terminal failure or
// exhaustion surfaces the last error to the caller.
func (r *RetryController) Crawl(ctx context.Context, settings Settings) (*Summary, error) {
	var lastErr error

	for attempt := 0; attempt <= r.attempts; attempt++ {
		if attempt > 0 {
			log.Printf("Crawl retry %d/%d for %s after error: %v", attempt, r.attempts, settings.URL, lastErr)
			if err := r.sleep(ctx, r.delay); err != nil {
				return nil, err
			}
			settings = FallbackSettings(settings)
		}

		summary, err := r.crawler.Crawl(ctx, settings)
		if err == nil {
			return summary, nil
		}
		lastErr = err

		if isTerminalFailure(err) {
			break
		}
	}

	return nil, lastErr
}

// FallbackSettings returns the degraded profile used on retries: fewer
// pages, a shorter timeout, and no speed audit, to raise the odds of
// completion on a struggling host.
func FallbackSettings(prior Settings) Settings {
	return Settings{
		URL:         prior.URL,
		MaxPages:    50,
		Timeout:     5 * time.Minute,
		SpeedAudit:  false,
		AuthProfile: prior.AuthProfile,
		SlowPageMs:  prior.SlowPageMs,
	}
}

func isTerminalFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, fragment := range terminalFailures {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
