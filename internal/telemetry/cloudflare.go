package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wpauditd/internal/config"
	"wpauditd/internal/models"
)

// Analytics fetches aggregated edge analytics for a zone
type Analytics interface {
	Window(ctx context.Context, zoneID string, hours int) (*models.TelemetryWindow, error)
}

// CachePurger invalidates edge cache contents for a zone. Write-only:
// success means no error, there is no return data.
type CachePurger interface {
	PurgeCache(ctx context.Context, zoneID string) error
	PurgeCacheURLs(ctx context.Context, zoneID string, urls []string) error
}

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

// maxWindowHours caps analytics windows at 7 days. The GraphQL API
// aggregates by day, not hour: hourly cache-hit counters from the
// provider are unreliable, so resolution is traded for accuracy.
const maxWindowHours = 7 * 24

// CloudflareClient implements Analytics and CachePurger against the
// Cloudflare API. The GraphQL analytics protocol is the primary; the
// legacy dashboard endpoint is used only where GraphQL analytics is not
// available to the account. The two protocols produce comparable, not
// identical, aggregates.
type CloudflareClient struct {
	baseURL   string
	apiToken  string
	useLegacy bool
	client    *http.Client
}

// NewCloudflareClient creates a telemetry client from process configuration
func NewCloudflareClient(cfg *config.Config) *CloudflareClient {
	return &CloudflareClient{
		baseURL:   defaultBaseURL,
		apiToken:  cfg.Cloudflare.APIToken,
		useLegacy: cfg.Cloudflare.UseLegacyAPI,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Window fetches an aggregated analytics window for the zone
func (c *CloudflareClient) Window(ctx context.Context, zoneID string, hours int) (*models.TelemetryWindow, error) {
	if hours <= 0 || hours > maxWindowHours {
		hours = maxWindowHours
	}

	if c.useLegacy {
		return c.legacyWindow(ctx, zoneID, hours)
	}
	return c.graphqlWindow(ctx, zoneID, hours)
}

// graphql request/response shapes

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data struct {
		Viewer struct {
			Zones []struct {
				Groups []dayGroup `json:"httpRequests1dGroups"`
			} `json:"zones"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type dayGroup struct {
	Sum struct {
		Requests          int64 `json:"requests"`
		CachedRequests    int64 `json:"cachedRequests"`
		Bytes             int64 `json:"bytes"`
		CachedBytes       int64 `json:"cachedBytes"`
		Threats           int64 `json:"threats"`
		PageViews         int64 `json:"pageViews"`
		EncryptedRequests int64 `json:"encryptedRequests"`
		ResponseStatusMap []struct {
			EdgeResponseStatus int   `json:"edgeResponseStatus"`
			Requests           int64 `json:"requests"`
		} `json:"responseStatusMap"`
		CountryMap []struct {
			ClientCountryName string `json:"clientCountryName"`
			Requests          int64  `json:"requests"`
		} `json:"countryMap"`
	} `json:"sum"`
	Uniq struct {
		Uniques int64 `json:"uniques"`
	} `json:"uniq"`
}

const httpRequestsQuery = `query ($zone: String!, $since: Date!, $until: Date!) {
  viewer {
    zones(filter: {zoneTag: $zone}) {
      httpRequests1dGroups(limit: 7, filter: {date_geq: $since, date_leq: $until}) {
        sum {
          requests
          cachedRequests
          bytes
          cachedBytes
          threats
          pageViews
          encryptedRequests
          responseStatusMap { edgeResponseStatus requests }
          countryMap { clientCountryName requests }
        }
        uniq { uniques }
      }
    }
  }
}`

func (c *CloudflareClient) graphqlWindow(ctx context.Context, zoneID string, hours int) (*models.TelemetryWindow, error) {
	until := time.Now().UTC()
	since := until.Add(-time.Duration(hours) * time.Hour)

	reqBody := graphqlRequest{
		Query: httpRequestsQuery,
		Variables: map[string]any{
			"zone":  zoneID,
			"since": since.Format("2006-01-02"),
			"until": until.Format("2006-01-02"),
		},
	}

	var resp graphqlResponse
	status, err := c.post(ctx, c.baseURL+"/graphql", reqBody, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: analytics query returned HTTP %d", classify(status, 0, ""), status)
	}
	if len(resp.Errors) > 0 {
		msg := resp.Errors[0].Message
		return nil, fmt.Errorf("%w: %s", classifyGraphQLError(msg), msg)
	}
	if len(resp.Data.Viewer.Zones) == 0 {
		return nil, fmt.Errorf("%w: zone %s returned no analytics", ErrNotFound, zoneID)
	}

	window := &models.TelemetryWindow{Since: since, Until: until}
	countries := map[string]int64{}

	for _, g := range resp.Data.Viewer.Zones[0].Groups {
		window.Requests += g.Sum.Requests
		window.CachedRequests += g.Sum.CachedRequests
		window.Bytes += g.Sum.Bytes
		window.CachedBytes += g.Sum.CachedBytes
		window.Threats += g.Sum.Threats
		window.PageViews += g.Sum.PageViews
		window.EncryptedReqs += g.Sum.EncryptedRequests
		window.UniqueVisitors += g.Uniq.Uniques

		for _, s := range g.Sum.ResponseStatusMap {
			addStatus(window, s.EdgeResponseStatus, s.Requests)
		}
		for _, country := range g.Sum.CountryMap {
			countries[country.ClientCountryName] += country.Requests
		}
	}

	for name, reqs := range countries {
		if reqs > window.TopCountryReqs {
			window.TopCountry = name
			window.TopCountryReqs = reqs
		}
	}

	window.BotRequests = c.botRequests(ctx, zoneID, since, until)

	return window, nil
}

// bot query shapes. The adaptive dataset is sampled, so request volume
// is estimated as count * sampleInterval per group.

type botResponse struct {
	Data struct {
		Viewer struct {
			Zones []struct {
				Groups []struct {
					Count int64 `json:"count"`
					Avg   struct {
						SampleInterval float64 `json:"sampleInterval"`
					} `json:"avg"`
				} `json:"httpRequestsAdaptiveGroups"`
			} `json:"zones"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Bot scores 1-29 are the provider's automated and likely-automated
// bands; 0 means the request was not scored.
const botRequestsQuery = `query ($zone: String!, $since: Time!, $until: Time!) {
  viewer {
    zones(filter: {zoneTag: $zone}) {
      httpRequestsAdaptiveGroups(limit: 1, filter: {datetime_geq: $since, datetime_leq: $until, botScore_gt: 0, botScore_lt: 30}) {
        count
        avg { sampleInterval }
      }
    }
  }
}`

// botRequests estimates automated traffic over the window. Bot scores
// require the account's bot detection features, so this is best effort:
// any failure leaves the counter at zero and downstream consumers skip
// the metric.
func (c *CloudflareClient) botRequests(ctx context.Context, zoneID string, since, until time.Time) int64 {
	reqBody := graphqlRequest{
		Query: botRequestsQuery,
		Variables: map[string]any{
			"zone":  zoneID,
			"since": since.Format(time.RFC3339),
			"until": until.Format(time.RFC3339),
		},
	}

	var resp botResponse
	status, err := c.post(ctx, c.baseURL+"/graphql", reqBody, &resp)
	if err != nil || status != http.StatusOK || len(resp.Errors) > 0 || len(resp.Data.Viewer.Zones) == 0 {
		return 0
	}

	var total float64
	for _, g := range resp.Data.Viewer.Zones[0].Groups {
		interval := g.Avg.SampleInterval
		if interval < 1 {
			interval = 1
		}
		total += float64(g.Count) * interval
	}
	return int64(total)
}

// legacy dashboard response shape

type legacyResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		Totals struct {
			Requests struct {
				All        int64            `json:"all"`
				Cached     int64            `json:"cached"`
				HTTPStatus map[string]int64 `json:"http_status"`
				SSL        struct {
					Encrypted int64 `json:"encrypted"`
				} `json:"ssl"`
				Country map[string]int64 `json:"country"`
			} `json:"requests"`
			Bandwidth struct {
				All    int64 `json:"all"`
				Cached int64 `json:"cached"`
			} `json:"bandwidth"`
			Threats struct {
				All int64 `json:"all"`
			} `json:"threats"`
			Pageviews struct {
				All int64 `json:"all"`
			} `json:"pageviews"`
			Uniques struct {
				All int64 `json:"all"`
			} `json:"uniques"`
		} `json:"totals"`
	} `json:"result"`
}

func (c *CloudflareClient) legacyWindow(ctx context.Context, zoneID string, hours int) (*models.TelemetryWindow, error) {
	until := time.Now().UTC()
	since := until.Add(-time.Duration(hours) * time.Hour)

	url := fmt.Sprintf("%s/zones/%s/analytics/dashboard?since=-%d", c.baseURL, zoneID, hours*60)

	var resp legacyResponse
	status, err := c.get(ctx, url, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success || status != http.StatusOK {
		code, msg := 0, ""
		if len(resp.Errors) > 0 {
			code, msg = resp.Errors[0].Code, resp.Errors[0].Message
		}
		return nil, fmt.Errorf("%w: dashboard query failed (HTTP %d, code %d): %s", classify(status, code, msg), status, code, msg)
	}

	// The dashboard payload carries no bot counters, so BotRequests
	// stays zero on this protocol.
	totals := resp.Result.Totals
	window := &models.TelemetryWindow{
		Since:          since,
		Until:          until,
		Requests:       totals.Requests.All,
		CachedRequests: totals.Requests.Cached,
		Bytes:          totals.Bandwidth.All,
		CachedBytes:    totals.Bandwidth.Cached,
		Threats:        totals.Threats.All,
		PageViews:      totals.Pageviews.All,
		UniqueVisitors: totals.Uniques.All,
		EncryptedReqs:  totals.Requests.SSL.Encrypted,
	}

	for statusStr, reqs := range totals.Requests.HTTPStatus {
		code, err := strconv.Atoi(statusStr)
		if err != nil {
			continue
		}
		addStatus(window, code, reqs)
	}

	for name, reqs := range totals.Requests.Country {
		if reqs > window.TopCountryReqs {
			window.TopCountry = name
			window.TopCountryReqs = reqs
		}
	}

	return window, nil
}

// addStatus buckets a response status count by class via range checks
func addStatus(w *models.TelemetryWindow, status int, requests int64) {
	switch {
	case status >= 400 && status < 500:
		w.Status4xx += requests
	case status >= 500 && status < 600:
		w.Status5xx += requests
	}
}

// PurgeCache purges the entire edge cache for a zone
func (c *CloudflareClient) PurgeCache(ctx context.Context, zoneID string) error {
	return c.purge(ctx, zoneID, map[string]any{"purge_everything": true})
}

// PurgeCacheURLs purges specific URLs from the edge cache
func (c *CloudflareClient) PurgeCacheURLs(ctx context.Context, zoneID string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	return c.purge(ctx, zoneID, map[string]any{"files": urls})
}

func (c *CloudflareClient) purge(ctx context.Context, zoneID string, body map[string]any) error {
	var resp struct {
		Success bool `json:"success"`
		Errors  []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}

	status, err := c.post(ctx, fmt.Sprintf("%s/zones/%s/purge_cache", c.baseURL, zoneID), body, &resp)
	if err != nil {
		return err
	}
	if !resp.Success || status != http.StatusOK {
		code, msg := 0, ""
		if len(resp.Errors) > 0 {
			code, msg = resp.Errors[0].Code, resp.Errors[0].Message
		}
		return fmt.Errorf("%w: cache purge failed (HTTP %d, code %d): %s", classify(status, code, msg), status, code, msg)
	}
	return nil
}

func classifyGraphQLError(msg string) error {
	switch {
	case containsAny(msg, "authentication", "unauthorized", "token"):
		return ErrAuth
	case containsAny(msg, "not authorized", "permission", "access denied"):
		return ErrPermission
	case containsAny(msg, "zone not found", "unknown zone"):
		return ErrNotFound
	default:
		return ErrNetwork
	}
}

func containsAny(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

func (c *CloudflareClient) post(ctx context.Context, url string, body any, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to encode request: %v", ErrNetwork, err)
	}
	return c.do(ctx, http.MethodPost, url, bytes.NewReader(data), out)
}

func (c *CloudflareClient) get(ctx context.Context, url string, out any) (int, error) {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

func (c *CloudflareClient) do(ctx context.Context, method, url string, body io.Reader, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		// Auth failures and gateway errors may not be JSON; classify by status
		return resp.StatusCode, fmt.Errorf("%w: unparseable response (HTTP %d)", classify(resp.StatusCode, 0, ""), resp.StatusCode)
	}

	return resp.StatusCode, nil
}
