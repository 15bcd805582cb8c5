package models

import "time"

// TelemetryWindow aggregates edge analytics counters over a time range
type TelemetryWindow struct {
	Since          time.Time `json:"since"`
	Until          time.Time `json:"until"`
	Requests       int64     `json:"requests"`
	CachedRequests int64     `json:"cached_requests"`
	Bytes          int64     `json:"bytes"`
	CachedBytes    int64     `json:"cached_bytes"`
	Status4xx      int64     `json:"status_4xx"`
	Status5xx      int64     `json:"status_5xx"`
	Threats        int64     `json:"threats"`
	PageViews      int64     `json:"page_views"`
	UniqueVisitors int64     `json:"unique_visitors"`
	EncryptedReqs  int64     `json:"encrypted_requests"`
	BotRequests    int64     `json:"bot_requests"`
	TopCountry     string    `json:"top_country,omitempty"`
	TopCountryReqs int64     `json:"top_country_requests"`
}

// CacheHitRatio returns cached/total requests, 0 when there is no traffic
func (w *TelemetryWindow) CacheHitRatio() float64 {
	if w.Requests == 0 {
		return 0
	}
	return float64(w.CachedRequests) / float64(w.Requests)
}

// BandwidthSavedRatio returns cached/total bytes, 0 when no bytes were served
func (w *TelemetryWindow) BandwidthSavedRatio() float64 {
	if w.Bytes == 0 {
		return 0
	}
	return float64(w.CachedBytes) / float64(w.Bytes)
}

// ErrorRate returns the share of requests that returned a 5xx status
func (w *TelemetryWindow) ErrorRate() float64 {
	if w.Requests == 0 {
		return 0
	}
	return float64(w.Status5xx) / float64(w.Requests)
}

// ThreatRate returns threats per request
func (w *TelemetryWindow) ThreatRate() float64 {
	if w.Requests == 0 {
		return 0
	}
	return float64(w.Threats) / float64(w.Requests)
}

// SSLRate returns the share of requests served over TLS
func (w *TelemetryWindow) SSLRate() float64 {
	if w.Requests == 0 {
		return 0
	}
	return float64(w.EncryptedReqs) / float64(w.Requests)
}

// BotRate returns the share of requests classified as bot traffic
func (w *TelemetryWindow) BotRate() float64 {
	if w.Requests == 0 {
		return 0
	}
	return float64(w.BotRequests) / float64(w.Requests)
}

// TopCountryShare returns the share of requests from the single busiest country
func (w *TelemetryWindow) TopCountryShare() float64 {
	if w.Requests == 0 {
		return 0
	}
	return float64(w.TopCountryReqs) / float64(w.Requests)
}
