package checks

// Thresholds holds every warning/critical boundary the check modules
// apply. The struct is built once and injected; checks never read
// ambient globals.
type Thresholds struct {
	Plugins     PluginThresholds
	Database    DatabaseThresholds
	Performance PerformanceThresholds
	Security    SecurityThresholds
	Crawl       CrawlThresholds
}

// PluginThresholds bounds plugin inventory counts
type PluginThresholds struct {
	TotalWarning     int
	TotalCritical    int
	InactiveWarning  int
	UpdatesWarning   int
	UpdatesCritical  int
}

// DatabaseThresholds bounds database footprint metrics. Sizes are bytes.
type DatabaseThresholds struct {
	TotalSizeWarning     int64
	TotalSizeCritical    int64
	AutoloadWarning      int64
	AutoloadCritical     int64
	AutoloadSingleEntry  int64
	RevisionsWarning     int
	RevisionsCritical    int
	TransientsWarning    int
	TransientsCritical   int
}

// PerformanceThresholds bounds edge analytics and latency metrics
type PerformanceThresholds struct {
	CacheHitWarning    float64
	CacheHitCritical   float64
	Error5xxWarning    int64
	Error5xxCritical   int64
	Error4xxWarning    int64
	ThreatRateWarning  float64
	SSLRateWarning     float64
	BotRateWarning     float64
	CountryShareWarning float64
	LatencyWarningMs   int64
	LatencyCriticalMs  int64
}

// SecurityThresholds bounds account hygiene metrics
type SecurityThresholds struct {
	AdminCountWarning int
	WeakUsernames     []string
}

// CrawlThresholds bounds crawl health metrics and sets the crawl budget
type CrawlThresholds struct {
	ServerErrorRateWarning  float64
	ServerErrorRateCritical float64
	SlowPagesWarning        int
	BrokenLinksWarning      int
	BrokenLinksCritical     int
	RedirectChainsWarning   int
	SlowPageMs              int
	MaxPages                int
	EcommerceMaxPages       int
	TimeoutMinutes          int
}

// DefaultThresholds returns the standard threshold table
func DefaultThresholds() *Thresholds {
	return &Thresholds{
		Plugins: PluginThresholds{
			TotalWarning:    25,
			TotalCritical:   40,
			InactiveWarning: 8,
			UpdatesWarning:  5,
			UpdatesCritical: 12,
		},
		Database: DatabaseThresholds{
			TotalSizeWarning:    500 * 1024 * 1024,
			TotalSizeCritical:   2 * 1024 * 1024 * 1024,
			AutoloadWarning:     800 * 1024,
			AutoloadCritical:    3 * 1024 * 1024,
			AutoloadSingleEntry: 512 * 1024,
			RevisionsWarning:    500,
			RevisionsCritical:   5000,
			TransientsWarning:   200,
			TransientsCritical:  2000,
		},
		Performance: PerformanceThresholds{
			CacheHitWarning:     0.50,
			CacheHitCritical:    0.20,
			Error5xxWarning:     100,
			Error5xxCritical:    1000,
			Error4xxWarning:     5000,
			ThreatRateWarning:   0.01,
			SSLRateWarning:      0.95,
			BotRateWarning:      0.40,
			CountryShareWarning: 0.90,
			LatencyWarningMs:    1500,
			LatencyCriticalMs:   4000,
		},
		Security: SecurityThresholds{
			AdminCountWarning: 5,
			WeakUsernames:     []string{"admin", "administrator", "root", "test", "demo", "wordpress"},
		},
		Crawl: CrawlThresholds{
			ServerErrorRateWarning:  0.01,
			ServerErrorRateCritical: 0.05,
			SlowPagesWarning:        10,
			BrokenLinksWarning:      5,
			BrokenLinksCritical:     50,
			RedirectChainsWarning:   10,
			SlowPageMs:              3000,
			MaxPages:                200,
			EcommerceMaxPages:       500,
			TimeoutMinutes:          10,
		},
	}
}
