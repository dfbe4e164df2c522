package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Thresholds are the anomaly-scorer bounds. The defaults are deliberate
// heuristic constants carried over from long-running deployments; tune them
// per site rather than re-deriving them.
type Thresholds struct {
	AvgKeywordHits float64 `yaml:"avg_keyword_hits"`
	Scanning404s   int     `yaml:"scanning_404s"`
	Legitimate404s int     `yaml:"legitimate_404s"`
	AvgBurst       float64 `yaml:"avg_burst"`
	TotalRequests  int     `yaml:"total_requests"`
}

// DefaultThresholds returns the stock scorer bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AvgKeywordHits: 3,
		Scanning404s:   5,
		Legitimate404s: 20,
		AvgBurst:       25,
		TotalRequests:  150,
	}
}

type Config struct {
	ServerAddr string `yaml:"server_addr"`
	TrustProxy bool   `yaml:"trust_proxy"`

	// Rate limiting
	RateWindow time.Duration `yaml:"rate_window"`
	RateMax    int           `yaml:"rate_max"`
	RateFlood  int           `yaml:"rate_flood"`

	// Honeypot timing
	MinFormTime       time.Duration `yaml:"min_form_time"`
	SkipAuthenticated bool          `yaml:"skip_authenticated"`

	// Anomaly scoring
	MinAILogs   int           `yaml:"min_ai_logs"`
	HistoryCap  int           `yaml:"history_cap"`
	BurstWindow time.Duration `yaml:"burst_window"`
	Thresholds  Thresholds    `yaml:"thresholds"`

	// Keyword blocking
	MaliciousKeywords []string `yaml:"malicious_keywords"`
	ExemptPaths       []string `yaml:"exempt_paths"`
	TopKeywords       int      `yaml:"top_keywords"`

	// Header validation
	RequiredHeaders map[string][]string `yaml:"required_headers"`
	MinUALength     int                 `yaml:"min_ua_length"`

	// Extended request info capture
	CaptureExtendedInfo  bool     `yaml:"capture_extended_info"`
	ExtendedInfoMaxBytes int      `yaml:"extended_info_max_bytes"`
	CaptureHeaders       []string `yaml:"capture_headers"`
	RedactHeaders        []string `yaml:"redact_headers"`

	// Accelerated backend
	UseFastBackend bool `yaml:"use_fast_backend"`

	// Storage collaborator
	StorageBackend string `yaml:"storage_backend"` // memory, csv, postgres, redis
	DataDir        string `yaml:"data_dir"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	RedisAddr      string `yaml:"redis_addr"`

	// Audit sinks: log, kafka
	AuditOutputs []string `yaml:"audit_outputs"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// DefaultMaliciousKeywords are path substrings that have no business in
// traffic served by a Go backend; hits count toward the keyword score.
var DefaultMaliciousKeywords = []string{
	".php", ".asp", ".jsp", "xmlrpc", "wp-", ".env", ".git", ".bak",
	"conf", "shell", "filemanager",
}

// DefaultCaptureHeaders is the header subset preserved in extended request
// info; names in DefaultRedactHeaders are replaced by a redaction marker.
var (
	DefaultCaptureHeaders = []string{
		"User-Agent", "Accept", "Accept-Language",
		"X-Forwarded-For", "X-Real-IP", "Referer",
	}
	DefaultRedactHeaders = []string{
		"Authorization", "Cookie", "Set-Cookie", "X-Api-Key",
	}
)

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("invalid integer, using default")
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warn().Str("key", k).Str("value", v).Msg("invalid float, using default")
	}
	return def
}

// getSeconds reads a duration given as (possibly fractional) seconds.
func getSeconds(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return time.Duration(f * float64(time.Second))
		}
		log.Warn().Str("key", k).Str("value", v).Msg("invalid seconds value, using default")
	}
	return def
}

func getStringSlice(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Load builds the configuration from environment variables, then overlays
// the optional YAML file named by GOSHIELD_CONFIG. Invalid values fall back
// to documented defaults; Load never fails.
func Load() Config {
	cfg := Config{
		ServerAddr: getOr("GOSHIELD_ADDR", ":19891"),
		TrustProxy: getBool("GOSHIELD_TRUST_PROXY", false),

		RateWindow: getSeconds("GOSHIELD_RATE_WINDOW", 10*time.Second),
		RateMax:    getInt("GOSHIELD_RATE_MAX", 20),
		RateFlood:  getInt("GOSHIELD_RATE_FLOOD", 40),

		MinFormTime:       getSeconds("GOSHIELD_MIN_FORM_TIME", time.Second),
		SkipAuthenticated: getBool("GOSHIELD_HONEYPOT_SKIP_AUTHENTICATED", true),

		MinAILogs:   getInt("GOSHIELD_MIN_AI_LOGS", 25),
		HistoryCap:  getInt("GOSHIELD_HISTORY_CAP", 256),
		BurstWindow: getSeconds("GOSHIELD_BURST_WINDOW", 10*time.Second),
		Thresholds: Thresholds{
			AvgKeywordHits: getFloat("GOSHIELD_MAX_AVG_KEYWORD_HITS", 3),
			Scanning404s:   getInt("GOSHIELD_MAX_SCANNING_404S", 5),
			Legitimate404s: getInt("GOSHIELD_MAX_LEGITIMATE_404S", 20),
			AvgBurst:       getFloat("GOSHIELD_MAX_AVG_BURST", 25),
			TotalRequests:  getInt("GOSHIELD_MAX_TOTAL_REQUESTS", 150),
		},

		MaliciousKeywords: getStringSlice("GOSHIELD_MALICIOUS_KEYWORDS", DefaultMaliciousKeywords),
		ExemptPaths:       getStringSlice("GOSHIELD_EXEMPT_PATHS", nil),
		TopKeywords:       getInt("GOSHIELD_TOP_KEYWORDS", 10),

		MinUALength: getInt("GOSHIELD_MIN_UA_LENGTH", 10),

		CaptureExtendedInfo:  getBool("GOSHIELD_CAPTURE_EXTENDED_INFO", false),
		ExtendedInfoMaxBytes: getInt("GOSHIELD_EXTENDED_INFO_MAX_BYTES", 4096),
		CaptureHeaders:       getStringSlice("GOSHIELD_EXTENDED_INFO_HEADERS", DefaultCaptureHeaders),
		RedactHeaders:        getStringSlice("GOSHIELD_EXTENDED_INFO_REDACT_HEADERS", DefaultRedactHeaders),

		UseFastBackend: getBool("GOSHIELD_USE_FAST_BACKEND", true),

		StorageBackend: getOr("GOSHIELD_STORAGE", "memory"),
		DataDir:        getOr("GOSHIELD_DATA_DIR", "goshield_data"),
		PostgresDSN:    getOr("GOSHIELD_POSTGRES_DSN", ""),
		RedisAddr:      getOr("GOSHIELD_REDIS_ADDR", ""),

		AuditOutputs: getStringSlice("GOSHIELD_AUDIT_OUTPUTS", []string{"log"}),

		MetricsEnabled: getBool("GOSHIELD_METRICS_ENABLED", false),
		MetricsAddr:    getOr("GOSHIELD_METRICS_ADDR", "127.0.0.1:9090"),
	}

	if path := os.Getenv("GOSHIELD_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config file ignored")
		}
	}

	cfg.normalize()
	return cfg
}

// overlayFile merges a YAML file on top of the current values. Absent keys
// keep their env/default values.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// normalize repairs invalid combinations instead of failing: a misconfigured
// threshold is a nuisance, a refused startup is an outage.
func (c *Config) normalize() {
	if c.RateWindow <= 0 {
		c.RateWindow = 10 * time.Second
	}
	if c.RateMax <= 0 {
		c.RateMax = 20
	}
	if c.RateFlood <= c.RateMax {
		log.Warn().Int("rate_max", c.RateMax).Int("rate_flood", c.RateFlood).
			Msg("rate_flood must exceed rate_max, adjusting")
		c.RateFlood = c.RateMax * 2
	}
	if c.MinFormTime < 0 {
		c.MinFormTime = time.Second
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = 10 * time.Second
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = 256
	}
	if c.MinAILogs < 0 {
		c.MinAILogs = 25
	}
	if c.ExtendedInfoMaxBytes <= 0 {
		c.ExtendedInfoMaxBytes = 4096
	}
	if c.TopKeywords <= 0 {
		c.TopKeywords = 10
	}
	t := DefaultThresholds()
	if c.Thresholds.AvgKeywordHits <= 0 {
		c.Thresholds.AvgKeywordHits = t.AvgKeywordHits
	}
	if c.Thresholds.Scanning404s <= 0 {
		c.Thresholds.Scanning404s = t.Scanning404s
	}
	if c.Thresholds.Legitimate404s <= 0 {
		c.Thresholds.Legitimate404s = t.Legitimate404s
	}
	if c.Thresholds.AvgBurst <= 0 {
		c.Thresholds.AvgBurst = t.AvgBurst
	}
	if c.Thresholds.TotalRequests <= 0 {
		c.Thresholds.TotalRequests = t.TotalRequests
	}
}
