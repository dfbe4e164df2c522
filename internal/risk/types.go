package risk

import (
	"net/http"
	"strings"
	"time"
)

// Detector names used by exemption policies, metrics labels and audit events.
const (
	DetectorRateLimit  = "rate_limit"
	DetectorHoneypot   = "honeypot"
	DetectorHeaders    = "header_validation"
	DetectorKeyword    = "ip_keyword_block"
	DetectorUUIDTamper = "uuid_tamper"
	DetectorAnomaly    = "ai_anomaly"
)

// AllDetectors lists every detector the engine can run, in dispatch order.
var AllDetectors = []string{
	DetectorKeyword,
	DetectorRateLimit,
	DetectorHoneypot,
	DetectorHeaders,
	DetectorUUIDTamper,
	DetectorAnomaly,
}

// RequestRecord is the per-request observation every detector consumes.
// Missing fields are zero values; evaluation never aborts on them.
type RequestRecord struct {
	IP           string
	Method       string
	Path         string
	PathLower    string
	Query        string
	Host         string
	URL          string
	Headers      http.Header
	Timestamp    time.Time
	Status       int
	ResponseTime float64 // seconds
	KeywordCheck bool
	Known404s    int // running 404 count for this client at record time

	// Authenticated is supplied by the host's injected auth capability;
	// the engine itself never talks to an auth framework.
	Authenticated bool
}

// NewRequestRecord fills the derived fields for a raw observation.
func NewRequestRecord(ip, method, path string, ts time.Time) RequestRecord {
	return RequestRecord{
		IP:           ip,
		Method:       method,
		Path:         path,
		PathLower:    strings.ToLower(path),
		Timestamp:    ts,
		KeywordCheck: true,
	}
}

// FeatureVector is the numeric per-request summary fed to the scorer.
// Derived once per record, never mutated.
type FeatureVector struct {
	IP           string
	PathLen      int
	KeywordHits  int
	ResponseTime float64
	StatusIdx    int
	BurstCount   int
	Total404s    int
}

// BehaviorSnapshot aggregates a client's recent feature history plus the
// resulting verdict. Computed on demand, not persisted.
type BehaviorSnapshot struct {
	AvgKeywordHits float64
	Max404s        int
	AvgBurst       float64
	TotalRequests  int
	Scanning404s   int
	Legitimate404s int
	ShouldBlock    bool
}

// Decision is the engine's answer for one request.
type Decision struct {
	Allow      bool
	Status     int
	Reason     string
	Detector   string
	RetryAfter time.Duration
}

// Allowed is the zero-cost allow decision.
func Allowed() Decision { return Decision{Allow: true, Status: http.StatusOK} }

// Blocked builds a hard-block decision attributed to a detector.
func Blocked(detector, reason string) Decision {
	return Decision{Status: http.StatusForbidden, Reason: reason, Detector: detector}
}

// RateLimited builds a soft-reject decision with retry guidance.
func RateLimited(reason string, retryAfter time.Duration) Decision {
	return Decision{
		Status:     http.StatusTooManyRequests,
		Reason:     reason,
		Detector:   DetectorRateLimit,
		RetryAfter: retryAfter,
	}
}

// statusBuckets maps response codes onto the fixed feature-vector index
// space. Unlisted codes share the overflow bucket.
var statusBuckets = []int{200, 301, 302, 401, 403, 404, 429, 500}

// StatusBucket returns the feature index for an HTTP status code.
func StatusBucket(status int) int {
	for i, s := range statusBuckets {
		if s == status {
			return i
		}
	}
	return len(statusBuckets)
}

// ClientKey canonicalizes a client address for use as the correlation key
// across all detectors. Ports and surrounding whitespace are stripped,
// bracketed IPv6 literals are unwrapped.
func ClientKey(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, "[") {
		if end := strings.Index(addr, "]"); end > 0 {
			return addr[1:end]
		}
	}
	// Only strip a :port suffix when there is a single colon; bare IPv6
	// addresses keep their colons.
	if i := strings.LastIndex(addr, ":"); i > 0 && strings.Count(addr, ":") == 1 {
		return addr[:i]
	}
	return addr
}
