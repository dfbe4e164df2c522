package anomaly

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shortontech/goshield/internal/risk"
	"github.com/shortontech/goshield/pkg/config"
)

// referenceBackend is the plain, obviously-correct implementation. The
// accelerated backend is measured against it, so keep this one simple even
// where that costs cycles.
type referenceBackend struct{}

// NewReferenceBackend returns the reference implementation.
func NewReferenceBackend() Backend { return referenceBackend{} }

func (referenceBackend) Name() string { return "reference" }

// ExtractFeatures is a pure function: identical input, identical output.
// keyword hits are only counted when the record's keyword-check flag is set.
func (referenceBackend) ExtractFeatures(rec risk.RequestRecord, keywords []string) risk.FeatureVector {
	hits := 0
	if rec.KeywordCheck {
		hits = countKeywordHits(rec.PathLower, keywords)
	}
	return risk.FeatureVector{
		IP:           rec.IP,
		PathLen:      len(rec.Path),
		KeywordHits:  hits,
		ResponseTime: rec.ResponseTime,
		StatusIdx:    risk.StatusBucket(rec.Status),
		BurstCount:   1, // aggregation happens in Analyze
		Total404s:    rec.Known404s,
	}
}

func countKeywordHits(pathLower string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(pathLower, kw) {
			hits++
		}
	}
	return hits
}

// Analyze aggregates one client's ordered history into a verdict. The
// caller controls the window; records here are everything that counts.
func (referenceBackend) Analyze(records []risk.RequestRecord, p Params) risk.BehaviorSnapshot {
	n := len(records)
	if n == 0 {
		return risk.BehaviorSnapshot{}
	}

	var (
		kwTotal      int
		total404s    int
		scanning404s int
		burstTotal   int
	)
	for i, rec := range records {
		if rec.KeywordCheck {
			kwTotal += countKeywordHits(rec.PathLower, p.Keywords)
		}
		if rec.Status == http.StatusNotFound {
			total404s++
			if containsAny(rec.PathLower, p.ProbeMarkers) {
				scanning404s++
			}
		}
		// Symmetric pairwise comparison; history length is capped upstream
		// so the quadratic scan stays cheap.
		for j, other := range records {
			if i == j {
				continue
			}
			d := rec.Timestamp.Sub(other.Timestamp)
			if d < 0 {
				d = -d
			}
			if d <= p.BurstWindow {
				burstTotal++
			}
		}
	}

	snap := risk.BehaviorSnapshot{
		AvgKeywordHits: float64(kwTotal) / float64(n),
		Max404s:        total404s,
		AvgBurst:       float64(burstTotal) / float64(n),
		TotalRequests:  n,
		Scanning404s:   scanning404s,
		Legitimate404s: total404s - scanning404s,
	}
	snap.ShouldBlock = verdict(snap, p.Thresholds)
	return snap
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// verdict applies the fixed heuristic bounds. Entirely quiet traffic (zero
// keyword hits and zero 404s) is forced to allow regardless of volume; that
// guard keeps busy but well-behaved clients out of the blacklist.
func verdict(snap risk.BehaviorSnapshot, t config.Thresholds) bool {
	if snap.AvgKeywordHits == 0 && snap.Max404s == 0 {
		return false
	}
	if snap.AvgKeywordHits < t.AvgKeywordHits &&
		snap.Scanning404s < t.Scanning404s &&
		snap.Legitimate404s < t.Legitimate404s &&
		snap.AvgBurst < t.AvgBurst &&
		snap.TotalRequests < t.TotalRequests {
		return false
	}
	return true
}

// ValidateHeaders enforces per-method required headers plus basic
// User-Agent sanity.
func (referenceBackend) ValidateHeaders(method string, headers http.Header, required []string, minUALen int) string {
	for _, name := range required {
		if headers.Get(name) == "" {
			return fmt.Sprintf("missing required header %s", name)
		}
	}
	ua := headers.Get("User-Agent")
	if ua != "" {
		if minUALen > 0 && len(ua) < minUALen {
			return fmt.Sprintf("user agent too short (%d chars)", len(ua))
		}
		low := strings.ToLower(ua)
		for _, marker := range automationMarkers {
			if strings.Contains(low, marker) {
				return fmt.Sprintf("automation user agent (%s)", marker)
			}
		}
	}
	return ""
}
