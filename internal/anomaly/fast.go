package anomaly

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/shortontech/goshield/internal/risk"
)

// fastBackend trades the reference implementation's quadratic burst scan
// for a sort plus two-pointer sweep and does a single pass over the records
// for everything else. Results must be bit-identical to the reference; the
// dispatcher's probe verifies that before this backend ever sees traffic.
type fastBackend struct{}

// NewFastBackend returns the accelerated implementation.
func NewFastBackend() Backend { return fastBackend{} }

func (fastBackend) Name() string { return "fast" }

func (fastBackend) ExtractFeatures(rec risk.RequestRecord, keywords []string) risk.FeatureVector {
	hits := 0
	if rec.KeywordCheck {
		for _, kw := range keywords {
			if kw != "" && strings.Contains(rec.PathLower, kw) {
				hits++
			}
		}
	}
	return risk.FeatureVector{
		IP:           rec.IP,
		PathLen:      len(rec.Path),
		KeywordHits:  hits,
		ResponseTime: rec.ResponseTime,
		StatusIdx:    risk.StatusBucket(rec.Status),
		BurstCount:   1,
		Total404s:    rec.Known404s,
	}
}

func (f fastBackend) Analyze(records []risk.RequestRecord, p Params) risk.BehaviorSnapshot {
	n := len(records)
	if n == 0 {
		return risk.BehaviorSnapshot{}
	}

	var (
		kwTotal      int
		total404s    int
		scanning404s int
	)
	times := make([]int64, n)
	for i, rec := range records {
		times[i] = rec.Timestamp.UnixNano()
		if rec.KeywordCheck {
			kwTotal += countKeywordHits(rec.PathLower, p.Keywords)
		}
		if rec.Status == http.StatusNotFound {
			total404s++
			if containsAny(rec.PathLower, p.ProbeMarkers) {
				scanning404s++
			}
		}
	}

	// Total pairwise-neighbor count. Each sorted timestamp contributes the
	// number of other timestamps within the window on both sides; summing
	// one side and doubling equals the reference's symmetric |i,j| scan.
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	w := p.BurstWindow.Nanoseconds()
	burstTotal := 0
	lo := 0
	for i := 0; i < n; i++ {
		for times[i]-times[lo] > w {
			lo++
		}
		burstTotal += i - lo
	}
	burstTotal *= 2

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

func (fastBackend) ValidateHeaders(method string, headers http.Header, required []string, minUALen int) string {
	for _, name := range required {
		if headers.Get(name) == "" {
			return fmt.Sprintf("missing required header %s", name)
		}
	}
	if ua := headers.Get("User-Agent"); ua != "" {
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
