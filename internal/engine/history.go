package engine

import (
	"sync"

	"github.com/shortontech/goshield/internal/risk"
)

// maxTrackedClients bounds how many client histories stay resident. When
// the map overflows, an arbitrary tenth is evicted; scanners that matter
// re-accumulate history within seconds.
const maxTrackedClients = 10000

// history keeps each client's recent completed requests for the anomaly
// scorer, plus the running 404 count the feature extractor reports.
type history struct {
	mu       sync.Mutex
	cap      int
	records  map[string][]risk.RequestRecord
	count404 map[string]int
}

func newHistory(capPerClient int) *history {
	return &history{
		cap:      capPerClient,
		records:  make(map[string][]risk.RequestRecord),
		count404: make(map[string]int),
	}
}

// Append stores a completed request, trimming the oldest entries beyond the
// per-client cap. Returns the client's running 404 total.
func (h *history) Append(rec risk.RequestRecord) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.records[rec.IP]; !ok && len(h.records) >= maxTrackedClients {
		h.evictLocked()
	}

	if rec.Status == 404 {
		h.count404[rec.IP]++
	}
	rec.Known404s = h.count404[rec.IP]

	recs := append(h.records[rec.IP], rec)
	if len(recs) > h.cap {
		// copy down instead of re-slicing so the backing array can shrink
		trimmed := make([]risk.RequestRecord, h.cap)
		copy(trimmed, recs[len(recs)-h.cap:])
		recs = trimmed
	}
	h.records[rec.IP] = recs
	return rec.Known404s
}

func (h *history) evictLocked() {
	drop := maxTrackedClients / 10
	for ip := range h.records {
		delete(h.records, ip)
		delete(h.count404, ip)
		drop--
		if drop <= 0 {
			break
		}
	}
}

// Snapshot copies a client's history so the scorer can work without holding
// the lock.
func (h *history) Snapshot(ip string) []risk.RequestRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	recs := h.records[ip]
	if len(recs) == 0 {
		return nil
	}
	out := make([]risk.RequestRecord, len(recs))
	copy(out, recs)
	return out
}

// Count404 returns the client's running 404 total.
func (h *history) Count404(ip string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count404[ip]
}

// Reset drops all history.
func (h *history) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = make(map[string][]risk.RequestRecord)
	h.count404 = make(map[string]int)
}
