package detector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shortontech/goshield/internal/blocklist"
	"github.com/shortontech/goshield/internal/risk"
	"github.com/shortontech/goshield/internal/window"
)

// honeypotPrefix namespaces GET baselines inside the shared cache so they
// never collide with rate-limit timestamps for the same client.
const honeypotPrefix = "hp:"

// Honeypot flags form submissions arriving faster than a human could fill
// the form. GETs only record a baseline and are never blocked themselves; a
// POST with no prior GET falls through unevaluated — other detectors may
// still act on it.
type Honeypot struct {
	cache     *window.Cache
	blocklist *blocklist.Manager

	minFormTime time.Duration
}

// NewHoneypot wires the shared cache and blocklist.
func NewHoneypot(cache *window.Cache, bl *blocklist.Manager, minFormTime time.Duration) *Honeypot {
	return &Honeypot{cache: cache, blocklist: bl, minFormTime: minFormTime}
}

func (h *Honeypot) Name() string { return risk.DetectorHoneypot }

func (h *Honeypot) Check(ctx context.Context, rec *risk.RequestRecord) (risk.Decision, bool) {
	key := honeypotPrefix + rec.IP
	switch rec.Method {
	case http.MethodGet:
		h.cache.SetLast(key, rec.Timestamp)
	case http.MethodPost:
		getTime, ok := h.cache.Last(key)
		if !ok {
			return risk.Allowed(), false // no baseline, nothing to compare
		}
		delta := rec.Timestamp.Sub(getTime)
		if delta < h.minFormTime {
			reason := fmt.Sprintf("form submitted too quickly (%.2fs)", delta.Seconds())
			h.blocklist.Block(ctx, rec.IP, reason, rec)
			return risk.Blocked(risk.DetectorHoneypot, reason), true
		}
	}
	return risk.Allowed(), false
}
