package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/shortontech/goshield/internal/blocklist"
	"github.com/shortontech/goshield/internal/risk"
	"github.com/shortontech/goshield/internal/window"
)

// RateLimit counts a client's requests inside a sliding window against a
// soft threshold (reject with retry guidance) and a hard flood threshold
// (reject and blacklist). Flood is evaluated first: it is the stricter
// condition and must win when both trip.
type RateLimit struct {
	cache     *window.Cache
	blocklist *blocklist.Manager

	window time.Duration
	max    int
	flood  int
}

// NewRateLimit wires the shared cache and blocklist. flood must exceed max;
// the config layer guarantees that.
func NewRateLimit(cache *window.Cache, bl *blocklist.Manager, w time.Duration, max, flood int) *RateLimit {
	return &RateLimit{cache: cache, blocklist: bl, window: w, max: max, flood: flood}
}

func (r *RateLimit) Name() string { return risk.DetectorRateLimit }

func (r *RateLimit) Check(ctx context.Context, rec *risk.RequestRecord) (risk.Decision, bool) {
	key := rec.IP
	r.cache.Record(key, rec.Timestamp)
	count := r.cache.CountSince(key, rec.Timestamp.Add(-r.window))

	if count > r.flood {
		reason := fmt.Sprintf("flood detected: %d requests in %s", count, r.window)
		r.blocklist.Block(ctx, rec.IP, reason, rec)
		return risk.Blocked(risk.DetectorRateLimit, reason), true
	}
	if count > r.max {
		return risk.RateLimited("too many requests", r.window), true
	}
	return risk.Allowed(), false
}
