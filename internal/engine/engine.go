// Package engine evaluates inbound requests against the configured
// detectors and decides allow, rate-limit or block. All engine state is
// owned here and guarded explicitly; nothing is process-global.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shortontech/goshield/internal/anomaly"
	"github.com/shortontech/goshield/internal/audit"
	"github.com/shortontech/goshield/internal/blocklist"
	"github.com/shortontech/goshield/internal/detector"
	"github.com/shortontech/goshield/internal/exempt"
	"github.com/shortontech/goshield/internal/metrics"
	"github.com/shortontech/goshield/internal/risk"
	"github.com/shortontech/goshield/internal/storage"
	"github.com/shortontech/goshield/internal/window"
	"github.com/shortontech/goshield/pkg/config"
)

// Engine ties the detectors, the sliding-window cache, the blocklist and
// the anomaly backends together. Safe for concurrent use.
type Engine struct {
	cfg config.Config

	cache      *window.Cache
	store      storage.Store
	blocklist  *blocklist.Manager
	exemptions *exempt.Registry
	dispatcher *anomaly.Dispatcher
	detectors  []detector.Detector
	history    *history

	anomalyParams anomaly.Params

	metrics *metrics.Metrics
	sinks   []audit.Sink
}

// New wires an engine from its collaborators. metrics and sinks may be nil.
func New(cfg config.Config, store storage.Store, m *metrics.Metrics, sinks []audit.Sink) *Engine {
	cache := window.NewCache()
	bl := blocklist.NewManager(store, blocklist.CaptureConfig{
		Enabled:        cfg.CaptureExtendedInfo,
		MaxBytes:       cfg.ExtendedInfoMaxBytes,
		CaptureHeaders: cfg.CaptureHeaders,
		RedactHeaders:  cfg.RedactHeaders,
	})
	dispatcher := anomaly.NewDispatcher(cfg.UseFastBackend)
	if m != nil {
		dispatcher.OnFallback(m.BackendFallbacks.Inc)
	}

	keywords := make([]string, 0, len(cfg.MaliciousKeywords))
	for _, kw := range cfg.MaliciousKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	e := &Engine{
		cfg:        cfg,
		cache:      cache,
		store:      store,
		blocklist:  bl,
		exemptions: exempt.NewRegistry(cfg.ExemptPaths),
		dispatcher: dispatcher,
		history:    newHistory(cfg.HistoryCap),
		metrics:    m,
		sinks:      sinks,
		anomalyParams: anomaly.Params{
			Keywords:     keywords,
			ProbeMarkers: anomaly.DefaultProbeMarkers,
			BurstWindow:  cfg.BurstWindow,
			Thresholds:   cfg.Thresholds,
		},
	}

	e.detectors = []detector.Detector{
		detector.NewKeyword(bl, cfg.MaliciousKeywords, cfg.TopKeywords),
		detector.NewRateLimit(cache, bl, cfg.RateWindow, cfg.RateMax, cfg.RateFlood),
		detector.NewHoneypot(cache, bl, cfg.MinFormTime),
		detector.NewHeaders(dispatcher, cfg.RequiredHeaders, cfg.MinUALength),
		detector.NewUUIDTamper(bl),
	}
	return e
}

// Exemptions exposes the per-route policy registry for route registration.
func (e *Engine) Exemptions() *exempt.Registry { return e.exemptions }

// Blocklist exposes the allow/deny manager (management surfaces use it).
func (e *Engine) Blocklist() *blocklist.Manager { return e.blocklist }

// Dispatcher exposes the scoring backend selector.
func (e *Engine) Dispatcher() *anomaly.Dispatcher { return e.dispatcher }

// Evaluate runs every applicable detector against the request and returns
// the first rejection, or allow. Internal failures never escape: missing
// signal data degrades toward allow, and only genuine list membership or a
// detector hit produces a block.
func (e *Engine) Evaluate(ctx context.Context, rec *risk.RequestRecord) risk.Decision {
	start := time.Now()
	decision := e.evaluate(ctx, rec)
	e.observeDecision(decision, rec, time.Since(start))
	return decision
}

func (e *Engine) evaluate(ctx context.Context, rec *risk.RequestRecord) risk.Decision {
	if rec == nil || rec.IP == "" {
		return risk.Allowed() // nothing to correlate on
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.PathLower == "" {
		rec.PathLower = strings.ToLower(rec.Path)
	}

	// Whitelist strictly overrides everything, including the blacklist.
	if e.blocklist.IsWhitelisted(ctx, rec.IP) {
		return risk.Allowed()
	}

	route := rec.Path
	for _, det := range e.detectors {
		name := det.Name()
		if !e.exemptions.ShouldApply(name, route) {
			continue
		}
		if name == risk.DetectorHoneypot && e.cfg.SkipAuthenticated && rec.Authenticated {
			continue
		}
		if name == risk.DetectorKeyword && e.blocklist.IsBlocked(ctx, rec.IP) {
			return risk.Blocked(risk.DetectorKeyword, "ip is blacklisted")
		}
		if decision, matched := det.Check(ctx, rec); matched {
			return decision
		}
	}

	if e.exemptions.ShouldApply(risk.DetectorAnomaly, route) {
		if decision, matched := e.scoreHistory(ctx, rec); matched {
			return decision
		}
	}
	return risk.Allowed()
}

// scoreHistory runs the anomaly scorer once enough completed requests have
// accumulated for the client.
func (e *Engine) scoreHistory(ctx context.Context, rec *risk.RequestRecord) (risk.Decision, bool) {
	recs := e.history.Snapshot(rec.IP)
	if len(recs) < e.cfg.MinAILogs {
		return risk.Allowed(), false
	}
	snap := e.dispatcher.Analyze(recs, e.anomalyParams)
	if !snap.ShouldBlock {
		return risk.Allowed(), false
	}
	reason := fmt.Sprintf(
		"anomalous traffic pattern (avg_kw=%.2f scanning_404=%d legit_404=%d avg_burst=%.1f total=%d)",
		snap.AvgKeywordHits, snap.Scanning404s, snap.Legitimate404s, snap.AvgBurst, snap.TotalRequests)
	e.blocklist.Block(ctx, rec.IP, reason, rec)
	return risk.Blocked(risk.DetectorAnomaly, reason), true
}

// Observe feeds a completed request (with status and timing filled in) into
// the client's history. Call it after the response is written; Evaluate
// never sees in-flight status codes.
func (e *Engine) Observe(_ context.Context, rec risk.RequestRecord) {
	if rec.IP == "" {
		return
	}
	if rec.PathLower == "" {
		rec.PathLower = strings.ToLower(rec.Path)
	}
	e.history.Append(rec)
}

// Features derives the feature vector for one record with the selected
// scoring backend.
func (e *Engine) Features(rec risk.RequestRecord) risk.FeatureVector {
	rec.Known404s = e.history.Count404(rec.IP)
	return e.dispatcher.ExtractFeatures(rec, e.anomalyParams.Keywords)
}

// Snapshot computes the behavior snapshot for a client's current history
// without blocking anyone. Management surfaces use it for inspection.
func (e *Engine) Snapshot(ip string) risk.BehaviorSnapshot {
	return e.dispatcher.Analyze(e.history.Snapshot(ip), e.anomalyParams)
}

// Reset clears all volatile engine state (window cache and history); the
// persistent store is untouched.
func (e *Engine) Reset() {
	e.cache.Reset()
	e.history.Reset()
}

// Shutdown closes the audit sinks.
func (e *Engine) Shutdown() {
	for _, s := range e.sinks {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("audit sink close failed")
		}
	}
}

func (e *Engine) observeDecision(d risk.Decision, rec *risk.RequestRecord, elapsed time.Duration) {
	label := "allow"
	switch {
	case d.Allow:
	case d.Status == 429:
		label = "rate_limited"
	default:
		label = "block"
	}
	if e.metrics != nil {
		e.metrics.ObserveDecision(label, d.Detector, elapsed)
	}
	if d.Allow || rec == nil {
		return
	}
	ev := audit.NewBlockEvent(rec.IP, d.Detector, d.Reason, rec.Method, rec.Path, d.Status)
	for _, s := range e.sinks {
		if err := s.Publish(ev); err != nil {
			if e.metrics != nil {
				e.metrics.AuditErrors.WithLabelValues(s.Name()).Inc()
			}
			log.Warn().Err(err).Str("sink", s.Name()).Msg("audit publish failed")
		}
	}
}
