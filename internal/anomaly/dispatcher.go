package anomaly

import (
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shortontech/goshield/internal/risk"
	"github.com/shortontech/goshield/pkg/config"
)

// floatTolerance bounds acceptable float drift between the two backends.
const floatTolerance = 1e-9

// Dispatcher selects between the reference and accelerated backends.
// Availability is probed exactly once per process; any probe mismatch or
// runtime panic demotes to the reference path for the remainder of the
// process. A single evaluation never mixes backends.
type Dispatcher struct {
	ref  Backend
	fast Backend

	probeOnce  sync.Once
	useFast    atomic.Bool
	enabled    bool
	onFallback func()
}

// NewDispatcher builds a dispatcher. enableFast=false pins the reference
// backend without probing.
func NewDispatcher(enableFast bool) *Dispatcher {
	return &Dispatcher{
		ref:     NewReferenceBackend(),
		fast:    NewFastBackend(),
		enabled: enableFast,
	}
}

// OnFallback registers a hook invoked once if the accelerated backend is
// demoted at runtime. Set it before the first evaluation.
func (d *Dispatcher) OnFallback(fn func()) {
	d.onFallback = fn
}

// Backend returns the currently selected implementation.
func (d *Dispatcher) Backend() Backend {
	if d.current() {
		return d.fast
	}
	return d.ref
}

func (d *Dispatcher) current() bool {
	d.probeOnce.Do(d.probe)
	return d.useFast.Load()
}

// probe runs canned traffic through both backends and compares results.
// Runs once; a pass enables the fast path, anything else leaves the
// reference path pinned.
func (d *Dispatcher) probe() {
	if !d.enabled {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("fast backend probe panicked, using reference backend")
			d.useFast.Store(false)
		}
	}()

	records := probeRecords()
	p := Params{
		Keywords:     []string{".php", "wp-", ".env"},
		ProbeMarkers: DefaultProbeMarkers,
		BurstWindow:  10 * time.Second,
		Thresholds:   config.DefaultThresholds(),
	}

	for _, rec := range records {
		rv := d.ref.ExtractFeatures(rec, p.Keywords)
		fv := d.fast.ExtractFeatures(rec, p.Keywords)
		if !featuresEqual(rv, fv) {
			log.Warn().Str("path", rec.Path).Msg("fast backend feature mismatch, using reference backend")
			return
		}
	}
	for cut := 1; cut <= len(records); cut++ {
		rs := d.ref.Analyze(records[:cut], p)
		fs := d.fast.Analyze(records[:cut], p)
		if !snapshotsEqual(rs, fs) {
			log.Warn().Int("window", cut).Msg("fast backend verdict mismatch, using reference backend")
			return
		}
	}

	d.useFast.Store(true)
	log.Info().Msg("accelerated scoring backend enabled")
}

// Analyze scores the records with the selected backend, demoting to the
// reference implementation permanently if the accelerated one fails.
func (d *Dispatcher) Analyze(records []risk.RequestRecord, p Params) (snap risk.BehaviorSnapshot) {
	if d.current() {
		if snap, ok := d.callFastAnalyze(records, p); ok {
			return snap
		}
	}
	return d.ref.Analyze(records, p)
}

func (d *Dispatcher) callFastAnalyze(records []risk.RequestRecord, p Params) (snap risk.BehaviorSnapshot, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.demote(r)
			ok = false
		}
	}()
	return d.fast.Analyze(records, p), true
}

// ExtractFeatures derives the feature vector with the selected backend.
func (d *Dispatcher) ExtractFeatures(rec risk.RequestRecord, keywords []string) risk.FeatureVector {
	if d.current() {
		if fv, ok := d.callFastExtract(rec, keywords); ok {
			return fv
		}
	}
	return d.ref.ExtractFeatures(rec, keywords)
}

func (d *Dispatcher) callFastExtract(rec risk.RequestRecord, keywords []string) (fv risk.FeatureVector, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.demote(r)
			ok = false
		}
	}()
	return d.fast.ExtractFeatures(rec, keywords), true
}

// ValidateHeaders runs the header checks with the selected backend.
func (d *Dispatcher) ValidateHeaders(method string, headers http.Header, required []string, minUALen int) string {
	if d.current() {
		if reason, ok := d.callFastValidate(method, headers, required, minUALen); ok {
			return reason
		}
	}
	return d.ref.ValidateHeaders(method, headers, required, minUALen)
}

func (d *Dispatcher) callFastValidate(method string, headers http.Header, required []string, minUALen int) (reason string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.demote(r)
			ok = false
		}
	}()
	return d.fast.ValidateHeaders(method, headers, required, minUALen), true
}

// demote pins the reference backend for the rest of the process. Logged
// once; later panics can't happen because the fast path is never retried.
func (d *Dispatcher) demote(cause interface{}) {
	if d.useFast.CompareAndSwap(true, false) {
		log.Error().Interface("panic", cause).Msg("fast backend failed, pinned to reference backend")
		if d.onFallback != nil {
			d.onFallback()
		}
	}
}

func featuresEqual(a, b risk.FeatureVector) bool {
	return a.IP == b.IP &&
		a.PathLen == b.PathLen &&
		a.KeywordHits == b.KeywordHits &&
		math.Abs(a.ResponseTime-b.ResponseTime) <= floatTolerance &&
		a.StatusIdx == b.StatusIdx &&
		a.BurstCount == b.BurstCount &&
		a.Total404s == b.Total404s
}

func snapshotsEqual(a, b risk.BehaviorSnapshot) bool {
	return math.Abs(a.AvgKeywordHits-b.AvgKeywordHits) <= floatTolerance &&
		a.Max404s == b.Max404s &&
		math.Abs(a.AvgBurst-b.AvgBurst) <= floatTolerance &&
		a.TotalRequests == b.TotalRequests &&
		a.Scanning404s == b.Scanning404s &&
		a.Legitimate404s == b.Legitimate404s &&
		a.ShouldBlock == b.ShouldBlock
}

// probeRecords builds a deterministic mixed workload: clean traffic,
// keyword probes, scanning 404s and a tight burst.
func probeRecords() []risk.RequestRecord {
	base := time.Unix(1700000000, 0)
	mk := func(path string, offset time.Duration, status int) risk.RequestRecord {
		rec := risk.NewRequestRecord("198.51.100.7", "GET", path, base.Add(offset))
		rec.Status = status
		rec.ResponseTime = 0.025
		return rec
	}
	recs := []risk.RequestRecord{
		mk("/", 0, 200),
		mk("/about", 2*time.Second, 200),
		mk("/wp-login.php", 3*time.Second, 404),
		mk("/.env", 3500*time.Millisecond, 404),
		mk("/missing-page", 14*time.Second, 404),
		mk("/admin/config.php", 15*time.Second, 404),
	}
	// a burst of rapid hits
	for i := 0; i < 8; i++ {
		recs = append(recs, mk("/search", 20*time.Second+time.Duration(i)*100*time.Millisecond, 200))
	}
	recs[1].KeywordCheck = false
	return recs
}
