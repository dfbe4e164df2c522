package anomaly

import (
	"math"
	"math/rand"
	"net/http"
	"testing"
	"time"

	"github.com/shortontech/goshield/internal/risk"
)

func TestBackendParity(t *testing.T) {
	ref := NewReferenceBackend()
	fast := NewFastBackend()
	p := testParams()

	t.Run("probe workload", func(t *testing.T) {
		records := probeRecords()
		for cut := 0; cut <= len(records); cut++ {
			rs := ref.Analyze(records[:cut], p)
			fs := fast.Analyze(records[:cut], p)
			if !snapshotsEqual(rs, fs) {
				t.Errorf("window %d: reference %+v != fast %+v", cut, rs, fs)
			}
		}
	})

	t.Run("randomized workloads", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		paths := []string{"/", "/home", "/wp-login.php", "/.env", "/admin/x", "/blog/post", "/search"}
		statuses := []int{200, 200, 200, 404, 404, 403, 500}

		for trial := 0; trial < 50; trial++ {
			n := 1 + rng.Intn(60)
			recs := make([]risk.RequestRecord, 0, n)
			for i := 0; i < n; i++ {
				rec := record("9.9.9.9", paths[rng.Intn(len(paths))],
					time.Duration(rng.Intn(120000))*time.Millisecond, statuses[rng.Intn(len(statuses))])
				if rng.Intn(10) == 0 {
					rec.KeywordCheck = false
				}
				recs = append(recs, rec)
			}

			rs := ref.Analyze(recs, p)
			fs := fast.Analyze(recs, p)
			if !snapshotsEqual(rs, fs) {
				t.Fatalf("trial %d: reference %+v != fast %+v", trial, rs, fs)
			}
			if math.Abs(rs.AvgBurst-fs.AvgBurst) > floatTolerance {
				t.Fatalf("trial %d: burst drift %v vs %v", trial, rs.AvgBurst, fs.AvgBurst)
			}
		}
	})

	t.Run("feature extraction", func(t *testing.T) {
		for _, rec := range probeRecords() {
			rv := ref.ExtractFeatures(rec, p.Keywords)
			fv := fast.ExtractFeatures(rec, p.Keywords)
			if !featuresEqual(rv, fv) {
				t.Errorf("path %s: reference %+v != fast %+v", rec.Path, rv, fv)
			}
		}
	})
}

func TestDispatcherSelectsFastAfterProbe(t *testing.T) {
	d := NewDispatcher(true)
	if d.Backend().Name() != "fast" {
		t.Errorf("expected fast backend after a passing probe, got %s", d.Backend().Name())
	}
}

func TestDispatcherDisabled(t *testing.T) {
	d := NewDispatcher(false)
	if d.Backend().Name() != "reference" {
		t.Errorf("expected reference backend when disabled, got %s", d.Backend().Name())
	}
}

// panicBackend blows up on analysis to exercise permanent demotion.
type panicBackend struct{ Backend }

func (panicBackend) Analyze([]risk.RequestRecord, Params) risk.BehaviorSnapshot {
	panic("accelerated path exploded")
}

func TestDispatcherDemotesOnPanic(t *testing.T) {
	d := NewDispatcher(true)
	d.probeOnce.Do(func() {}) // skip the probe
	d.useFast.Store(true)
	d.fast = panicBackend{NewFastBackend()}

	fallbacks := 0
	d.OnFallback(func() { fallbacks++ })

	recs := probeRecords()
	p := testParams()

	snap := d.Analyze(recs, p)
	want := NewReferenceBackend().Analyze(recs, p)
	if !snapshotsEqual(snap, want) {
		t.Errorf("expected reference result after panic, got %+v", snap)
	}

	if d.useFast.Load() {
		t.Error("expected permanent demotion after a panic")
	}
	if d.Backend().Name() != "reference" {
		t.Errorf("expected reference pinned, got %s", d.Backend().Name())
	}
	if fallbacks != 1 {
		t.Errorf("expected exactly one fallback notification, got %d", fallbacks)
	}

	// the reference path stays pinned; later calls don't notify again
	d.Analyze(recs, p)
	if fallbacks != 1 {
		t.Errorf("expected no further notifications, got %d", fallbacks)
	}
}

func TestDispatcherAnalyzeAndValidateAgree(t *testing.T) {
	d := NewDispatcher(true)
	p := testParams()
	recs := probeRecords()

	snap := d.Analyze(recs, p)
	want := NewReferenceBackend().Analyze(recs, p)
	if !snapshotsEqual(snap, want) {
		t.Errorf("dispatcher result diverges from reference: %+v vs %+v", snap, want)
	}

	h := http.Header{}
	h.Set("User-Agent", "curl/8.5.0")
	if reason := d.ValidateHeaders("GET", h, []string{"User-Agent"}, 10); reason == "" {
		t.Error("expected curl UA rejected through the dispatcher")
	}
}
