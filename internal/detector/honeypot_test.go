package detector

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shortontech/goshield/internal/risk"
	"github.com/shortontech/goshield/internal/window"
)

func formReq(ip, method string, offset time.Duration) *risk.RequestRecord {
	rec := risk.NewRequestRecord(ip, method, "/contact", time.Unix(1700000000, 0).Add(offset))
	return &rec
}

func TestHoneypotTiming(t *testing.T) {
	ctx := context.Background()

	t.Run("instant submit blocks with elapsed time in the reason", func(t *testing.T) {
		bl, store := newTestBlocklist()
		hp := NewHoneypot(window.NewCache(), bl, 500*time.Millisecond)

		if d, matched := hp.Check(ctx, formReq("1.1.1.1", "GET", 0)); matched {
			t.Fatalf("GET must never match, got %+v", d)
		}

		d, matched := hp.Check(ctx, formReq("1.1.1.1", "POST", 300*time.Millisecond))
		if !matched || d.Status != 403 {
			t.Fatalf("expected block for 0.3s submit, got %+v matched=%v", d, matched)
		}
		if !strings.Contains(d.Reason, "0.30s") {
			t.Errorf("expected elapsed time in reason, got %q", d.Reason)
		}
		if d.Detector != risk.DetectorHoneypot {
			t.Errorf("expected honeypot attribution, got %q", d.Detector)
		}

		blocked, _ := store.IsIPBlacklisted(ctx, "1.1.1.1")
		if !blocked {
			t.Error("expected ip persisted to blacklist")
		}
	})

	t.Run("human-speed submit passes", func(t *testing.T) {
		bl, _ := newTestBlocklist()
		hp := NewHoneypot(window.NewCache(), bl, 500*time.Millisecond)

		hp.Check(ctx, formReq("2.2.2.2", "GET", 0))
		if d, matched := hp.Check(ctx, formReq("2.2.2.2", "POST", 2*time.Second)); matched {
			t.Errorf("expected allow for 2.0s submit, got %+v", d)
		}
	})

	t.Run("post without baseline falls through", func(t *testing.T) {
		bl, _ := newTestBlocklist()
		hp := NewHoneypot(window.NewCache(), bl, 500*time.Millisecond)

		if d, matched := hp.Check(ctx, formReq("3.3.3.3", "POST", 0)); matched {
			t.Errorf("expected fall-through with no GET baseline, got %+v", d)
		}
	})

	t.Run("newer GET refreshes the baseline", func(t *testing.T) {
		bl, _ := newTestBlocklist()
		hp := NewHoneypot(window.NewCache(), bl, 500*time.Millisecond)

		hp.Check(ctx, formReq("4.4.4.4", "GET", 0))
		hp.Check(ctx, formReq("4.4.4.4", "GET", 10*time.Second))

		d, matched := hp.Check(ctx, formReq("4.4.4.4", "POST", 10*time.Second+100*time.Millisecond))
		if !matched || d.Status != 403 {
			t.Errorf("expected block measured from the newest GET, got %+v", d)
		}
	})

	t.Run("other methods are ignored", func(t *testing.T) {
		bl, _ := newTestBlocklist()
		hp := NewHoneypot(window.NewCache(), bl, 500*time.Millisecond)

		if d, matched := hp.Check(ctx, formReq("5.5.5.5", "PUT", 0)); matched {
			t.Errorf("expected PUT ignored, got %+v", d)
		}
	})
}

func TestHoneypotBaselineDoesNotFeedRateLimit(t *testing.T) {
	// the honeypot and rate limiter share one cache; GET baselines must not
	// count as rate-limit events for the same client
	ctx := context.Background()
	bl, _ := newTestBlocklist()
	cache := window.NewCache()
	hp := NewHoneypot(cache, bl, 500*time.Millisecond)
	rl := NewRateLimit(cache, bl, 10*time.Second, 2, 4)

	for i := 0; i < 10; i++ {
		hp.Check(ctx, formReq("6.6.6.6", "GET", time.Duration(i)*100*time.Millisecond))
	}
	if d, matched := rl.Check(ctx, req("6.6.6.6", time.Second)); matched {
		t.Errorf("honeypot baselines leaked into the rate window: %+v", d)
	}
}
