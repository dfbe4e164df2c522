package detector

import (
	"context"
	"testing"
	"time"

	"github.com/shortontech/goshield/internal/risk"
)

func uuidReq(path, query string) *risk.RequestRecord {
	rec := risk.NewRequestRecord("1.1.1.1", "GET", path, time.Unix(1700000000, 0))
	rec.Query = query
	return &rec
}

func TestUUIDTamper(t *testing.T) {
	ctx := context.Background()
	bl, store := newTestBlocklist()
	u := NewUUIDTamper(bl)

	t.Run("valid uuid in path passes", func(t *testing.T) {
		rec := uuidReq("/orders/123e4567-e89b-12d3-a456-426614174000", "")
		if d, matched := u.Check(ctx, rec); matched {
			t.Errorf("expected valid uuid allowed, got %+v", d)
		}
	})

	t.Run("uuid-shaped but invalid path segment blocks", func(t *testing.T) {
		rec := uuidReq("/orders/123e4567-e89b-12d3-a456-42661417400g", "")
		d, matched := u.Check(ctx, rec)
		if !matched || d.Status != 403 {
			t.Fatalf("expected block, got %+v matched=%v", d, matched)
		}
		if d.Detector != risk.DetectorUUIDTamper {
			t.Errorf("expected uuid_tamper attribution, got %q", d.Detector)
		}
		blocked, _ := store.IsIPBlacklisted(ctx, "1.1.1.1")
		if !blocked {
			t.Error("expected ip blacklisted")
		}
	})

	t.Run("tampered uuid in query value blocks", func(t *testing.T) {
		rec := uuidReq("/orders", "id=123e4567-e89b-12d3-a456-42661417400g")
		if _, matched := u.Check(ctx, rec); !matched {
			t.Error("expected query value checked")
		}
	})

	t.Run("non-uuid-shaped values are ignored", func(t *testing.T) {
		for _, rec := range []*risk.RequestRecord{
			uuidReq("/orders/12345", ""),
			uuidReq("/orders/not-a-uuid-but-has-some-hyphens-yes", ""),
			uuidReq("/orders", "q=hello world"),
		} {
			if d, matched := u.Check(ctx, rec); matched {
				t.Errorf("path %s: expected ignore, got %+v", rec.Path, d)
			}
		}
	})

	t.Run("malformed query string is not fatal", func(t *testing.T) {
		rec := uuidReq("/orders", "%zz=%%%")
		if d, matched := u.Check(ctx, rec); matched {
			t.Errorf("expected unparsable query ignored, got %+v", d)
		}
	})
}
