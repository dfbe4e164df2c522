package detector

import (
	"context"
	"testing"
	"time"

	"github.com/shortontech/goshield/internal/risk"
)

func pathReq(ip, path string) *risk.RequestRecord {
	rec := risk.NewRequestRecord(ip, "GET", path, time.Unix(1700000000, 0))
	return &rec
}

func TestKeywordDetector(t *testing.T) {
	ctx := context.Background()

	t.Run("static keyword match blocks and blacklists", func(t *testing.T) {
		bl, store := newTestBlocklist()
		k := NewKeyword(bl, []string{".php", "xmlrpc"}, 10)

		d, matched := k.Check(ctx, pathReq("1.1.1.1", "/blog/wp-login.php"))
		if !matched || d.Status != 403 {
			t.Fatalf("expected block, got %+v matched=%v", d, matched)
		}
		if d.Reason != "keyword match: .php" {
			t.Errorf("unexpected reason %q", d.Reason)
		}

		blocked, _ := store.IsIPBlacklisted(ctx, "1.1.1.1")
		if !blocked {
			t.Error("expected ip blacklisted")
		}
	})

	t.Run("matching is case insensitive via the lowered path", func(t *testing.T) {
		bl, _ := newTestBlocklist()
		k := NewKeyword(bl, []string{".PHP"}, 10)

		if _, matched := k.Check(ctx, pathReq("2.2.2.2", "/INDEX.PHP")); !matched {
			t.Error("expected case-insensitive match")
		}
	})

	t.Run("clean path passes", func(t *testing.T) {
		bl, _ := newTestBlocklist()
		k := NewKeyword(bl, []string{".php"}, 10)

		if d, matched := k.Check(ctx, pathReq("3.3.3.3", "/about")); matched {
			t.Errorf("expected allow, got %+v", d)
		}
	})

	t.Run("disabled keyword check skips the detector", func(t *testing.T) {
		bl, _ := newTestBlocklist()
		k := NewKeyword(bl, []string{".php"}, 10)

		rec := pathReq("4.4.4.4", "/index.php")
		rec.KeywordCheck = false
		if d, matched := k.Check(ctx, rec); matched {
			t.Errorf("expected skip with keyword check off, got %+v", d)
		}
	})

	t.Run("hits feed the learned keyword set", func(t *testing.T) {
		bl, store := newTestBlocklist()
		k := NewKeyword(bl, []string{"xmlrpc"}, 10)

		k.Check(ctx, pathReq("5.5.5.5", "/xmlrpc.php"))

		kws, err := store.GetTopKeywords(ctx, 10)
		if err != nil || len(kws) != 1 || kws[0] != "xmlrpc" {
			t.Errorf("expected learned keyword recorded, got %v (err %v)", kws, err)
		}
	})

	t.Run("learned keywords block future requests", func(t *testing.T) {
		bl, store := newTestBlocklist()
		k := NewKeyword(bl, nil, 10)

		// learned out of band, e.g. by another instance sharing the store
		if err := store.AddKeyword(ctx, "filemanager"); err != nil {
			t.Fatal(err)
		}

		d, matched := k.Check(ctx, pathReq("6.6.6.6", "/plugins/filemanager/upload"))
		if !matched {
			t.Fatal("expected learned keyword to block")
		}
		if d.Reason != "keyword match: filemanager" {
			t.Errorf("unexpected reason %q", d.Reason)
		}
	})
}
