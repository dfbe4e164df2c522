package main

import (
	"context"
	"strings"
	"testing"

	"github.com/shortontech/goshield/internal/engine"
	"github.com/shortontech/goshield/internal/storage"
	"github.com/shortontech/goshield/pkg/config"
)

func TestSyntheticRequestsCoverEachRiskClass(t *testing.T) {
	recs := syntheticRequests()
	if len(recs) != 5 {
		t.Fatalf("expected 5 synthetic requests, got %d", len(recs))
	}

	ips := map[string]bool{}
	for _, rec := range recs {
		if rec.IP == "" || rec.Path == "" {
			t.Errorf("incomplete record: %+v", rec)
		}
		if ips[rec.IP] {
			t.Errorf("duplicate ip %s; classes must not share rate windows", rec.IP)
		}
		ips[rec.IP] = true
	}
}

func TestSyntheticVerdicts(t *testing.T) {
	t.Setenv("GOSHIELD_STORAGE", "memory")
	cfg := config.Load()
	eng := engine.New(cfg, storage.NewMemoryStore(), nil, nil)

	allowed := 0
	for _, rec := range syntheticRequests() {
		rec.PathLower = strings.ToLower(rec.Path)
		if d := eng.Evaluate(context.Background(), &rec); d.Allow {
			allowed++
		}
	}
	if allowed != 1 {
		t.Errorf("expected exactly the clean request allowed, got %d", allowed)
	}

	runSelfCheck(context.Background(), eng)
}
