package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerAddr != ":19891" {
		t.Errorf("expected default addr :19891, got %q", cfg.ServerAddr)
	}
	if cfg.RateWindow != 10*time.Second {
		t.Errorf("expected rate window 10s, got %v", cfg.RateWindow)
	}
	if cfg.RateMax != 20 || cfg.RateFlood != 40 {
		t.Errorf("expected max/flood 20/40, got %d/%d", cfg.RateMax, cfg.RateFlood)
	}
	if cfg.MinFormTime != time.Second {
		t.Errorf("expected min form time 1s, got %v", cfg.MinFormTime)
	}
	if cfg.MinAILogs != 25 {
		t.Errorf("expected min ai logs 25, got %d", cfg.MinAILogs)
	}
	if cfg.Thresholds != DefaultThresholds() {
		t.Errorf("expected default thresholds, got %+v", cfg.Thresholds)
	}
	if len(cfg.MaliciousKeywords) == 0 {
		t.Error("expected default malicious keywords")
	}
	if cfg.StorageBackend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.StorageBackend)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GOSHIELD_ADDR", ":8443")
	t.Setenv("GOSHIELD_RATE_WINDOW", "2.5")
	t.Setenv("GOSHIELD_RATE_MAX", "5")
	t.Setenv("GOSHIELD_RATE_FLOOD", "9")
	t.Setenv("GOSHIELD_MIN_FORM_TIME", "0.5")
	t.Setenv("GOSHIELD_MALICIOUS_KEYWORDS", ".php, xmlrpc , ")
	t.Setenv("GOSHIELD_TRUST_PROXY", "yes")
	t.Setenv("GOSHIELD_MAX_AVG_KEYWORD_HITS", "7")

	cfg := Load()

	if cfg.ServerAddr != ":8443" {
		t.Errorf("addr: got %q", cfg.ServerAddr)
	}
	if cfg.RateWindow != 2500*time.Millisecond {
		t.Errorf("fractional seconds: got %v", cfg.RateWindow)
	}
	if cfg.RateMax != 5 || cfg.RateFlood != 9 {
		t.Errorf("max/flood: got %d/%d", cfg.RateMax, cfg.RateFlood)
	}
	if cfg.MinFormTime != 500*time.Millisecond {
		t.Errorf("min form time: got %v", cfg.MinFormTime)
	}
	if len(cfg.MaliciousKeywords) != 2 || cfg.MaliciousKeywords[1] != "xmlrpc" {
		t.Errorf("keyword list not trimmed: %v", cfg.MaliciousKeywords)
	}
	if !cfg.TrustProxy {
		t.Error("trust proxy: expected true")
	}
	if cfg.Thresholds.AvgKeywordHits != 7 {
		t.Errorf("threshold override: got %v", cfg.Thresholds.AvgKeywordHits)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("GOSHIELD_RATE_MAX", "not-a-number")
	t.Setenv("GOSHIELD_RATE_WINDOW", "banana")
	t.Setenv("GOSHIELD_TRUST_PROXY", "maybe")

	cfg := Load()

	if cfg.RateMax != 20 {
		t.Errorf("expected default rate max, got %d", cfg.RateMax)
	}
	if cfg.RateWindow != 10*time.Second {
		t.Errorf("expected default rate window, got %v", cfg.RateWindow)
	}
	if cfg.TrustProxy {
		t.Error("expected default trust proxy false")
	}
}

func TestNormalizeRepairs(t *testing.T) {
	t.Run("flood must exceed max", func(t *testing.T) {
		c := Config{RateMax: 50, RateFlood: 10}
		c.normalize()
		if c.RateFlood <= c.RateMax {
			t.Errorf("expected flood > max, got %d/%d", c.RateMax, c.RateFlood)
		}
	})

	t.Run("negative and zero knobs get defaults", func(t *testing.T) {
		c := Config{RateWindow: -time.Second, MinFormTime: -1, HistoryCap: 0}
		c.normalize()
		if c.RateWindow != 10*time.Second {
			t.Errorf("rate window: got %v", c.RateWindow)
		}
		if c.MinFormTime != time.Second {
			t.Errorf("min form time: got %v", c.MinFormTime)
		}
		if c.HistoryCap != 256 {
			t.Errorf("history cap: got %d", c.HistoryCap)
		}
	})

	t.Run("missing thresholds substitute documented defaults", func(t *testing.T) {
		c := Config{RateMax: 20, RateFlood: 40}
		c.normalize()
		if c.Thresholds != DefaultThresholds() {
			t.Errorf("expected default thresholds, got %+v", c.Thresholds)
		}
	})
}

func TestConfigFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goshield.yml")
	data := []byte("rate_max: 7\nthresholds:\n  scanning_404s: 2\nstorage_backend: csv\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GOSHIELD_CONFIG", path)
	t.Setenv("GOSHIELD_RATE_FLOOD", "99")

	cfg := Load()

	if cfg.RateMax != 7 {
		t.Errorf("expected file value 7, got %d", cfg.RateMax)
	}
	if cfg.RateFlood != 99 {
		t.Errorf("expected env value kept for absent file key, got %d", cfg.RateFlood)
	}
	if cfg.Thresholds.Scanning404s != 2 {
		t.Errorf("nested threshold: got %d", cfg.Thresholds.Scanning404s)
	}
	if cfg.StorageBackend != "csv" {
		t.Errorf("backend: got %q", cfg.StorageBackend)
	}
}

func TestConfigFileMissingIsIgnored(t *testing.T) {
	t.Setenv("GOSHIELD_CONFIG", filepath.Join(t.TempDir(), "absent.yml"))

	cfg := Load()
	if cfg.RateMax != 20 {
		t.Errorf("expected defaults to survive a missing file, got %d", cfg.RateMax)
	}
}
