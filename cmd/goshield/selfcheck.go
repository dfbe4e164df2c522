package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shortontech/goshield/internal/engine"
	"github.com/shortontech/goshield/internal/risk"
)

// syntheticRequests builds a small traffic sample with one request from each
// risk class, so every detector gets exercised against a live engine.
func syntheticRequests() []risk.RequestRecord {
	now := time.Now()
	browser := http.Header{}
	browser.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	browser.Set("Accept", "text/html")

	bare := http.Header{}
	bot := http.Header{}
	bot.Set("User-Agent", "python-requests/2.31")

	return []risk.RequestRecord{
		{
			IP: "203.0.113.10", Method: "GET", Path: "/home",
			Headers: browser, Timestamp: now, KeywordCheck: true,
		},
		{
			IP: "203.0.113.11", Method: "GET", Path: "/wp-login.php",
			Headers: browser, Timestamp: now, KeywordCheck: true,
		},
		{
			IP: "203.0.113.12", Method: "GET", Path: "/about",
			Headers: bare, Timestamp: now, KeywordCheck: true,
		},
		{
			IP: "203.0.113.13", Method: "GET", Path: "/search",
			Headers: bot, Timestamp: now, KeywordCheck: true,
		},
		{
			IP: "203.0.113.14", Method: "GET",
			Path:    "/items/123e4567-e89b-12d3-a456-42661417400Z",
			Headers: browser, Timestamp: now, KeywordCheck: true,
		},
	}
}

// runSelfCheck pushes the synthetic sample through the engine and logs each
// verdict. Exactly one record is expected to pass.
func runSelfCheck(ctx context.Context, eng *engine.Engine) {
	log.Info().Msg("running self-check against live engine")

	allowed, blocked := 0, 0
	for _, rec := range syntheticRequests() {
		rec.PathLower = strings.ToLower(rec.Path)
		d := eng.Evaluate(ctx, &rec)
		if d.Allow {
			allowed++
		} else {
			blocked++
		}
		fv := eng.Features(rec)
		log.Info().
			Str("ip", rec.IP).
			Str("path", rec.Path).
			Bool("allow", d.Allow).
			Str("detector", d.Detector).
			Str("reason", d.Reason).
			Int("keyword_hits", fv.KeywordHits).
			Int("path_len", fv.PathLen).
			Msg("self-check verdict")
	}

	log.Info().Int("allowed", allowed).Int("blocked", blocked).Msg("self-check complete")
}
