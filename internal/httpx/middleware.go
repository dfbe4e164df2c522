// Package httpx integrates the engine with net/http. The engine itself
// knows nothing about HTTP handlers; everything request-shaped is
// translated here.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shortontech/goshield/internal/engine"
	"github.com/shortontech/goshield/internal/risk"
	"github.com/shortontech/goshield/pkg/config"
)

// AuthFunc reports whether the current request is authenticated. The host
// application supplies it; a nil AuthFunc means "never authenticated".
type AuthFunc func(r *http.Request) bool

// Env bundles what the handlers and middleware need.
type Env struct {
	Cfg    config.Config
	Engine *engine.Engine
	Auth   AuthFunc
}

// ClientIP extracts the canonical client address. Proxy headers are only
// honored when the deployment says a trusted proxy sets them; otherwise
// anyone could spoof their way around per-IP detection.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			return risk.ClientKey(strings.Split(xff, ",")[0])
		}
		if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			return risk.ClientKey(xrip)
		}
	}
	return risk.ClientKey(r.RemoteAddr)
}

// statusRecorder captures the downstream status code for Observe.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// record builds the engine's view of the request.
func (e Env) record(r *http.Request) risk.RequestRecord {
	rec := risk.NewRequestRecord(ClientIP(r, e.Cfg.TrustProxy), r.Method, r.URL.Path, time.Now())
	rec.Query = r.URL.RawQuery
	rec.Host = r.Host
	rec.URL = requestURL(r)
	rec.Headers = r.Header
	if e.Auth != nil {
		rec.Authenticated = e.Auth(r)
	}
	return rec
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// Protect evaluates every request before it reaches next and feeds the
// completed request back into the engine's history afterwards.
func (e Env) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := e.record(r)
		decision := e.Engine.Evaluate(r.Context(), &rec)
		if !decision.Allow {
			writeRejection(w, decision)
			rec.Status = decision.Status
			e.Engine.Observe(r.Context(), rec)
			return
		}

		sr := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sr, r)

		if sr.status == 0 {
			sr.status = http.StatusOK
		}
		rec.Status = sr.status
		rec.ResponseTime = time.Since(start).Seconds()
		e.Engine.Observe(r.Context(), rec)
	})
}

func writeRejection(w http.ResponseWriter, d risk.Decision) {
	w.Header().Set("Content-Type", "application/json")
	if d.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
	}
	w.WriteHeader(d.Status)
	body := map[string]string{"error": "blocked"}
	if d.Status == http.StatusTooManyRequests {
		body["error"] = "too many requests"
	}
	_ = json.NewEncoder(w).Encode(body)
}

// RequestLogger logs method, path and duration for each request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ua", r.UserAgent()).
			Dur("dur", time.Since(start)).
			Msg("request")
	})
}
