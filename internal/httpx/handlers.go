package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/shortontech/goshield/internal/exempt"
)

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Snapshot returns the behavior snapshot for ?ip=... without blocking
// anyone; it exists for operators poking at a suspicious client.
func (e Env) Snapshot(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		http.Error(w, "missing ip parameter", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(e.Engine.Snapshot(ip))
}

// NewMux assembles the demo server: operational endpoints stay outside the
// protection middleware, everything else runs through it.
func NewMux(e Env, app http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", e.Healthz)
	mux.HandleFunc("/readyz", e.Readyz)
	mux.HandleFunc("/goshield/snapshot", e.Snapshot)
	mux.Handle("/", e.Protect(app))

	// Operational endpoints never feed detectors.
	e.Engine.Exemptions().Register("/healthz", exempt.ExemptAll())
	e.Engine.Exemptions().Register("/readyz", exempt.ExemptAll())
	e.Engine.Exemptions().Register("/goshield/snapshot", exempt.ExemptAll())

	return RequestLogger(mux)
}
