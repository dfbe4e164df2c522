// Package metrics exposes engine counters over Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds all Prometheus instruments for the engine.
type Metrics struct {
	// Counters
	Evaluations      *prometheus.CounterVec // by decision: allow, block, rate_limited
	Blocks           *prometheus.CounterVec // by detector
	BackendFallbacks prometheus.Counter
	AuditErrors      *prometheus.CounterVec // by sink

	// Histograms
	EvalDuration prometheus.Histogram
}

// New creates and registers all engine metrics on reg. Passing a fresh
// registry keeps tests independent; production uses the default one.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goshield_evaluations_total",
				Help: "Requests evaluated, by resulting decision",
			},
			[]string{"decision"},
		),
		Blocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goshield_blocks_total",
				Help: "Requests blocked, by detector",
			},
			[]string{"detector"},
		),
		BackendFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "goshield_backend_fallbacks_total",
				Help: "Times the accelerated backend was demoted to reference",
			},
		),
		AuditErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goshield_audit_errors_total",
				Help: "Failed audit sink publishes, by sink",
			},
			[]string{"sink"},
		),
		EvalDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "goshield_evaluation_duration_seconds",
				Help:    "Engine evaluation latency",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
		),
	}

	reg.MustRegister(m.Evaluations, m.Blocks, m.BackendFallbacks, m.AuditErrors, m.EvalDuration)
	return m
}

// ObserveDecision records the outcome of one evaluation.
func (m *Metrics) ObserveDecision(decision, detector string, d time.Duration) {
	m.Evaluations.WithLabelValues(decision).Inc()
	if detector != "" && decision != "allow" {
		m.Blocks.WithLabelValues(detector).Inc()
	}
	m.EvalDuration.Observe(d.Seconds())
}

// Server serves /metrics on its own listener.
type Server struct {
	server  *http.Server
	enabled bool
}

// NewServer builds the metrics listener. Gatherer is usually the default
// prometheus gatherer.
func NewServer(enabled bool, addr string, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return &Server{
		enabled: enabled,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start launches the listener in the background; a disabled server is a
// no-op.
func (s *Server) Start(ctx context.Context) error {
	if !s.enabled {
		log.Debug().Msg("metrics server disabled")
		return nil
	}
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("metrics server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	return nil
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.enabled {
		return nil
	}
	return s.server.Shutdown(ctx)
}
