package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shortontech/goshield/internal/audit"
	"github.com/shortontech/goshield/internal/engine"
	"github.com/shortontech/goshield/internal/httpx"
	"github.com/shortontech/goshield/internal/metrics"
	"github.com/shortontech/goshield/internal/storage"
	"github.com/shortontech/goshield/pkg/config"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("GOSHIELD_LOG_PRETTY") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.StorageBackend, storage.Options{
		DataDir:     cfg.DataDir,
		PostgresDSN: cfg.PostgresDSN,
		RedisAddr:   cfg.RedisAddr,
	})
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("storage unavailable")
	}
	defer store.Close()

	sinks := buildSinks(ctx, cfg)
	m := metrics.New(prometheus.DefaultRegisterer)
	eng := engine.New(cfg, store, m, sinks)
	defer eng.Shutdown()

	if len(os.Args) > 1 && os.Args[1] == "selfcheck" {
		runSelfCheck(ctx, eng)
		return
	}

	metricsSrv := metrics.NewServer(cfg.MetricsEnabled, cfg.MetricsAddr, prometheus.DefaultGatherer)
	_ = metricsSrv.Start(ctx)

	env := httpx.Env{Cfg: cfg, Engine: eng}
	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: httpx.NewMux(env, http.HandlerFunc(demoHandler)),
	}

	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Msg("goshield listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

func buildSinks(ctx context.Context, cfg config.Config) []audit.Sink {
	var sinks []audit.Sink
	for _, name := range cfg.AuditOutputs {
		switch name {
		case "log":
			s := audit.NewLogSink()
			_ = s.Start(ctx)
			sinks = append(sinks, s)
		case "kafka":
			s := audit.NewKafkaSinkFromEnv()
			if err := s.Start(ctx); err != nil {
				log.Error().Err(err).Msg("kafka audit sink unavailable, skipping")
				continue
			}
			sinks = append(sinks, s)
		default:
			log.Warn().Str("sink", name).Msg("unknown audit sink")
		}
	}
	return sinks
}

// demoHandler stands in for the protected application.
func demoHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("goshield demo application\n"))
}
