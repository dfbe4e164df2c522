package audit

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogSink writes block events to the process log.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Start(ctx context.Context) error { return nil }

func (s *LogSink) Publish(e BlockEvent) error {
	log.Info().
		Str("event_id", e.EventID).
		Str("ip", e.IP).
		Str("detector", e.Detector).
		Str("reason", e.Reason).
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Msg("request blocked")
	return nil
}

func (s *LogSink) Close() error { return nil }

func (s *LogSink) Name() string { return "log" }
