// Package blocklist is the canonical allow/deny memory for the engine.
// The whitelist is consulted first everywhere and strictly overrides the
// blacklist; storage failures degrade toward "no entry" so missing data
// never fabricates a block.
package blocklist

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/shortontech/goshield/internal/risk"
	"github.com/shortontech/goshield/internal/storage"
)

// Manager mediates between detectors and the persistent store.
type Manager struct {
	store   storage.Store
	capture CaptureConfig
}

// NewManager wires the persistent store and the capture policy.
func NewManager(store storage.Store, capture CaptureConfig) *Manager {
	return &Manager{store: store, capture: capture}
}

// IsWhitelisted reports allow-list membership. Errors read as "not listed".
func (m *Manager) IsWhitelisted(ctx context.Context, ip string) bool {
	ok, err := m.store.IsIPWhitelisted(ctx, ip)
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("whitelist lookup failed")
		return false
	}
	return ok
}

// IsBlocked reports deny-list membership. Errors read as "not listed":
// absence of data never fabricates a block.
func (m *Manager) IsBlocked(ctx context.Context, ip string) bool {
	ok, err := m.store.IsIPBlacklisted(ctx, ip)
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("blacklist lookup failed")
		return false
	}
	return ok
}

// Block adds ip to the deny list, attaching a bounded diagnostic payload
// built from rec when capture is enabled. Re-blocking overwrites the
// existing reason and timestamp; it is never an error. Whitelisted IPs are
// never blocked.
func (m *Manager) Block(ctx context.Context, ip, reason string, rec *risk.RequestRecord) {
	if m.IsWhitelisted(ctx, ip) {
		log.Debug().Str("ip", ip).Msg("skip block, ip is whitelisted")
		return
	}
	var info []byte
	if rec != nil {
		info = BuildExtendedInfo(*rec, m.capture)
	}
	if err := m.store.AddIPBlacklist(ctx, ip, reason, info); err != nil {
		log.Error().Err(err).Str("ip", ip).Str("reason", reason).Msg("blacklist insert failed")
	}
}

// Unblock removes ip from the deny list; a no-op when absent.
func (m *Manager) Unblock(ctx context.Context, ip string) {
	if err := m.store.RemoveIPBlacklist(ctx, ip); err != nil {
		log.Error().Err(err).Str("ip", ip).Msg("blacklist remove failed")
	}
}

// Whitelist adds ip to the allow list.
func (m *Manager) Whitelist(ctx context.Context, ip string) {
	if err := m.store.AddIPWhitelist(ctx, ip); err != nil {
		log.Error().Err(err).Str("ip", ip).Msg("whitelist insert failed")
	}
}

// LearnKeyword records a keyword occurrence for later GetTopKeywords calls.
func (m *Manager) LearnKeyword(ctx context.Context, keyword string) {
	if err := m.store.AddKeyword(ctx, keyword); err != nil {
		log.Warn().Err(err).Str("keyword", keyword).Msg("keyword learn failed")
	}
}

// TopKeywords returns up to n learned keywords, frequency-descending.
func (m *Manager) TopKeywords(ctx context.Context, n int) []string {
	kws, err := m.store.GetTopKeywords(ctx, n)
	if err != nil {
		log.Warn().Err(err).Msg("top keyword lookup failed")
		return nil
	}
	return kws
}
