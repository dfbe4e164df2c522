// Package storage holds the persistent block/allow/keyword state behind the
// engine. Backends are interchangeable; the engine only ever talks to Store
// and treats every call as potentially slow I/O.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when a backend cannot reach its storage.
	ErrUnavailable = errors.New("storage backend unavailable")

	// ErrUnknownBackend is returned by Open for unrecognized backend names.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// BlacklistEntry is one blocked client. IP is unique; re-blocking the same
// IP overwrites Reason and Timestamp rather than erroring.
type BlacklistEntry struct {
	IP           string    `json:"ip"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
	ExtendedInfo []byte    `json:"extended_info,omitempty"`
}

// WhitelistEntry is one always-allowed client.
type WhitelistEntry struct {
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the persistent collaborator consumed by the engine. Methods take
// a context because backends may do network or file I/O; the engine never
// holds an in-memory lock across these calls.
type Store interface {
	IsIPWhitelisted(ctx context.Context, ip string) (bool, error)
	AddIPWhitelist(ctx context.Context, ip string) error
	RemoveIPWhitelist(ctx context.Context, ip string) error
	ListWhitelist(ctx context.Context) ([]WhitelistEntry, error)

	IsIPBlacklisted(ctx context.Context, ip string) (bool, error)
	AddIPBlacklist(ctx context.Context, ip, reason string, extendedInfo []byte) error
	RemoveIPBlacklist(ctx context.Context, ip string) error
	ListBlacklist(ctx context.Context) ([]BlacklistEntry, error)

	AddKeyword(ctx context.Context, keyword string) error
	GetTopKeywords(ctx context.Context, n int) ([]string, error)

	Close() error
}
