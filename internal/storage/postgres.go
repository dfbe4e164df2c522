package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists the lists in three tables. Schema is created on
// open so a fresh database works out of the box.
type PostgresStore struct {
	db *sql.DB
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS goshield_whitelist (
	ip         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS goshield_blacklist (
	ip            TEXT PRIMARY KEY,
	reason        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	extended_info JSONB
);
CREATE TABLE IF NOT EXISTS goshield_keywords (
	keyword    TEXT PRIMARY KEY,
	hits       BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection; tests use this with
// sqlmock.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) IsIPWhitelisted(ctx context.Context, ip string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM goshield_whitelist WHERE ip = $1)`, ip).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) AddIPWhitelist(ctx context.Context, ip string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goshield_whitelist (ip) VALUES ($1) ON CONFLICT (ip) DO NOTHING`, ip)
	return err
}

func (s *PostgresStore) RemoveIPWhitelist(ctx context.Context, ip string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM goshield_whitelist WHERE ip = $1`, ip)
	return err
}

func (s *PostgresStore) ListWhitelist(ctx context.Context) ([]WhitelistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ip, created_at FROM goshield_whitelist ORDER BY ip`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WhitelistEntry
	for rows.Next() {
		var e WhitelistEntry
		if err := rows.Scan(&e.IP, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) IsIPBlacklisted(ctx context.Context, ip string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM goshield_blacklist WHERE ip = $1)`, ip).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) AddIPBlacklist(ctx context.Context, ip, reason string, extendedInfo []byte) error {
	var info interface{}
	if len(extendedInfo) > 0 {
		info = extendedInfo
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goshield_blacklist (ip, reason, extended_info)
		VALUES ($1, $2, $3)
		ON CONFLICT (ip) DO UPDATE
		SET reason = EXCLUDED.reason,
		    created_at = now(),
		    extended_info = EXCLUDED.extended_info`,
		ip, reason, info)
	return err
}

func (s *PostgresStore) RemoveIPBlacklist(ctx context.Context, ip string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM goshield_blacklist WHERE ip = $1`, ip)
	return err
}

func (s *PostgresStore) ListBlacklist(ctx context.Context) ([]BlacklistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ip, reason, created_at, COALESCE(extended_info, 'null'::jsonb)
		 FROM goshield_blacklist ORDER BY ip`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlacklistEntry
	for rows.Next() {
		var e BlacklistEntry
		var info []byte
		if err := rows.Scan(&e.IP, &e.Reason, &e.Timestamp, &info); err != nil {
			return nil, err
		}
		if string(info) != "null" {
			e.ExtendedInfo = info
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddKeyword(ctx context.Context, keyword string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goshield_keywords (keyword) VALUES ($1)
		ON CONFLICT (keyword) DO UPDATE
		SET hits = goshield_keywords.hits + 1, updated_at = now()`,
		keyword)
	return err
}

func (s *PostgresStore) GetTopKeywords(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT keyword FROM goshield_keywords ORDER BY hits DESC, keyword ASC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, err
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error { return s.db.Close() }
