package storage

import (
	"context"
	"fmt"
)

// Options carries backend-specific connection settings.
type Options struct {
	DataDir     string // csv
	PostgresDSN string // postgres
	RedisAddr   string // redis
}

// Open constructs the named backend: "memory", "csv", "postgres" or "redis".
func Open(ctx context.Context, backend string, opts Options) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "csv":
		return NewCSVStore(opts.DataDir)
	case "postgres":
		return NewPostgresStore(ctx, opts.PostgresDSN)
	case "redis":
		return NewRedisStore(ctx, opts.RedisAddr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
