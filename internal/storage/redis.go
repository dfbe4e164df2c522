package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisWhitelistKey = "goshield:whitelist"
	redisBlacklistKey = "goshield:blacklist"
	redisKeywordsKey  = "goshield:keywords"
)

// RedisStore shares the lists across instances: whitelist and blacklist are
// hashes keyed by IP, keywords a sorted set scored by hit count.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and verifies the server is reachable.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) IsIPWhitelisted(ctx context.Context, ip string) (bool, error) {
	return s.client.HExists(ctx, redisWhitelistKey, ip).Result()
}

func (s *RedisStore) AddIPWhitelist(ctx context.Context, ip string) error {
	e := WhitelistEntry{IP: ip, Timestamp: time.Now()}
	raw, _ := json.Marshal(e)
	return s.client.HSet(ctx, redisWhitelistKey, ip, raw).Err()
}

func (s *RedisStore) RemoveIPWhitelist(ctx context.Context, ip string) error {
	return s.client.HDel(ctx, redisWhitelistKey, ip).Err()
}

func (s *RedisStore) ListWhitelist(ctx context.Context) ([]WhitelistEntry, error) {
	raw, err := s.client.HGetAll(ctx, redisWhitelistKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]WhitelistEntry, 0, len(raw))
	for ip, v := range raw {
		var e WhitelistEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			e = WhitelistEntry{IP: ip}
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) IsIPBlacklisted(ctx context.Context, ip string) (bool, error) {
	return s.client.HExists(ctx, redisBlacklistKey, ip).Result()
}

func (s *RedisStore) AddIPBlacklist(ctx context.Context, ip, reason string, extendedInfo []byte) error {
	e := BlacklistEntry{
		IP:           ip,
		Reason:       reason,
		Timestamp:    time.Now(),
		ExtendedInfo: extendedInfo,
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, redisBlacklistKey, ip, raw).Err()
}

func (s *RedisStore) RemoveIPBlacklist(ctx context.Context, ip string) error {
	return s.client.HDel(ctx, redisBlacklistKey, ip).Err()
}

func (s *RedisStore) ListBlacklist(ctx context.Context) ([]BlacklistEntry, error) {
	raw, err := s.client.HGetAll(ctx, redisBlacklistKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]BlacklistEntry, 0, len(raw))
	for ip, v := range raw {
		var e BlacklistEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			e = BlacklistEntry{IP: ip}
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) AddKeyword(ctx context.Context, keyword string) error {
	return s.client.ZIncrBy(ctx, redisKeywordsKey, 1, keyword).Err()
}

func (s *RedisStore) GetTopKeywords(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.client.ZRevRange(ctx, redisKeywordsKey, 0, int64(n-1)).Result()
}

func (s *RedisStore) Close() error { return s.client.Close() }
