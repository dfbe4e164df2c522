package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the default backend: process-local maps under a RWMutex.
// Suitable for single-instance deployments and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	whitelist map[string]WhitelistEntry
	blacklist map[string]BlacklistEntry
	keywords  map[string]int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		whitelist: make(map[string]WhitelistEntry),
		blacklist: make(map[string]BlacklistEntry),
		keywords:  make(map[string]int),
	}
}

func (s *MemoryStore) IsIPWhitelisted(_ context.Context, ip string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.whitelist[ip]
	return ok, nil
}

func (s *MemoryStore) AddIPWhitelist(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelist[ip] = WhitelistEntry{IP: ip, Timestamp: time.Now()}
	return nil
}

func (s *MemoryStore) RemoveIPWhitelist(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.whitelist, ip)
	return nil
}

func (s *MemoryStore) ListWhitelist(_ context.Context) ([]WhitelistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WhitelistEntry, 0, len(s.whitelist))
	for _, e := range s.whitelist {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out, nil
}

func (s *MemoryStore) IsIPBlacklisted(_ context.Context, ip string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[ip]
	return ok, nil
}

// AddIPBlacklist inserts or overwrites; blocking twice leaves one entry.
func (s *MemoryStore) AddIPBlacklist(_ context.Context, ip, reason string, extendedInfo []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[ip] = BlacklistEntry{
		IP:           ip,
		Reason:       reason,
		Timestamp:    time.Now(),
		ExtendedInfo: extendedInfo,
	}
	return nil
}

// RemoveIPBlacklist is a no-op when the IP is absent.
func (s *MemoryStore) RemoveIPBlacklist(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blacklist, ip)
	return nil
}

func (s *MemoryStore) ListBlacklist(_ context.Context) ([]BlacklistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BlacklistEntry, 0, len(s.blacklist))
	for _, e := range s.blacklist {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out, nil
}

func (s *MemoryStore) AddKeyword(_ context.Context, keyword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords[keyword]++
	return nil
}

// GetTopKeywords returns up to n keywords by descending frequency. Ties
// break alphabetically so the result is deterministic.
func (s *MemoryStore) GetTopKeywords(_ context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	type kc struct {
		kw    string
		count int
	}
	all := make([]kc, 0, len(s.keywords))
	for kw, count := range s.keywords {
		all = append(all, kc{kw, count})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].kw < all[j].kw
	})
	if n > len(all) {
		n = len(all)
	}
	out := make([]string, 0, n)
	for _, e := range all[:n] {
		out = append(out, e.kw)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
