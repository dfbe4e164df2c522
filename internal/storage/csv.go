package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	whitelistFile = "whitelist.csv"
	blacklistFile = "blacklist.csv"
	keywordsFile  = "keywords.csv"
)

// CSVStore keeps the lists in three small CSV files under a data directory,
// mirroring the layout other deployments manage by hand: one row per entry,
// header row first. State is loaded at open and rewritten atomically on
// every mutation.
type CSVStore struct {
	dir string

	mu        sync.Mutex
	whitelist map[string]WhitelistEntry
	blacklist map[string]BlacklistEntry
	keywords  map[string]int
}

// NewCSVStore opens (or creates) the data directory and loads existing rows.
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &CSVStore{
		dir:       dir,
		whitelist: make(map[string]WhitelistEntry),
		blacklist: make(map[string]BlacklistEntry),
		keywords:  make(map[string]int),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CSVStore) load() error {
	rows, err := readCSV(filepath.Join(s.dir, whitelistFile))
	if err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) < 1 || row[0] == "" {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, field(row, 1))
		s.whitelist[row[0]] = WhitelistEntry{IP: row[0], Timestamp: ts}
	}

	rows, err = readCSV(filepath.Join(s.dir, blacklistFile))
	if err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) < 1 || row[0] == "" {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, field(row, 1))
		entry := BlacklistEntry{IP: row[0], Timestamp: ts, Reason: field(row, 2)}
		if raw := field(row, 3); raw != "" && json.Valid([]byte(raw)) {
			entry.ExtendedInfo = []byte(raw)
		}
		s.blacklist[row[0]] = entry
	}

	rows, err = readCSV(filepath.Join(s.dir, keywordsFile))
	if err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) < 1 || row[0] == "" {
			continue
		}
		s.keywords[row[0]]++
	}
	return nil
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// readCSV returns data rows, skipping the header. A missing file is empty,
// not an error.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) > 0 {
		rows = rows[1:] // header
	}
	return rows, nil
}

// writeCSV rewrites a file via temp-file rename so a crash mid-write never
// leaves a torn list behind.
func writeCSV(path string, header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".goshield-*")
	if err != nil {
		return err
	}
	w := csv.NewWriter(tmp)
	_ = w.Write(header)
	for _, row := range rows {
		_ = w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *CSVStore) flushWhitelist() error {
	rows := make([][]string, 0, len(s.whitelist))
	for _, e := range s.whitelist {
		rows = append(rows, []string{e.IP, e.Timestamp.Format(time.RFC3339)})
	}
	return writeCSV(filepath.Join(s.dir, whitelistFile), []string{"ip", "timestamp"}, rows)
}

func (s *CSVStore) flushBlacklist() error {
	rows := make([][]string, 0, len(s.blacklist))
	for _, e := range s.blacklist {
		rows = append(rows, []string{
			e.IP, e.Timestamp.Format(time.RFC3339), e.Reason, string(e.ExtendedInfo),
		})
	}
	return writeCSV(filepath.Join(s.dir, blacklistFile),
		[]string{"ip", "timestamp", "reason", "extended_info"}, rows)
}

func (s *CSVStore) IsIPWhitelisted(_ context.Context, ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.whitelist[ip]
	return ok, nil
}

func (s *CSVStore) AddIPWhitelist(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelist[ip] = WhitelistEntry{IP: ip, Timestamp: time.Now()}
	return s.flushWhitelist()
}

func (s *CSVStore) RemoveIPWhitelist(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.whitelist, ip)
	return s.flushWhitelist()
}

func (s *CSVStore) ListWhitelist(_ context.Context) ([]WhitelistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WhitelistEntry, 0, len(s.whitelist))
	for _, e := range s.whitelist {
		out = append(out, e)
	}
	return out, nil
}

func (s *CSVStore) IsIPBlacklisted(_ context.Context, ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blacklist[ip]
	return ok, nil
}

func (s *CSVStore) AddIPBlacklist(_ context.Context, ip, reason string, extendedInfo []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[ip] = BlacklistEntry{
		IP:           ip,
		Reason:       reason,
		Timestamp:    time.Now(),
		ExtendedInfo: extendedInfo,
	}
	return s.flushBlacklist()
}

func (s *CSVStore) RemoveIPBlacklist(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blacklist[ip]; !ok {
		return nil
	}
	delete(s.blacklist, ip)
	return s.flushBlacklist()
}

func (s *CSVStore) ListBlacklist(_ context.Context) ([]BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BlacklistEntry, 0, len(s.blacklist))
	for _, e := range s.blacklist {
		out = append(out, e)
	}
	return out, nil
}

// AddKeyword appends a row; frequency is the number of rows per keyword.
func (s *CSVStore) AddKeyword(_ context.Context, keyword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords[keyword]++

	path := filepath.Join(s.dir, keywordsFile)
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		_ = w.Write([]string{"keyword", "timestamp"})
	}
	_ = w.Write([]string{keyword, time.Now().Format(time.RFC3339)})
	w.Flush()
	return w.Error()
}

func (s *CSVStore) GetTopKeywords(ctx context.Context, n int) ([]string, error) {
	s.mu.Lock()
	snapshot := make(map[string]int, len(s.keywords))
	for k, v := range s.keywords {
		snapshot[k] = v
	}
	s.mu.Unlock()

	mem := NewMemoryStore()
	mem.keywords = snapshot
	return mem.GetTopKeywords(ctx, n)
}

func (s *CSVStore) Close() error { return nil }
