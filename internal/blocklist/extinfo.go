package blocklist

import (
	"encoding/json"
	"strings"

	"github.com/shortontech/goshield/internal/risk"
)

// RedactedMarker replaces values of headers on the redaction list.
const RedactedMarker = "[REDACTED]"

const truncateLimit = 256

// CaptureConfig controls diagnostic payload capture at block time.
type CaptureConfig struct {
	Enabled        bool
	MaxBytes       int
	CaptureHeaders []string
	RedactHeaders  []string
}

type extendedInfo struct {
	URL     string            `json:"url,omitempty"`
	Path    string            `json:"path"`
	Query   string            `json:"query,omitempty"`
	Method  string            `json:"method"`
	Host    string            `json:"host"`
	Headers map[string]string `json:"headers,omitempty"`

	Truncated bool `json:"truncated,omitempty"`
}

// BuildExtendedInfo serializes a redacted diagnostic payload for the
// request, degrading in fixed stages until it fits cfg.MaxBytes:
// full payload, then no headers, then query truncated, then url truncated,
// then a minimal {path, method, host, truncated} record. Returns nil when
// capture is disabled.
func BuildExtendedInfo(rec risk.RequestRecord, cfg CaptureConfig) []byte {
	if !cfg.Enabled {
		return nil
	}

	redact := make(map[string]struct{}, len(cfg.RedactHeaders))
	for _, h := range cfg.RedactHeaders {
		if h = strings.TrimSpace(h); h != "" {
			redact[strings.ToLower(h)] = struct{}{}
		}
	}

	headers := make(map[string]string)
	if rec.Headers != nil {
		for _, name := range cfg.CaptureHeaders {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			value := rec.Headers.Get(name)
			if value == "" {
				continue
			}
			if _, ok := redact[strings.ToLower(name)]; ok {
				headers[name] = RedactedMarker
			} else {
				headers[name] = value
			}
		}
	}

	payload := extendedInfo{
		URL:     rec.URL,
		Path:    rec.Path,
		Query:   rec.Query,
		Method:  rec.Method,
		Host:    rec.Host,
		Headers: headers,
	}

	if b, ok := fits(payload, cfg.MaxBytes); ok {
		return b
	}

	payload.Headers = nil
	if b, ok := fits(payload, cfg.MaxBytes); ok {
		return b
	}

	if len(payload.Query) > truncateLimit {
		payload.Query = payload.Query[:truncateLimit]
	}
	if b, ok := fits(payload, cfg.MaxBytes); ok {
		return b
	}

	if len(payload.URL) > truncateLimit {
		payload.URL = payload.URL[:truncateLimit]
	}
	if b, ok := fits(payload, cfg.MaxBytes); ok {
		return b
	}

	minimal := extendedInfo{
		Path:      rec.Path,
		Method:    rec.Method,
		Host:      rec.Host,
		Truncated: true,
	}
	b, _ := json.Marshal(minimal)
	return b
}

func fits(payload extendedInfo, maxBytes int) ([]byte, bool) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	return b, len(b) <= maxBytes
}
