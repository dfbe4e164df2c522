// Package anomaly turns a client's recent request history into a
// block/allow verdict. Feature extraction, scoring and header validation
// each exist twice: a reference implementation and an accelerated one.
// Both must produce identical results; the Dispatcher enforces that with a
// one-time parity probe and falls back to the reference path permanently on
// any failure.
package anomaly

import (
	"net/http"
	"time"

	"github.com/shortontech/goshield/internal/risk"
	"github.com/shortontech/goshield/pkg/config"
)

// Params bundles everything the scorer needs besides the records.
type Params struct {
	Keywords     []string // lowercased path keywords
	ProbeMarkers []string // lowercased scanning-404 markers
	BurstWindow  time.Duration
	Thresholds   config.Thresholds
}

// DefaultProbeMarkers flag 404s that look like reconnaissance rather than
// ordinary broken links: administrative consoles, dotfiles, version-control
// leftovers and SQL-shaped paths.
var DefaultProbeMarkers = []string{
	"/wp-", "/admin", "/.git", "/.svn", "/.env", "/phpmyadmin",
	"/config", "/backup", "/cgi-bin", "/xmlrpc", ".sql",
	"union select", "union+select", "select%20",
}

// Backend is the strategy contract shared by the reference and accelerated
// implementations. Given identical inputs both must produce identical
// verdicts and counts, with floats matching within 1e-9.
type Backend interface {
	Name() string
	ExtractFeatures(rec risk.RequestRecord, keywords []string) risk.FeatureVector
	Analyze(records []risk.RequestRecord, p Params) risk.BehaviorSnapshot
	// ValidateHeaders returns a block reason, or "" when the headers pass.
	ValidateHeaders(method string, headers http.Header, required []string, minUALen int) string
}

// automationMarkers in a User-Agent mean a tool, not a browser.
var automationMarkers = []string{
	"headless", "selenium", "webdriver", "puppeteer", "playwright",
	"python-requests", "curl/", "wget/",
}
