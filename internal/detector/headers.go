package detector

import (
	"context"
	"strings"

	"github.com/shortontech/goshield/internal/anomaly"
	"github.com/shortontech/goshield/internal/risk"
)

// defaultRequiredHeaders apply to any method without an explicit override.
var defaultRequiredHeaders = []string{"User-Agent"}

// Headers enforces per-method required headers and User-Agent sanity. The
// actual checks run through the anomaly dispatcher so they participate in
// the reference/accelerated parity contract.
type Headers struct {
	dispatcher *anomaly.Dispatcher

	// overrides maps UPPERCASE method names to required header lists. An
	// override present with an empty list disables the requirement for that
	// method entirely (the HEAD escape hatch).
	overrides   map[string][]string
	minUALength int
}

// NewHeaders wires the dispatcher and per-method overrides.
func NewHeaders(d *anomaly.Dispatcher, overrides map[string][]string, minUALength int) *Headers {
	norm := make(map[string][]string, len(overrides))
	for method, list := range overrides {
		norm[strings.ToUpper(method)] = list
	}
	return &Headers{dispatcher: d, overrides: norm, minUALength: minUALength}
}

func (h *Headers) Name() string { return risk.DetectorHeaders }

func (h *Headers) requiredFor(method string) []string {
	if list, ok := h.overrides[strings.ToUpper(method)]; ok {
		return list
	}
	return defaultRequiredHeaders
}

func (h *Headers) Check(_ context.Context, rec *risk.RequestRecord) (risk.Decision, bool) {
	if rec.Headers == nil {
		rec.Headers = map[string][]string{}
	}
	reason := h.dispatcher.ValidateHeaders(rec.Method, rec.Headers, h.requiredFor(rec.Method), h.minUALength)
	if reason != "" {
		return risk.Blocked(risk.DetectorHeaders, reason), true
	}
	return risk.Allowed(), false
}
