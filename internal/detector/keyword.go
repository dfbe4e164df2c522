package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/shortontech/goshield/internal/blocklist"
	"github.com/shortontech/goshield/internal/risk"
)

// Keyword blocks requests whose path contains a known-malicious substring
// and blacklists the client. The keyword set is the configured static list
// plus the most frequent learned keywords from the store; every hit is fed
// back so the learned set tracks what scanners actually probe for.
type Keyword struct {
	blocklist *blocklist.Manager

	static []string
	topN   int
}

// NewKeyword wires the blocklist manager. Static keywords are lowercased
// once here.
func NewKeyword(bl *blocklist.Manager, static []string, topN int) *Keyword {
	lowered := make([]string, 0, len(static))
	for _, kw := range static {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Keyword{blocklist: bl, static: lowered, topN: topN}
}

func (k *Keyword) Name() string { return risk.DetectorKeyword }

func (k *Keyword) Check(ctx context.Context, rec *risk.RequestRecord) (risk.Decision, bool) {
	if !rec.KeywordCheck {
		return risk.Allowed(), false
	}
	for _, kw := range k.static {
		if strings.Contains(rec.PathLower, kw) {
			return k.hit(ctx, rec, kw), true
		}
	}
	for _, kw := range k.blocklist.TopKeywords(ctx, k.topN) {
		if kw != "" && strings.Contains(rec.PathLower, strings.ToLower(kw)) {
			return k.hit(ctx, rec, kw), true
		}
	}
	return risk.Allowed(), false
}

func (k *Keyword) hit(ctx context.Context, rec *risk.RequestRecord, kw string) risk.Decision {
	reason := fmt.Sprintf("keyword match: %s", kw)
	k.blocklist.LearnKeyword(ctx, kw)
	k.blocklist.Block(ctx, rec.IP, reason, rec)
	return risk.Blocked(risk.DetectorKeyword, reason)
}
