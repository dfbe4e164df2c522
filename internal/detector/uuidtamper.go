package detector

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/shortontech/goshield/internal/blocklist"
	"github.com/shortontech/goshield/internal/risk"
)

// UUIDTamper catches identifier-guessing: a path segment or query value
// shaped like a UUID that does not actually parse means someone is mutating
// object identifiers by hand. Valid UUIDs pass untouched, and values that
// don't look like UUIDs at all are none of this detector's business.
type UUIDTamper struct {
	blocklist *blocklist.Manager
}

// NewUUIDTamper wires the blocklist manager.
func NewUUIDTamper(bl *blocklist.Manager) *UUIDTamper {
	return &UUIDTamper{blocklist: bl}
}

func (u *UUIDTamper) Name() string { return risk.DetectorUUIDTamper }

func (u *UUIDTamper) Check(ctx context.Context, rec *risk.RequestRecord) (risk.Decision, bool) {
	for _, seg := range strings.Split(rec.Path, "/") {
		if tampered(seg) {
			return u.hit(ctx, rec, seg), true
		}
	}
	if rec.Query != "" {
		if values, err := url.ParseQuery(rec.Query); err == nil {
			for _, vs := range values {
				for _, v := range vs {
					if tampered(v) {
						return u.hit(ctx, rec, v), true
					}
				}
			}
		}
	}
	return risk.Allowed(), false
}

func (u *UUIDTamper) hit(ctx context.Context, rec *risk.RequestRecord, value string) risk.Decision {
	reason := fmt.Sprintf("malformed uuid %q", value)
	u.blocklist.Block(ctx, rec.IP, reason, rec)
	return risk.Blocked(risk.DetectorUUIDTamper, reason)
}

// tampered reports whether value has canonical UUID shape (36 chars,
// hyphens at 8-13-18-23) but fails to parse.
func tampered(value string) bool {
	if len(value) != 36 {
		return false
	}
	if value[8] != '-' || value[13] != '-' || value[18] != '-' || value[23] != '-' {
		return false
	}
	_, err := uuid.Parse(value)
	return err != nil
}
