// Package detector holds the individual request checks the engine runs in
// order. Each detector inspects one RequestRecord and either passes or
// produces a block/rate-limit decision; shared state lives in the window
// cache and the blocklist manager, never in the detector itself.
package detector

import (
	"context"

	"github.com/shortontech/goshield/internal/risk"
)

// Detector is one named check. Check returns the decision and whether the
// detector matched; an unmatched detector's decision is ignored.
type Detector interface {
	Name() string
	Check(ctx context.Context, rec *risk.RequestRecord) (risk.Decision, bool)
}
