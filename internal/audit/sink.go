// Package audit fans block decisions out to configured sinks so operators
// can see what the engine rejected and why.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BlockEvent is one rejected request.
type BlockEvent struct {
	EventID  string    `json:"event_id"`
	TS       time.Time `json:"ts"`
	IP       string    `json:"ip"`
	Detector string    `json:"detector"`
	Reason   string    `json:"reason"`
	Method   string    `json:"method,omitempty"`
	Path     string    `json:"path,omitempty"`
	Status   int       `json:"status"`
}

// NewBlockEvent stamps a fresh event ID and timestamp.
func NewBlockEvent(ip, detector, reason, method, path string, status int) BlockEvent {
	return BlockEvent{
		EventID:  uuid.New().String(),
		TS:       time.Now().UTC(),
		IP:       ip,
		Detector: detector,
		Reason:   reason,
		Method:   method,
		Path:     path,
		Status:   status,
	}
}

// Sink receives block events. Publish must not do blocking I/O on the
// request path; sinks buffer or hand off internally.
type Sink interface {
	Start(ctx context.Context) error
	Publish(e BlockEvent) error
	Close() error
	Name() string
}
