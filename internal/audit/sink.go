// Package audit records every admission attempt, accepted or rejected,
// for offline review. A sink is never consulted to make an admission
// decision — only the live RequestVerifier path does that — so a sink
// outage degrades observability, not correctness.
package audit

import (
	"context"
	"time"
)

// Record is one RequestVerifier.Verify call, successful or not.
type Record struct {
	Identity   string
	Nonce      string
	Outcome    string // "accepted" or the AuthError code
	Reason     string
	ObservedAt time.Time
}

// Sink persists audit records. Implementations must not block the
// admission path for long; callers treat write failures as log-only.
type Sink interface {
	Record(ctx context.Context, rec Record) error
	Close() error
}

// NoopSink discards every record. Used when no audit database is
// configured.
type NoopSink struct{}

func (NoopSink) Record(context.Context, Record) error { return nil }
func (NoopSink) Close() error                          { return nil }
