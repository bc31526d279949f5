// Package eventchain implements the append-only, causally-linked audit trail.
// Every trading cycle gets one trace; every step appends a record whose parent
// pointer references the previous record in the trace, forming a linear chain
// that can be rebuilt in causal order no matter how storage interleaves
// writes. Appends are best-effort: a failed write is logged and skipped, and
// the cycle carries on, because the audit trail is an availability dependency,
// not a correctness dependency.
package eventchain

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// BusChannel is the pub/sub channel event records are mirrored to for live
// tailing.
const BusChannel = "events"

// Chain serializes appends to the shared event store. One mutex guards the
// physical append so concurrent cycles never interleave a read-modify-write
// on the store, while readers tail the log freely.
type Chain struct {
	store  domain.EventStore
	bus    domain.SignalBus // optional
	clock  func() time.Time
	logger *slog.Logger

	mu sync.Mutex
}

// New creates a Chain over the given store. bus may be nil; when set, every
// appended record is also published on BusChannel.
func New(store domain.EventStore, bus domain.SignalBus, logger *slog.Logger) *Chain {
	return &Chain{
		store:  store,
		bus:    bus,
		clock:  func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "eventchain")),
	}
}

// WithClock overrides the timestamp source. Used by tests and the simulator.
func (c *Chain) WithClock(clock func() time.Time) *Chain {
	c.clock = clock
	return c
}

// TraceScope carries the optional entity ids stamped on every record of a
// trace.
type TraceScope struct {
	TenantID    string
	PortfolioID string
	AssetID     string
}

// Trace is one cycle's chain of events. Not safe for concurrent use; a cycle
// is sequential by construction.
type Trace struct {
	chain   *Chain
	traceID string
	scope   TraceScope
	source  string
	lastID  *string
	rooted  bool
}

// NewTrace starts a fresh trace. The source tag ("worker" or "api/manual") is
// recorded in the payload of the first appended event.
func (c *Chain) NewTrace(scope TraceScope, source string) *Trace {
	return &Trace{
		chain:   c,
		traceID: uuid.New().String(),
		scope:   scope,
		source:  source,
	}
}

// ID returns the trace id.
func (t *Trace) ID() string {
	return t.traceID
}

// Append writes one record to the chain. The first successful append becomes
// the root (nil parent); each later one points at the last successfully
// written record, so a failed write never leaves a dangling parent. Append
// never returns an error: failures are logged and the cycle continues.
func (t *Trace) Append(ctx context.Context, eventType domain.EventType, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	if !t.rooted {
		payload["source"] = t.source
	}

	record := domain.EventRecord{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		TraceID:       t.traceID,
		ParentEventID: t.lastID,
		TenantID:      optional(t.scope.TenantID),
		PortfolioID:   optional(t.scope.PortfolioID),
		AssetID:       optional(t.scope.AssetID),
		Payload:       payload,
		CreatedAt:     t.chain.clock(),
	}

	t.chain.mu.Lock()
	err := t.chain.store.Append(ctx, record)
	t.chain.mu.Unlock()

	if err != nil {
		t.chain.logger.WarnContext(ctx, "event append failed, continuing cycle",
			slog.String("trace_id", t.traceID),
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
		return
	}

	t.rooted = true
	t.lastID = &record.EventID

	t.chain.publish(ctx, record)
}

// publish mirrors the record onto the signal bus, best-effort.
func (c *Chain) publish(ctx context.Context, record domain.EventRecord) {
	if c.bus == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := c.bus.Publish(ctx, BusChannel, data); err != nil {
		c.logger.DebugContext(ctx, "event publish failed",
			slog.String("trace_id", record.TraceID),
			slog.String("error", err.Error()),
		)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
