package domain

import "time"

// EventType enumerates the auditable steps of a trading cycle. DividendPaid
// is the only type emitted outside the main cycle.
type EventType string

const (
	EventPriceEvent         EventType = "PriceEvent"
	EventTriggerEvaluated   EventType = "TriggerEvaluated"
	EventGuardrailEvaluated EventType = "GuardrailEvaluated"
	EventOrderCreated       EventType = "OrderCreated"
	EventExecutionRecorded  EventType = "ExecutionRecorded"
	EventPositionUpdated    EventType = "PositionUpdated"
	EventDividendPaid       EventType = "DividendPaid"
)

// Cycle source tags, recorded on the first event of every trace.
const (
	SourceWorker = "worker"
	SourceManual = "api/manual"
)

// EventRecord is one link in the append-only causal audit chain. Records are
// never mutated or deleted. Within a trace, ParentEventID points at the
// immediately preceding record, so the chain can be rebuilt in causal order
// regardless of physical write order. ParentEventID is nil only for the root
// of a trace.
type EventRecord struct {
	EventID       string         `json:"event_id"`
	EventType     EventType      `json:"event_type"`
	TraceID       string         `json:"trace_id"`
	ParentEventID *string        `json:"parent_event_id"`
	TenantID      *string        `json:"tenant_id"`
	PortfolioID   *string        `json:"portfolio_id"`
	AssetID       *string        `json:"asset_id"`
	Payload       map[string]any `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
}

// EventFilter narrows event queries. Zero values mean "no constraint".
type EventFilter struct {
	TraceID string
	AssetID string
	Type    EventType
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}
