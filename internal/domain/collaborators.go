package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a market data point for one ticker.
type Quote struct {
	Ticker    string
	Price     decimal.Decimal
	Currency  string
	Timestamp time.Time
}

// QuoteProvider supplies the latest market quote for live cycles.
type QuoteProvider interface {
	GetLatestQuote(ctx context.Context, ticker string) (Quote, error)
}

// HistoricalQuoteProvider supplies point-in-time prices for replay cycles.
type HistoricalQuoteProvider interface {
	GetHistoricalQuote(ctx context.Context, ticker string, at time.Time) (decimal.Decimal, error)
}

// Broker accepts a sized order and returns a fill or a rejection. There is no
// compensating transaction: once a fill is reported, it stands.
type Broker interface {
	SubmitOrder(ctx context.Context, order Order) (Fill, error)
}

// LockManager provides mutual exclusion keyed by arbitrary strings. Cycles
// lock on the position id so a manual trigger and the scheduled worker can
// never run overlapping read-modify-write cycles on the same position.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// QuoteCache caches latest quotes so repeated cycles within the TTL do not
// hit the upstream market data source.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, ticker string) (Quote, error)
}

// SignalBus is a fire-and-forget pub/sub channel used to fan events out to
// live consumers (the WebSocket hub). Delivery is best-effort.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// CommissionResolver resolves the commission rate for a tenant/asset pair
// through the configured precedence chain.
type CommissionResolver interface {
	Resolve(ctx context.Context, tenantID, assetID string) (decimal.Decimal, error)
}
