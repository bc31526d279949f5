// Package broker implements the order-execution collaborator. Only a paper
// (simulated) broker exists: real exchange connectivity is out of scope, so
// both live and replay modes execute against the paper book.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// PaperConfig tunes the simulated execution.
type PaperConfig struct {
	// SlippageBps shifts the fill price against the trade direction, in
	// basis points of the quote price.
	SlippageBps int64
	// PartialFillPct, when positive and < 1, fills only that fraction of
	// every order and reports partially_executed.
	PartialFillPct decimal.Decimal
}

// Paper fills orders at the quoted price adjusted for configured slippage,
// charging commission at the rate snapshotted on the order. It is stateless
// and safe for concurrent use.
type Paper struct {
	cfg    PaperConfig
	clock  func() time.Time
	logger *slog.Logger
}

// NewPaper creates a paper broker.
func NewPaper(cfg PaperConfig, logger *slog.Logger) *Paper {
	return &Paper{
		cfg:    cfg,
		clock:  func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "paper_broker")),
	}
}

// WithClock overrides the fill timestamp source. The simulator injects replay
// time here.
func (b *Paper) WithClock(clock func() time.Time) *Paper {
	b.clock = clock
	return b
}

// SubmitOrder implements domain.Broker.
func (b *Paper) SubmitOrder(ctx context.Context, order domain.Order) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, fmt.Errorf("broker: submit %s: %w", order.ID, err)
	}
	if !order.Quantity.IsPositive() || !order.QuotePrice.IsPositive() {
		return domain.Fill{
			Status: domain.TradeStatusCancelled,
		}, nil
	}

	price := order.QuotePrice
	if b.cfg.SlippageBps != 0 {
		slip := price.Mul(decimal.NewFromInt(b.cfg.SlippageBps)).Div(decimal.NewFromInt(10000))
		if order.Side == domain.DirectionBuy {
			price = price.Add(slip)
		} else {
			price = price.Sub(slip)
		}
	}

	qty := order.Quantity
	status := domain.TradeStatusExecuted
	one := decimal.NewFromInt(1)
	if b.cfg.PartialFillPct.IsPositive() && b.cfg.PartialFillPct.LessThan(one) {
		qty = qty.Mul(b.cfg.PartialFillPct)
		status = domain.TradeStatusPartiallyExecuted
	}

	notional := price.Mul(qty)
	commission := notional.Mul(order.CommissionRateSnapshot)

	b.logger.DebugContext(ctx, "paper fill",
		slog.String("order_id", order.ID),
		slog.String("side", string(order.Side)),
		slog.String("price", price.String()),
		slog.String("quantity", qty.String()),
	)

	return domain.Fill{
		Price:      price,
		Quantity:   qty,
		Commission: commission,
		Status:     status,
		ExecutedAt: b.clock(),
	}, nil
}

// Compile-time interface check.
var _ domain.Broker = (*Paper)(nil)
