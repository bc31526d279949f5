// Package orchestrator sequences one trading cycle per position per tick:
// quote fetch, trigger evaluation, guardrail evaluation, order sizing,
// submission, execution, and position update, with every step appended to the
// event chain. The live and simulated variants differ only in the injected
// quote provider, broker, and stores; the decision path is byte-for-byte the
// same code.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/engine"
	"github.com/alanyoungcy/anchorbot/internal/eventchain"
	"github.com/alanyoungcy/anchorbot/internal/metrics"
)

// Deps bundles the collaborators a cycle touches.
type Deps struct {
	Positions domain.PositionStore
	Orders    domain.OrderStore
	Trades    domain.TradeStore
	Chain     *eventchain.Chain
	Quotes    domain.QuoteProvider
	Broker    domain.Broker
	Resolver  *engine.Resolver
	Locks     domain.LockManager
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// Options tunes cycle behavior. Zero values fall back to defaults.
type Options struct {
	// QuoteTimeout and BrokerTimeout bound the two external calls so a
	// stalled collaborator cannot stall the scheduler indefinitely.
	QuoteTimeout  time.Duration
	BrokerTimeout time.Duration
	// LockTTL bounds how long a crashed cycle can keep a position locked.
	LockTTL time.Duration
	// Clock supplies cycle timestamps; the simulator injects replay time.
	Clock func() time.Time
}

const (
	defaultQuoteTimeout  = 5 * time.Second
	defaultBrokerTimeout = 10 * time.Second
	defaultLockTTL       = 30 * time.Second
)

// Orchestrator runs trading cycles. It holds no per-cycle state; one instance
// serves the scheduled worker and the manual trigger path concurrently, with
// the lock manager keeping cycles on the same position mutually exclusive.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New creates an Orchestrator. Deps.Metrics may be nil.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.QuoteTimeout <= 0 {
		opts.QuoteTimeout = defaultQuoteTimeout
	}
	if opts.BrokerTimeout <= 0 {
		opts.BrokerTimeout = defaultBrokerTimeout
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger.With(slog.String("component", "orchestrator")),
	}
}

// CycleResult summarizes one cycle for callers (the worker loop, the manual
// trigger endpoint, the simulator).
type CycleResult struct {
	PositionID string
	TraceID    string
	// Skipped means the cycle never ran (position locked by another cycle).
	Skipped   bool
	Trigger   domain.TriggerDecision
	Guardrail *domain.GuardrailDecision
	// Reason carries the terminal decision reason when no trade executed.
	Reason   string
	OrderID  string
	TradeID  string
	Executed bool
}

// Outcome returns the metrics label for the cycle's terminal state.
func (r CycleResult) Outcome() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Executed:
		return "executed"
	case !r.Trigger.Fired:
		return "no_trigger"
	default:
		return "blocked"
	}
}

// RunCycle executes one full cycle for the position, tagged with the given
// source ("worker" or "api/manual"). Rejections by policy are decisions, not
// errors; an error return means the cycle failed outright (collaborator
// failure) and position state was left untouched past the last completed
// step.
func (o *Orchestrator) RunCycle(ctx context.Context, positionID, source string) (CycleResult, error) {
	result := CycleResult{PositionID: positionID}

	unlock, err := o.deps.Locks.Acquire(ctx, "cycle:"+positionID, o.opts.LockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		o.logger.DebugContext(ctx, "cycle skipped, position busy",
			slog.String("position_id", positionID),
			slog.String("source", source),
		)
		result.Skipped = true
		result.Reason = domain.ReasonPositionBusy
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("orchestrator: acquire position lock: %w", err)
	}
	defer unlock()

	pos, err := o.deps.Positions.GetByID(ctx, positionID)
	if err != nil {
		return result, fmt.Errorf("orchestrator: load position %s: %w", positionID, err)
	}

	quoteCtx, cancel := context.WithTimeout(ctx, o.opts.QuoteTimeout)
	quote, err := o.deps.Quotes.GetLatestQuote(quoteCtx, pos.Ticker)
	cancel()
	if err != nil {
		return result, fmt.Errorf("orchestrator: fetch quote %s: %w", pos.Ticker, err)
	}

	trace := o.deps.Chain.NewTrace(eventchain.TraceScope{
		TenantID:    pos.TenantID,
		PortfolioID: pos.PortfolioID,
		AssetID:     pos.Ticker,
	}, source)
	result.TraceID = trace.ID()

	trace.Append(ctx, domain.EventPriceEvent, map[string]any{
		"ticker":   quote.Ticker,
		"price":    quote.Price.String(),
		"currency": quote.Currency,
		"quoted_at": quote.Timestamp.UTC().Format(time.RFC3339Nano),
	})

	triggerCfg, err := o.deps.Resolver.TriggerConfig(ctx, pos)
	if err != nil {
		return result, err
	}

	trigger := engine.EvaluateTrigger(quote.Price, pos, triggerCfg)
	result.Trigger = trigger
	o.deps.Metrics.Decision(string(trigger.Direction))

	anchorStr := ""
	if anchor, ok := pos.Anchor(); ok {
		anchorStr = anchor.String()
	}
	trace.Append(ctx, domain.EventTriggerEvaluated, map[string]any{
		"fired":     trigger.Fired,
		"direction": string(trigger.Direction),
		"reason":    trigger.Reason,
		"delta_pct": trigger.DeltaPct.String(),
		"anchor":    anchorStr,
	})

	if !trigger.Fired {
		result.Reason = trigger.Reason
		o.deps.Metrics.Cycle(source, result.Outcome())
		return result, nil
	}

	guardCfg, err := o.deps.Resolver.GuardrailConfig(ctx, pos)
	if err != nil {
		return result, err
	}
	policy, err := o.deps.Resolver.OrderPolicy(ctx, pos)
	if err != nil {
		return result, err
	}

	now := o.opts.Clock()

	if !policy.AllowAfterHours && !engine.MarketOpen(now) {
		result.Reason = domain.ReasonMarketClosed
		o.deps.Metrics.Block(domain.ReasonMarketClosed)
		trace.Append(ctx, domain.EventGuardrailEvaluated, map[string]any{
			"allowed": false,
			"reason":  domain.ReasonMarketClosed,
		})
		o.deps.Metrics.Cycle(source, result.Outcome())
		return result, nil
	}

	usage, err := o.dayUsage(ctx, pos.ID, guardCfg, now)
	if err != nil {
		return result, err
	}

	guard := engine.EvaluateGuardrail(pos, quote.Price, trigger, guardCfg, policy, usage)
	result.Guardrail = &guard

	guardPayload := map[string]any{
		"allowed":    guard.Allowed,
		"reason":     guard.Reason,
		"allocation": guard.Allocation.String(),
	}

	var sized engine.SizedOrder
	if guard.Allowed {
		sized = engine.SizeOrder(*guard.Intent, policy)
		guardPayload["intent_quantity"] = guard.Intent.Quantity.String()
		guardPayload["intent_notional"] = guard.Intent.Notional.String()
		guardPayload["sized_quantity"] = sized.Quantity.String()
		guardPayload["sized_notional"] = sized.Notional.String()
		if !sized.OK {
			guardPayload["sizing_reason"] = sized.Reason
			guardPayload["held"] = sized.Held
		}
	}
	trace.Append(ctx, domain.EventGuardrailEvaluated, guardPayload)

	if !guard.Allowed {
		result.Reason = guard.Reason
		o.deps.Metrics.Block(guard.Reason)
		o.deps.Metrics.Cycle(source, result.Outcome())
		return result, nil
	}

	rate, err := o.deps.Resolver.CommissionRate(ctx, pos, policy)
	if err != nil {
		return result, err
	}

	if !sized.OK {
		result.Reason = sized.Reason
		o.deps.Metrics.Block(sized.Reason)
		if !sized.Held {
			// Policy says reject: record an explicit rejected order.
			order := o.buildOrder(pos, *guard.Intent, sized, rate, trace.ID(), source, now)
			order.Status = domain.OrderStatusRejected
			order.Reason = sized.Reason
			order.Quantity = guard.Intent.Quantity
			order.Notional = guard.Intent.Notional
			if err := o.deps.Orders.Create(ctx, order); err != nil {
				return result, fmt.Errorf("orchestrator: record rejected order: %w", err)
			}
			result.OrderID = order.ID
			o.deps.Metrics.Order(string(order.Side), string(order.Status))
			trace.Append(ctx, domain.EventOrderCreated, map[string]any{
				"order_id": order.ID,
				"status":   string(order.Status),
				"reason":   order.Reason,
			})
		}
		o.deps.Metrics.Cycle(source, result.Outcome())
		return result, nil
	}

	order := o.buildOrder(pos, *guard.Intent, sized, rate, trace.ID(), source, now)
	if err := o.deps.Orders.Create(ctx, order); err != nil {
		return result, fmt.Errorf("orchestrator: create order: %w", err)
	}
	result.OrderID = order.ID
	o.deps.Metrics.Order(string(order.Side), string(order.Status))

	trace.Append(ctx, domain.EventOrderCreated, map[string]any{
		"order_id":                 order.ID,
		"side":                     string(order.Side),
		"quantity":                 order.Quantity.String(),
		"quote_price":              order.QuotePrice.String(),
		"notional":                 order.Notional.String(),
		"commission_rate_snapshot": order.CommissionRateSnapshot.String(),
	})

	brokerCtx, cancel := context.WithTimeout(ctx, o.opts.BrokerTimeout)
	fill, err := o.deps.Broker.SubmitOrder(brokerCtx, order)
	cancel()
	if err != nil {
		// Fail closed: mark the order, log the failure, leave the
		// position untouched. No retry.
		if markErr := o.deps.Orders.MarkRejected(ctx, order.ID, "broker failure"); markErr != nil {
			o.logger.ErrorContext(ctx, "failed to mark order rejected after broker failure",
				slog.String("order_id", order.ID),
				slog.String("error", markErr.Error()),
			)
		}
		trace.Append(ctx, domain.EventExecutionRecorded, map[string]any{
			"order_id": order.ID,
			"status":   "failed",
			"error":    err.Error(),
		})
		o.deps.Metrics.Cycle(source, "failed")
		return result, fmt.Errorf("orchestrator: submit order %s: %w", order.ID, err)
	}

	if !fill.Executed() {
		result.Reason = string(fill.Status)
		if err := o.deps.Orders.MarkRejected(ctx, order.ID, string(fill.Status)); err != nil {
			return result, fmt.Errorf("orchestrator: mark order rejected: %w", err)
		}
		trace.Append(ctx, domain.EventExecutionRecorded, map[string]any{
			"order_id": order.ID,
			"status":   string(fill.Status),
		})
		o.deps.Metrics.Cycle(source, result.Outcome())
		return result, nil
	}

	trade, err := o.applyFill(ctx, pos, order, fill, guardCfg, trace, now)
	if err != nil {
		return result, err
	}
	result.TradeID = trade.ID
	result.Executed = true
	result.Reason = string(trade.Status)

	o.deps.Metrics.Trade(string(trade.Status))
	o.deps.Metrics.Cycle(source, result.Outcome())
	return result, nil
}

// buildOrder assembles a submitted order with the commission rate snapshotted
// now.
func (o *Orchestrator) buildOrder(
	pos domain.PositionState,
	intent domain.TradeIntent,
	sized engine.SizedOrder,
	rate decimal.Decimal,
	traceID, source string,
	now time.Time,
) domain.Order {
	return domain.Order{
		ID:                     uuid.New().String(),
		PositionID:             pos.ID,
		TenantID:               pos.TenantID,
		Ticker:                 pos.Ticker,
		Side:                   intent.Side,
		Quantity:               sized.Quantity,
		QuotePrice:             intent.Price,
		Notional:               sized.Notional,
		CommissionRateSnapshot: rate,
		Status:                 domain.OrderStatusSubmitted,
		TraceID:                traceID,
		Source:                 source,
		CreatedAt:              now,
	}
}

// applyFill records the trade, transitions the order, applies the fill to the
// position snapshot, updates the anchor, and appends the final events.
func (o *Orchestrator) applyFill(
	ctx context.Context,
	pos domain.PositionState,
	order domain.Order,
	fill domain.Fill,
	guardCfg domain.GuardrailConfig,
	trace *eventchain.Trace,
	now time.Time,
) (domain.Trade, error) {
	notional := fill.Price.Mul(fill.Quantity)
	executedAt := fill.ExecutedAt
	if executedAt.IsZero() {
		executedAt = now
	}

	trade := domain.Trade{
		ID:                      uuid.New().String(),
		OrderID:                 order.ID,
		PositionID:              pos.ID,
		Ticker:                  pos.Ticker,
		Side:                    order.Side,
		FillPrice:               fill.Price,
		FillQuantity:            fill.Quantity,
		Notional:                notional,
		Commission:              fill.Commission,
		CommissionRateEffective: engine.EffectiveCommissionRate(fill.Commission, notional),
		Status:                  fill.Status,
		ExecutedAt:              executedAt,
	}
	if err := o.deps.Trades.Insert(ctx, trade); err != nil {
		return trade, fmt.Errorf("orchestrator: insert trade: %w", err)
	}
	if err := o.deps.Orders.MarkFilled(ctx, order.ID, executedAt); err != nil {
		return trade, fmt.Errorf("orchestrator: mark order filled: %w", err)
	}

	trace.Append(ctx, domain.EventExecutionRecorded, map[string]any{
		"trade_id":                  trade.ID,
		"order_id":                  order.ID,
		"status":                    string(trade.Status),
		"fill_price":                trade.FillPrice.String(),
		"fill_quantity":             trade.FillQuantity.String(),
		"notional":                  trade.Notional.String(),
		"commission":                trade.Commission.String(),
		"commission_rate_effective": trade.CommissionRateEffective.String(),
	})

	if order.Side == domain.DirectionBuy {
		pos.Quantity = pos.Quantity.Add(fill.Quantity)
		pos.Cash = pos.Cash.Sub(notional).Sub(fill.Commission)
	} else {
		pos.Quantity = pos.Quantity.Sub(fill.Quantity)
		pos.Cash = pos.Cash.Add(notional).Sub(fill.Commission)
	}
	pos.TotalCommissionPaid = pos.TotalCommissionPaid.Add(fill.Commission)

	// The anchor moves only to the fill price of a fully executed trade;
	// a partial fill leaves it, and therefore future trigger evaluation,
	// unchanged.
	if trade.Status == domain.TradeStatusExecuted {
		anchor := fill.Price
		pos.AnchorPrice = &anchor
	}
	pos.UpdatedAt = now

	if err := o.deps.Positions.Save(ctx, pos); err != nil {
		return trade, fmt.Errorf("orchestrator: save position: %w", err)
	}

	violated, violation := engine.ValidateAfterFill(pos, fill.Price, guardCfg)
	if violated {
		o.logger.WarnContext(ctx, "post-fill guardrail violation",
			slog.String("position_id", pos.ID),
			slog.String("reason", violation),
		)
	}

	anchorStr := ""
	if anchor, ok := pos.Anchor(); ok {
		anchorStr = anchor.String()
	}
	trace.Append(ctx, domain.EventPositionUpdated, map[string]any{
		"quantity":              pos.Quantity.String(),
		"cash":                  pos.Cash.String(),
		"anchor":                anchorStr,
		"allocation":            pos.Allocation(fill.Price).String(),
		"total_commission_paid": pos.TotalCommissionPaid.String(),
		"post_fill_violation":   violated,
		"violation_reason":      violation,
	})

	return trade, nil
}

// dayUsage gathers today's order count and executed notional for the optional
// daily guardrails. It skips the store round-trips when neither limit is set.
func (o *Orchestrator) dayUsage(ctx context.Context, positionID string, cfg domain.GuardrailConfig, now time.Time) (domain.DayUsage, error) {
	usage := domain.DayUsage{Notional: decimal.Zero}
	if cfg.MaxOrdersPerDay == nil && cfg.MaxDailyNotional == nil {
		return usage, nil
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if cfg.MaxOrdersPerDay != nil {
		count, err := o.deps.Orders.CountSince(ctx, positionID, midnight)
		if err != nil {
			return usage, fmt.Errorf("orchestrator: count today's orders: %w", err)
		}
		usage.Orders = count
	}
	if cfg.MaxDailyNotional != nil {
		sum, err := o.deps.Trades.SumNotionalSince(ctx, positionID, midnight)
		if err != nil {
			return usage, fmt.Errorf("orchestrator: sum today's notional: %w", err)
		}
		usage.Notional = sum
	}
	return usage, nil
}

// RunAll runs one cycle for every eligible position, sequentially. A failure
// on one position is logged and does not stop the remaining positions.
func (o *Orchestrator) RunAll(ctx context.Context, source string) ([]CycleResult, error) {
	positions, err := o.deps.Positions.ListEligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list eligible positions: %w", err)
	}

	results := make([]CycleResult, 0, len(positions))
	for _, pos := range positions {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := o.RunCycle(ctx, pos.ID, source)
		if err != nil {
			o.logger.ErrorContext(ctx, "cycle failed",
				slog.String("position_id", pos.ID),
				slog.String("source", source),
				slog.String("error", err.Error()),
			)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}
