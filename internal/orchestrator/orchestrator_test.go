package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/anchorbot/internal/broker"
	"github.com/alanyoungcy/anchorbot/internal/cache/local"
	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/engine"
	"github.com/alanyoungcy/anchorbot/internal/eventchain"
	"github.com/alanyoungcy/anchorbot/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// stubQuotes serves a single settable price.
type stubQuotes struct {
	price decimal.Decimal
	ts    time.Time
	err   error
}

func (q *stubQuotes) GetLatestQuote(_ context.Context, ticker string) (domain.Quote, error) {
	if q.err != nil {
		return domain.Quote{}, q.err
	}
	return domain.Quote{Ticker: ticker, Price: q.price, Currency: "USD", Timestamp: q.ts}, nil
}

// failingBroker rejects every submission with a transport error.
type failingBroker struct{}

func (failingBroker) SubmitOrder(context.Context, domain.Order) (domain.Fill, error) {
	return domain.Fill{}, errors.New("connection reset")
}

func testDefaults() engine.Defaults {
	return engine.Defaults{
		Trigger: domain.TriggerConfig{
			UpThresholdPct:   dec("0.03"),
			DownThresholdPct: dec("0.03"),
		},
		Guardrail: domain.GuardrailConfig{
			MinStockPct:           dec("0.25"),
			MaxStockPct:           dec("0.75"),
			MaxTradePctOfPosition: dec("0.10"),
		},
		OrderPolicy: domain.OrderPolicyConfig{
			MinQuantity:     dec("1"),
			LotSize:         dec("1"),
			ActionBelowMin:  domain.BelowMinHold,
			RebalanceRatio:  dec("1"),
			AllowAfterHours: true,
		},
		CommissionRate: dec("0.001"),
	}
}

type cycleEnv struct {
	positions *memory.PositionStore
	orders    *memory.OrderStore
	trades    *memory.TradeStore
	events    *memory.EventStore
	locks     *local.LockManager
	quotes    *stubQuotes
	orch      *Orchestrator
}

func newCycleEnv(t *testing.T, b domain.Broker, defaults engine.Defaults) *cycleEnv {
	t.Helper()
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	env := &cycleEnv{
		positions: memory.NewPositionStore(),
		orders:    memory.NewOrderStore(),
		trades:    memory.NewTradeStore(),
		events:    memory.NewEventStore(),
		locks:     local.NewLockManager(),
		quotes:    &stubQuotes{ts: now},
	}
	if b == nil {
		b = broker.NewPaper(broker.PaperConfig{}, testLogger())
	}
	env.orch = New(Deps{
		Positions: env.positions,
		Orders:    env.orders,
		Trades:    env.trades,
		Chain:     eventchain.New(env.events, nil, testLogger()),
		Quotes:    env.quotes,
		Broker:    b,
		Resolver:  engine.NewResolver(memory.NewConfigStore(), defaults),
		Locks:     env.locks,
		Metrics:   nil,
		Logger:    testLogger(),
	}, Options{Clock: func() time.Time { return now }})
	return env
}

func (e *cycleEnv) seed(t *testing.T, anchor string) domain.PositionState {
	t.Helper()
	pos := domain.PositionState{
		ID:        "pos-1",
		TenantID:  "tenant-a",
		Ticker:    "SPY",
		Currency:  "USD",
		Quantity:  dec("100"),
		Cash:      dec("10000"),
		AutoCycle: true,
	}
	if anchor != "" {
		a := dec(anchor)
		pos.AnchorPrice = &a
	}
	require.NoError(t, e.positions.Create(context.Background(), pos))
	return pos
}

func TestRunCycle_FullRebalanceSequence(t *testing.T) {
	env := newCycleEnv(t, nil, testDefaults())
	env.seed(t, "100")
	ctx := context.Background()

	// Price drops 3.1% below the anchor: a BUY executes and the anchor
	// moves to the fill price.
	env.quotes.price = dec("96.9")
	res, err := env.orch.RunCycle(ctx, "pos-1", domain.SourceWorker)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, domain.DirectionBuy, res.Trigger.Direction)
	assert.Equal(t, "executed", res.Outcome())

	pos, err := env.positions.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(dec("120")), "quantity %s", pos.Quantity)
	assert.True(t, pos.Cash.Equal(dec("8060.062")), "cash %s", pos.Cash)
	anchor, ok := pos.Anchor()
	require.True(t, ok)
	assert.True(t, anchor.Equal(dec("96.9")), "anchor %s", anchor)

	// A quiet tick inside the band against the new anchor does nothing.
	env.quotes.price = dec("98")
	res, err = env.orch.RunCycle(ctx, "pos-1", domain.SourceWorker)
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Equal(t, "no_trigger", res.Outcome())
	assert.Equal(t, domain.ReasonWithinBand, res.Reason)

	// A 6.5% rise over the moved anchor fires a SELL.
	env.quotes.price = dec("103.2")
	res, err = env.orch.RunCycle(ctx, "pos-1", domain.SourceWorker)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, domain.DirectionSell, res.Trigger.Direction)

	pos, err = env.positions.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(dec("101")), "quantity %s", pos.Quantity)
	assert.True(t, pos.Cash.Equal(dec("10018.9012")), "cash %s", pos.Cash)
	assert.True(t, pos.TotalCommissionPaid.Equal(dec("3.8988")), "commission %s", pos.TotalCommissionPaid)
	anchor, ok = pos.Anchor()
	require.True(t, ok)
	assert.True(t, anchor.Equal(dec("103.2")), "anchor %s", anchor)

	// Exactly one BUY and one SELL were recorded, both filled.
	orders, err := env.orders.ListByPosition(ctx, "pos-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, domain.OrderStatusFilled, o.Status)
	}

	trades, err := env.trades.ListByPosition(ctx, "pos-1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestRunCycle_EmitsCompleteEventTrail(t *testing.T) {
	env := newCycleEnv(t, nil, testDefaults())
	env.seed(t, "100")
	ctx := context.Background()

	env.quotes.price = dec("96")
	res, err := env.orch.RunCycle(ctx, "pos-1", domain.SourceManual)
	require.NoError(t, err)
	require.True(t, res.Executed)
	require.NotEmpty(t, res.TraceID)

	records, err := env.events.List(ctx, domain.EventFilter{TraceID: res.TraceID})
	require.NoError(t, err)

	ordered, err := eventchain.Reconstruct(records)
	require.NoError(t, err)
	require.Len(t, ordered, 6)

	want := []domain.EventType{
		domain.EventPriceEvent,
		domain.EventTriggerEvaluated,
		domain.EventGuardrailEvaluated,
		domain.EventOrderCreated,
		domain.EventExecutionRecorded,
		domain.EventPositionUpdated,
	}
	for i, et := range want {
		assert.Equal(t, et, ordered[i].EventType)
	}
	assert.Equal(t, domain.SourceManual, ordered[0].Payload["source"])
}

func TestRunCycle_NoAnchorNeverTrades(t *testing.T) {
	env := newCycleEnv(t, nil, testDefaults())
	env.seed(t, "")
	ctx := context.Background()

	env.quotes.price = dec("50")
	res, err := env.orch.RunCycle(ctx, "pos-1", domain.SourceWorker)
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Equal(t, domain.ReasonNoAnchor, res.Reason)

	orders, err := env.orders.ListByPosition(ctx, "pos-1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRunCycle_GuardrailBlockLeavesPositionUntouched(t *testing.T) {
	env := newCycleEnv(t, nil, testDefaults())
	ctx := context.Background()

	anchor := dec("100")
	pos := domain.PositionState{
		ID:          "pos-1",
		Ticker:      "SPY",
		Quantity:    dec("100"),
		Cash:        decimal.Zero,
		AnchorPrice: &anchor,
		AutoCycle:   true,
	}
	require.NoError(t, env.positions.Create(ctx, pos))

	env.quotes.price = dec("96")
	res, err := env.orch.RunCycle(ctx, "pos-1", domain.SourceWorker)
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Equal(t, "blocked", res.Outcome())
	assert.Equal(t, domain.ReasonAboveMaxAlloc, res.Reason)

	after, err := env.positions.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, after.Quantity.Equal(dec("100")))
	assert.True(t, after.Cash.IsZero())

	orders, err := env.orders.ListByPosition(ctx, "pos-1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	trades, err := env.trades.ListByPosition(ctx, "pos-1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRunCycle_HoldBelowMinimumCreatesNoOrder(t *testing.T) {
	defaults := testDefaults()
	defaults.OrderPolicy.MinQuantity = dec("50")
	env := newCycleEnv(t, nil, defaults)
	env.seed(t, "100")
	ctx := context.Background()

	env.quotes.price = dec("96")
	res, err := env.orch.RunCycle(ctx, "pos-1", domain.SourceWorker)
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Equal(t, domain.ReasonBelowMinQuantity, res.Reason)
	assert.Empty(t, res.OrderID)

	orders, err := env.orders.ListByPosition(ctx, "pos-1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRunCycle_RejectBelowMinimumRecordsRejectedOrder(t *testing.T) {
	defaults := testDefaults()
	defaults.OrderPolicy.MinQuantity = dec("50")
	defaults.OrderPolicy.ActionBelowMin = domain.BelowMinReject
	env := newCycleEnv(t, nil, defaults)
	env.seed(t, "100")
	ctx := context.Background()

	env.quotes.price = dec("96")
	res, err := env.orch.RunCycle(ctx, "pos-1", domain.SourceWorker)
	require.NoError(t, err)
	assert.False(t, res.Executed)
	require.NotEmpty(t, res.OrderID)

	order, err := env.orders.GetByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRejected, order.Status)
	assert.Equal(t, domain.ReasonBelowMinQuantity, order.Reason)

	// Nothing hit the position.
	after, err := env.positions.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, after.Cash.Equal(dec("10000")))
}

func TestRunCycle_BrokerFailureFailsClosed(t *testing.T) {
	env := newCycleEnv(t, failingBroker{}, testDefaults())
	env.seed(t, "100")
	ctx := context.Background()

	env.quotes.price = dec("96")
	res, err := env.orch.RunCycle(ctx, "pos-1", domain.SourceWorker)
	require.Error(t, err)
	require.NotEmpty(t, res.OrderID)

	order, err := env.orders.GetByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRejected, order.Status)
	assert.Equal(t, "broker failure", order.Reason)

	after, err := env.positions.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, after.Quantity.Equal(dec("100")))
	assert.True(t, after.Cash.Equal(dec("10000")))
	anchor, ok := after.Anchor()
	require.True(t, ok)
	assert.True(t, anchor.Equal(dec("100")), "anchor %s", anchor)
}

func TestRunCycle_PartialFillLeavesAnchorUnchanged(t *testing.T) {
	b := broker.NewPaper(broker.PaperConfig{PartialFillPct: dec("0.5")}, testLogger())
	env := newCycleEnv(t, b, testDefaults())
	env.seed(t, "100")
	ctx := context.Background()

	env.quotes.price = dec("96")
	res, err := env.orch.RunCycle(ctx, "pos-1", domain.SourceWorker)
	require.NoError(t, err)
	assert.True(t, res.Executed)

	trades, err := env.trades.ListByPosition(ctx, "pos-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeStatusPartiallyExecuted, trades[0].Status)

	after, err := env.positions.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, after.Quantity.Equal(dec("110")), "quantity %s", after.Quantity)
	anchor, ok := after.Anchor()
	require.True(t, ok)
	assert.True(t, anchor.Equal(dec("100")), "anchor must not move on a partial fill, got %s", anchor)
}

func TestRunCycle_CommissionAccountedOnBothSides(t *testing.T) {
	env := newCycleEnv(t, nil, testDefaults())
	env.seed(t, "100")
	ctx := context.Background()

	env.quotes.price = dec("96")
	_, err := env.orch.RunCycle(ctx, "pos-1", domain.SourceWorker)
	require.NoError(t, err)

	trades, err := env.trades.ListByPosition(ctx, "pos-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, trades, 1)

	// 20 shares at 96: notional 1920, 0.1% commission.
	trade := trades[0]
	assert.True(t, trade.Notional.Equal(dec("1920")), "notional %s", trade.Notional)
	assert.True(t, trade.Commission.Equal(dec("1.92")), "commission %s", trade.Commission)
	assert.True(t, trade.CommissionRateEffective.Equal(dec("0.001")), "rate %s", trade.CommissionRateEffective)

	after, err := env.positions.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.True(t, after.TotalCommissionPaid.Equal(dec("1.92")))
	// Cash moved by notional plus commission.
	assert.True(t, after.Cash.Equal(dec("8078.08")), "cash %s", after.Cash)
}

func TestRunCycle_LockedPositionSkips(t *testing.T) {
	env := newCycleEnv(t, nil, testDefaults())
	env.seed(t, "100")
	ctx := context.Background()

	unlock, err := env.locks.Acquire(ctx, "cycle:pos-1", time.Minute)
	require.NoError(t, err)
	defer unlock()

	env.quotes.price = dec("96")
	res, err := env.orch.RunCycle(ctx, "pos-1", domain.SourceManual)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, domain.ReasonPositionBusy, res.Reason)
	assert.Equal(t, "skipped", res.Outcome())

	orders, err := env.orders.ListByPosition(ctx, "pos-1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRunCycle_MarketClosedBlocks(t *testing.T) {
	defaults := testDefaults()
	defaults.OrderPolicy.AllowAfterHours = false
	env := newCycleEnv(t, nil, defaults)
	env.seed(t, "100")

	// The env clock is 15:00 UTC on a Monday, inside regular hours, so
	// rebuild with a Sunday clock.
	sunday := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	env.orch.opts.Clock = func() time.Time { return sunday }

	env.quotes.price = dec("96")
	res, err := env.orch.RunCycle(context.Background(), "pos-1", domain.SourceWorker)
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Equal(t, domain.ReasonMarketClosed, res.Reason)
}

func TestRunAll_OnlyEligiblePositionsAndFailureIsolation(t *testing.T) {
	env := newCycleEnv(t, nil, testDefaults())
	ctx := context.Background()

	anchor := dec("100")
	for _, p := range []domain.PositionState{
		{ID: "auto-1", Ticker: "SPY", Quantity: dec("100"), Cash: dec("10000"), AnchorPrice: &anchor, AutoCycle: true},
		{ID: "manual-1", Ticker: "SPY", Quantity: dec("100"), Cash: dec("10000"), AnchorPrice: &anchor, AutoCycle: false},
		{ID: "auto-2", Ticker: "SPY", Quantity: dec("100"), Cash: dec("10000"), AnchorPrice: &anchor, AutoCycle: true},
	} {
		require.NoError(t, env.positions.Create(ctx, p))
	}

	env.quotes.price = dec("96")
	results, err := env.orch.RunAll(ctx, domain.SourceWorker)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Executed, "position %s", r.PositionID)
		assert.NotEqual(t, "manual-1", r.PositionID)
	}
}

func TestRunAll_FailedPositionDoesNotStopOthers(t *testing.T) {
	env := newCycleEnv(t, nil, testDefaults())
	ctx := context.Background()

	anchor := dec("100")
	require.NoError(t, env.positions.Create(ctx, domain.PositionState{
		ID: "auto-1", Ticker: "SPY", Quantity: dec("100"), Cash: dec("10000"),
		AnchorPrice: &anchor, AutoCycle: true,
	}))
	require.NoError(t, env.positions.Create(ctx, domain.PositionState{
		ID: "auto-2", Ticker: "SPY", Quantity: dec("100"), Cash: dec("10000"),
		AnchorPrice: &anchor, AutoCycle: true,
	}))

	// Wedge the first position; the second must still run to completion.
	unlock, err := env.locks.Acquire(ctx, "cycle:auto-1", time.Minute)
	require.NoError(t, err)
	defer unlock()

	env.quotes.price = dec("96")
	results, err := env.orch.RunAll(ctx, domain.SourceWorker)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Skipped)
	assert.True(t, results[1].Executed)
}
