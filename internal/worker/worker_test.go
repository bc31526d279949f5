package worker

import (
	"context"
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
	"github.com/alanyoungcy/anchorbot/internal/orchestrator"
	"github.com/alanyoungcy/anchorbot/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fixedQuotes struct {
	price decimal.Decimal
}

func (q *fixedQuotes) GetLatestQuote(_ context.Context, ticker string) (domain.Quote, error) {
	return domain.Quote{Ticker: ticker, Price: q.price, Currency: "USD", Timestamp: time.Now().UTC()}, nil
}

func testOrchestrator(t *testing.T, trades *memory.TradeStore) *orchestrator.Orchestrator {
	t.Helper()
	positions := memory.NewPositionStore()

	anchor := dec("100")
	require.NoError(t, positions.Create(context.Background(), domain.PositionState{
		ID:          "pos-1",
		Ticker:      "SPY",
		Quantity:    dec("100"),
		Cash:        dec("10000"),
		AnchorPrice: &anchor,
		AutoCycle:   true,
	}))

	defaults := engine.Defaults{
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
	}

	return orchestrator.New(orchestrator.Deps{
		Positions: positions,
		Orders:    memory.NewOrderStore(),
		Trades:    trades,
		Chain:     eventchain.New(memory.NewEventStore(), nil, testLogger()),
		Quotes:    &fixedQuotes{price: dec("96")},
		Broker:    broker.NewPaper(broker.PaperConfig{}, testLogger()),
		Resolver:  engine.NewResolver(memory.NewConfigStore(), defaults),
		Locks:     local.NewLockManager(),
		Logger:    testLogger(),
	}, orchestrator.Options{})
}

func manualTicker() (chan time.Time, TickerFactory) {
	ticks := make(chan time.Time)
	return ticks, func(time.Duration) (<-chan time.Time, func()) {
		return ticks, func() {}
	}
}

func TestWorker_TickRunsEligiblePositions(t *testing.T) {
	trades := memory.NewTradeStore()
	orch := testOrchestrator(t, trades)

	ticks, factory := manualTicker()
	w := New(Config{Enabled: true, Interval: time.Minute}, orch, nil, testLogger()).WithTicker(factory)

	w.Start(context.Background())
	defer w.Stop()

	ticks <- time.Now()

	require.Eventually(t, func() bool {
		got, err := trades.ListByPosition(context.Background(), "pos-1", domain.ListOpts{})
		return err == nil && len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The first tick traded and moved the anchor to 96; at the same price a
	// second tick must stay quiet.
	ticks <- time.Now()

	assert.Never(t, func() bool {
		got, err := trades.ListByPosition(context.Background(), "pos-1", domain.ListOpts{})
		return err == nil && len(got) > 1
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestWorker_StartStopLifecycle(t *testing.T) {
	orch := testOrchestrator(t, memory.NewTradeStore())
	_, factory := manualTicker()
	w := New(Config{Enabled: true, Interval: time.Minute}, orch, nil, testLogger()).WithTicker(factory)

	assert.False(t, w.Status().Running)

	w.Start(context.Background())
	assert.True(t, w.Status().Running)

	// Starting a running worker is a no-op.
	w.Start(context.Background())
	assert.True(t, w.Status().Running)

	w.Stop()
	assert.False(t, w.Status().Running)

	// Stop is idempotent and safe on a stopped worker.
	w.Stop()
	assert.False(t, w.Status().Running)
}

func TestWorker_DisabledNeverStarts(t *testing.T) {
	orch := testOrchestrator(t, memory.NewTradeStore())
	w := New(Config{Enabled: false, Interval: time.Minute}, orch, nil, testLogger())

	w.Start(context.Background())
	st := w.Status()
	assert.False(t, st.Running)
	assert.False(t, st.Enabled)

	w.Stop()
}

func TestWorker_StatusReportsInterval(t *testing.T) {
	orch := testOrchestrator(t, memory.NewTradeStore())
	w := New(Config{Enabled: true, Interval: 90 * time.Second}, orch, nil, testLogger())

	st := w.Status()
	assert.True(t, st.Enabled)
	assert.Equal(t, 90, st.IntervalSeconds)
}

func TestWorker_ContextCancelStopsLoop(t *testing.T) {
	orch := testOrchestrator(t, memory.NewTradeStore())
	_, factory := manualTicker()
	w := New(Config{Enabled: true, Interval: time.Minute}, orch, nil, testLogger()).WithTicker(factory)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	require.True(t, w.Status().Running)

	cancel()
	// Stop blocks until the loop goroutine observes the cancellation.
	w.Stop()
	assert.False(t, w.Status().Running)
}
