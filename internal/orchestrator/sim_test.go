package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/anchorbot/internal/broker"
	"github.com/alanyoungcy/anchorbot/internal/cache/local"
	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/engine"
	"github.com/alanyoungcy/anchorbot/internal/eventchain"
	"github.com/alanyoungcy/anchorbot/internal/marketdata"
	"github.com/alanyoungcy/anchorbot/internal/store/memory"
)

func replayPoints() []marketdata.SeriesPoint {
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	prices := []string{"100", "96.9", "98", "103.2"}
	points := make([]marketdata.SeriesPoint, len(prices))
	for i, p := range prices {
		points[i] = marketdata.SeriesPoint{At: base.Add(time.Duration(i) * time.Hour), Price: dec(p)}
	}
	return points
}

func newSimEnv(t *testing.T) (*Simulator, *memory.PositionStore, *marketdata.Series) {
	t.Helper()
	series := marketdata.NewSeries("SPY", "USD", replayPoints())
	positions := memory.NewPositionStore()

	anchor := dec("100")
	require.NoError(t, positions.Create(context.Background(), domain.PositionState{
		ID:          "pos-1",
		Ticker:      "SPY",
		Currency:    "USD",
		Quantity:    dec("100"),
		Cash:        dec("10000"),
		AnchorPrice: &anchor,
		AutoCycle:   true,
	}))

	orch := New(Deps{
		Positions: positions,
		Orders:    memory.NewOrderStore(),
		Trades:    memory.NewTradeStore(),
		Chain:     eventchain.New(memory.NewEventStore(), nil, testLogger()).WithClock(series.Now),
		Quotes:    series,
		Broker:    broker.NewPaper(broker.PaperConfig{}, testLogger()).WithClock(series.Now),
		Resolver:  engine.NewResolver(memory.NewConfigStore(), testDefaults()),
		Locks:     local.NewLockManager(),
		Logger:    testLogger(),
	}, Options{Clock: series.Now})

	return NewSimulator(orch, series, []string{"pos-1"}, testLogger()), positions, series
}

func TestSimulator_ReplaySummary(t *testing.T) {
	sim, positions, _ := newSimEnv(t)

	results, summary, err := sim.Run(context.Background(), domain.SourceManual)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Ticks)
	assert.Equal(t, 4, summary.Cycles)
	assert.Equal(t, 2, summary.TriggersFired)
	assert.Equal(t, 2, summary.TradesExecuted)
	assert.Equal(t, 0, summary.Blocked)
	require.Len(t, results, 4)

	// The dip buys, the rally sells, the quiet ticks do nothing.
	assert.Equal(t, "no_trigger", results[0].Outcome())
	assert.Equal(t, "executed", results[1].Outcome())
	assert.Equal(t, domain.DirectionBuy, results[1].Trigger.Direction)
	assert.Equal(t, "no_trigger", results[2].Outcome())
	assert.Equal(t, "executed", results[3].Outcome())
	assert.Equal(t, domain.DirectionSell, results[3].Trigger.Direction)

	// End state matches the hand-computed path: the anchor followed each
	// full fill.
	pos, err := positions.GetByID(context.Background(), "pos-1")
	require.NoError(t, err)
	anchor, ok := pos.Anchor()
	require.True(t, ok)
	assert.True(t, anchor.Equal(dec("103.2")), "anchor %s", anchor)
	assert.True(t, pos.Quantity.Equal(dec("101")), "quantity %s", pos.Quantity)
	assert.True(t, pos.Cash.Equal(dec("10018.9012")), "cash %s", pos.Cash)
}

func TestSimulator_EventTimestampsFollowReplayTime(t *testing.T) {
	sim, _, series := newSimEnv(t)

	events := memory.NewEventStore()
	sim.orch.deps.Chain = eventchain.New(events, nil, testLogger()).WithClock(series.Now)

	_, _, err := sim.Run(context.Background(), domain.SourceManual)
	require.NoError(t, err)

	records, err := events.List(context.Background(), domain.EventFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, records)

	first := replayPoints()[0].At
	last := replayPoints()[3].At
	for _, r := range records {
		assert.False(t, r.CreatedAt.Before(first), "event before replay window: %s", r.CreatedAt)
		assert.False(t, r.CreatedAt.After(last), "event after replay window: %s", r.CreatedAt)
	}
}

// The replayed decision sequence must be indistinguishable from feeding the
// same prices through a live-wired orchestrator one tick at a time.
func TestSimulator_DecisionParityWithLivePath(t *testing.T) {
	sim, _, _ := newSimEnv(t)
	simResults, _, err := sim.Run(context.Background(), domain.SourceManual)
	require.NoError(t, err)

	live := newCycleEnv(t, nil, testDefaults())
	live.seed(t, "100")
	var liveResults []CycleResult
	for _, p := range replayPoints() {
		live.quotes.price = p.Price
		res, err := live.orch.RunCycle(context.Background(), "pos-1", domain.SourceManual)
		require.NoError(t, err)
		liveResults = append(liveResults, res)
	}

	assert.Equal(t, Decisions(liveResults), Decisions(simResults))
}

func TestSimulator_RerunIsDeterministic(t *testing.T) {
	simA, _, _ := newSimEnv(t)
	resA, sumA, err := simA.Run(context.Background(), domain.SourceManual)
	require.NoError(t, err)

	simB, _, _ := newSimEnv(t)
	resB, sumB, err := simB.Run(context.Background(), domain.SourceManual)
	require.NoError(t, err)

	assert.Equal(t, sumA, sumB)
	assert.Equal(t, Decisions(resA), Decisions(resB))
}
