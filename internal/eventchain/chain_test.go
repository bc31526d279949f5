package eventchain

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// flakyStore fails the appends whose index (0-based) is in failAt.
type flakyStore struct {
	*memory.EventStore
	calls  int
	failAt map[int]bool
}

func (s *flakyStore) Append(ctx context.Context, record domain.EventRecord) error {
	i := s.calls
	s.calls++
	if s.failAt[i] {
		return errors.New("storage down")
	}
	return s.EventStore.Append(ctx, record)
}

// captureBus records published payloads.
type captureBus struct {
	payloads [][]byte
}

func (b *captureBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *captureBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func TestTrace_LinksRecordsCausally(t *testing.T) {
	store := memory.NewEventStore()
	chain := New(store, nil, testLogger())
	ctx := context.Background()

	trace := chain.NewTrace(TraceScope{TenantID: "t1", AssetID: "SPY"}, domain.SourceWorker)
	trace.Append(ctx, domain.EventPriceEvent, map[string]any{"price": "100"})
	trace.Append(ctx, domain.EventTriggerEvaluated, map[string]any{"fired": true})
	trace.Append(ctx, domain.EventGuardrailEvaluated, nil)

	records, err := store.List(ctx, domain.EventFilter{TraceID: trace.ID()})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Nil(t, records[0].ParentEventID)
	require.NotNil(t, records[1].ParentEventID)
	assert.Equal(t, records[0].EventID, *records[1].ParentEventID)
	require.NotNil(t, records[2].ParentEventID)
	assert.Equal(t, records[1].EventID, *records[2].ParentEventID)

	// Scope ids are stamped on every record; the source tag only on the root.
	for _, r := range records {
		require.NotNil(t, r.TenantID)
		assert.Equal(t, "t1", *r.TenantID)
	}
	assert.Equal(t, domain.SourceWorker, records[0].Payload["source"])
	_, hasSource := records[1].Payload["source"]
	assert.False(t, hasSource)
}

func TestTrace_FailedAppendKeepsChainLinear(t *testing.T) {
	store := &flakyStore{EventStore: memory.NewEventStore(), failAt: map[int]bool{1: true}}
	chain := New(store, nil, testLogger())
	ctx := context.Background()

	trace := chain.NewTrace(TraceScope{}, domain.SourceManual)
	trace.Append(ctx, domain.EventPriceEvent, nil)
	trace.Append(ctx, domain.EventTriggerEvaluated, nil) // lost
	trace.Append(ctx, domain.EventGuardrailEvaluated, nil)

	records, err := store.List(ctx, domain.EventFilter{TraceID: trace.ID()})
	require.NoError(t, err)
	require.Len(t, records, 2)

	// The surviving third record points at the root, not at the lost write.
	require.NotNil(t, records[1].ParentEventID)
	assert.Equal(t, records[0].EventID, *records[1].ParentEventID)

	ordered, err := Reconstruct(records)
	require.NoError(t, err)
	assert.Len(t, ordered, 2)
}

func TestTrace_FailedRootDefersRooting(t *testing.T) {
	store := &flakyStore{EventStore: memory.NewEventStore(), failAt: map[int]bool{0: true}}
	chain := New(store, nil, testLogger())
	ctx := context.Background()

	trace := chain.NewTrace(TraceScope{}, domain.SourceManual)
	trace.Append(ctx, domain.EventPriceEvent, nil) // lost
	trace.Append(ctx, domain.EventTriggerEvaluated, nil)

	records, err := store.List(ctx, domain.EventFilter{TraceID: trace.ID()})
	require.NoError(t, err)
	require.Len(t, records, 1)

	// The first write that lands becomes the root and carries the source tag.
	assert.Nil(t, records[0].ParentEventID)
	assert.Equal(t, domain.SourceManual, records[0].Payload["source"])
}

func TestChain_PublishesToBus(t *testing.T) {
	bus := &captureBus{}
	chain := New(memory.NewEventStore(), bus, testLogger())

	trace := chain.NewTrace(TraceScope{}, domain.SourceWorker)
	trace.Append(context.Background(), domain.EventPriceEvent, nil)
	trace.Append(context.Background(), domain.EventTriggerEvaluated, nil)

	assert.Len(t, bus.payloads, 2)
}

func TestChain_IndependentTraces(t *testing.T) {
	store := memory.NewEventStore()
	chain := New(store, nil, testLogger())
	ctx := context.Background()

	t1 := chain.NewTrace(TraceScope{}, domain.SourceWorker)
	t2 := chain.NewTrace(TraceScope{}, domain.SourceWorker)
	t1.Append(ctx, domain.EventPriceEvent, nil)
	t2.Append(ctx, domain.EventPriceEvent, nil)
	t1.Append(ctx, domain.EventTriggerEvaluated, nil)

	r1, err := store.List(ctx, domain.EventFilter{TraceID: t1.ID()})
	require.NoError(t, err)
	r2, err := store.List(ctx, domain.EventFilter{TraceID: t2.ID()})
	require.NoError(t, err)

	require.Len(t, r1, 2)
	require.Len(t, r2, 1)
	assert.Nil(t, r2[0].ParentEventID)
}

func TestReconstruct_ShuffledInput(t *testing.T) {
	store := memory.NewEventStore()
	chain := New(store, nil, testLogger())
	ctx := context.Background()

	trace := chain.NewTrace(TraceScope{}, domain.SourceWorker)
	types := []domain.EventType{
		domain.EventPriceEvent,
		domain.EventTriggerEvaluated,
		domain.EventGuardrailEvaluated,
		domain.EventOrderCreated,
		domain.EventExecutionRecorded,
		domain.EventPositionUpdated,
	}
	for _, et := range types {
		trace.Append(ctx, et, nil)
	}

	records, err := store.List(ctx, domain.EventFilter{TraceID: trace.ID()})
	require.NoError(t, err)
	require.Len(t, records, len(types))

	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})

	ordered, err := Reconstruct(records)
	require.NoError(t, err)
	require.Len(t, ordered, len(types))
	for i, et := range types {
		assert.Equal(t, et, ordered[i].EventType)
	}
}

func TestReconstruct_RejectsMalformedChains(t *testing.T) {
	id := func(s string) *string { return &s }

	// Empty input is fine.
	ordered, err := Reconstruct(nil)
	require.NoError(t, err)
	assert.Nil(t, ordered)

	// No root.
	_, err = Reconstruct([]domain.EventRecord{
		{EventID: "b", TraceID: "t", ParentEventID: id("a")},
	})
	assert.Error(t, err)

	// Two roots.
	_, err = Reconstruct([]domain.EventRecord{
		{EventID: "a", TraceID: "t"},
		{EventID: "b", TraceID: "t"},
	})
	assert.Error(t, err)

	// Parent referencing a record outside the set.
	_, err = Reconstruct([]domain.EventRecord{
		{EventID: "a", TraceID: "t"},
		{EventID: "c", TraceID: "t", ParentEventID: id("missing")},
	})
	assert.Error(t, err)

	// Fork: one parent, two children.
	_, err = Reconstruct([]domain.EventRecord{
		{EventID: "a", TraceID: "t"},
		{EventID: "b", TraceID: "t", ParentEventID: id("a")},
		{EventID: "c", TraceID: "t", ParentEventID: id("a")},
	})
	assert.Error(t, err)
}
