// Package worker runs the background scheduling loop: every interval it
// fetches the eligible positions and runs one cycle each, sequentially, with
// failures isolated per position. It is an explicit service object with a
// Start/Stop lifecycle and an injected ticker so tests can drive ticks
// deterministically.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/metrics"
	"github.com/alanyoungcy/anchorbot/internal/orchestrator"
)

// TickerFactory produces a tick channel and a stop function for the given
// interval. The default wraps time.NewTicker; tests inject a manual channel.
type TickerFactory func(interval time.Duration) (ticks <-chan time.Time, stop func())

func defaultTicker(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// Config holds the worker parameters.
type Config struct {
	Enabled  bool
	Interval time.Duration
}

// Status is the worker's externally visible state.
type Status struct {
	Running         bool `json:"running"`
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// Worker is the background scheduler. Construct with New, call Start once,
// Stop on shutdown. Stop blocks until the loop goroutine has exited.
type Worker struct {
	cfg       Config
	orch      *orchestrator.Orchestrator
	newTicker TickerFactory
	recorder  *metrics.Recorder
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Worker. recorder may be nil.
func New(cfg Config, orch *orchestrator.Orchestrator, recorder *metrics.Recorder, logger *slog.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Worker{
		cfg:       cfg,
		orch:      orch,
		newTicker: defaultTicker,
		recorder:  recorder,
		logger:    logger.With(slog.String("component", "worker")),
	}
}

// WithTicker overrides the ticker factory. Must be called before Start.
func (w *Worker) WithTicker(factory TickerFactory) *Worker {
	w.newTicker = factory
	return w
}

// Start launches the scheduling loop goroutine. A disabled worker starts
// nothing; calling Start on a running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.cfg.Enabled || w.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	w.logger.Info("worker starting",
		slog.Duration("interval", w.cfg.Interval),
	)
	go w.loop(loopCtx)
}

// Stop cancels the loop and waits for it to exit. Safe to call multiple
// times and on a never-started worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Status returns the current lifecycle state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Running:         w.running,
		Enabled:         w.cfg.Enabled,
		IntervalSeconds: int(w.cfg.Interval / time.Second),
	}
}

// loop ticks until the context is cancelled. Each tick runs every eligible
// position through the orchestrator; RunAll already isolates per-position
// failures, and a failure to even list positions only skips the tick.
func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	ticks, stop := w.newTicker(w.cfg.Interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	started := time.Now()

	results, err := w.orch.RunAll(ctx, domain.SourceWorker)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "scheduled tick failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}

	executed := 0
	for _, r := range results {
		if r.Executed {
			executed++
		}
	}

	w.recorder.TickDuration(time.Since(started).Seconds())
	w.logger.DebugContext(ctx, "scheduled tick complete",
		slog.Int("positions", len(results)),
		slog.Int("executed", executed),
		slog.Duration("took", time.Since(started)),
	)
}
