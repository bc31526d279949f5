package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/anchorbot/internal/broker"
	"github.com/alanyoungcy/anchorbot/internal/cache/local"
	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/engine"
	"github.com/alanyoungcy/anchorbot/internal/eventchain"
	"github.com/alanyoungcy/anchorbot/internal/marketdata"
	"github.com/alanyoungcy/anchorbot/internal/metrics"
	"github.com/alanyoungcy/anchorbot/internal/orchestrator"
	"github.com/alanyoungcy/anchorbot/internal/server"
	"github.com/alanyoungcy/anchorbot/internal/server/handler"
	"github.com/alanyoungcy/anchorbot/internal/server/ws"
	"github.com/alanyoungcy/anchorbot/internal/service"
	"github.com/alanyoungcy/anchorbot/internal/store/memory"
)

// shutdownGrace bounds how long in-flight HTTP requests may run during
// shutdown.
const shutdownGrace = 10 * time.Second

// ServeMode runs the long-lived service: the background worker, the HTTP API,
// and the WebSocket event tail. It blocks until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	deps.Worker.Start(ctx)
	defer deps.Worker.Stop()

	if !a.cfg.Server.Enabled {
		// Headless: only the worker runs.
		<-ctx.Done()
		return nil
	}

	// Services.
	cycleSvc := service.NewCycleService(deps.Orchestrator, deps.Worker, a.logger)
	eventSvc := service.NewEventService(deps.Events, deps.Archiver, a.logger)
	positionSvc := service.NewPositionService(deps.Positions, deps.Locks, deps.Chain, a.logger)

	// WebSocket hub bridging the signal bus.
	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Cycles:    handler.NewCycleHandler(cycleSvc, a.logger),
		Positions: handler.NewPositionHandler(positionSvc, a.logger),
		Events:    handler.NewEventHandler(eventSvc, a.logger),
		Metrics:   deps.Metrics.Handler(),
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// OnceMode runs a single pass over every eligible position and exits. Useful
// for cron-driven deployments and smoke tests.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")

	results, err := deps.Orchestrator.RunAll(ctx, domain.SourceManual)
	if err != nil {
		return fmt.Errorf("app: once mode: %w", err)
	}

	for _, r := range results {
		a.logger.InfoContext(ctx, "cycle finished",
			slog.String("position_id", r.PositionID),
			slog.String("outcome", r.Outcome()),
			slog.String("reason", r.Reason),
		)
	}
	return nil
}

// SimMode replays a CSV price series against a synthetic position in a
// throwaway in-memory environment. The decision path is the same orchestrator
// code serve mode runs; only the collaborators are swapped.
func (a *App) SimMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting sim mode",
		slog.String("csv", a.cfg.Sim.CSVPath),
		slog.String("ticker", a.cfg.Sim.Ticker),
	)

	series, err := marketdata.LoadSeriesCSV(a.cfg.Sim.CSVPath, a.cfg.Sim.Ticker, "USD")
	if err != nil {
		return fmt.Errorf("app: sim mode: %w", err)
	}

	positions := memory.NewPositionStore()
	events := memory.NewEventStore()

	defaults := engineDefaults(a.cfg.Defaults)
	// Replay timestamps rarely fall inside exchange hours; the market-hours
	// gate would silently block every cycle.
	defaults.OrderPolicy.AllowAfterHours = true

	chain := eventchain.New(events, nil, a.logger).WithClock(series.Now)
	paper := broker.NewPaper(broker.PaperConfig{
		SlippageBps:    int64(a.cfg.Broker.SlippageBps),
		PartialFillPct: decimal.NewFromFloat(a.cfg.Broker.PartialFillPct),
	}, a.logger).WithClock(series.Now)

	orch := orchestrator.New(orchestrator.Deps{
		Positions: positions,
		Orders:    memory.NewOrderStore(),
		Trades:    memory.NewTradeStore(),
		Chain:     chain,
		Quotes:    series,
		Broker:    paper,
		Resolver:  engine.NewResolver(memory.NewConfigStore(), defaults),
		Locks:     local.NewLockManager(),
		Metrics:   metrics.New(),
		Logger:    a.logger,
	}, orchestrator.Options{Clock: series.Now})

	pos := domain.PositionState{
		ID:        uuid.New().String(),
		Ticker:    a.cfg.Sim.Ticker,
		Currency:  "USD",
		Quantity:  decimal.NewFromFloat(a.cfg.Sim.Quantity),
		Cash:      decimal.NewFromFloat(a.cfg.Sim.Cash),
		AutoCycle: true,
	}
	if a.cfg.Sim.Anchor > 0 {
		anchor := decimal.NewFromFloat(a.cfg.Sim.Anchor)
		pos.AnchorPrice = &anchor
	}
	if err := positions.Create(ctx, pos); err != nil {
		return fmt.Errorf("app: sim mode: seed position: %w", err)
	}

	sim := orchestrator.NewSimulator(orch, series, []string{pos.ID}, a.logger)
	_, summary, err := sim.Run(ctx, domain.SourceManual)
	if err != nil {
		return fmt.Errorf("app: sim mode: %w", err)
	}

	final, err := positions.GetByID(ctx, pos.ID)
	if err != nil {
		return fmt.Errorf("app: sim mode: load final position: %w", err)
	}

	a.logger.InfoContext(ctx, "replay summary",
		slog.Int("ticks", summary.Ticks),
		slog.Int("cycles", summary.Cycles),
		slog.Int("triggers_fired", summary.TriggersFired),
		slog.Int("trades_executed", summary.TradesExecuted),
		slog.Int("blocked", summary.Blocked),
		slog.String("final_quantity", final.Quantity.String()),
		slog.String("final_cash", final.Cash.String()),
		slog.String("total_commission_paid", final.TotalCommissionPaid.String()),
	)
	return nil
}
