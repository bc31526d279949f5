// Package service holds the application services behind the HTTP surface.
// Services translate transport-level requests into orchestrator and store
// calls; all trading decisions live in the engine and orchestrator packages.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/anchorbot/internal/orchestrator"
	"github.com/alanyoungcy/anchorbot/internal/worker"
)

// CycleService exposes the manual trigger path and worker introspection.
type CycleService struct {
	orch   *orchestrator.Orchestrator
	worker *worker.Worker
	logger *slog.Logger
}

// NewCycleService creates a CycleService.
func NewCycleService(orch *orchestrator.Orchestrator, w *worker.Worker, logger *slog.Logger) *CycleService {
	return &CycleService{
		orch:   orch,
		worker: w,
		logger: logger.With(slog.String("component", "cycle_service")),
	}
}

// RunManual runs cycles on demand, tagged with the given source so the audit
// trail distinguishes them from scheduled runs. An empty positionID runs
// every eligible position; otherwise exactly the one position is cycled.
func (s *CycleService) RunManual(ctx context.Context, positionID, source string) ([]orchestrator.CycleResult, error) {
	if positionID == "" {
		results, err := s.orch.RunAll(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("cycle_service: run all: %w", err)
		}
		return results, nil
	}

	result, err := s.orch.RunCycle(ctx, positionID, source)
	if err != nil {
		return nil, fmt.Errorf("cycle_service: run cycle %s: %w", positionID, err)
	}
	return []orchestrator.CycleResult{result}, nil
}

// WorkerStatus reports the background scheduler's lifecycle state.
func (s *CycleService) WorkerStatus() worker.Status {
	return s.worker.Status()
}
