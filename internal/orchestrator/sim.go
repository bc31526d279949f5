package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/anchorbot/internal/marketdata"
)

// Simulator replays a historical price series through an Orchestrator wired
// against simulation-only collaborators (a Series quote provider, a paper
// broker, and its own stores). The decision path is the identical RunCycle
// code the live system executes; only the injected collaborators differ, so
// a price path produces the same decision sequence replayed as it would have
// live.
type Simulator struct {
	orch        *Orchestrator
	series      *marketdata.Series
	positionIDs []string
	logger      *slog.Logger
}

// NewSimulator creates a Simulator. The orchestrator must already be wired
// with the series as its quote provider and with the series clock (see
// Options.Clock) so event timestamps follow replay time.
func NewSimulator(orch *Orchestrator, series *marketdata.Series, positionIDs []string, logger *slog.Logger) *Simulator {
	return &Simulator{
		orch:        orch,
		series:      series,
		positionIDs: positionIDs,
		logger:      logger.With(slog.String("component", "simulator")),
	}
}

// Summary aggregates a replay run.
type Summary struct {
	Ticks          int
	Cycles         int
	TriggersFired  int
	TradesExecuted int
	Blocked        int
}

// Run replays the whole series from the start, running one cycle per position
// per point. It returns every cycle result in order plus a summary.
func (s *Simulator) Run(ctx context.Context, source string) ([]CycleResult, Summary, error) {
	s.series.Reset()
	var summary Summary

	var results []CycleResult
	for s.series.Next() {
		if ctx.Err() != nil {
			return results, summary, ctx.Err()
		}
		summary.Ticks++

		for _, id := range s.positionIDs {
			res, err := s.orch.RunCycle(ctx, id, source)
			if err != nil {
				return results, summary, fmt.Errorf("simulator: cycle at tick %d: %w", summary.Ticks, err)
			}
			results = append(results, res)

			summary.Cycles++
			if res.Trigger.Fired {
				summary.TriggersFired++
			}
			if res.Executed {
				summary.TradesExecuted++
			} else if res.Trigger.Fired && !res.Skipped {
				summary.Blocked++
			}
		}
	}

	s.logger.Info("replay finished",
		slog.Int("ticks", summary.Ticks),
		slog.Int("cycles", summary.Cycles),
		slog.Int("triggers_fired", summary.TriggersFired),
		slog.Int("trades_executed", summary.TradesExecuted),
	)
	return results, summary, nil
}

// Decisions projects cycle results down to the (direction, allowed, reason)
// triples used to compare live and replayed behavior.
func Decisions(results []CycleResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		allowed := false
		if r.Guardrail != nil {
			allowed = r.Guardrail.Allowed
		}
		out = append(out, fmt.Sprintf("%s/%s/%t/%s", r.PositionID, r.Trigger.Direction, allowed, r.Reason))
	}
	return out
}
