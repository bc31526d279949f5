package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/orchestrator"
	"github.com/alanyoungcy/anchorbot/internal/service"
)

// CycleHandler serves manual cycle triggers and worker status.
type CycleHandler struct {
	cycles *service.CycleService
	logger *slog.Logger
}

// NewCycleHandler creates a CycleHandler.
func NewCycleHandler(cycles *service.CycleService, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{cycles: cycles, logger: logger}
}

type runCyclesRequest struct {
	// PositionID runs one position; empty runs all eligible positions.
	PositionID string `json:"position_id"`
}

type cycleResultResponse struct {
	PositionID string `json:"position_id"`
	TraceID    string `json:"trace_id,omitempty"`
	Outcome    string `json:"outcome"`
	Direction  string `json:"direction,omitempty"`
	Reason     string `json:"reason,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	TradeID    string `json:"trade_id,omitempty"`
	Executed   bool   `json:"executed"`
}

func toCycleResponse(r orchestrator.CycleResult) cycleResultResponse {
	return cycleResultResponse{
		PositionID: r.PositionID,
		TraceID:    r.TraceID,
		Outcome:    r.Outcome(),
		Direction:  string(r.Trigger.Direction),
		Reason:     r.Reason,
		OrderID:    r.OrderID,
		TradeID:    r.TradeID,
		Executed:   r.Executed,
	}
}

// RunCycles triggers cycles on demand, recorded with source "api/manual".
// POST /api/cycles/run
func (h *CycleHandler) RunCycles(w http.ResponseWriter, r *http.Request) {
	var req runCyclesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.cycles.RunManual(r.Context(), req.PositionID, domain.SourceManual)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "manual cycle failed",
			slog.String("position_id", req.PositionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]cycleResultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toCycleResponse(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": out,
	})
}

// WorkerStatus reports the background scheduler's state.
// GET /api/worker/status
func (h *CycleHandler) WorkerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cycles.WorkerStatus())
}
