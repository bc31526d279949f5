package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/service"
)

// EventHandler serves the audit-trail query, export, and archive endpoints.
type EventHandler struct {
	events *service.EventService
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events *service.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// parseEventFilter extracts event query parameters. The time bounds accept
// RFC 3339 timestamps.
func parseEventFilter(r *http.Request) (domain.EventFilter, error) {
	q := r.URL.Query()
	opts := parseListOpts(r)

	filter := domain.EventFilter{
		TraceID: q.Get("trace_id"),
		AssetID: q.Get("asset_id"),
		Type:    domain.EventType(q.Get("type")),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid since timestamp")
		}
		filter.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid until timestamp")
		}
		filter.Until = &t
	}
	return filter, nil
}

// ListEvents returns event records. When trace_id is given the records come
// back in causal chain order; otherwise in storage order.
// GET /api/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var records []domain.EventRecord
	if filter.TraceID != "" {
		records, err = h.events.ListByTrace(r.Context(), filter.TraceID)
	} else {
		records, err = h.events.List(r.Context(), filter)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": records,
		"count":  len(records),
	})
}

// ExportEvents streams matching records as NDJSON.
// GET /api/events/export
func (h *EventHandler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Export ignores pagination: the point is a complete extract.
	filter.Limit = 0
	filter.Offset = 0

	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.ndjson"`)

	count, err := h.events.ExportNDJSON(r.Context(), w, filter)
	if err != nil {
		// Headers are already sent; all we can do is log.
		h.logger.ErrorContext(r.Context(), "event export failed mid-stream",
			slog.Int("written", count),
			slog.String("error", err.Error()),
		)
	}
}

type archiveRequest struct {
	// Before is the RFC 3339 cutoff; records strictly older are exported.
	Before string `json:"before"`
}

// RunArchive exports old events to object storage.
// POST /api/archive/run
func (h *EventHandler) RunArchive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	before := time.Now().UTC()
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = t
	}

	count, err := h.events.Archive(r.Context(), before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"archived": count,
		"before":   before.Format(time.RFC3339),
	})
}
