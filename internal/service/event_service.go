package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/eventchain"
)

// EventService reads the audit trail.
type EventService struct {
	events   domain.EventStore
	archiver domain.Archiver // optional
	logger   *slog.Logger
}

// NewEventService creates an EventService. archiver may be nil when no object
// storage is configured.
func NewEventService(events domain.EventStore, archiver domain.Archiver, logger *slog.Logger) *EventService {
	return &EventService{
		events:   events,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "event_service")),
	}
}

// List returns event records matching the filter in storage order.
func (s *EventService) List(ctx context.Context, filter domain.EventFilter) ([]domain.EventRecord, error) {
	records, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("event_service: list events: %w", err)
	}
	return records, nil
}

// ListByTrace returns all records of one trace rebuilt into causal order by
// following the parent pointers from the root.
func (s *EventService) ListByTrace(ctx context.Context, traceID string) ([]domain.EventRecord, error) {
	records, err := s.events.List(ctx, domain.EventFilter{TraceID: traceID})
	if err != nil {
		return nil, fmt.Errorf("event_service: list trace %s: %w", traceID, err)
	}
	ordered, err := eventchain.Reconstruct(records)
	if err != nil {
		return nil, fmt.Errorf("event_service: reconstruct trace %s: %w", traceID, err)
	}
	return ordered, nil
}

// ExportNDJSON streams matching records to w as newline-delimited JSON, one
// record per line, and returns the number of records written.
func (s *EventService) ExportNDJSON(ctx context.Context, w io.Writer, filter domain.EventFilter) (int, error) {
	records, err := s.events.List(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("event_service: export query: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return i, fmt.Errorf("event_service: export encode record %d: %w", i, err)
		}
	}
	return len(records), nil
}

// Archive exports records older than the cutoff to object storage. Returns
// the number of archived records; the primary store is left untouched.
func (s *EventService) Archive(ctx context.Context, before time.Time) (int64, error) {
	if s.archiver == nil {
		return 0, fmt.Errorf("event_service: no archiver configured")
	}
	count, err := s.archiver.ArchiveEvents(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("event_service: archive: %w", err)
	}
	s.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("count", count),
		slog.Time("before", before),
	)
	return count, nil
}
