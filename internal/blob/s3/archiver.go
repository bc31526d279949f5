package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// EventArchiveStore is the narrow read surface the archiver needs from the
// event store.
type EventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.EventRecord, error)
}

// EventArchiver implements domain.Archiver by querying old event records,
// serializing them to NDJSON, and uploading the result to object storage.
//
// The event log is the audit trail of record, so archived rows are NOT
// deleted from the primary store.
type EventArchiver struct {
	writer domain.BlobWriter
	events EventArchiveStore
	logger *slog.Logger
}

// NewEventArchiver creates an EventArchiver.
func NewEventArchiver(writer domain.BlobWriter, events EventArchiveStore, logger *slog.Logger) *EventArchiver {
	return &EventArchiver{
		writer: writer,
		events: events,
		logger: logger.With("component", "archiver"),
	}
}

// ArchiveEvents exports all event records created before the cutoff to
// archive/events/YYYY-MM.ndjson and returns the number of records exported.
func (a *EventArchiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalNDJSON(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath(before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	count := int64(len(records))
	a.logger.Info("archived events",
		"path", path,
		"count", count,
		"before", before.Format(time.RFC3339))
	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/events/%s.ndjson", before.Format("2006-01"))
}

// marshalNDJSON serialises records as newline-delimited JSON, one compact
// line per record.
func marshalNDJSON(records []domain.EventRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("ndjson encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
