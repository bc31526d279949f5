package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports old event records to cold storage. Archived records stay
// in the primary store; the event log is append-only and never pruned here.
type Archiver interface {
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
}
