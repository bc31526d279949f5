package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The events table
// is append-only: this type exposes no update or delete path.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `event_id, event_type, trace_id, parent_event_id,
	tenant_id, portfolio_id, asset_id, payload, created_at`

func scanEvent(scanner interface{ Scan(dest ...any) error }) (domain.EventRecord, error) {
	var r domain.EventRecord
	var eventType string
	var payloadJSON []byte

	err := scanner.Scan(
		&r.EventID, &eventType, &r.TraceID, &r.ParentEventID,
		&r.TenantID, &r.PortfolioID, &r.AssetID, &payloadJSON, &r.CreatedAt,
	)
	if err != nil {
		return domain.EventRecord{}, err
	}

	r.EventType = domain.EventType(eventType)
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &r.Payload); err != nil {
			return domain.EventRecord{}, fmt.Errorf("postgres: unmarshal event payload: %w", err)
		}
	}
	return r, nil
}

func scanEventRows(rows pgx.Rows) ([]domain.EventRecord, error) {
	var records []domain.EventRecord
	for rows.Next() {
		r, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Append inserts a new event record. The payload map is stored as JSONB.
func (s *EventStore) Append(ctx context.Context, record domain.EventRecord) error {
	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal event payload: %w", err)
	}

	const query = `
		INSERT INTO events (
			event_id, event_type, trace_id, parent_event_id,
			tenant_id, portfolio_id, asset_id, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.pool.Exec(ctx, query,
		record.EventID, string(record.EventType), record.TraceID, record.ParentEventID,
		record.TenantID, record.PortfolioID, record.AssetID, payloadJSON, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", record.EventID, err)
	}
	return nil
}

// List returns events matching the filter, oldest first.
func (s *EventStore) List(ctx context.Context, filter domain.EventFilter) ([]domain.EventRecord, error) {
	query := `SELECT ` + eventSelectCols + ` FROM events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.TraceID != "" {
		query += fmt.Sprintf(" AND trace_id = $%d", argIdx)
		args = append(args, filter.TraceID)
		argIdx++
	}
	if filter.AssetID != "" {
		query += fmt.Sprintf(" AND asset_id = $%d", argIdx)
		args = append(args, filter.AssetID)
		argIdx++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, string(filter.Type))
		argIdx++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filter.Since)
		argIdx++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *filter.Until)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	records, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events: %w", err)
	}
	return records, nil
}

// ListBefore returns records created strictly before the cutoff, oldest
// first, for archival export.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.EventRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM events WHERE created_at < $1 ORDER BY created_at ASC`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	defer rows.Close()

	records, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events before: %w", err)
	}
	return records, nil
}
