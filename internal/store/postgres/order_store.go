package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, position_id, tenant_id, ticker, side,
	quantity::text, quote_price::text, notional::text, commission_rate_snapshot::text,
	status, reason, trace_id, source, created_at, filled_at`

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, status string
	var quantity, quotePrice, notional, rate string

	err := scanner.Scan(
		&o.ID, &o.PositionID, &o.TenantID, &o.Ticker, &side,
		&quantity, &quotePrice, &notional, &rate,
		&status, &o.Reason, &o.TraceID, &o.Source, &o.CreatedAt, &o.FilledAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.Direction(side)
	o.Status = domain.OrderStatus(status)

	if o.Quantity, err = parseDecimal(quantity); err != nil {
		return domain.Order{}, err
	}
	if o.QuotePrice, err = parseDecimal(quotePrice); err != nil {
		return domain.Order{}, err
	}
	if o.Notional, err = parseDecimal(notional); err != nil {
		return domain.Order{}, err
	}
	if o.CommissionRateSnapshot, err = parseDecimal(rate); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, position_id, tenant_id, ticker, side,
			quantity, quote_price, notional, commission_rate_snapshot,
			status, reason, trace_id, source, created_at, filled_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.PositionID, o.TenantID, o.Ticker, string(o.Side),
		decimalArg(o.Quantity), decimalArg(o.QuotePrice), decimalArg(o.Notional), decimalArg(o.CommissionRateSnapshot),
		string(o.Status), o.Reason, o.TraceID, o.Source, o.CreatedAt, o.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// MarkFilled transitions a submitted order to filled. Terminal orders are
// immutable, so the status guard is part of the WHERE clause.
func (s *OrderStore) MarkFilled(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $2, filled_at = $3 WHERE id = $1 AND status = $4`,
		id, string(domain.OrderStatusFilled), at, string(domain.OrderStatusSubmitted),
	)
	if err != nil {
		return fmt.Errorf("postgres: mark order filled %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkRejected transitions a submitted order to rejected with a reason.
func (s *OrderStore) MarkRejected(ctx context.Context, id string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $2, reason = $3 WHERE id = $1 AND status = $4`,
		id, string(domain.OrderStatusRejected), reason, string(domain.OrderStatusSubmitted),
	)
	if err != nil {
		return fmt.Errorf("postgres: mark order rejected %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListByPosition returns orders for a position, newest first, with pagination.
func (s *OrderStore) ListByPosition(ctx context.Context, positionID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE position_id = $1 ORDER BY created_at DESC`
	args := []any{positionID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by position: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by position: %w", err)
	}
	return orders, nil
}

// CountSince returns the number of non-rejected orders for the position
// created at or after the given time.
func (s *OrderStore) CountSince(ctx context.Context, positionID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders
		 WHERE position_id = $1 AND created_at >= $2 AND status <> $3`,
		positionID, since, string(domain.OrderStatusRejected),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count orders since: %w", err)
	}
	return count, nil
}
