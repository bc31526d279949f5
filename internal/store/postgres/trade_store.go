package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, order_id, position_id, ticker, side,
	fill_price::text, fill_quantity::text, notional::text,
	commission::text, commission_rate_effective::text,
	status, executed_at`

func scanTrade(scanner interface{ Scan(dest ...any) error }) (domain.Trade, error) {
	var t domain.Trade
	var side, status string
	var fillPrice, fillQty, notional, commission, rate string

	err := scanner.Scan(
		&t.ID, &t.OrderID, &t.PositionID, &t.Ticker, &side,
		&fillPrice, &fillQty, &notional,
		&commission, &rate,
		&status, &t.ExecutedAt,
	)
	if err != nil {
		return domain.Trade{}, err
	}

	t.Side = domain.Direction(side)
	t.Status = domain.TradeStatus(status)

	if t.FillPrice, err = parseDecimal(fillPrice); err != nil {
		return domain.Trade{}, err
	}
	if t.FillQuantity, err = parseDecimal(fillQty); err != nil {
		return domain.Trade{}, err
	}
	if t.Notional, err = parseDecimal(notional); err != nil {
		return domain.Trade{}, err
	}
	if t.Commission, err = parseDecimal(commission); err != nil {
		return domain.Trade{}, err
	}
	if t.CommissionRateEffective, err = parseDecimal(rate); err != nil {
		return domain.Trade{}, err
	}
	return t, nil
}

// Insert records an execution.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, order_id, position_id, ticker, side,
			fill_price, fill_quantity, notional,
			commission, commission_rate_effective,
			status, executed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10,
			$11, $12
		)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.OrderID, t.PositionID, t.Ticker, string(t.Side),
		decimalArg(t.FillPrice), decimalArg(t.FillQuantity), decimalArg(t.Notional),
		decimalArg(t.Commission), decimalArg(t.CommissionRateEffective),
		string(t.Status), t.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListByPosition returns trades for a position, newest first, with pagination.
func (s *TradeStore) ListByPosition(ctx context.Context, positionID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE position_id = $1 ORDER BY executed_at DESC`
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
		return nil, fmt.Errorf("postgres: list trades by position: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan trades by position: %w", err)
	}
	return trades, nil
}

// SumNotionalSince returns the total executed notional for the position since
// the given time.
func (s *TradeStore) SumNotionalSince(ctx context.Context, positionID string, since time.Time) (decimal.Decimal, error) {
	var sum string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(notional), 0)::text FROM trades
		 WHERE position_id = $1 AND executed_at >= $2`,
		positionID, since,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum notional since: %w", err)
	}
	return parseDecimal(sum)
}
