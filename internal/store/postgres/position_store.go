package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, tenant_id, portfolio_id, ticker, currency,
	quantity::text, cash::text, anchor_price::text,
	dividend_receivable::text, total_commission_paid::text, total_dividends_received::text,
	auto_cycle, created_at, updated_at`

func scanPosition(scanner interface{ Scan(dest ...any) error }) (domain.PositionState, error) {
	var p domain.PositionState
	var quantity, cash, divRecv, commPaid, divTotal string
	var anchor *string

	err := scanner.Scan(
		&p.ID, &p.TenantID, &p.PortfolioID, &p.Ticker, &p.Currency,
		&quantity, &cash, &anchor,
		&divRecv, &commPaid, &divTotal,
		&p.AutoCycle, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.PositionState{}, err
	}

	if p.Quantity, err = parseDecimal(quantity); err != nil {
		return domain.PositionState{}, err
	}
	if p.Cash, err = parseDecimal(cash); err != nil {
		return domain.PositionState{}, err
	}
	if p.AnchorPrice, err = parseDecimalPtr(anchor); err != nil {
		return domain.PositionState{}, err
	}
	if p.DividendReceivable, err = parseDecimal(divRecv); err != nil {
		return domain.PositionState{}, err
	}
	if p.TotalCommissionPaid, err = parseDecimal(commPaid); err != nil {
		return domain.PositionState{}, err
	}
	if p.TotalDividendsReceived, err = parseDecimal(divTotal); err != nil {
		return domain.PositionState{}, err
	}
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.PositionState, error) {
	var positions []domain.PositionState
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, pos domain.PositionState) error {
	const query = `
		INSERT INTO positions (
			id, tenant_id, portfolio_id, ticker, currency,
			quantity, cash, anchor_price,
			dividend_receivable, total_commission_paid, total_dividends_received,
			auto_cycle, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, NOW(), NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		pos.ID, pos.TenantID, pos.PortfolioID, pos.Ticker, pos.Currency,
		decimalArg(pos.Quantity), decimalArg(pos.Cash), decimalPtrArg(pos.AnchorPrice),
		decimalArg(pos.DividendReceivable), decimalArg(pos.TotalCommissionPaid), decimalArg(pos.TotalDividendsReceived),
		pos.AutoCycle,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", pos.ID, err)
	}
	return nil
}

// Save writes a full snapshot back. The caller holds the position lock.
func (s *PositionStore) Save(ctx context.Context, pos domain.PositionState) error {
	const query = `
		UPDATE positions SET
			quantity = $2, cash = $3, anchor_price = $4,
			dividend_receivable = $5, total_commission_paid = $6, total_dividends_received = $7,
			auto_cycle = $8, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		pos.ID,
		decimalArg(pos.Quantity), decimalArg(pos.Cash), decimalPtrArg(pos.AnchorPrice),
		decimalArg(pos.DividendReceivable), decimalArg(pos.TotalCommissionPaid), decimalArg(pos.TotalDividendsReceived),
		pos.AutoCycle,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %s: %w", pos.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position by ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.PositionState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PositionState{}, domain.ErrNotFound
		}
		return domain.PositionState{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListEligible returns positions currently enabled for automatic cycles.
func (s *PositionStore) ListEligible(ctx context.Context) ([]domain.PositionState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE auto_cycle ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list eligible positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan eligible positions: %w", err)
	}
	return positions, nil
}

// List returns positions with pagination, ordered by ID.
func (s *PositionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.PositionState, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions ORDER BY id`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}
