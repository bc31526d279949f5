package postgres

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal values are written as strings (pgx text-encodes them into NUMERIC
// columns) and read back through NUMERIC::text casts, so no driver-level
// codec registration is needed.

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("postgres: parse decimal %q: %w", s, err)
	}
	return d, nil
}

func parseDecimalPtr(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := parseDecimal(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalArg(d decimal.Decimal) string {
	return d.String()
}

func decimalPtrArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	v := d.String()
	return &v
}
