package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// SeriesPoint is one historical price observation.
type SeriesPoint struct {
	At    time.Time
	Price decimal.Decimal
}

// Series is a replayable historical price path for one ticker. It implements
// both quote collaborator interfaces: GetLatestQuote serves the point the
// cursor is on, which is what lets the simulation drive the exact same
// orchestrator code as live trading, and GetHistoricalQuote serves arbitrary
// point-in-time lookups.
//
// Cursor movement is not concurrency-safe; the simulator steps it
// sequentially.
type Series struct {
	ticker   string
	currency string
	points   []SeriesPoint
	idx      int
}

// NewSeries creates a Series over the given points, sorted by time.
func NewSeries(ticker, currency string, points []SeriesPoint) *Series {
	sorted := make([]SeriesPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })
	return &Series{
		ticker:   ticker,
		currency: currency,
		points:   sorted,
		idx:      -1,
	}
}

// LoadSeriesCSV reads a "timestamp,price" CSV file (RFC 3339 timestamps, an
// optional header row) into a Series.
func LoadSeriesCSV(path, ticker, currency string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("marketdata: open series %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2

	var points []SeriesPoint
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("marketdata: read series %s: %w", path, err)
		}
		line++

		at, err := time.Parse(time.RFC3339, strings.TrimSpace(record[0]))
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("marketdata: series %s line %d: bad timestamp: %w", path, line, err)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("marketdata: series %s line %d: bad price: %w", path, line, err)
		}
		points = append(points, SeriesPoint{At: at, Price: price})
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("marketdata: series %s: no data points", path)
	}
	return NewSeries(ticker, currency, points), nil
}

// Reset rewinds the cursor to before the first point.
func (s *Series) Reset() {
	s.idx = -1
}

// Next advances the cursor. It returns false once the series is exhausted.
func (s *Series) Next() bool {
	if s.idx+1 >= len(s.points) {
		return false
	}
	s.idx++
	return true
}

// Len returns the number of points.
func (s *Series) Len() int {
	return len(s.points)
}

// Now returns the timestamp of the current point, for clock injection into
// the simulated orchestrator. Before the first Next it returns the first
// point's time.
func (s *Series) Now() time.Time {
	if s.idx < 0 {
		return s.points[0].At
	}
	return s.points[s.idx].At
}

// GetLatestQuote implements domain.QuoteProvider against the cursor position.
func (s *Series) GetLatestQuote(_ context.Context, ticker string) (domain.Quote, error) {
	if ticker != s.ticker {
		return domain.Quote{}, fmt.Errorf("marketdata: series has no data for %s: %w", ticker, domain.ErrNoQuote)
	}
	if s.idx < 0 || s.idx >= len(s.points) {
		return domain.Quote{}, fmt.Errorf("marketdata: series cursor out of range: %w", domain.ErrNoQuote)
	}
	p := s.points[s.idx]
	return domain.Quote{
		Ticker:    s.ticker,
		Price:     p.Price,
		Currency:  s.currency,
		Timestamp: p.At,
	}, nil
}

// GetHistoricalQuote implements domain.HistoricalQuoteProvider: it returns
// the price of the latest point at or before the given time.
func (s *Series) GetHistoricalQuote(_ context.Context, ticker string, at time.Time) (decimal.Decimal, error) {
	if ticker != s.ticker {
		return decimal.Zero, fmt.Errorf("marketdata: series has no data for %s: %w", ticker, domain.ErrNoQuote)
	}
	i := sort.Search(len(s.points), func(i int) bool { return s.points[i].At.After(at) })
	if i == 0 {
		return decimal.Zero, fmt.Errorf("marketdata: no quote for %s at %s: %w", ticker, at.Format(time.RFC3339), domain.ErrNoQuote)
	}
	return s.points[i-1].Price, nil
}

// Compile-time interface checks.
var (
	_ domain.QuoteProvider           = (*Series)(nil)
	_ domain.HistoricalQuoteProvider = (*Series)(nil)
)
