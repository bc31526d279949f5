package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testPoints() []SeriesPoint {
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	return []SeriesPoint{
		{At: base, Price: dec("100")},
		{At: base.Add(time.Hour), Price: dec("96.9")},
		{At: base.Add(2 * time.Hour), Price: dec("103.2")},
	}
}

func TestSeries_CursorWalk(t *testing.T) {
	s := NewSeries("SPY", "USD", testPoints())
	ctx := context.Background()

	// Before the first Next the cursor serves nothing.
	_, err := s.GetLatestQuote(ctx, "SPY")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoQuote)

	var seen []string
	for s.Next() {
		q, err := s.GetLatestQuote(ctx, "SPY")
		require.NoError(t, err)
		assert.Equal(t, q.Timestamp, s.Now())
		seen = append(seen, q.Price.String())
	}
	assert.Equal(t, []string{"100", "96.9", "103.2"}, seen)
	assert.False(t, s.Next(), "exhausted series stays exhausted")

	s.Reset()
	require.True(t, s.Next())
	q, err := s.GetLatestQuote(ctx, "SPY")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("100")))
}

func TestSeries_SortsUnorderedPoints(t *testing.T) {
	pts := testPoints()
	pts[0], pts[2] = pts[2], pts[0]

	s := NewSeries("SPY", "USD", pts)
	require.True(t, s.Next())
	q, err := s.GetLatestQuote(context.Background(), "SPY")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("100")), "earliest point first, got %s", q.Price)
}

func TestSeries_UnknownTicker(t *testing.T) {
	s := NewSeries("SPY", "USD", testPoints())
	require.True(t, s.Next())

	_, err := s.GetLatestQuote(context.Background(), "QQQ")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoQuote)
}

func TestSeries_HistoricalLookup(t *testing.T) {
	s := NewSeries("SPY", "USD", testPoints())
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	// Between two points the earlier one applies.
	price, err := s.GetHistoricalQuote(ctx, "SPY", base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("96.9")))

	// Exactly on a point.
	price, err = s.GetHistoricalQuote(ctx, "SPY", base)
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("100")))

	// Before all data.
	_, err = s.GetHistoricalQuote(ctx, "SPY", base.Add(-time.Minute))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoQuote)
}

func TestLoadSeriesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	data := "timestamp,price\n" +
		"2025-06-02T14:00:00Z,100\n" +
		"2025-06-02T15:00:00Z,96.9\n" +
		"2025-06-02T16:00:00Z,103.2\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	s, err := LoadSeriesCSV(path, "SPY", "USD")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	require.True(t, s.Next())
	q, err := s.GetLatestQuote(context.Background(), "SPY")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("100")))
	assert.Equal(t, "USD", q.Currency)
}

func TestLoadSeriesCSV_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSeriesCSV(filepath.Join(dir, "missing.csv"), "SPY", "USD")
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("timestamp,price\n"), 0o644))
	_, err = LoadSeriesCSV(empty, "SPY", "USD")
	assert.Error(t, err, "header-only file has no data points")

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("2025-06-02T14:00:00Z,not-a-price\n"), 0o644))
	_, err = LoadSeriesCSV(bad, "SPY", "USD")
	assert.Error(t, err)
}
