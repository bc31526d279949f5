package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each ticker's
// quote is stored at key "quote:{ticker}" with fields "price", "currency" and
// "ts" (Unix nanoseconds), with an optional expiry.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. A zero ttl
// means entries never expire.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(ticker string) string {
	return "quote:" + ticker
}

// SetQuote stores the latest quote for a ticker.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := quoteKey(q.Ticker)
	fields := map[string]interface{}{
		"price":    q.Price.String(),
		"currency": q.Currency,
		"ts":       strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Ticker, err)
	}
	if qc.ttl > 0 {
		if err := qc.rdb.Expire(ctx, key, qc.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire quote %s: %w", q.Ticker, err)
		}
	}
	return nil
}

// GetQuote retrieves the cached quote for a ticker. It returns
// domain.ErrCacheMiss when no entry exists.
func (qc *QuoteCache) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(ticker)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", ticker, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, fmt.Errorf("redis: quote %s: %w", ticker, domain.ErrCacheMiss)
	}

	price, err := decimal.NewFromString(vals["price"])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote price %s: %w", ticker, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote ts %s: %w", ticker, err)
	}

	return domain.Quote{
		Ticker:    ticker,
		Price:     price,
		Currency:  vals["currency"],
		Timestamp: time.Unix(0, tsNano).UTC(),
	}, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
