package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// QuoteCache implements domain.QuoteCache with an in-process map. Staleness
// is judged by the caller against the quote's own timestamp, so no TTL state
// is kept here.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

// NewQuoteCache creates an empty QuoteCache.
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{quotes: make(map[string]domain.Quote)}
}

// SetQuote stores the latest quote for a ticker.
func (c *QuoteCache) SetQuote(_ context.Context, q domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Ticker] = q
	return nil
}

// GetQuote returns the cached quote or domain.ErrCacheMiss.
func (c *QuoteCache) GetQuote(_ context.Context, ticker string) (domain.Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[ticker]
	if !ok {
		return domain.Quote{}, fmt.Errorf("local: quote %s: %w", ticker, domain.ErrCacheMiss)
	}
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
