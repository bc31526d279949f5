// Package marketdata implements the quote provider collaborators: a live
// HTTP source with a cache in front, and an in-memory series used for
// historical replay.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// HTTPProviderConfig holds parameters for the live quote source.
type HTTPProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// CacheTTL bounds how stale a cached quote may be before the provider
	// goes back to the upstream source.
	CacheTTL time.Duration
}

// HTTPProvider fetches latest quotes from a JSON quote API, consulting the
// quote cache first. Cache misses and cache write failures are soft; only the
// upstream call can fail the lookup.
type HTTPProvider struct {
	cfg    HTTPProviderConfig
	client *http.Client
	cache  domain.QuoteCache // optional
	logger *slog.Logger
}

// NewHTTPProvider creates an HTTPProvider. cache may be nil.
func NewHTTPProvider(cfg HTTPProviderConfig, cache domain.QuoteCache, logger *slog.Logger) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		cache:  cache,
		logger: logger.With(slog.String("component", "marketdata")),
	}
}

// quoteResponse is the upstream wire format.
type quoteResponse struct {
	Ticker    string          `json:"ticker"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Timestamp time.Time       `json:"timestamp"`
}

// GetLatestQuote implements domain.QuoteProvider.
func (p *HTTPProvider) GetLatestQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	if p.cache != nil {
		cached, err := p.cache.GetQuote(ctx, ticker)
		if err == nil && time.Since(cached.Timestamp) <= p.cfg.CacheTTL {
			return cached, nil
		}
		if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
			p.logger.DebugContext(ctx, "quote cache read failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
	}

	endpoint := fmt.Sprintf("%s/v1/quote?symbol=%s", p.cfg.BaseURL, url.QueryEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("marketdata: build quote request: %w", err)
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("marketdata: fetch quote %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Quote{}, fmt.Errorf("marketdata: quote %s: %w", ticker, domain.ErrNoQuote)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("marketdata: quote %s: unexpected status %d", ticker, resp.StatusCode)
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return domain.Quote{}, fmt.Errorf("marketdata: decode quote %s: %w", ticker, err)
	}
	if !qr.Price.IsPositive() {
		return domain.Quote{}, fmt.Errorf("marketdata: quote %s: non-positive price: %w", ticker, domain.ErrNoQuote)
	}

	quote := domain.Quote{
		Ticker:    ticker,
		Price:     qr.Price,
		Currency:  qr.Currency,
		Timestamp: qr.Timestamp,
	}
	if quote.Timestamp.IsZero() {
		quote.Timestamp = time.Now().UTC()
	}

	if p.cache != nil {
		if err := p.cache.SetQuote(ctx, quote); err != nil {
			p.logger.DebugContext(ctx, "quote cache write failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
	}
	return quote, nil
}

// Compile-time interface check.
var _ domain.QuoteProvider = (*HTTPProvider)(nil)
