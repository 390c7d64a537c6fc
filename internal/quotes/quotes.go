// Package quotes fetches the travel quote of the day.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"roamio/internal/cache"
	"roamio/internal/observability"

	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a call to the quote service.
const DefaultTimeout = 5 * time.Second

// Quote is a short quotation with attribution.
type Quote struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

// Fallback is served whenever the remote service cannot be reached.
var Fallback = Quote{
	Content: "We travel not to escape life, but for life not to escape us.",
	Author:  "Anonymous",
}

// Client reads quotes from a zenquotes-compatible endpoint.
type Client struct {
	url     string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient returns a Client for url.
func NewClient(url string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:     url,
		http:    &http.Client{Timeout: DefaultTimeout},
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		logger:  logger,
	}
}

// Today returns the cached quote, refreshing it from the remote service when the
// cache is empty. It never fails; remote errors yield Fallback, which is not cached.
func (c *Client) Today(ctx context.Context) Quote {
	var q Quote
	if found, err := cache.GetJSON(ctx, cache.DailyQuoteKey, &q); err == nil && found {
		return q
	}

	q, err := c.fetch(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "quote service unavailable, using fallback", "error", err)
		return Fallback
	}
	if err := cache.SetJSON(ctx, cache.DailyQuoteKey, q, cache.QuoteTTL); err != nil {
		c.logger.WarnContext(ctx, "failed to cache quote", "error", err)
	}
	return q
}

type zenQuote struct {
	Q string `json:"q"`
	A string `json:"a"`
}

func (c *Client) fetch(ctx context.Context) (Quote, error) {
	span, ctx := observability.StartExternalSpan(ctx, "quotes", "random")
	defer span.End()
	defer observability.TrackExternal("quotes", "random")()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if !c.limiter.Allow() {
		return Quote{}, errors.New("quotes: local rate limit reached")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Quote{}, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		span.SetError(err)
		return Quote{}, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("quotes: status %d", res.StatusCode)
	}

	var items []zenQuote
	if err := json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&items); err != nil {
		return Quote{}, fmt.Errorf("quotes: decode: %w", err)
	}
	if len(items) == 0 || strings.TrimSpace(items[0].Q) == "" {
		return Quote{}, errors.New("quotes: empty response")
	}

	q := Quote{Content: items[0].Q, Author: items[0].A}
	if q.Author == "" {
		q.Author = Fallback.Author
	}
	return q, nil
}
