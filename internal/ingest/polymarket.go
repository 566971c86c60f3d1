package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/model"
)

const (
	// PolymarketDataAPIURL is the public Polymarket data API endpoint
	PolymarketDataAPIURL = "https://data-api.polymarket.com"

	// polymarketOverlap is how far behind the newest seen trade the window reaches.
	// The endpoint has no cursor, so each poll re-reads a little history and the
	// dedup filter absorbs the repeats.
	polymarketOverlap = 60 * time.Second
)

// PolymarketClient polls the Polymarket data API for recent trades. No credentials are used.
type PolymarketClient struct {
	req       *requester
	opts      options
	cashFloor decimal.Decimal

	mu        sync.Mutex
	highWater time.Time
}

// NewPolymarketClient creates a client for the given data API base URL.
func NewPolymarketClient(baseURL string, opts ...Option) *PolymarketClient {
	if baseURL == "" {
		baseURL = PolymarketDataAPIURL
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", "polymarket_client")

	return &PolymarketClient{
		req: &requester{
			venue:      model.VenuePolymarket,
			baseURL:    strings.TrimSuffix(baseURL, "/"),
			httpClient: o.httpClient,
			limiter:    o.limiter,
			now:        o.now,
		},
		opts:      o,
		cashFloor: o.cashFloor,
	}
}

// Venue returns model.VenuePolymarket.
func (c *PolymarketClient) Venue() model.Venue {
	return model.VenuePolymarket
}

// FetchRecentTrades returns the latest trades that fall inside the recent window.
// On the first call the window is the configured lookback; afterwards it starts
// slightly before the newest trade already returned.
func (c *PolymarketClient) FetchRecentTrades(ctx context.Context) ([]model.Trade, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.opts.limit))
	query.Set("takerOnly", "true")
	if c.cashFloor.IsPositive() {
		query.Set("filterType", "CASH")
		query.Set("filterAmount", c.cashFloor.String())
	}

	body, err := c.req.get(ctx, "/trades", query)
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, malformedError(model.VenuePolymarket, fmt.Errorf("decode trades: %w", err))
	}

	now := c.opts.now()
	trades := normalizeBatch(model.VenuePolymarket, raws, now, NormalizePolymarket, &c.opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-c.opts.lookback)
	if !c.highWater.IsZero() {
		cutoff = c.highWater.Add(-polymarketOverlap)
	}

	recent := trades[:0]
	for _, t := range trades {
		if !t.ExecutedAt.IsZero() && t.ExecutedAt.Before(cutoff) {
			continue
		}
		if t.ExecutedAt.After(c.highWater) {
			c.highWater = t.ExecutedAt
		}
		recent = append(recent, t)
	}

	c.opts.logger.Debug("trades_fetched",
		"received", len(raws),
		"recent", len(recent),
		"cutoff", cutoff,
	)
	return recent, nil
}
