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

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/whalewatcher/watcher/internal/model"
)

const (
	// KalshiAPIURL is the Kalshi trade API v2 endpoint
	KalshiAPIURL = "https://api.elections.kalshi.com/trade-api/v2"

	// kalshiOverlap is subtracted from the cursor because min_ts has second resolution.
	kalshiOverlap = 5 * time.Second

	// kalshiMaxPages caps how many cursor pages one poll follows.
	kalshiMaxPages = 5

	titleCacheSize = 1024
)

// Signer produces authentication headers for a request path.
type Signer interface {
	SignRequest(method, path string) (map[string]string, error)
}

// KalshiClient polls the Kalshi public trades endpoint. A key ID alone is sent as
// KALSHI-ACCESS-KEY; with a Signer every request carries full signed headers.
type KalshiClient struct {
	req    *requester
	opts   options
	keyID  string
	signer Signer
	titles *lru.Cache[string, string]

	mu        sync.Mutex
	highWater time.Time
}

// KalshiCredential configures request authentication.
type KalshiCredential struct {
	KeyID  string
	Signer Signer // optional
}

// NewKalshiClient creates a client for the given API base URL.
func NewKalshiClient(baseURL string, cred KalshiCredential, opts ...Option) *KalshiClient {
	if baseURL == "" {
		baseURL = KalshiAPIURL
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", "kalshi_client")

	titles, _ := lru.New[string, string](titleCacheSize)

	c := &KalshiClient{
		opts:   o,
		keyID:  cred.KeyID,
		signer: cred.Signer,
		titles: titles,
	}
	c.req = &requester{
		venue:      model.VenueKalshi,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: o.httpClient,
		limiter:    o.limiter,
		headers:    c.authHeaders,
		now:        o.now,
	}
	return c
}

// Venue returns model.VenueKalshi.
func (c *KalshiClient) Venue() model.Venue {
	return model.VenueKalshi
}

// Authenticated reports whether requests carry a credential.
func (c *KalshiClient) Authenticated() bool {
	return c.keyID != ""
}

func (c *KalshiClient) authHeaders(method, path string) (map[string]string, error) {
	if c.signer != nil {
		return c.signer.SignRequest(method, path)
	}
	if c.keyID != "" {
		return map[string]string{"KALSHI-ACCESS-KEY": c.keyID}, nil
	}
	return nil, nil
}

type kalshiTradesResponse struct {
	Trades []json.RawMessage `json:"trades"`
	Cursor string            `json:"cursor"`
}

// FetchRecentTrades returns trades created since the previous poll, minus a small
// overlap. The first call reaches back the configured lookback.
func (c *KalshiClient) FetchRecentTrades(ctx context.Context) ([]model.Trade, error) {
	now := c.opts.now()

	c.mu.Lock()
	since := now.Add(-c.opts.lookback)
	if !c.highWater.IsZero() {
		since = c.highWater.Add(-kalshiOverlap)
	}
	c.mu.Unlock()

	var (
		raws   []json.RawMessage
		cursor string
		pages  int
	)
	for pages < kalshiMaxPages {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(c.opts.limit))
		query.Set("min_ts", strconv.FormatInt(since.Unix(), 10))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		// A failed page fails the whole poll so the high-water mark never skips
		// trades on pages that were not read.
		body, err := c.req.get(ctx, "/markets/trades", query)
		if err != nil {
			return nil, err
		}

		var resp kalshiTradesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, malformedError(model.VenueKalshi, fmt.Errorf("decode trades: %w", err))
		}
		pages++
		raws = append(raws, resp.Trades...)

		cursor = resp.Cursor
		if cursor == "" || len(resp.Trades) == 0 {
			break
		}
	}
	if cursor != "" && pages == kalshiMaxPages {
		c.opts.logger.Warn("trade_pages_truncated",
			"pages", pages,
			"min_ts", since.Unix(),
		)
	}

	trades := normalizeBatch(model.VenueKalshi, raws, now, NormalizeKalshi, &c.opts)

	c.mu.Lock()
	for _, t := range trades {
		if t.ExecutedAt.After(c.highWater) {
			c.highWater = t.ExecutedAt
		}
	}
	c.mu.Unlock()

	c.opts.logger.Debug("trades_fetched",
		"received", len(raws),
		"pages", pages,
		"normalized", len(trades),
		"min_ts", since.Unix(),
	)
	return trades, nil
}

type kalshiMarketResponse struct {
	Market struct {
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
	} `json:"market"`
}

// MarketTitle resolves a ticker to its market title. Results are cached.
func (c *KalshiClient) MarketTitle(ctx context.Context, ticker string) (string, error) {
	if ticker == "" {
		return "", nil
	}
	if title, ok := c.titles.Get(ticker); ok {
		return title, nil
	}

	body, err := c.req.get(ctx, "/markets/"+url.PathEscape(ticker), nil)
	if err != nil {
		return "", err
	}

	var resp kalshiMarketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", malformedError(model.VenueKalshi, fmt.Errorf("decode market: %w", err))
	}

	title := resp.Market.Title
	if title == "" {
		title = resp.Market.Subtitle
	}
	if title != "" {
		c.titles.Add(ticker, title)
	}
	return title, nil
}
