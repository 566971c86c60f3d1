package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/whalewatcher/watcher/internal/model"
)

// GammaAPIURL is the Polymarket Gamma API endpoint for market metadata.
const GammaAPIURL = "https://gamma-api.polymarket.com"

// Market is a Polymarket market from the Gamma API.
type Market struct {
	ID          string `json:"id"`
	Question    string `json:"question"`
	ConditionID string `json:"conditionId"`
	Slug        string `json:"slug"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`
}

// PolymarketMarkets resolves condition IDs to market questions. Trades from the
// data API usually carry a title already; this fills the gaps.
type PolymarketMarkets struct {
	req    *requester
	titles *lru.Cache[string, string]
}

// NewPolymarketMarkets creates a resolver for the given Gamma API base URL.
func NewPolymarketMarkets(baseURL string, opts ...Option) *PolymarketMarkets {
	if baseURL == "" {
		baseURL = GammaAPIURL
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	titles, _ := lru.New[string, string](titleCacheSize)
	return &PolymarketMarkets{
		req: &requester{
			venue:      model.VenuePolymarket,
			baseURL:    strings.TrimSuffix(baseURL, "/"),
			httpClient: o.httpClient,
			limiter:    o.limiter,
			now:        o.now,
		},
		titles: titles,
	}
}

// FetchMarket looks up a market by condition ID. It returns nil if none matches.
func (m *PolymarketMarkets) FetchMarket(ctx context.Context, conditionID string) (*Market, error) {
	query := url.Values{}
	query.Set("condition_ids", conditionID)
	query.Set("limit", "1")

	body, err := m.req.get(ctx, "/markets", query)
	if err != nil {
		return nil, err
	}

	var markets []Market
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, malformedError(model.VenuePolymarket, fmt.Errorf("decode markets: %w", err))
	}
	if len(markets) == 0 {
		return nil, nil
	}
	return &markets[0], nil
}

// MarketTitle returns the market question for conditionID. Results are cached.
func (m *PolymarketMarkets) MarketTitle(ctx context.Context, conditionID string) (string, error) {
	if conditionID == "" {
		return "", nil
	}
	if title, ok := m.titles.Get(conditionID); ok {
		return title, nil
	}

	market, err := m.FetchMarket(ctx, conditionID)
	if err != nil || market == nil {
		return "", err
	}
	if market.Question != "" {
		m.titles.Add(conditionID, market.Question)
	}
	return market.Question, nil
}
