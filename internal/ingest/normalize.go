package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/model"
)

// Normalization failures. A trade that hits any of these is dropped, never defaulted.
var (
	ErrMissingTradeID   = errors.New("missing trade id")
	ErrMissingNotional  = errors.New("missing notional inputs")
	ErrNegativeNotional = errors.New("negative notional")
)

var hundred = decimal.NewFromInt(100)

// PolymarketTrade is one trade as returned by the Polymarket data API and the
// real-time activity feed. Unknown fields are ignored.
type PolymarketTrade struct {
	ID              string           `json:"id"`
	ProxyWallet     string           `json:"proxyWallet"`
	Side            string           `json:"side"`
	Asset           string           `json:"asset"`
	ConditionID     string           `json:"conditionId"`
	Size            *decimal.Decimal `json:"size"`
	Price           *decimal.Decimal `json:"price"`
	Timestamp       json.Number      `json:"timestamp"`
	Title           string           `json:"title"`
	Slug            string           `json:"slug"`
	Outcome         string           `json:"outcome"`
	TransactionHash string           `json:"transactionHash"`
}

// KalshiTrade is one trade from the Kalshi /markets/trades endpoint.
// Prices are integer cents; the *_dollars variants are fixed-point strings.
type KalshiTrade struct {
	TradeID         string           `json:"trade_id"`
	Ticker          string           `json:"ticker"`
	Count           *decimal.Decimal `json:"count"`
	YesPrice        *decimal.Decimal `json:"yes_price"`
	NoPrice         *decimal.Decimal `json:"no_price"`
	YesPriceDollars *decimal.Decimal `json:"yes_price_dollars"`
	NoPriceDollars  *decimal.Decimal `json:"no_price_dollars"`
	TakerSide       string           `json:"taker_side"`
	CreatedTime     string           `json:"created_time"`
}

// NormalizePolymarket maps one raw Polymarket trade onto a model.Trade.
// The trade ID is the venue "id" when present, otherwise a composite of the
// transaction hash and fill details. Notional is size x price.
func NormalizePolymarket(raw json.RawMessage, observedAt time.Time) (model.Trade, error) {
	var pt PolymarketTrade
	if err := json.Unmarshal(raw, &pt); err != nil {
		return model.Trade{}, fmt.Errorf("decode polymarket trade: %w", err)
	}

	if pt.Size == nil || pt.Price == nil {
		return model.Trade{}, ErrMissingNotional
	}
	if pt.Size.IsNegative() || pt.Price.IsNegative() {
		return model.Trade{}, ErrNegativeNotional
	}

	tradeID := strings.TrimSpace(pt.ID)
	if tradeID == "" {
		if pt.TransactionHash == "" {
			return model.Trade{}, ErrMissingTradeID
		}
		tradeID = strings.Join([]string{
			pt.TransactionHash,
			pt.Asset,
			strings.ToUpper(pt.Side),
			pt.Size.String(),
			pt.Price.String(),
		}, ":")
	}

	marketID := pt.ConditionID
	if marketID == "" {
		marketID = pt.Asset
	}

	return model.Trade{
		Venue:       model.VenuePolymarket,
		MarketID:    marketID,
		MarketTitle: pt.Title,
		Outcome:     pt.Outcome,
		TradeID:     tradeID,
		NotionalUSD: pt.Size.Mul(*pt.Price),
		Price:       *pt.Price,
		Size:        *pt.Size,
		Side:        model.ParseSide(strings.ToUpper(pt.Side)),
		Wallet:      pt.ProxyWallet,
		TxHash:      pt.TransactionHash,
		ExecutedAt:  parseUnix(pt.Timestamp),
		ObservedAt:  observedAt,
	}, nil
}

// NormalizeKalshi maps one raw Kalshi trade onto a model.Trade.
// Notional is count x the YES price in dollars whichever side the taker took,
// matching how Kalshi reports trade value. The taker always buys the side it
// names, so Side is BUY and Outcome is YES or NO.
func NormalizeKalshi(raw json.RawMessage, observedAt time.Time) (model.Trade, error) {
	var kt KalshiTrade
	if err := json.Unmarshal(raw, &kt); err != nil {
		return model.Trade{}, fmt.Errorf("decode kalshi trade: %w", err)
	}

	tradeID := strings.TrimSpace(kt.TradeID)
	if tradeID == "" {
		return model.Trade{}, ErrMissingTradeID
	}

	var price decimal.Decimal
	switch {
	case kt.YesPriceDollars != nil:
		price = *kt.YesPriceDollars
	case kt.YesPrice != nil:
		price = kt.YesPrice.Div(hundred)
	default:
		return model.Trade{}, ErrMissingNotional
	}
	if kt.Count == nil {
		return model.Trade{}, ErrMissingNotional
	}
	if kt.Count.IsNegative() || price.IsNegative() {
		return model.Trade{}, ErrNegativeNotional
	}

	side, outcome := model.SideBuy, "YES"
	switch {
	case kt.TakerSide == "":
		side, outcome = model.SideUnknown, ""
	case strings.EqualFold(kt.TakerSide, "no"):
		outcome = "NO"
	}

	var executedAt time.Time
	if kt.CreatedTime != "" {
		if t, err := time.Parse(time.RFC3339Nano, kt.CreatedTime); err == nil {
			executedAt = t
		}
	}

	return model.Trade{
		Venue:       model.VenueKalshi,
		MarketID:    kt.Ticker,
		Outcome:     outcome,
		TradeID:     tradeID,
		NotionalUSD: kt.Count.Mul(price),
		Price:       price,
		Size:        *kt.Count,
		Side:        side,
		ExecutedAt:  executedAt,
		ObservedAt:  observedAt,
	}, nil
}

type normalizeFunc func(raw json.RawMessage, observedAt time.Time) (model.Trade, error)

// normalizeBatch maps every raw element, dropping the ones that fail.
func normalizeBatch(venue model.Venue, raws []json.RawMessage, observedAt time.Time, fn normalizeFunc, o *options) []model.Trade {
	trades := make([]model.Trade, 0, len(raws))
	for _, raw := range raws {
		trade, err := fn(raw, observedAt)
		if err != nil {
			o.logger.Warn("trade_dropped",
				"venue", venue,
				"error", err,
				"raw", truncate(string(raw), 160),
			)
			if o.onDrop != nil {
				o.onDrop(venue, err)
			}
			continue
		}
		trades = append(trades, trade)
	}
	return trades
}

// parseUnix reads a Unix timestamp in seconds or milliseconds. Zero time if absent or invalid.
func parseUnix(n json.Number) time.Time {
	if n == "" {
		return time.Time{}
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(n.String(), 64)
		if ferr != nil {
			return time.Time{}
		}
		v = int64(f)
	}
	if v <= 0 {
		return time.Time{}
	}
	if v > 1e12 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}
