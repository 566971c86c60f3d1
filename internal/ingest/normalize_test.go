package ingest

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/model"
)

var observed = time.Date(2025, 1, 4, 14, 32, 1, 0, time.UTC)

func TestNormalizePolymarket(t *testing.T) {
	t.Run("data api trade", func(t *testing.T) {
		raw := json.RawMessage(`{
			"proxyWallet": "0xabc",
			"side": "BUY",
			"asset": "123",
			"conditionId": "0xcond",
			"size": 50000,
			"price": 0.62,
			"timestamp": 1736000000,
			"title": "Will it rain?",
			"outcome": "Yes",
			"transactionHash": "0xhash",
			"someNewField": {"nested": true}
		}`)

		trade, err := NormalizePolymarket(raw, observed)
		if err != nil {
			t.Fatalf("NormalizePolymarket: %v", err)
		}
		if trade.Venue != model.VenuePolymarket {
			t.Errorf("Venue = %v, want %v", trade.Venue, model.VenuePolymarket)
		}
		if !trade.NotionalUSD.Equal(decimal.NewFromInt(31000)) {
			t.Errorf("NotionalUSD = %v, want 31000", trade.NotionalUSD)
		}
		if trade.TradeID != "0xhash:123:BUY:50000:0.62" {
			t.Errorf("TradeID = %q", trade.TradeID)
		}
		if trade.Side != model.SideBuy {
			t.Errorf("Side = %v, want BUY", trade.Side)
		}
		if trade.MarketID != "0xcond" || trade.MarketTitle != "Will it rain?" || trade.Wallet != "0xabc" {
			t.Errorf("unexpected market fields: %+v", trade)
		}
		if !trade.ExecutedAt.Equal(time.Unix(1736000000, 0)) {
			t.Errorf("ExecutedAt = %v", trade.ExecutedAt)
		}
		if !trade.ObservedAt.Equal(observed) {
			t.Errorf("ObservedAt = %v, want %v", trade.ObservedAt, observed)
		}
	})

	t.Run("explicit id and string numbers", func(t *testing.T) {
		raw := json.RawMessage(`{"id":"t-1","side":"sell","size":"100","price":"0.5","timestamp":"1736000000000"}`)

		trade, err := NormalizePolymarket(raw, observed)
		if err != nil {
			t.Fatalf("NormalizePolymarket: %v", err)
		}
		if trade.TradeID != "t-1" {
			t.Errorf("TradeID = %q, want t-1", trade.TradeID)
		}
		if !trade.NotionalUSD.Equal(decimal.NewFromInt(50)) {
			t.Errorf("NotionalUSD = %v, want 50", trade.NotionalUSD)
		}
		if trade.Side != model.SideSell {
			t.Errorf("Side = %v, want SELL", trade.Side)
		}
		if !trade.ExecutedAt.Equal(time.UnixMilli(1736000000000)) {
			t.Errorf("ExecutedAt = %v", trade.ExecutedAt)
		}
	})

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"missing id and hash", `{"size": 10, "price": 0.5}`, ErrMissingTradeID},
		{"missing size", `{"id": "x", "price": 0.5}`, ErrMissingNotional},
		{"null price", `{"id": "x", "size": 10, "price": null}`, ErrMissingNotional},
		{"negative size", `{"id": "x", "size": -10, "price": 0.5}`, ErrNegativeNotional},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizePolymarket(json.RawMessage(tt.raw), observed)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("garbage numbers fail closed", func(t *testing.T) {
		_, err := NormalizePolymarket(json.RawMessage(`{"id":"x","size":"lots","price":0.5}`), observed)
		if err == nil {
			t.Error("expected error for unparseable size")
		}
	})
}

func TestNormalizeKalshi(t *testing.T) {
	t.Run("yes taker in cents", func(t *testing.T) {
		raw := json.RawMessage(`{
			"trade_id": "k-1",
			"ticker": "KXRAIN-25",
			"count": 1000,
			"yes_price": 62,
			"no_price": 38,
			"taker_side": "yes",
			"created_time": "2025-01-04T14:32:01Z"
		}`)

		trade, err := NormalizeKalshi(raw, observed)
		if err != nil {
			t.Fatalf("NormalizeKalshi: %v", err)
		}
		if !trade.NotionalUSD.Equal(decimal.NewFromInt(620)) {
			t.Errorf("NotionalUSD = %v, want 620", trade.NotionalUSD)
		}
		if trade.Outcome != "YES" || trade.Side != model.SideBuy {
			t.Errorf("Outcome/Side = %s/%s, want YES/BUY", trade.Outcome, trade.Side)
		}
		if trade.MarketID != "KXRAIN-25" || trade.TradeID != "k-1" {
			t.Errorf("unexpected ids: %+v", trade)
		}
		if !trade.ExecutedAt.Equal(time.Date(2025, 1, 4, 14, 32, 1, 0, time.UTC)) {
			t.Errorf("ExecutedAt = %v", trade.ExecutedAt)
		}
	})

	t.Run("yes dollar price wins over cents", func(t *testing.T) {
		raw := json.RawMessage(`{"trade_id":"k-2","count":200,"yes_price":70,"yes_price_dollars":"0.7050","no_price":30,"taker_side":"yes"}`)

		trade, err := NormalizeKalshi(raw, observed)
		if err != nil {
			t.Fatalf("NormalizeKalshi: %v", err)
		}
		if !trade.NotionalUSD.Equal(decimal.NewFromInt(141)) {
			t.Errorf("NotionalUSD = %v, want 141", trade.NotionalUSD)
		}
	})

	t.Run("no taker is valued at the yes price", func(t *testing.T) {
		raw := json.RawMessage(`{"trade_id":"k-3","ticker":"KXBTC-25","count":30000,"yes_price":10,"no_price":90,"taker_side":"no"}`)

		trade, err := NormalizeKalshi(raw, observed)
		if err != nil {
			t.Fatalf("NormalizeKalshi: %v", err)
		}
		if !trade.NotionalUSD.Equal(decimal.NewFromInt(3000)) {
			t.Errorf("NotionalUSD = %v, want 3000", trade.NotionalUSD)
		}
		if !trade.Price.Equal(decimal.RequireFromString("0.1")) {
			t.Errorf("Price = %v, want 0.1", trade.Price)
		}
		if trade.Outcome != "NO" || trade.Side != model.SideBuy {
			t.Errorf("Outcome/Side = %s/%s, want NO/BUY", trade.Outcome, trade.Side)
		}
	})

	t.Run("missing taker side", func(t *testing.T) {
		trade, err := NormalizeKalshi(json.RawMessage(`{"trade_id":"k-4","count":10,"yes_price":50}`), observed)
		if err != nil {
			t.Fatalf("NormalizeKalshi: %v", err)
		}
		if trade.Side != model.SideUnknown || trade.Outcome != "" {
			t.Errorf("Outcome/Side = %q/%s, want empty/UNKNOWN", trade.Outcome, trade.Side)
		}
	})

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"missing trade id", `{"count": 10, "yes_price": 50, "taker_side": "yes"}`, ErrMissingTradeID},
		{"blank trade id", `{"trade_id": "  ", "count": 10, "yes_price": 50}`, ErrMissingTradeID},
		{"missing count", `{"trade_id": "k", "yes_price": 50, "taker_side": "yes"}`, ErrMissingNotional},
		{"missing yes price", `{"trade_id": "k", "count": 10, "no_price": 50, "taker_side": "no"}`, ErrMissingNotional},
		{"negative count", `{"trade_id": "k", "count": -1, "yes_price": 50, "taker_side": "yes"}`, ErrNegativeNotional},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeKalshi(json.RawMessage(tt.raw), observed)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeBatch_DropsOnlyBadTrades(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"trade_id":"ok-1","count":10,"yes_price":50,"taker_side":"yes"}`),
		json.RawMessage(`{"count":10,"yes_price":50}`),
		json.RawMessage(`"not an object"`),
		json.RawMessage(`{"trade_id":"ok-2","count":10,"yes_price":50,"taker_side":"yes"}`),
	}

	var drops int
	o := defaultOptions()
	o.onDrop = func(venue model.Venue, err error) {
		if venue != model.VenueKalshi {
			t.Errorf("drop venue = %v, want kalshi", venue)
		}
		drops++
	}

	trades := normalizeBatch(model.VenueKalshi, raws, observed, NormalizeKalshi, &o)
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].TradeID != "ok-1" || trades[1].TradeID != "ok-2" {
		t.Errorf("unexpected trades: %s, %s", trades[0].TradeID, trades[1].TradeID)
	}
	if drops != 2 {
		t.Errorf("drops = %d, want 2", drops)
	}
}
