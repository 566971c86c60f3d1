// Package model provides the normalized trade and alert types shared by every stage of the watcher.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Venue identifies one of the trading platforms being watched.
type Venue string

const (
	// VenuePolymarket is the decentralized prediction market.
	VenuePolymarket Venue = "polymarket"
	// VenueKalshi is the regulated exchange.
	VenueKalshi Venue = "kalshi"
)

// Venues lists every watched venue in polling order.
var Venues = []Venue{VenuePolymarket, VenueKalshi}

// DisplayName returns the human-readable venue name.
func (v Venue) DisplayName() string {
	switch v {
	case VenuePolymarket:
		return "Polymarket"
	case VenueKalshi:
		return "Kalshi"
	default:
		return string(v)
	}
}

// Kind reports whether the venue is decentralized or regulated.
func (v Venue) Kind() string {
	if v == VenueKalshi {
		return "regulated"
	}
	return "decentralized"
}

// Side is the direction of a trade from the taker's point of view.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = "UNKNOWN"
)

// ParseSide maps a venue side string onto a Side. Anything unrecognized is SideUnknown.
func ParseSide(s string) Side {
	switch s {
	case "BUY", "buy", "Buy":
		return SideBuy
	case "SELL", "sell", "Sell":
		return SideSell
	default:
		return SideUnknown
	}
}

// Trade is a single observed market transaction, normalized across venues.
type Trade struct {
	// Venue is where the trade executed
	Venue Venue

	// MarketID is the Polymarket condition ID or the Kalshi ticker
	MarketID string

	// MarketTitle is the human-readable market question (may be empty)
	MarketTitle string

	// Outcome is the outcome bought or sold, e.g. "Yes" (may be empty)
	Outcome string

	// TradeID is the venue-assigned identifier, unique within the venue
	TradeID string

	// NotionalUSD is the US-dollar value of the trade, never negative
	NotionalUSD decimal.Decimal

	// Price is the execution price as a probability in the 0-1 range
	Price decimal.Decimal

	// Size is the number of shares or contracts traded
	Size decimal.Decimal

	// Side is best effort; SideUnknown when the venue does not say
	Side Side

	// Wallet is the trader's proxy wallet (Polymarket only)
	Wallet string

	// TxHash is the on-chain transaction hash (Polymarket only)
	TxHash string

	// ExecutedAt is the venue's execution timestamp
	ExecutedAt time.Time

	// ObservedAt is the local clock reading when the trade was fetched
	ObservedAt time.Time
}

// Key identifies a trade across venues. Trade IDs are only unique per venue.
type Key struct {
	Venue   Venue
	TradeID string
}

// String returns the key as "venue:trade_id".
func (k Key) String() string {
	return string(k.Venue) + ":" + k.TradeID
}

// Key returns the dedup key for the trade.
func (t Trade) Key() Key {
	return Key{Venue: t.Venue, TradeID: t.TradeID}
}

// Alert types sent to webhook consumers.
const (
	AlertWhaleEntry = "WHALE_ENTRY"
	AlertWhaleExit  = "WHALE_EXIT"
)

// WalletActivity summarizes recent whale trades from one wallet.
type WalletActivity struct {
	TxLastHour    int
	TxLastDay     int
	ValueLastHour decimal.Decimal
	ValueLastDay  decimal.Decimal
	RepeatActor   bool // more than one whale trade in the last hour
	HeavyActor    bool // five or more whale trades in the last day
}

// Status returns the label used in notifications.
func (a WalletActivity) Status() string {
	switch {
	case a.HeavyActor:
		return "HEAVY ACTOR"
	case a.RepeatActor:
		return "REPEAT ACTOR"
	default:
		return "NEW ACTOR"
	}
}

// Alert is a whale trade that passed the threshold and dedup filter.
type Alert struct {
	ID        string
	Trade     Trade
	Activity  *WalletActivity // nil when the trade has no wallet
	Anomalies []string
	Elevated  bool // sells and repeat or heavy actors
	RaisedAt  time.Time
}

// Type returns WHALE_EXIT for sells and WHALE_ENTRY otherwise.
func (a Alert) Type() string {
	if a.Trade.Side == SideSell {
		return AlertWhaleExit
	}
	return AlertWhaleEntry
}
