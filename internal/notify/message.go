package notify

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/whalewatcher/watcher/internal/model"
)

// DefaultTopic is the ntfy topic used when none is given.
const DefaultTopic = "whale-alerts"

// Title returns the headline for an alert.
func Title(a model.Alert) string {
	if a.Trade.Side == model.SideSell {
		return "WHALE EXITING POSITION"
	}
	return "WHALE ENTRY DETECTED"
}

// Message renders the plain-text body shared by ntfy and the form fallback.
func Message(a model.Alert) string {
	t := a.Trade
	var b strings.Builder

	fmt.Fprintf(&b, "Platform: %s\n", t.Venue.DisplayName())
	fmt.Fprintf(&b, "Market: %s\n", marketLabel(t))
	if pos := t.Position(); pos != "" {
		fmt.Fprintf(&b, "Position: %s\n", pos)
	}
	fmt.Fprintf(&b, "Action: %s\n", action(t))
	fmt.Fprintf(&b, "Amount: $%s\n", t.NotionalUSD.StringFixed(2))
	fmt.Fprintf(&b, "Price: $%s (%s%%)\n", t.Price.StringFixed(4), t.Price.Shift(2).StringFixed(1))
	fmt.Fprintf(&b, "Size: %s contracts", t.Size.StringFixed(0))

	if t.Wallet != "" {
		fmt.Fprintf(&b, "\nWallet: %s", ShortWallet(t.Wallet))
	}

	if act := a.Activity; act != nil {
		b.WriteString("\n\nWallet Activity:")
		fmt.Fprintf(&b, "\n  Txns (1h): %d", act.TxLastHour)
		fmt.Fprintf(&b, "\n  Txns (24h): %d", act.TxLastDay)
		fmt.Fprintf(&b, "\n  Volume (1h): $%s", act.ValueLastHour.StringFixed(2))
		fmt.Fprintf(&b, "\n  Volume (24h): $%s", act.ValueLastDay.StringFixed(2))
		fmt.Fprintf(&b, "\n  Status: %s", act.Status())
	}

	if len(a.Anomalies) > 0 {
		b.WriteString("\n\nSignals:")
		for _, note := range a.Anomalies {
			b.WriteString("\n  - ")
			b.WriteString(note)
		}
	}

	return b.String()
}

// Tags returns ntfy emoji tags for an alert.
func Tags(a model.Alert) []string {
	if a.Trade.Side == model.SideSell {
		return []string{"red_circle", "warning"}
	}
	return []string{"whale", "moneybag"}
}

// ClickURL links the notification to the venue's market page, or "" when no
// link can be built.
func ClickURL(t model.Trade) string {
	switch t.Venue {
	case model.VenuePolymarket:
		if slug := slugify(t.MarketTitle); slug != "" {
			return "https://polymarket.com/markets/" + slug
		}
		return ""
	case model.VenueKalshi:
		if t.MarketID != "" {
			return "https://kalshi.com/markets/" + strings.ToLower(t.MarketID)
		}
		return "https://kalshi.com/markets"
	default:
		return ""
	}
}

// ShortWallet abbreviates long wallet addresses as 0x1234...abcd.
func ShortWallet(wallet string) string {
	if len(wallet) <= 10 {
		return wallet
	}
	return wallet[:6] + "..." + wallet[len(wallet)-4:]
}

func marketLabel(t model.Trade) string {
	switch {
	case t.MarketTitle != "":
		return t.MarketTitle
	case t.Position() != "":
		return t.Position() + " (" + t.MarketID + ")"
	case t.MarketID != "":
		return t.MarketID
	default:
		return "Unknown"
	}
}

func action(t model.Trade) string {
	if t.Outcome == "" {
		return string(t.Side)
	}
	return string(t.Side) + " " + t.Outcome
}

func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
