package detector

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/model"
)

var (
	priceExtremeHigh  = decimal.RequireFromString("0.95")
	priceExtremeLow   = decimal.RequireFromString("0.05")
	priceLikely       = decimal.RequireFromString("0.90")
	priceUnlikely     = decimal.RequireFromString("0.20")
	largeSize         = decimal.NewFromInt(100000)
	convictionSize    = decimal.NewFromInt(50000)
	majorCapital      = decimal.NewFromInt(100000)
	unlikelyBetValue  = decimal.NewFromInt(50000)
	coordinatedVolume = decimal.NewFromInt(200000)
	percent           = decimal.NewFromInt(100)
)

// Annotate returns human-readable notes on what makes a whale trade unusual.
// activity may be nil when the venue does not expose the trader.
func Annotate(trade model.Trade, activity *model.WalletActivity) []string {
	var notes []string

	if activity != nil {
		if activity.HeavyActor {
			notes = append(notes, fmt.Sprintf("Heavy actor: %d whale trades worth $%s in the last 24h",
				activity.TxLastDay, activity.ValueLastDay.StringFixed(2)))
		} else if activity.RepeatActor {
			notes = append(notes, fmt.Sprintf("Repeat actor: %d whale trades in the last hour", activity.TxLastHour))
		}
		if activity.ValueLastHour.GreaterThan(coordinatedVolume) {
			notes = append(notes, fmt.Sprintf("Coordinated activity: $%s volume in the last hour",
				activity.ValueLastHour.StringFixed(0)))
		}
	}

	price, size, value := trade.Price, trade.Size, trade.NotionalUSD

	if price.GreaterThan(priceExtremeHigh) {
		notes = append(notes, fmt.Sprintf("Extreme confidence bet (%s%% probability)", price.Mul(percent).StringFixed(1)))
	} else if price.LessThan(priceExtremeLow) {
		notes = append(notes, fmt.Sprintf("Contrarian position (%s%% probability)", price.Mul(percent).StringFixed(1)))
	}

	if size.GreaterThan(largeSize) {
		notes = append(notes, "Exceptionally large position size")
	}
	if value.GreaterThan(majorCapital) {
		notes = append(notes, fmt.Sprintf("Major capital deployment: $%s", value.StringFixed(0)))
	}
	if price.GreaterThan(priceLikely) && size.GreaterThan(convictionSize) {
		notes = append(notes, "High conviction in likely outcome")
	}
	if price.LessThan(priceUnlikely) && value.GreaterThan(unlikelyBetValue) {
		notes = append(notes, "Significant bet on unlikely outcome, possible hedge or information asymmetry")
	}

	return notes
}
