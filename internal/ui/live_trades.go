package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/model"
)

var tradeHeaders = []string{"Time", "Venue", "Market", "Side", "Price", "Value", "Wallet"}

// LiveTradesView displays a scrolling feed of normalized trades from both venues.
// Trades at or above the threshold are highlighted.
type LiveTradesView struct {
	table     *tview.Table
	trades    []model.Trade
	maxRows   int
	threshold decimal.Decimal
}

// NewLiveTradesView creates a new live trades view.
func NewLiveTradesView(threshold decimal.Decimal) *LiveTradesView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Live Trades ").SetBorder(true)
	setHeader(table, tradeHeaders)

	return &LiveTradesView{
		table:     table,
		trades:    make([]model.Trade, 0, 100),
		maxRows:   100,
		threshold: threshold,
	}
}

// Widget returns the tview primitive.
func (v *LiveTradesView) Widget() tview.Primitive {
	return v.table
}

// AddTrade adds a new trade to the view.
func (v *LiveTradesView) AddTrade(trade model.Trade) {
	v.trades = append([]model.Trade{trade}, v.trades...)

	if len(v.trades) > v.maxRows {
		v.trades = v.trades[:v.maxRows]
	}

	v.updateTable()
}

// Refresh redraws the table.
func (v *LiveTradesView) Refresh() {
	v.updateTable()
}

// updateTable updates the table with current trades.
func (v *LiveTradesView) updateTable() {
	v.table.Clear()
	setHeader(v.table, tradeHeaders)

	for i, trade := range v.trades {
		ts := trade.ExecutedAt
		if ts.IsZero() {
			ts = trade.ObservedAt
		}

		market := trade.MarketTitle
		if market == "" {
			market = trade.MarketID
		}

		wallet := truncateAddress(trade.Wallet)
		if wallet == "" {
			wallet = "-"
		}

		cells := []string{
			ts.Format("15:04:05"),
			trade.Venue.DisplayName(),
			truncateMiddle(market, 28),
			string(trade.Side),
			trade.Price.StringFixed(3),
			"$" + trade.NotionalUSD.StringFixed(0),
			wallet,
		}

		color := tcell.ColorWhite
		if trade.NotionalUSD.GreaterThanOrEqual(v.threshold) {
			color = tcell.ColorYellow
		}
		for col, text := range cells {
			cell := tview.NewTableCell(text).
				SetAlign(tview.AlignLeft).
				SetTextColor(color)
			v.table.SetCell(i+1, col, cell)
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Live Trades (%d) ", len(v.trades)))
}
