package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/whalewatcher/watcher/internal/metrics"
)

var marketHeaders = []string{"Market", "Venue", "Whales", "Volume", "Price", "Change"}

// TopMarketsView displays the markets drawing the most whale volume in the last hour.
type TopMarketsView struct {
	table *tview.Table
}

// NewTopMarketsView creates a new top markets view.
func NewTopMarketsView() *TopMarketsView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Top Whale Markets ").SetBorder(true)
	setHeader(table, marketHeaders)

	return &TopMarketsView{
		table: table,
	}
}

// Widget returns the tview primitive.
func (v *TopMarketsView) Widget() tview.Primitive {
	return v.table
}

// Update refreshes the top markets display. Rows arrive ranked by volume.
func (v *TopMarketsView) Update(snapshot metrics.Snapshot) {
	v.table.Clear()
	setHeader(v.table, marketHeaders)

	if len(snapshot.TopMarkets) == 0 {
		cell := tview.NewTableCell("No whale activity yet...").
			SetAlign(tview.AlignCenter).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
		return
	}

	for i, m := range snapshot.TopMarkets {
		row := i + 1

		name := m.Title
		if name == "" {
			name = m.MarketID
		}

		changeStr := "-"
		changeColor := tcell.ColorWhite
		if m.WhaleCount > 1 {
			changeStr = fmt.Sprintf("%+.2f%%", m.PriceChange)
			if m.PriceChange > 0 {
				changeColor = tcell.ColorGreen
			} else if m.PriceChange < 0 {
				changeColor = tcell.ColorRed
			}
		}

		v.table.SetCell(row, 0, tview.NewTableCell(truncateMiddle(name, 30)).SetAlign(tview.AlignLeft))
		v.table.SetCell(row, 1, tview.NewTableCell(m.Venue.DisplayName()).SetAlign(tview.AlignLeft))
		v.table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", m.WhaleCount)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 3, tview.NewTableCell("$"+m.Volume.StringFixed(0)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 4, tview.NewTableCell(m.CurrentPrice.StringFixed(3)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 5, tview.NewTableCell(changeStr).SetAlign(tview.AlignRight).SetTextColor(changeColor))
	}
}
