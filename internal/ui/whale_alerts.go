package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/whalewatcher/watcher/internal/model"
)

// WhaleAlertsView displays whale alerts, newest first.
type WhaleAlertsView struct {
	list     *tview.List
	alerts   []model.Alert
	maxItems int
}

// NewWhaleAlertsView creates a new whale alerts view.
func NewWhaleAlertsView() *WhaleAlertsView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" 🐋 Whale Alerts ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)

	v := &WhaleAlertsView{
		list:     list,
		alerts:   make([]model.Alert, 0, 50),
		maxItems: 50,
	}
	v.rebuildList()
	return v
}

// Widget returns the tview primitive.
func (v *WhaleAlertsView) Widget() tview.Primitive {
	return v.list
}

// AddAlert adds a new alert to the top of the list.
func (v *WhaleAlertsView) AddAlert(a model.Alert) {
	v.alerts = append([]model.Alert{a}, v.alerts...)

	if len(v.alerts) > v.maxItems {
		v.alerts = v.alerts[:v.maxItems]
	}

	v.rebuildList()
}

// Refresh redraws the list.
func (v *WhaleAlertsView) Refresh() {
	v.rebuildList()
}

// rebuildList rebuilds the entire list from alerts.
func (v *WhaleAlertsView) rebuildList() {
	v.list.Clear()

	if len(v.alerts) == 0 {
		v.list.AddItem("No whales spotted yet", "", 0, nil)
		return
	}

	for _, a := range v.alerts {
		mainText, secondaryText := formatAlert(a)
		v.list.AddItem(mainText, secondaryText, 0, nil)
	}

	v.list.SetTitle(fmt.Sprintf(" 🐋 Whale Alerts (%d) ", len(v.alerts)))
}

// formatAlert renders an alert as a list item using tview color tags.
func formatAlert(a model.Alert) (string, string) {
	t := a.Trade

	icon, color := "🐋", "blue"
	if t.Side == model.SideSell {
		icon, color = "🚨", "red"
	} else if a.Elevated {
		icon, color = "⚠", "yellow"
	}

	title := t.MarketTitle
	if title == "" {
		title = t.Position()
	}
	if title == "" {
		title = truncateMiddle(t.MarketID, 24)
	}

	action := string(t.Side)
	if t.Outcome != "" {
		action += " " + t.Outcome
	}

	mainText := fmt.Sprintf("%s [%s]%s $%s[-] %s %s | %s",
		t.ObservedAt.Format("15:04:05"),
		color, icon, t.NotionalUSD.StringFixed(0),
		t.Venue.DisplayName(), action, tview.Escape(title),
	)

	parts := []string{fmt.Sprintf("@ %s (%s%%)", t.Price.StringFixed(3), t.Price.Shift(2).StringFixed(1))}
	if t.Wallet != "" {
		parts = append(parts, "Wallet: "+truncateAddress(t.Wallet))
	}
	if a.Activity != nil {
		parts = append(parts, fmt.Sprintf("%s (%d in 1h, %d in 24h)", a.Activity.Status(), a.Activity.TxLastHour, a.Activity.TxLastDay))
	}
	if len(a.Anomalies) > 0 {
		parts = append(parts, tview.Escape(a.Anomalies[0]))
	}

	return mainText, strings.Join(parts, " | ")
}
