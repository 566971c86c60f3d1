package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/whalewatcher/watcher/internal/metrics"
	"github.com/whalewatcher/watcher/internal/model"
)

var venueHeaders = []string{"Venue", "Status", "Polls", "Trades", "Alerts", "Dropped", "Last Poll"}

// VenueStatusView shows per-venue poll health.
type VenueStatusView struct {
	table *tview.Table
	now   func() time.Time
}

// NewVenueStatusView creates a new venue status view.
func NewVenueStatusView() *VenueStatusView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Venues ").SetBorder(true)
	setHeader(table, venueHeaders)

	return &VenueStatusView{
		table: table,
		now:   time.Now,
	}
}

// Widget returns the tview primitive.
func (v *VenueStatusView) Widget() tview.Primitive {
	return v.table
}

// Update refreshes the view with new metrics data.
func (v *VenueStatusView) Update(snapshot metrics.Snapshot) {
	v.table.Clear()
	setHeader(v.table, venueHeaders)

	now := v.now()
	for i, venue := range model.Venues {
		stats := snapshot.Venues[venue]
		status, color := venueState(stats, now)

		cells := []string{
			fmt.Sprintf("%s (%s)", venue.DisplayName(), venue.Kind()),
			status,
			fmt.Sprintf("%d", stats.Polls),
			fmt.Sprintf("%d", stats.Trades),
			fmt.Sprintf("%d", stats.Alerts),
			fmt.Sprintf("%d", stats.Dropped),
			formatTimeAgo(stats.LastPoll, now),
		}

		for col, text := range cells {
			cell := tview.NewTableCell(text).
				SetAlign(tview.AlignLeft).
				SetExpansion(1)
			if col == 1 {
				cell.SetTextColor(color)
			}
			v.table.SetCell(i+1, col, cell)
		}
	}
}

// venueState labels a venue for display: backing off, failing, ok or waiting.
func venueState(stats metrics.VenueStats, now time.Time) (string, tcell.Color) {
	switch {
	case stats.BackoffUntil.After(now):
		return fmt.Sprintf("backoff %s", stats.BackoffUntil.Sub(now).Round(time.Second)), tcell.ColorYellow
	case stats.LastStatus == "failed":
		return "error", tcell.ColorRed
	case stats.LastStatus == "":
		return "waiting", tcell.ColorGray
	default:
		return stats.LastStatus, tcell.ColorGreen
	}
}
