package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/metrics"
	"github.com/whalewatcher/watcher/internal/model"
)

// StatsDashboardView displays loop health and totals.
type StatsDashboardView struct {
	textView  *tview.TextView
	threshold decimal.Decimal
	interval  time.Duration
	now       func() time.Time
}

// NewStatsDashboardView creates a new stats dashboard view.
func NewStatsDashboardView(threshold decimal.Decimal, interval time.Duration) *StatsDashboardView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Stats Dashboard ").SetBorder(true)

	return &StatsDashboardView{
		textView:  textView,
		threshold: threshold,
		interval:  interval,
		now:       time.Now,
	}
}

// Widget returns the tview primitive.
func (v *StatsDashboardView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the stats display.
func (v *StatsDashboardView) Update(snapshot metrics.Snapshot) {
	v.textView.Clear()
	fmt.Fprint(v.textView, v.render(snapshot))
}

func (v *StatsDashboardView) render(snapshot metrics.Snapshot) string {
	now := v.now()

	stream := snapshot.StreamStatus
	if stream == "" {
		stream = "off (REST polling)"
	}
	streamColor := "white"
	switch stream {
	case "connected":
		streamColor = "green"
	case "disconnected":
		streamColor = "red"
	}

	var failures int64
	for _, venue := range model.Venues {
		failures += snapshot.Venues[venue].Failures
	}

	return fmt.Sprintf(`[yellow]Watcher[-]
Uptime: %s
Threshold: $%s
Interval: %s
Stream: [%s]%s[-]

[yellow]Poll Loop[-]
Cycles: %d
Last Cycle: %s (%s)
Failed Polls: %d

[yellow]Trades[-]
Total Trades: %d
Rate: %.2f trades/sec
Whale Alerts: %d
`,
		formatDuration(snapshot.Uptime),
		v.threshold.StringFixed(0),
		v.interval,
		streamColor, stream,
		snapshot.Cycles,
		formatTimeAgo(snapshot.LastCycle, now), snapshot.CycleTime.Round(time.Millisecond),
		failures,
		snapshot.TradesTotal,
		snapshot.TradeRate,
		snapshot.AlertsTotal,
	)
}
