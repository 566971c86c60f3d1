// Package ui provides terminal user interface components.
package ui

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/alert"
	"github.com/whalewatcher/watcher/internal/metrics"
	"github.com/whalewatcher/watcher/internal/model"
)

const defaultRefreshRate = 500 * time.Millisecond

// App is the main TUI application.
type App struct {
	app    *tview.Application
	screen tcell.Screen
	layout *tview.Flex

	// Views
	venueStatus    *VenueStatusView
	whaleAlerts    *WhaleAlertsView
	liveTrades     *LiveTradesView
	statsDashboard *StatsDashboardView
	topMarkets     *TopMarketsView

	// Data channels
	tradeChan      <-chan model.Trade
	alertChan      <-chan model.Alert
	metricsTracker *metrics.Tracker

	refreshRate time.Duration
	threshold   decimal.Decimal
	interval    time.Duration

	// State
	drawn    atomic.Bool
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
}

// Option configures an App.
type Option func(*App)

// WithRefreshRate sets how often the metrics panels redraw.
func WithRefreshRate(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.refreshRate = d
		}
	}
}

// WithThreshold sets the whale threshold used for highlighting and display.
func WithThreshold(usd decimal.Decimal) Option {
	return func(a *App) { a.threshold = usd }
}

// WithPollInterval sets the poll interval shown on the stats panel.
func WithPollInterval(d time.Duration) Option {
	return func(a *App) { a.interval = d }
}

// WithScreen replaces the terminal screen, e.g. with a simulation screen in tests.
func WithScreen(s tcell.Screen) Option {
	return func(a *App) { a.screen = s }
}

// NewApp creates a new TUI application.
func NewApp(tradeChan <-chan model.Trade, alertChan <-chan model.Alert, tracker *metrics.Tracker, opts ...Option) (*App, error) {
	a := &App{
		app:            tview.NewApplication(),
		tradeChan:      tradeChan,
		alertChan:      alertChan,
		metricsTracker: tracker,
		refreshRate:    defaultRefreshRate,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.screen == nil {
		screen, err := tcell.NewScreen()
		if err != nil {
			return nil, fmt.Errorf("create screen: %w", err)
		}
		a.screen = screen
	}
	a.app.SetScreen(a.screen)
	a.app.SetAfterDrawFunc(func(tcell.Screen) { a.drawn.Store(true) })

	// Initialize views
	a.venueStatus = NewVenueStatusView()
	a.whaleAlerts = NewWhaleAlertsView()
	a.liveTrades = NewLiveTradesView(a.threshold)
	a.statsDashboard = NewStatsDashboardView(a.threshold, a.interval)
	a.topMarkets = NewTopMarketsView()

	a.setupLayout()
	a.setupKeyboard()

	return a, nil
}

// Sink returns an alert sink that beeps through the TUI's screen. Writing BEL
// to stdout directly would corrupt the display. Cues raised before the first
// draw are dropped since the screen is not yet initialized.
func (a *App) Sink() alert.Sink {
	sink := NewBeepSink(a.screen)
	sink.ready = a.drawn.Load
	return sink
}

// setupLayout creates the 5-panel layout.
func (a *App) setupLayout() {
	// Top row: Venue Status (left) | Whale Alerts (right)
	topRow := tview.NewFlex().
		AddItem(a.venueStatus.Widget(), 0, 1, false).
		AddItem(a.whaleAlerts.Widget(), 0, 2, false)

	// Middle row: Live Trades (full width)
	middleRow := a.liveTrades.Widget()

	// Bottom row: Stats Dashboard (left) | Top Markets (right)
	bottomRow := tview.NewFlex().
		AddItem(a.statsDashboard.Widget(), 0, 1, false).
		AddItem(a.topMarkets.Widget(), 0, 2, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 2, false).
		AddItem(middleRow, 0, 3, false).
		AddItem(bottomRow, 0, 2, false)

	a.app.SetRoot(a.layout, true)
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.Stop()
				return nil
			case 'r', 'R':
				a.refresh()
				return nil
			}
		}
		return event
	})
}

// Run starts the TUI and blocks until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	defer a.cancel()

	go a.processTrades()
	go a.processAlerts()
	go a.updateLoop()
	go func() {
		<-a.ctx.Done()
		a.Stop()
	}()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.app.Stop()
	})
}

// processTrades reads from the trade channel and updates the live feed.
func (a *App) processTrades() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case trade, ok := <-a.tradeChan:
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.liveTrades.AddTrade(trade)
			})
		}
	}
}

// processAlerts reads from the alert channel and updates the whale alerts list.
func (a *App) processAlerts() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case al, ok := <-a.alertChan:
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.whaleAlerts.AddAlert(al)
			})
		}
	}
}

// updateLoop periodically refreshes views with metrics data.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			snapshot := a.metricsTracker.Snapshot()

			a.app.QueueUpdateDraw(func() {
				a.venueStatus.Update(snapshot)
				a.statsDashboard.Update(snapshot)
				a.topMarkets.Update(snapshot)
			})
		}
	}
}

// refresh manually refreshes all views.
func (a *App) refresh() {
	snapshot := a.metricsTracker.Snapshot()

	a.app.QueueUpdateDraw(func() {
		a.venueStatus.Update(snapshot)
		a.whaleAlerts.Refresh()
		a.liveTrades.Refresh()
		a.statsDashboard.Update(snapshot)
		a.topMarkets.Update(snapshot)
	})
}
