// Package alert writes whale alerts to the log and drives the audible alert sink.
package alert

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/whalewatcher/watcher/internal/model"
)

// DefaultNotifyTimeout bounds each background notification delivery.
const DefaultNotifyTimeout = 10 * time.Second

// Notifier delivers an alert to external channels such as webhooks.
type Notifier interface {
	Notify(ctx context.Context, alert model.Alert) error
}

// Dispatcher emits every forwarded alert: one log line, one sink cue, then
// fire-and-forget delivery to the notifier and the UI feed.
type Dispatcher struct {
	logger        *slog.Logger
	sink          Sink
	notifier      Notifier
	feed          chan<- model.Alert
	notifyTimeout time.Duration

	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithNotifier delivers alerts to n in the background.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) {
		d.notifier = n
	}
}

// WithFeed publishes alerts to ch without blocking. Alerts are dropped when ch is full.
func WithFeed(ch chan<- model.Alert) Option {
	return func(d *Dispatcher) {
		d.feed = ch
	}
}

// WithNotifyTimeout sets the per-delivery timeout.
func WithNotifyTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.notifyTimeout = timeout
		}
	}
}

// NewDispatcher creates a Dispatcher that cues sink. A nil sink is silent.
func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	if sink == nil {
		sink = NopSink{}
	}
	d := &Dispatcher{
		logger:        slog.Default(),
		sink:          sink,
		notifyTimeout: DefaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// Dispatch logs the alert and cues the sink exactly once. A sink failure is
// logged and otherwise ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, a model.Alert) {
	t := a.Trade

	attrs := []any{
		"alert_id", a.ID,
		"venue", t.Venue,
		"market", t.MarketID,
		"title", t.MarketTitle,
		"notional_usd", t.NotionalUSD.StringFixed(2),
		"side", t.Side,
		"outcome", t.Outcome,
		"price", t.Price.String(),
		"size", t.Size.String(),
		"executed_at", t.ExecutedAt,
		"observed_at", t.ObservedAt,
		"elevated", a.Elevated,
	}
	if t.Wallet != "" {
		attrs = append(attrs, "wallet", t.Wallet)
	}
	if a.Activity != nil {
		attrs = append(attrs,
			"wallet_tx_1h", a.Activity.TxLastHour,
			"wallet_tx_24h", a.Activity.TxLastDay,
			"wallet_status", a.Activity.Status(),
		)
	}
	if len(a.Anomalies) > 0 {
		attrs = append(attrs, "anomalies", strings.Join(a.Anomalies, "; "))
	}
	d.logger.Info("whale_alert", attrs...)

	cue := CueNormal
	if a.Elevated {
		cue = CueElevated
	}
	// A cue that has started plays in full even if the watch loop is stopping.
	if err := d.sink.Emit(context.WithoutCancel(ctx), cue); err != nil {
		d.logger.Warn("alert_sink_failed", "alert_id", a.ID, "cue", cue, "error", err)
	}

	if d.feed != nil {
		select {
		case d.feed <- a:
		default:
			d.logger.Debug("alert_feed_full", "alert_id", a.ID)
		}
	}

	if d.notifier != nil {
		d.wg.Add(1)
		go d.notify(ctx, a)
	}
}

// notify delivers in the background. Deliveries already started finish even
// if the loop is stopping.
func (d *Dispatcher) notify(ctx context.Context, a model.Alert) {
	defer d.wg.Done()

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.notifyTimeout)
	defer cancel()

	if err := d.notifier.Notify(notifyCtx, a); err != nil {
		d.logger.Warn("notify_failed", "alert_id", a.ID, "error", err)
	}
}

// Wait blocks until every background delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
