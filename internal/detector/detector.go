// Package detector decides which trades are whale trades worth an alert.
package detector

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/model"
)

// Decision is the outcome of checking one trade.
type Decision int

const (
	Forward        Decision = iota // new whale trade, alert it
	BelowThreshold                 // too small, not recorded
	Duplicate                      // already alerted
)

func (d Decision) String() string {
	switch d {
	case Forward:
		return "forward"
	case BelowThreshold:
		return "below_threshold"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Filter applies the notional threshold and suppresses trades already alerted.
// It is not safe for concurrent use; the poll loop calls it one trade at a time.
type Filter struct {
	threshold decimal.Decimal
	seen      *SeenSet
	now       func() time.Time
}

// NewFilter creates a Filter. Trades at or above threshold pass.
func NewFilter(threshold decimal.Decimal, seen *SeenSet) *Filter {
	return &Filter{
		threshold: threshold,
		seen:      seen,
		now:       time.Now,
	}
}

// Threshold returns the minimum notional that alerts.
func (f *Filter) Threshold() decimal.Decimal {
	return f.threshold
}

// Check classifies trade and records it in the SeenSet when it is forwarded.
func (f *Filter) Check(trade model.Trade) Decision {
	if trade.NotionalUSD.LessThan(f.threshold) {
		return BelowThreshold
	}

	key := trade.Key()
	if f.seen.Contains(key) {
		return Duplicate
	}

	f.seen.Record(key, f.now())
	return Forward
}

// Detector turns forwarded trades into alerts with wallet context and anomaly notes.
type Detector struct {
	filter  *Filter
	wallets *WalletTracker
	now     func() time.Time
}

// NewDetector creates a Detector around filter.
func NewDetector(filter *Filter, wallets *WalletTracker) *Detector {
	if wallets == nil {
		wallets = NewWalletTracker()
	}
	return &Detector{
		filter:  filter,
		wallets: wallets,
		now:     time.Now,
	}
}

// Wallets returns the wallet tracker, for periodic cleanup.
func (d *Detector) Wallets() *WalletTracker {
	return d.wallets
}

// Evaluate runs trade through the filter. The alert is only meaningful when the
// decision is Forward.
func (d *Detector) Evaluate(trade model.Trade) (model.Alert, Decision) {
	decision := d.filter.Check(trade)
	if decision != Forward {
		return model.Alert{}, decision
	}

	alert := model.Alert{
		ID:       uuid.NewString(),
		Trade:    trade,
		RaisedAt: d.now(),
	}

	if trade.Wallet != "" {
		activity := d.wallets.Record(trade.Wallet, trade.NotionalUSD)
		alert.Activity = &activity
	}

	alert.Anomalies = Annotate(trade, alert.Activity)
	alert.Elevated = trade.Side == model.SideSell ||
		(alert.Activity != nil && (alert.Activity.RepeatActor || alert.Activity.HeavyActor))

	return alert, decision
}
