package detector

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/model"
)

// Wallet activity windows and thresholds.
const (
	RepeatWindow   = time.Hour
	HeavyWindow    = 24 * time.Hour
	RepeatMinTrade = 2
	HeavyMinTrade  = 5
)

type walletTrade struct {
	at    time.Time
	value decimal.Decimal
}

// WalletTracker tracks whale trades per wallet to spot repeat and heavy actors.
type WalletTracker struct {
	mu     sync.RWMutex
	trades map[string][]walletTrade
	now    func() time.Time
}

// NewWalletTracker creates an empty WalletTracker.
func NewWalletTracker() *WalletTracker {
	return &WalletTracker{
		trades: make(map[string][]walletTrade),
		now:    time.Now,
	}
}

// Record adds a whale trade for wallet and returns the wallet's activity
// including the new trade.
func (w *WalletTracker) Record(wallet string, value decimal.Decimal) model.WalletActivity {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	trades := pruneBefore(w.trades[wallet], now.Add(-HeavyWindow))
	trades = append(trades, walletTrade{at: now, value: value})
	w.trades[wallet] = trades

	return summarize(trades, now)
}

// Activity returns the wallet's activity without recording anything.
func (w *WalletTracker) Activity(wallet string) model.WalletActivity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return summarize(w.trades[wallet], w.now())
}

// Cleanup removes wallets with no trades in the last day.
// Should be called periodically to bound memory.
func (w *WalletTracker) Cleanup() {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-HeavyWindow)
	for wallet, trades := range w.trades {
		if len(trades) == 0 || !trades[len(trades)-1].at.After(cutoff) {
			delete(w.trades, wallet)
		}
	}
}

// Len returns the number of wallets tracked.
func (w *WalletTracker) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.trades)
}

// pruneBefore drops trades at or before cutoff. Trades are kept in time order.
func pruneBefore(trades []walletTrade, cutoff time.Time) []walletTrade {
	i := 0
	for i < len(trades) && !trades[i].at.After(cutoff) {
		i++
	}
	return trades[i:]
}

func summarize(trades []walletTrade, now time.Time) model.WalletActivity {
	var a model.WalletActivity
	hourCutoff := now.Add(-RepeatWindow)
	dayCutoff := now.Add(-HeavyWindow)

	for _, t := range trades {
		if !t.at.After(dayCutoff) {
			continue
		}
		a.TxLastDay++
		a.ValueLastDay = a.ValueLastDay.Add(t.value)
		if t.at.After(hourCutoff) {
			a.TxLastHour++
			a.ValueLastHour = a.ValueLastHour.Add(t.value)
		}
	}

	a.RepeatActor = a.TxLastHour >= RepeatMinTrade
	a.HeavyActor = a.TxLastDay >= HeavyMinTrade
	return a
}
