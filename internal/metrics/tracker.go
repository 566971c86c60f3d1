// Package metrics provides real-time counters for the watcher, read by the
// terminal UI and the shutdown summary.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/model"
	"github.com/whalewatcher/watcher/internal/retry"
)

const (
	rateWindow     = 60 * time.Second
	marketWindow   = 60 * time.Minute
	DefaultTopSize = 10
)

// PricePoint represents a whale trade price at a specific time.
type PricePoint struct {
	Price     decimal.Decimal
	Timestamp time.Time
}

// VenueStats are the cumulative counters for one venue.
type VenueStats struct {
	Venue        model.Venue
	Polls        int64
	Deferred     int64
	Failures     int64
	Trades       int64 // normalized trades fetched
	Dropped      int64 // records rejected by normalization
	Alerts       int64
	LastPoll     time.Time
	LastStatus   string
	LastError    string
	BackoffUntil time.Time
}

// MarketActivity tracks whale activity on a single market.
type MarketActivity struct {
	Venue       model.Venue
	MarketID    string
	Title       string
	WhaleCount  int
	Volume      decimal.Decimal
	LastPrice   decimal.Decimal
	PricePoints []PricePoint
	LastUpdate  time.Time
}

// MarketStats is a ranked row of the top whale markets.
type MarketStats struct {
	Venue        model.Venue
	MarketID     string
	Title        string
	PriceChange  float64 // percent since the first whale trade in the window
	Volume       decimal.Decimal
	WhaleCount   int
	CurrentPrice decimal.Decimal
}

// Snapshot is a point-in-time view of metrics.
type Snapshot struct {
	Venues       map[model.Venue]VenueStats
	TradesTotal  int64
	AlertsTotal  int64
	Cycles       int64
	LastCycle    time.Time
	CycleTime    time.Duration
	TradeRate    float64 // trades per second over the last minute
	TopMarkets   []MarketStats
	Uptime       time.Duration
	StreamStatus string
}

// Tracker provides thread-safe metrics tracking. The scheduler writes, the UI reads.
type Tracker struct {
	mu              sync.RWMutex
	venues          map[model.Venue]*VenueStats
	markets         map[string]*MarketActivity // "venue:market_id"
	tradesTotal     int64
	alertsTotal     int64
	cycles          int64
	lastCycle       time.Time
	cycleTime       time.Duration
	tradeTimestamps []time.Time
	startTime       time.Time
	streamStatus    string
	now             func() time.Time
}

// NewTracker creates a new Tracker.
func NewTracker() *Tracker {
	return newTracker(time.Now)
}

func newTracker(now func() time.Time) *Tracker {
	t := &Tracker{
		venues:          make(map[model.Venue]*VenueStats, len(model.Venues)),
		markets:         make(map[string]*MarketActivity),
		tradeTimestamps: make([]time.Time, 0, 1000),
		startTime:       now(),
		now:             now,
	}
	for _, v := range model.Venues {
		t.venues[v] = &VenueStats{Venue: v}
	}
	return t
}

func (t *Tracker) venue(v model.Venue) *VenueStats {
	s, ok := t.venues[v]
	if !ok {
		s = &VenueStats{Venue: v}
		t.venues[v] = s
	}
	return s
}

// RecordPoll records one venue's result for a cycle.
func (t *Tracker) RecordPoll(res retry.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	s := t.venue(res.Venue)
	s.LastPoll = now
	s.LastStatus = res.Status.String()
	s.BackoffUntil = res.BackoffUntil

	switch res.Status {
	case retry.StatusOK:
		s.Polls++
		s.Trades += int64(len(res.Trades))
		s.LastError = ""
		t.tradesTotal += int64(len(res.Trades))
		for range res.Trades {
			t.tradeTimestamps = append(t.tradeTimestamps, now)
		}
		t.pruneRate(now)
	case retry.StatusDeferred:
		s.Deferred++
	case retry.StatusFailed:
		s.Polls++
		s.Failures++
		if res.Err != nil {
			s.LastError = res.Err.Error()
		}
	}
}

// pruneRate keeps only the last minute of trade timestamps. Must be called with lock held.
func (t *Tracker) pruneRate(now time.Time) {
	cutoff := now.Add(-rateWindow)
	idx := sort.Search(len(t.tradeTimestamps), func(i int) bool {
		return t.tradeTimestamps[i].After(cutoff)
	})
	if idx > 0 {
		t.tradeTimestamps = append(t.tradeTimestamps[:0], t.tradeTimestamps[idx:]...)
	}
}

// RecordDrop counts a venue record rejected by normalization.
func (t *Tracker) RecordDrop(venue model.Venue, _ error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.venue(venue).Dropped++
}

// RecordAlert counts an alert and updates the whale activity of its market.
func (t *Tracker) RecordAlert(a model.Alert) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	tr := a.Trade
	t.alertsTotal++
	t.venue(tr.Venue).Alerts++

	key := string(tr.Venue) + ":" + tr.MarketID
	activity, ok := t.markets[key]
	if !ok {
		activity = &MarketActivity{
			Venue:       tr.Venue,
			MarketID:    tr.MarketID,
			PricePoints: make([]PricePoint, 0, 16),
		}
		t.markets[key] = activity
	}
	if tr.MarketTitle != "" {
		activity.Title = tr.MarketTitle
	}

	activity.WhaleCount++
	activity.Volume = activity.Volume.Add(tr.NotionalUSD)
	activity.LastPrice = tr.Price
	activity.LastUpdate = now
	activity.PricePoints = append(activity.PricePoints, PricePoint{Price: tr.Price, Timestamp: now})

	cutoff := now.Add(-marketWindow)
	idx := 0
	for idx < len(activity.PricePoints) && !activity.PricePoints[idx].Timestamp.After(cutoff) {
		idx++
	}
	if idx > 0 {
		activity.PricePoints = activity.PricePoints[idx:]
	}
}

// RecordCycle records the completion of a poll cycle.
func (t *Tracker) RecordCycle(elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cycles++
	t.lastCycle = t.now()
	t.cycleTime = elapsed
}

// SetStreamStatus sets the websocket status shown for the streaming source.
func (t *Tracker) SetStreamStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streamStatus = status
}

// Snapshot returns a point-in-time snapshot of metrics.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()

	tradeRate := 0.0
	if len(t.tradeTimestamps) > 0 {
		if d := now.Sub(t.tradeTimestamps[0]).Seconds(); d > 0 {
			tradeRate = float64(len(t.tradeTimestamps)) / d
		}
	}

	venues := make(map[model.Venue]VenueStats, len(t.venues))
	for k, v := range t.venues {
		venues[k] = *v
	}

	return Snapshot{
		Venues:       venues,
		TradesTotal:  t.tradesTotal,
		AlertsTotal:  t.alertsTotal,
		Cycles:       t.cycles,
		LastCycle:    t.lastCycle,
		CycleTime:    t.cycleTime,
		TradeRate:    tradeRate,
		TopMarkets:   t.topMarkets(DefaultTopSize),
		Uptime:       now.Sub(t.startTime),
		StreamStatus: t.streamStatus,
	}
}

// topMarkets ranks markets by whale volume. Must be called with lock held.
func (t *Tracker) topMarkets(n int) []MarketStats {
	rows := make([]MarketStats, 0, len(t.markets))
	for _, m := range t.markets {
		row := MarketStats{
			Venue:        m.Venue,
			MarketID:     m.MarketID,
			Title:        m.Title,
			Volume:       m.Volume,
			WhaleCount:   m.WhaleCount,
			CurrentPrice: m.LastPrice,
		}
		if len(m.PricePoints) >= 2 {
			first := m.PricePoints[0].Price
			if !first.IsZero() {
				row.PriceChange = m.LastPrice.Sub(first).Div(first).Shift(2).InexactFloat64()
			}
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].Volume.Cmp(rows[j].Volume); c != 0 {
			return c > 0
		}
		return rows[i].MarketID < rows[j].MarketID
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// Cleanup removes markets with no whale activity in the last hour.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-marketWindow)
	for id, m := range t.markets {
		if m.LastUpdate.Before(cutoff) {
			delete(t.markets, id)
		}
	}
}
