package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/ingest"
	"github.com/whalewatcher/watcher/internal/metrics"
	"github.com/whalewatcher/watcher/internal/model"
	"github.com/whalewatcher/watcher/internal/retry"
)

// venueClient returns one scripted batch (or error) per call, then nothing.
type venueClient struct {
	venue   model.Venue
	batches [][]model.Trade
	errs    []error
	mu      sync.Mutex
	calls   int
}

func (v *venueClient) Venue() model.Venue { return v.venue }

func (v *venueClient) FetchRecentTrades(ctx context.Context) ([]model.Trade, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.calls
	v.calls++
	if i < len(v.errs) && v.errs[i] != nil {
		return nil, v.errs[i]
	}
	if i < len(v.batches) {
		return v.batches[i], nil
	}
	return nil, nil
}

func (v *venueClient) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type recordingDispatcher struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (r *recordingDispatcher) Dispatch(_ context.Context, a model.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingDispatcher) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.alerts))
	for _, a := range r.alerts {
		ids = append(ids, a.Trade.TradeID)
	}
	return ids
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func tr(venue model.Venue, id string, notional int64) model.Trade {
	return model.Trade{
		Venue:       venue,
		MarketID:    "m-" + id,
		TradeID:     id,
		NotionalUSD: decimal.NewFromInt(notional),
		Price:       decimal.RequireFromString("0.5"),
		Side:        model.SideBuy,
	}
}

func controller(c ingest.Client, clock *fakeClock) *retry.Controller {
	return retry.NewController(c, retry.DefaultPolicy(),
		retry.WithClock(clock.Now),
		retry.WithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
	)
}

func newScheduler(t *testing.T, d Dispatcher, fetchers []Fetcher, opts ...Option) *Scheduler {
	t.Helper()
	cfg := DefaultConfig()
	s, err := NewScheduler(cfg, fetchers, d, opts...)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunCycle_ThresholdAcrossVenues(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	poly := &venueClient{venue: model.VenuePolymarket, batches: [][]model.Trade{{tr(model.VenuePolymarket, "d1", 30000)}}}
	kalshi := &venueClient{venue: model.VenueKalshi, batches: [][]model.Trade{{tr(model.VenueKalshi, "r1", 10000)}}}
	d := &recordingDispatcher{}

	s := newScheduler(t, d, []Fetcher{controller(poly, clock), controller(kalshi, clock)})
	report := s.RunCycle(context.Background())

	if got := d.IDs(); !equal(got, []string{"d1"}) {
		t.Errorf("alerts = %v, want [d1]", got)
	}
	if report.Alerts != 1 || report.Below != 1 {
		t.Errorf("report alerts=%d below=%d, want 1 and 1", report.Alerts, report.Below)
	}
}

func TestRunCycle_DuplicateAcrossCycles(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	whale := tr(model.VenuePolymarket, "d1", 30000)
	poly := &venueClient{venue: model.VenuePolymarket, batches: [][]model.Trade{{whale}, {whale}}}
	d := &recordingDispatcher{}

	s := newScheduler(t, d, []Fetcher{controller(poly, clock)})
	s.RunCycle(context.Background())
	report := s.RunCycle(context.Background())

	if got := d.IDs(); !equal(got, []string{"d1"}) {
		t.Errorf("alerts = %v, want a single d1", got)
	}
	if report.Duplicates != 1 {
		t.Errorf("second cycle duplicates = %d, want 1", report.Duplicates)
	}
}

func TestRunCycle_RateLimitedVenueBacksOff(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	poly := &venueClient{venue: model.VenuePolymarket, batches: [][]model.Trade{{tr(model.VenuePolymarket, "d1", 30000)}}}
	kalshi := &venueClient{
		venue: model.VenueKalshi,
		errs: []error{&ingest.FetchError{
			Venue: model.VenueKalshi, Kind: ingest.KindRateLimited, StatusCode: 429, Err: errors.New("too many requests"),
		}},
		batches: [][]model.Trade{nil, {tr(model.VenueKalshi, "r2", 40000)}},
	}
	d := &recordingDispatcher{}

	kc := controller(kalshi, clock)
	s := newScheduler(t, d, []Fetcher{controller(poly, clock), kc})

	report := s.RunCycle(context.Background())
	if got := d.IDs(); !equal(got, []string{"d1"}) {
		t.Errorf("cycle 1 alerts = %v, want [d1]", got)
	}
	if kalshi.Calls() != 1 {
		t.Errorf("kalshi called %d times in cycle 1, want exactly 1", kalshi.Calls())
	}
	if report.Results[1].Status != retry.StatusFailed {
		t.Errorf("kalshi status = %v, want failed", report.Results[1].Status)
	}

	// Still inside the backoff window: no request at all.
	clock.Advance(500 * time.Millisecond)
	report = s.RunCycle(context.Background())
	if report.Results[1].Status != retry.StatusDeferred || kalshi.Calls() != 1 {
		t.Errorf("cycle 2 status = %v calls = %d, want deferred and 1", report.Results[1].Status, kalshi.Calls())
	}

	// Backoff elapsed: the venue is retried and its trade alerts.
	clock.Advance(time.Second)
	s.RunCycle(context.Background())
	if kalshi.Calls() != 2 {
		t.Errorf("kalshi calls after backoff = %d, want 2", kalshi.Calls())
	}
	if got := d.IDs(); !equal(got, []string{"d1", "r2"}) {
		t.Errorf("alerts = %v, want [d1 r2]", got)
	}
}

func TestRunCycle_PartialSuccess(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	poly := &venueClient{
		venue: model.VenuePolymarket,
		errs:  []error{&ingest.FetchError{Venue: model.VenuePolymarket, Kind: ingest.KindMalformed, Err: errors.New("bad json")}},
	}
	kalshi := &venueClient{venue: model.VenueKalshi, batches: [][]model.Trade{{tr(model.VenueKalshi, "r1", 50000)}}}
	d := &recordingDispatcher{}
	tracker := metrics.NewTracker()

	var observed []string
	s := newScheduler(t, d, []Fetcher{controller(poly, clock), controller(kalshi, clock)},
		WithMetrics(tracker),
		WithTradeObserver(func(t model.Trade) { observed = append(observed, t.TradeID) }),
	)
	s.RunCycle(context.Background())

	if got := d.IDs(); !equal(got, []string{"r1"}) {
		t.Errorf("alerts = %v, want [r1]", got)
	}
	if !equal(observed, []string{"r1"}) {
		t.Errorf("observed = %v", observed)
	}

	snap := tracker.Snapshot()
	if snap.Venues[model.VenuePolymarket].Failures != 1 || snap.Venues[model.VenueKalshi].Alerts != 1 {
		t.Errorf("metrics = %+v", snap.Venues)
	}
}

type titles map[string]string

func (m titles) MarketTitle(_ context.Context, id string) (string, error) {
	if title, ok := m[id]; ok {
		return title, nil
	}
	return "", errors.New("not found")
}

func TestRunCycle_EnrichesForwardedTrades(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	named := tr(model.VenueKalshi, "k2", 30000)
	named.MarketTitle = "Already named"
	kalshi := &venueClient{venue: model.VenueKalshi, batches: [][]model.Trade{{
		tr(model.VenueKalshi, "k1", 30000),
		named,
		tr(model.VenueKalshi, "k3", 30000),
	}}}
	d := &recordingDispatcher{}

	s := newScheduler(t, d, []Fetcher{controller(kalshi, clock)},
		WithTitleResolver(model.VenueKalshi, titles{"m-k1": "Fed cuts in March?", "m-k2": "ignored"}),
	)
	s.RunCycle(context.Background())

	if len(d.alerts) != 3 {
		t.Fatalf("alerts = %d, want 3", len(d.alerts))
	}
	want := []string{"Fed cuts in March?", "Already named", ""}
	for i, a := range d.alerts {
		if a.Trade.MarketTitle != want[i] {
			t.Errorf("alert %d title = %q, want %q", i, a.Trade.MarketTitle, want[i])
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	poly := &venueClient{venue: model.VenuePolymarket}
	d := &recordingDispatcher{}

	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	s, err := NewScheduler(cfg, []Fetcher{retry.NewController(poly, retry.DefaultPolicy())}, d)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("initial state = %v", s.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for poly.Calls() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if poly.Calls() < 3 {
		t.Errorf("polled %d times, want at least 3", poly.Calls())
	}
	if s.State() != StateStopped {
		t.Errorf("final state = %v, want stopped", s.State())
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 0
	if _, err := NewScheduler(cfg, nil, &recordingDispatcher{}); err == nil {
		t.Error("expected error for zero interval")
	}

	cfg = DefaultConfig()
	cfg.MinNotionalUSD = decimal.NewFromInt(-1)
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative threshold")
	}
}
