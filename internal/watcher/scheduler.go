// Package watcher runs the fixed-interval poll loop: fetch both venues
// concurrently, then filter, enrich and dispatch serially.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/whalewatcher/watcher/internal/detector"
	"github.com/whalewatcher/watcher/internal/metrics"
	"github.com/whalewatcher/watcher/internal/model"
	"github.com/whalewatcher/watcher/internal/retry"
)

const (
	// DefaultThresholdUSD is the minimum notional that alerts.
	DefaultThresholdUSD = 25000
	// DefaultPollInterval is the sleep between cycles.
	DefaultPollInterval = 5 * time.Second
	// DefaultTitleTimeout bounds one market title lookup.
	DefaultTitleTimeout = 3 * time.Second

	cleanupInterval = 5 * time.Minute
)

// Config is copied into the Scheduler and never changes while it runs.
type Config struct {
	MinNotionalUSD decimal.Decimal
	PollInterval   time.Duration
	SeenCapacity   int
}

// DefaultConfig returns a 25000 USD threshold polled every 5 seconds.
func DefaultConfig() Config {
	return Config{
		MinNotionalUSD: decimal.NewFromInt(DefaultThresholdUSD),
		PollInterval:   DefaultPollInterval,
		SeenCapacity:   detector.DefaultSeenCapacity,
	}
}

// Validate checks the loop settings.
func (c Config) Validate() error {
	if c.MinNotionalUSD.IsNegative() {
		return errors.New("threshold must not be negative")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// State is the scheduler's loop state.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Fetcher is one venue behind its retry controller.
type Fetcher interface {
	Venue() model.Venue
	Fetch(ctx context.Context) retry.Result
}

// Dispatcher emits an alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert model.Alert)
}

// TitleResolver looks up a human-readable market title.
type TitleResolver interface {
	MarketTitle(ctx context.Context, marketID string) (string, error)
}

// TradeObserver sees every normalized trade, before filtering.
type TradeObserver func(model.Trade)

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	Results    []retry.Result
	Alerts     int
	Duplicates int
	Below      int
	Elapsed    time.Duration
}

// Scheduler owns the SeenSet and the per-venue controllers for the process lifetime.
type Scheduler struct {
	cfg        Config
	fetchers   []Fetcher
	detector   *detector.Detector
	dispatcher Dispatcher
	titles     map[model.Venue]TitleResolver
	tracker    *metrics.Tracker
	observer   TradeObserver
	logger     *slog.Logger

	titleTimeout time.Duration
	lastCleanup  time.Time
	now          func() time.Time
	state        atomic.Int32
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithTitleResolver enriches forwarded trades of venue that have no title.
func WithTitleResolver(venue model.Venue, r TitleResolver) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.titles[venue] = r
		}
	}
}

// WithMetrics records per-venue results and alerts in tracker.
func WithMetrics(tracker *metrics.Tracker) Option {
	return func(s *Scheduler) {
		s.tracker = tracker
	}
}

// WithTradeObserver passes every fetched trade to fn.
func WithTradeObserver(fn TradeObserver) Option {
	return func(s *Scheduler) {
		s.observer = fn
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a Scheduler polling fetchers and dispatching through dispatcher.
func NewScheduler(cfg Config, fetchers []Fetcher, dispatcher Dispatcher, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SeenCapacity <= 0 {
		cfg.SeenCapacity = detector.DefaultSeenCapacity
	}

	seen, err := detector.NewSeenSet(cfg.SeenCapacity)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:          cfg,
		fetchers:     fetchers,
		detector:     detector.NewDetector(detector.NewFilter(cfg.MinNotionalUSD, seen), nil),
		dispatcher:   dispatcher,
		titles:       make(map[model.Venue]TitleResolver),
		logger:       slog.Default(),
		titleTimeout: DefaultTitleTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	s.lastCleanup = s.now()
	return s, nil
}

// Config returns the loop settings.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// State returns the current loop state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Run polls until ctx is cancelled, then returns nil. Cancellation is observed
// at the end of a cycle or during the sleep.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler_started",
		"threshold_usd", s.cfg.MinNotionalUSD.String(),
		"interval", s.cfg.PollInterval,
		"venues", len(s.fetchers),
	)

	for {
		s.setState(StatePolling)
		s.RunCycle(ctx)
		if ctx.Err() != nil {
			break
		}

		s.setState(StateSleeping)
		if !sleep(ctx, s.cfg.PollInterval) {
			break
		}
	}

	s.setState(StateStopped)
	s.logger.Info("scheduler_stopped")
	return nil
}

// RunCycle fetches every venue concurrently, then filters, enriches and
// dispatches their trades in venue order. A failed venue does not hold up the
// others.
func (s *Scheduler) RunCycle(ctx context.Context) CycleReport {
	start := s.now()
	report := CycleReport{Results: make([]retry.Result, len(s.fetchers))}

	var g errgroup.Group
	for i, f := range s.fetchers {
		g.Go(func() error {
			report.Results[i] = f.Fetch(ctx)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range report.Results {
		if s.tracker != nil {
			s.tracker.RecordPoll(res)
		}
		for _, trade := range res.Trades {
			s.process(ctx, trade, &report)
		}
	}

	report.Elapsed = s.now().Sub(start)
	if s.tracker != nil {
		s.tracker.RecordCycle(report.Elapsed)
	}
	s.maybeCleanup()

	attrs := []any{
		"alerts", report.Alerts,
		"duplicates", report.Duplicates,
		"below_threshold", report.Below,
		"elapsed", report.Elapsed,
	}
	for _, res := range report.Results {
		attrs = append(attrs, string(res.Venue), res.Status.String(), string(res.Venue)+"_trades", len(res.Trades))
	}
	s.logger.Debug("poll_cycle_complete", attrs...)

	return report
}

func (s *Scheduler) process(ctx context.Context, trade model.Trade, report *CycleReport) {
	if s.observer != nil {
		s.observer(trade)
	}

	alert, decision := s.detector.Evaluate(trade)
	switch decision {
	case detector.BelowThreshold:
		report.Below++
		return
	case detector.Duplicate:
		report.Duplicates++
		return
	}

	if alert.Trade.MarketTitle == "" {
		alert.Trade.MarketTitle = s.lookupTitle(ctx, alert.Trade)
	}

	s.dispatcher.Dispatch(ctx, alert)
	report.Alerts++
	if s.tracker != nil {
		s.tracker.RecordAlert(alert)
	}
}

// lookupTitle is best effort: failures leave the title empty.
func (s *Scheduler) lookupTitle(ctx context.Context, trade model.Trade) string {
	r, ok := s.titles[trade.Venue]
	if !ok || trade.MarketID == "" {
		return ""
	}

	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.titleTimeout)
	defer cancel()

	title, err := r.MarketTitle(lookupCtx, trade.MarketID)
	if err != nil {
		s.logger.Debug("title_lookup_failed",
			"venue", trade.Venue,
			"market", trade.MarketID,
			"error", err,
		)
		return ""
	}
	return title
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) maybeCleanup() {
	now := s.now()
	if now.Sub(s.lastCleanup) < cleanupInterval {
		return
	}
	s.lastCleanup = now
	s.detector.Wallets().Cleanup()
	if s.tracker != nil {
		s.tracker.Cleanup()
	}
}
