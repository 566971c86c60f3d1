// Package retry wraps venue clients with per-venue backoff and retry policy.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/whalewatcher/watcher/internal/ingest"
	"github.com/whalewatcher/watcher/internal/model"
)

// Policy holds the backoff and retry timings.
type Policy struct {
	InitialBackoff    time.Duration // first wait after a rate limit
	MaxBackoff        time.Duration // cap for consecutive rate limits
	NetworkRetryDelay time.Duration // delay before the single network retry
	FetchTimeout      time.Duration // bound on each fetch attempt
}

// DefaultPolicy doubles from 1s to 60s on rate limits and retries network failures once after 2s.
func DefaultPolicy() Policy {
	return Policy{
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		NetworkRetryDelay: 2 * time.Second,
		FetchTimeout:      10 * time.Second,
	}
}

// State is the controller's backoff state.
type State int

const (
	StateIdle State = iota
	StateBackoff
)

func (s State) String() string {
	if s == StateBackoff {
		return "backoff"
	}
	return "idle"
}

// Status is the outcome of one Fetch.
type Status int

const (
	StatusOK       Status = iota // fetched, possibly zero trades
	StatusDeferred               // skipped without a request, still backing off
	StatusFailed                 // skipped after an error
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDeferred:
		return "deferred"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is one venue's contribution to a poll cycle.
type Result struct {
	Venue        model.Venue
	Trades       []model.Trade
	Status       Status
	Err          *ingest.FetchError // nil unless Status is StatusFailed
	Attempts     int
	BackoffUntil time.Time // zero when idle
}

// backoffState is Idle when until is zero, otherwise Backoff(until).
type backoffState struct {
	until time.Time
	step  time.Duration
}

// Controller applies the retry policy to a single venue client.
// Fetch is not safe for concurrent use; each venue gets its own Controller.
type Controller struct {
	client ingest.Client
	policy Policy
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	state backoffState
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithSleep replaces the context-aware sleep used before a network retry.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		c.sleep = sleep
	}
}

// NewController wraps client with the given policy.
func NewController(client ingest.Client, policy Policy, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		policy: policy,
		logger: slog.Default(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "retry", "venue", client.Venue())
	return c
}

// Venue returns the wrapped client's venue.
func (c *Controller) Venue() model.Venue {
	return c.client.Venue()
}

// State reports the current backoff state and, when backing off, its deadline.
func (c *Controller) State() (State, time.Time) {
	if c.state.until.IsZero() || !c.now().Before(c.state.until) {
		return StateIdle, time.Time{}
	}
	return StateBackoff, c.state.until
}

// Fetch runs one poll for the venue under the retry policy. It never returns an
// error; failures are reported in the Result and the venue is skipped for this cycle.
func (c *Controller) Fetch(ctx context.Context) Result {
	res := Result{Venue: c.client.Venue()}

	if until := c.state.until; !until.IsZero() && c.now().Before(until) {
		c.logger.Debug("venue_deferred", "backoff_until", until)
		res.Status = StatusDeferred
		res.BackoffUntil = until
		return res
	}

	trades, err := c.attempt(ctx)
	res.Attempts++

	if err != nil && err.Kind == ingest.KindNetwork {
		c.logger.Warn("venue_fetch_retry", "error", err, "delay", c.policy.NetworkRetryDelay)
		if serr := c.sleep(ctx, c.policy.NetworkRetryDelay); serr != nil {
			return c.fail(res, err)
		}
		trades, err = c.attempt(ctx)
		res.Attempts++
	}

	if err != nil {
		return c.fail(res, err)
	}

	if !c.state.until.IsZero() {
		c.logger.Info("venue_backoff_cleared")
	}
	c.state = backoffState{}
	res.Trades = trades
	res.Status = StatusOK
	return res
}

// attempt performs one fetch bounded by the fetch timeout. Cancelling ctx does
// not abort a request already in flight.
func (c *Controller) attempt(ctx context.Context) ([]model.Trade, *ingest.FetchError) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.policy.FetchTimeout)
	defer cancel()

	trades, err := c.client.FetchRecentTrades(fetchCtx)
	if err != nil {
		return nil, ingest.AsFetchError(c.client.Venue(), err)
	}
	return trades, nil
}

func (c *Controller) fail(res Result, err *ingest.FetchError) Result {
	res.Status = StatusFailed
	res.Err = err

	switch err.Kind {
	case ingest.KindRateLimited:
		res.BackoffUntil = c.enterBackoff(err.RetryAfter)
		c.logger.Warn("venue_backoff",
			"error", err,
			"backoff", c.state.step,
			"retry_after", err.RetryAfter,
			"backoff_until", res.BackoffUntil,
		)
	case ingest.KindNetwork:
		c.logger.Warn("venue_skipped", "kind", err.Kind, "error", err, "attempts", res.Attempts)
	default:
		c.logger.Error("venue_skipped", "kind", err.Kind, "error", err)
	}
	return res
}

// enterBackoff doubles the backoff step, capped at MaxBackoff, and returns the deadline.
// A venue-supplied Retry-After longer than the step wins.
func (c *Controller) enterBackoff(retryAfter time.Duration) time.Time {
	step := c.policy.InitialBackoff
	if c.state.step > 0 {
		step = c.state.step * 2
	}
	if step > c.policy.MaxBackoff {
		step = c.policy.MaxBackoff
	}

	wait := step
	if retryAfter > wait {
		wait = retryAfter
	}

	c.state = backoffState{until: c.now().Add(wait), step: step}
	return c.state.until
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
