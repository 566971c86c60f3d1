// Package ingest provides the venue clients that fetch and normalize recent trades.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/whalewatcher/watcher/internal/model"
	"github.com/whalewatcher/watcher/internal/version"
)

const (
	// DefaultFetchTimeout bounds a single HTTP request
	DefaultFetchTimeout = 10 * time.Second
	// DefaultTradeLimit is the page size requested from each venue
	DefaultTradeLimit = 100
	// DefaultRequestsPerSecond paces outgoing requests per client
	DefaultRequestsPerSecond = 5.0
	// DefaultLookback is the window accepted on the first poll
	DefaultLookback = 5 * time.Minute

	maxBodyBytes = 8 << 20
)

// Client fetches the most recent trades from one venue.
type Client interface {
	Venue() model.Venue
	FetchRecentTrades(ctx context.Context) ([]model.Trade, error)
}

// DropFunc is called for every raw trade rejected by normalization.
type DropFunc func(venue model.Venue, err error)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	limit      int
	lookback   time.Duration
	now        func() time.Time
	onDrop     DropFunc
	cashFloor  decimal.Decimal
}

func defaultOptions() options {
	return options{
		httpClient: &http.Client{Timeout: DefaultFetchTimeout},
		logger:     slog.Default(),
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		limit:      DefaultTradeLimit,
		lookback:   DefaultLookback,
		now:        time.Now,
	}
}

// Option configures a venue client.
type Option func(*options)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRateLimit paces requests to at most rps per second. Zero or negative disables pacing.
func WithRateLimit(rps float64) Option {
	return func(o *options) {
		if rps <= 0 {
			o.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithLimit sets how many trades are requested per poll.
func WithLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithLookback sets the window accepted on the first poll.
func WithLookback(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lookback = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithDropFunc registers a callback for trades rejected by normalization.
func WithDropFunc(fn DropFunc) Option {
	return func(o *options) {
		o.onDrop = fn
	}
}

// WithCashFloor asks the venue to return only trades worth at least min dollars.
// Only the Polymarket data API supports a server-side floor.
func WithCashFloor(min decimal.Decimal) Option {
	return func(o *options) {
		o.cashFloor = min
	}
}

// requester performs paced GET requests against one venue and classifies failures.
type requester struct {
	venue      model.Venue
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	headers    func(method, path string) (map[string]string, error)
	now        func() time.Time
}

// get performs a GET request and returns the body of a 2xx response.
// Every error it returns is a *FetchError.
func (r *requester) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := r.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, malformedError(r.venue, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	if r.headers != nil {
		hdrs, err := r.headers(http.MethodGet, req.URL.Path)
		if err != nil {
			return nil, &FetchError{Venue: r.venue, Kind: KindAuth, Err: fmt.Errorf("sign request: %w", err)}
		}
		for k, v := range hdrs {
			req.Header.Set(k, v)
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, networkError(r.venue, fmt.Errorf("rate limiter: %w", err))
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, networkError(r.venue, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, networkError(r.venue, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	statusErr := fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode), snippet(body))
	fe := &FetchError{Venue: r.venue, StatusCode: resp.StatusCode, Err: statusErr}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		fe.Kind = KindRateLimited
		fe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), r.now())
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		fe.Kind = KindAuth
	case resp.StatusCode >= 500:
		fe.Kind = KindNetwork
	default:
		fe.Kind = KindMalformed
	}
	return nil, fe
}

// parseRetryAfter accepts either delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// snippet shortens a response body for error messages.
func snippet(body []byte) string {
	const max = 200
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
