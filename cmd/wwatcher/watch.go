package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/alert"
	"github.com/whalewatcher/watcher/internal/auth"
	"github.com/whalewatcher/watcher/internal/config"
	"github.com/whalewatcher/watcher/internal/ingest"
	"github.com/whalewatcher/watcher/internal/metrics"
	"github.com/whalewatcher/watcher/internal/model"
	"github.com/whalewatcher/watcher/internal/notify"
	"github.com/whalewatcher/watcher/internal/retry"
	"github.com/whalewatcher/watcher/internal/ui"
	"github.com/whalewatcher/watcher/internal/version"
	"github.com/whalewatcher/watcher/internal/watcher"
)

const (
	// TradeFeedBuffer is the size of the buffered trade channel feeding the TUI
	TradeFeedBuffer = 1000
	// AlertFeedBuffer is the size of the buffered alert channel feeding the TUI
	AlertFeedBuffer = 100

	streamStatusInterval = time.Second
	shutdownGrace        = 15 * time.Second
)

// watchFlags are the command-line overrides for `watch`.
type watchFlags struct {
	threshold string
	interval  float64
	tui       bool
	set       map[string]bool
}

// parseWatchFlags parses watch flags. Syntax errors are usage errors.
func parseWatchFlags(args []string, stderr io.Writer) (*watchFlags, error) {
	f := &watchFlags{set: make(map[string]bool)}

	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.threshold, "threshold", "", "minimum notional in USD")
	fs.StringVar(&f.threshold, "t", "", "shorthand for --threshold")
	fs.Float64Var(&f.interval, "interval", 0, "poll interval in seconds")
	fs.Float64Var(&f.interval, "i", 0, "shorthand for --interval")
	fs.BoolVar(&f.tui, "tui", false, "show the terminal dashboard")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "t", "threshold":
			f.set["threshold"] = true
		case "i", "interval":
			f.set["interval"] = true
		default:
			f.set[fl.Name] = true
		}
	})
	return f, nil
}

// apply overrides cfg with the flags that were given and revalidates.
func (f *watchFlags) apply(cfg *config.Config) error {
	if f.set["threshold"] {
		d, err := decimal.NewFromString(f.threshold)
		if err != nil {
			return &config.ConfigError{Err: fmt.Errorf("--threshold: %q is not a number", f.threshold)}
		}
		cfg.SetThreshold(d)
	}
	if f.set["interval"] {
		cfg.PollInterval = time.Duration(f.interval * float64(time.Second))
	}
	if f.set["tui"] {
		cfg.EnableTUI = f.tui
	}
	return cfg.Validate()
}

func runWatch(args []string, stdout, stderr io.Writer) int {
	flags, err := parseWatchFlags(args, stderr)
	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(stderr, "watch: %v\n", err)
		}
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitFailure
	}
	if err := flags.apply(cfg); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitFailure
	}

	out, closeLog := logOutput(cfg.LogFile, cfg.EnableTUI, stdout)
	defer closeLog()
	logger := setupLogger(cfg.LogLevel, out)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := watch(ctx, cfg, logger, stdout); err != nil {
		logger.Error("watch_failed", "error", err)
		fmt.Fprintf(stderr, "%v\n", err)
		return exitFailure
	}
	return exitOK
}

// watch wires every component and blocks until ctx is cancelled or the
// dashboard is closed.
func watch(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	logger.Info("whale watcher starting", "version", version.Version)
	logger.Info("config_loaded",
		"threshold_usd", cfg.ThresholdUSD.StringFixed(2),
		"poll_interval", cfg.PollInterval,
		"polymarket_source", cfg.PolymarketSource,
		"kalshi_authenticated", cfg.KalshiAuthenticated(),
		"kalshi_key_id", cfg.MaskedKalshiKeyID(),
		"webhook", cfg.MaskedWebhook(),
		"ntfy", cfg.MaskedNtfy(),
		"alert_sound", cfg.AlertSound,
		"enable_tui", cfg.EnableTUI,
	)

	tracker := metrics.NewTracker()

	var (
		tradeFeed chan model.Trade
		alertFeed chan model.Alert
		app       *ui.App
	)
	if cfg.EnableTUI {
		tradeFeed = make(chan model.Trade, TradeFeedBuffer)
		alertFeed = make(chan model.Alert, AlertFeedBuffer)

		var err error
		app, err = ui.NewApp(tradeFeed, alertFeed, tracker,
			ui.WithRefreshRate(cfg.UIRefreshRate),
			ui.WithThreshold(cfg.ThresholdUSD),
			ui.WithPollInterval(cfg.PollInterval),
		)
		if err != nil {
			return err
		}
	}

	// Venue clients
	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	common := []ingest.Option{
		ingest.WithHTTPClient(httpClient),
		ingest.WithLogger(logger),
		ingest.WithRateLimit(cfg.RequestsPerSecond),
		ingest.WithDropFunc(tracker.RecordDrop),
	}

	var polymarket ingest.Client
	if cfg.PolymarketSource == config.SourceStream {
		stream := ingest.NewPolymarketStream(cfg.PolymarketStreamURL, common...)
		stream.Start(ctx)
		defer stream.Stop()
		go reportStreamStatus(ctx, stream, tracker)
		polymarket = stream
	} else {
		polymarket = ingest.NewPolymarketClient(cfg.PolymarketDataAPIURL, append(common,
			ingest.WithLimit(cfg.PolymarketTradeLimit),
			ingest.WithCashFloor(cfg.PolymarketCashFloor),
		)...)
	}
	markets := ingest.NewPolymarketMarkets(cfg.PolymarketGammaURL, common...)

	cred := ingest.KalshiCredential{KeyID: cfg.KalshiAPIKeyID}
	if cfg.KalshiAuthenticated() {
		creds, err := auth.LoadCredentials(cfg.KalshiAPIKeyID, cfg.KalshiPrivateKeyPath)
		if err != nil {
			return fmt.Errorf("kalshi credentials: %w", err)
		}
		cred.Signer = creds
	}
	kalshi := ingest.NewKalshiClient(cfg.KalshiAPIURL, cred, append(common,
		ingest.WithLimit(cfg.KalshiTradeLimit),
	)...)

	// Retry controllers
	policy := retry.Policy{
		InitialBackoff:    cfg.BackoffInitial,
		MaxBackoff:        cfg.BackoffMax,
		NetworkRetryDelay: cfg.NetworkRetryDelay,
		FetchTimeout:      cfg.FetchTimeout,
	}
	fetchers := []watcher.Fetcher{
		retry.NewController(polymarket, policy, retry.WithLogger(logger)),
		retry.NewController(kalshi, policy, retry.WithLogger(logger)),
	}

	// Alerting
	var tuiSink alert.Sink
	if app != nil {
		tuiSink = app.Sink()
	}
	sink, err := buildSink(cfg.AlertSound, runtime.GOOS, stdout, tuiSink)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	dispatchOpts := []alert.Option{alert.WithLogger(logger)}
	if notifier.Enabled() {
		dispatchOpts = append(dispatchOpts, alert.WithNotifier(notifier))
		logger.Info("notifications_enabled", "senders", notifier.Names())
	}
	if alertFeed != nil {
		dispatchOpts = append(dispatchOpts, alert.WithFeed(alertFeed))
	}
	dispatcher := alert.NewDispatcher(sink, dispatchOpts...)

	// Scheduler
	schedOpts := []watcher.Option{
		watcher.WithLogger(logger),
		watcher.WithMetrics(tracker),
		watcher.WithTitleResolver(model.VenuePolymarket, markets),
		watcher.WithTitleResolver(model.VenueKalshi, kalshi),
	}
	if tradeFeed != nil {
		schedOpts = append(schedOpts, watcher.WithTradeObserver(func(t model.Trade) {
			select {
			case tradeFeed <- t:
			default:
			}
		}))
	}

	scheduler, err := watcher.NewScheduler(watcher.Config{
		MinNotionalUSD: cfg.ThresholdUSD,
		PollInterval:   cfg.PollInterval,
		SeenCapacity:   cfg.SeenSetCapacity,
	}, fetchers, dispatcher, schedOpts...)
	if err != nil {
		return err
	}

	logger.Info("watcher_started",
		"venues", len(fetchers),
		"threshold_usd", cfg.ThresholdUSD.StringFixed(2),
		"tui_enabled", app != nil,
	)

	if app != nil {
		ctx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- scheduler.Run(ctx) }()

		if err := app.Run(ctx); err != nil {
			logger.Error("tui_error", "error", err)
		}
		cancel()
		if err := <-done; err != nil {
			return err
		}
	} else if err := scheduler.Run(ctx); err != nil {
		return err
	}

	logger.Info("shutting_down", "status", "waiting for notifications")
	waitWithTimeout(dispatcher.Wait, shutdownGrace, logger)

	snap := tracker.Snapshot()
	logger.Info("shutdown_complete",
		"uptime", snap.Uptime.Round(time.Second),
		"cycles", snap.Cycles,
		"trades", snap.TradesTotal,
		"alerts", snap.AlertsTotal,
	)
	return nil
}

// buildSink chooses the audible sink. With the dashboard running, cues go
// through the screen instead of raw BEL bytes on stdout.
func buildSink(mode, goos string, stdout io.Writer, tuiSink alert.Sink) (alert.Sink, error) {
	if tuiSink == nil {
		return alert.NewSink(mode, goos, stdout)
	}
	switch mode {
	case alert.ModeNone:
		return alert.NopSink{}, nil
	case alert.ModeBell:
		return tuiSink, nil
	default:
		return alert.NewPlatformSink(goos, tuiSink), nil
	}
}

// buildNotifier creates the senders for the configured destinations.
func buildNotifier(cfg *config.Config, logger *slog.Logger) (*notify.Notifier, error) {
	client := &http.Client{Timeout: notify.DefaultTimeout}

	var senders []notify.Sender
	if cfg.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.WebhookURL, client))
	}
	if cfg.NtfyURL != "" {
		target, err := notify.ParseNtfyURL(cfg.NtfyURL)
		if err != nil {
			return nil, &config.ConfigError{Err: fmt.Errorf("NTFY_URL: %w", err)}
		}
		senders = append(senders, notify.NewNtfySender(target, client))
	}
	return notify.NewNotifier(senders, logger), nil
}

// reportStreamStatus mirrors the websocket state into the tracker.
func reportStreamStatus(ctx context.Context, stream *ingest.PolymarketStream, tracker *metrics.Tracker) {
	ticker := time.NewTicker(streamStatusInterval)
	defer ticker.Stop()

	for {
		status := "disconnected"
		if stream.Connected() {
			status = "connected"
		}
		tracker.SetStreamStatus(status)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// waitWithTimeout runs wait but gives up after d.
func waitWithTimeout(wait func(), d time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d):
		logger.Warn("shutdown_timeout", "waited", d)
	}
}
