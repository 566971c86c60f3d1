package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/whalewatcher/watcher/internal/alert"
	"github.com/whalewatcher/watcher/internal/config"
	"github.com/whalewatcher/watcher/internal/model"
)

func runStatus(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitFailure
	}
	printStatus(stdout, cfg)
	return exitOK
}

// printStatus writes the configuration with secrets masked.
func printStatus(w io.Writer, cfg *config.Config) {
	kalshi := "public (no credentials)"
	switch {
	case cfg.KalshiAuthenticated():
		kalshi = "signed requests, key " + cfg.MaskedKalshiKeyID()
	case cfg.KalshiAPIKeyID != "":
		kalshi = "key id only, key " + cfg.MaskedKalshiKeyID()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Settings file:\t%s\n", cfg.SettingsPath)
	fmt.Fprintf(tw, "Threshold:\t$%s\n", cfg.ThresholdUSD.StringFixed(2))
	fmt.Fprintf(tw, "Poll interval:\t%s\n", cfg.PollInterval)
	fmt.Fprintf(tw, "Polymarket:\t%s (%s)\n", cfg.PolymarketSource, polymarketEndpoint(cfg))
	fmt.Fprintf(tw, "Kalshi:\t%s\n", kalshi)
	fmt.Fprintf(tw, "Webhook:\t%s\n", cfg.MaskedWebhook())
	fmt.Fprintf(tw, "ntfy:\t%s\n", cfg.MaskedNtfy())
	fmt.Fprintf(tw, "Alert sound:\t%s\n", cfg.AlertSound)
	fmt.Fprintf(tw, "Dashboard:\t%t\n", cfg.EnableTUI)
	tw.Flush()
}

func polymarketEndpoint(cfg *config.Config) string {
	if cfg.PolymarketSource == config.SourceStream {
		return cfg.PolymarketStreamURL
	}
	return cfg.PolymarketDataAPIURL
}

func runSetup(stdin io.Reader, stdout, stderr io.Writer) int {
	path := os.Getenv("WHALE_WATCHER_CONFIG")
	if path == "" {
		var err error
		if path, err = config.DefaultSettingsPath(); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return exitFailure
		}
	}

	current, err := config.LoadSettings(path)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitFailure
	}

	updated, err := promptSettings(bufio.NewScanner(stdin), stdout, current)
	if err != nil {
		fmt.Fprintf(stderr, "setup: %v\n", err)
		return exitFailure
	}
	if err := config.SaveSettings(path, updated); err != nil {
		fmt.Fprintf(stderr, "setup: %v\n", err)
		return exitFailure
	}

	fmt.Fprintf(stdout, "\nSaved to %s\n", path)
	return exitOK
}

// promptSettings asks for each setting. An empty answer keeps the current
// value and a single "-" clears it.
func promptSettings(in *bufio.Scanner, out io.Writer, s config.Settings) (config.Settings, error) {
	fmt.Fprintln(out, "Whale Watcher setup. Press Enter to keep a value, '-' to clear it.")

	fields := []struct {
		label string
		value *string
	}{
		{"Kalshi API key ID", &s.KalshiAPIKeyID},
		{"Kalshi private key path", &s.KalshiPrivateKeyPath},
		{"Webhook URL", &s.WebhookURL},
		{"ntfy URL or topic", &s.NtfyURL},
	}

	for _, f := range fields {
		shown := *f.value
		if shown == "" {
			shown = "not set"
		}
		fmt.Fprintf(out, "%s [%s]: ", f.label, shown)

		if !in.Scan() {
			if err := in.Err(); err != nil {
				return s, err
			}
			break
		}
		switch answer := strings.TrimSpace(in.Text()); answer {
		case "":
		case "-":
			*f.value = ""
		default:
			*f.value = answer
		}
	}

	if s.KalshiPrivateKeyPath != "" && s.KalshiAPIKeyID == "" {
		return s, fmt.Errorf("a private key path needs a Kalshi API key ID")
	}
	return s, nil
}

func runTestSound(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitFailure
	}

	sink, err := alert.NewSink(cfg.AlertSound, runtime.GOOS, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitFailure
	}

	ctx := context.Background()
	fmt.Fprintln(stdout, "Playing normal alert...")
	if err := sink.Emit(ctx, alert.CueNormal); err != nil {
		fmt.Fprintf(stderr, "normal cue: %v\n", err)
		return exitFailure
	}
	time.Sleep(time.Second)

	fmt.Fprintln(stdout, "Playing elevated alert...")
	if err := sink.Emit(ctx, alert.CueElevated); err != nil {
		fmt.Fprintf(stderr, "elevated cue: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func runTestWebhook(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitFailure
	}

	logger := setupLogger(cfg.LogLevel, stderr)
	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitFailure
	}
	if !notifier.Enabled() {
		fmt.Fprintln(stderr, "no WEBHOOK_URL or NTFY_URL configured; run `wwatcher setup` first")
		return exitFailure
	}

	failed := false
	for _, a := range sampleAlerts(time.Now()) {
		if err := notifier.Notify(context.Background(), a); err != nil {
			fmt.Fprintf(stderr, "%s alert: %v\n", a.Trade.Side, err)
			failed = true
			continue
		}
		fmt.Fprintf(stdout, "Sent sample %s alert to %s\n", a.Trade.Side, strings.Join(notifier.Names(), ", "))
	}
	if failed {
		return exitFailure
	}
	return exitOK
}

// sampleAlerts returns one BUY alert on Polymarket and one SELL alert on Kalshi.
func sampleAlerts(now time.Time) []model.Alert {
	buy := model.Trade{
		Venue:       model.VenuePolymarket,
		MarketID:    "0x0000000000000000000000000000000000000000000000000000000000000001",
		MarketTitle: "Test market: will this webhook work?",
		Outcome:     "Yes",
		TradeID:     "test-buy",
		NotionalUSD: decimal.NewFromInt(30000),
		Price:       decimal.RequireFromString("0.6"),
		Size:        decimal.NewFromInt(50000),
		Side:        model.SideBuy,
		Wallet:      "0x1234567890abcdef1234567890abcdef12345678",
		ExecutedAt:  now,
		ObservedAt:  now,
	}
	sell := model.Trade{
		Venue:       model.VenueKalshi,
		MarketID:    "KXTEST-WEBHOOK",
		MarketTitle: "Test market: will this webhook work?",
		Outcome:     "No",
		TradeID:     "test-sell",
		NotionalUSD: decimal.NewFromInt(42000),
		Price:       decimal.RequireFromString("0.35"),
		Size:        decimal.NewFromInt(120000),
		Side:        model.SideSell,
		ExecutedAt:  now,
		ObservedAt:  now,
	}

	return []model.Alert{
		{ID: uuid.NewString(), Trade: buy, Activity: &model.WalletActivity{TxLastHour: 1, TxLastDay: 1, ValueLastHour: buy.NotionalUSD, ValueLastDay: buy.NotionalUSD}, RaisedAt: now},
		{ID: uuid.NewString(), Trade: sell, Elevated: true, RaisedAt: now},
	}
}
