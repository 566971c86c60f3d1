package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// isolate points the settings file at a temp dir so the developer's own
// ~/.config is never read.
func isolate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("WHALE_WATCHER_CONFIG", path)
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.ThresholdUSD.Equal(decimal.NewFromInt(25000)) {
		t.Errorf("ThresholdUSD = %v, want 25000", cfg.ThresholdUSD)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.PolymarketSource != SourceREST || cfg.AlertSound != "auto" {
		t.Errorf("source=%q sound=%q", cfg.PolymarketSource, cfg.AlertSound)
	}
	if cfg.BackoffInitial != time.Second || cfg.BackoffMax != time.Minute || cfg.NetworkRetryDelay != 2*time.Second {
		t.Errorf("backoff = %v..%v retry %v", cfg.BackoffInitial, cfg.BackoffMax, cfg.NetworkRetryDelay)
	}
	if cfg.KalshiAuthenticated() {
		t.Error("Kalshi should be unauthenticated by default")
	}
}

func TestLoad_CashFloorFollowsThreshold(t *testing.T) {
	t.Run("unset floor tracks threshold", func(t *testing.T) {
		isolate(t)
		t.Setenv("WHALE_THRESHOLD_USD", "40000")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !cfg.PolymarketCashFloor.Equal(decimal.NewFromInt(40000)) {
			t.Errorf("PolymarketCashFloor = %v, want 40000", cfg.PolymarketCashFloor)
		}

		cfg.SetThreshold(decimal.NewFromInt(60000))
		if !cfg.PolymarketCashFloor.Equal(decimal.NewFromInt(60000)) {
			t.Errorf("PolymarketCashFloor = %v after SetThreshold, want 60000", cfg.PolymarketCashFloor)
		}
	})

	t.Run("explicit floor is kept", func(t *testing.T) {
		isolate(t)
		t.Setenv("POLYMARKET_CASH_FLOOR", "1000")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		cfg.SetThreshold(decimal.NewFromInt(60000))
		if !cfg.PolymarketCashFloor.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("PolymarketCashFloor = %v, want 1000", cfg.PolymarketCashFloor)
		}
		if !cfg.ThresholdUSD.Equal(decimal.NewFromInt(60000)) {
			t.Errorf("ThresholdUSD = %v, want 60000", cfg.ThresholdUSD)
		}
	})
}

func TestLoad_EnvOverridesSettings(t *testing.T) {
	path := isolate(t)
	if err := SaveSettings(path, Settings{
		KalshiAPIKeyID: "from-file",
		WebhookURL:     "https://hooks.example.com/file",
		NtfyURL:        "whales",
	}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	t.Setenv("KALSHI_API_KEY_ID", "from-env")
	t.Setenv("WHALE_THRESHOLD_USD", "50000.50")
	t.Setenv("WHALE_POLL_INTERVAL_SECONDS", "2.5")
	t.Setenv("POLYMARKET_SOURCE", "STREAM")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.KalshiAPIKeyID != "from-env" {
		t.Errorf("KalshiAPIKeyID = %q, env must win", cfg.KalshiAPIKeyID)
	}
	if cfg.WebhookURL != "https://hooks.example.com/file" || cfg.NtfyURL != "whales" {
		t.Errorf("settings not applied: webhook=%q ntfy=%q", cfg.WebhookURL, cfg.NtfyURL)
	}
	if cfg.ThresholdUSD.String() != "50000.5" {
		t.Errorf("ThresholdUSD = %v", cfg.ThresholdUSD)
	}
	if cfg.PollInterval != 2500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.PolymarketSource != SourceStream {
		t.Errorf("PolymarketSource = %q", cfg.PolymarketSource)
	}
	if cfg.SettingsPath != path {
		t.Errorf("SettingsPath = %q", cfg.SettingsPath)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"unparseable threshold", map[string]string{"WHALE_THRESHOLD_USD": "lots"}, "WHALE_THRESHOLD_USD"},
		{"negative threshold", map[string]string{"WHALE_THRESHOLD_USD": "-1"}, "must not be negative"},
		{"zero interval", map[string]string{"WHALE_POLL_INTERVAL_SECONDS": "0"}, "WHALE_POLL_INTERVAL_SECONDS"},
		{"bad source", map[string]string{"POLYMARKET_SOURCE": "carrier-pigeon"}, "POLYMARKET_SOURCE"},
		{"bad sound", map[string]string{"ALERT_SOUND": "loud"}, "ALERT_SOUND"},
		{"bad bool", map[string]string{"ENABLE_TUI": "maybe"}, "ENABLE_TUI"},
		{"key path without id", map[string]string{"KALSHI_PRIVATE_KEY_PATH": "/tmp/k.pem"}, "KALSHI_API_KEY_ID"},
		{"backoff max below initial", map[string]string{"BACKOFF_INITIAL_SECONDS": "10", "BACKOFF_MAX_SECONDS": "5"}, "BACKOFF_MAX_SECONDS"},
		{"webhook not http", map[string]string{"WEBHOOK_URL": "ftp://example.com"}, "WEBHOOK_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error %T is not a *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_MalformedSettingsFile(t *testing.T) {
	path := isolate(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if cfgErr.Path != path {
		t.Errorf("Path = %q, want %q", cfgErr.Path, path)
	}
}

func TestSettings_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.json")
	want := Settings{KalshiAPIKeyID: "abc", KalshiPrivateKeyPath: "/keys/kalshi.pem"}

	if err := SaveSettings(path, want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	got, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	missing, err := LoadSettings(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil || missing != (Settings{}) {
		t.Errorf("missing file: %+v, %v", missing, err)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := map[string]string{
		"":                    "(not set)",
		"short":               "****",
		"abcd1234efgh5678":    "abcd****5678",
		"https://hooks/x/y/z": "http****/y/z",
	}
	for in, want := range tests {
		if got := maskSecret(in); got != want {
			t.Errorf("maskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}
