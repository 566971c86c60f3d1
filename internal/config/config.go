// Package config handles loading and validating configuration from environment
// variables and the persisted settings file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Polymarket trade sources.
const (
	SourceREST   = "rest"
	SourceStream = "stream"
)

// Config holds all configuration values for the whale watcher.
type Config struct {
	// Detection
	ThresholdUSD    decimal.Decimal
	PollInterval    time.Duration
	SeenSetCapacity int

	// Polymarket
	PolymarketDataAPIURL string
	PolymarketGammaURL   string
	PolymarketSource     string
	PolymarketStreamURL  string
	PolymarketTradeLimit int
	PolymarketCashFloor  decimal.Decimal // defaults to ThresholdUSD

	// cashFloorSet is true when POLYMARKET_CASH_FLOOR was given explicitly.
	cashFloorSet bool

	// Kalshi
	KalshiAPIURL         string
	KalshiAPIKeyID       string
	KalshiPrivateKeyPath string
	KalshiTradeLimit     int

	// Rate limiting and retries
	RequestsPerSecond float64
	FetchTimeout      time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	NetworkRetryDelay time.Duration

	// Alerting
	WebhookURL string
	NtfyURL    string
	AlertSound string

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
	LogFile  string

	// SettingsPath is the settings file the values were merged from.
	SettingsPath string
}

// ConfigError reports an unreadable settings file or an invalid value.
type ConfigError struct {
	Path string // settings file, or "" for environment and flags
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "invalid configuration: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid configuration in %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads configuration with fallback to a .env file and the settings file.
// Priority order: environment variables > .env file > settings file > defaults.
// Command-line flags are applied by the caller, which must call Validate again.
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	path := os.Getenv("WHALE_WATCHER_CONFIG")
	if path == "" {
		var err error
		if path, err = DefaultSettingsPath(); err != nil {
			return nil, &ConfigError{Err: err}
		}
	}

	settings, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}

	var env envReader
	threshold := env.getEnvDecimal("WHALE_THRESHOLD_USD", decimal.NewFromInt(25000))
	cfg := &Config{
		// Detection
		ThresholdUSD:    threshold,
		PollInterval:    env.getEnvSeconds("WHALE_POLL_INTERVAL_SECONDS", 5),
		SeenSetCapacity: env.getEnvInt("SEEN_SET_CAPACITY", 10000),

		// Polymarket
		PolymarketDataAPIURL: env.getEnv("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
		PolymarketGammaURL:   env.getEnv("POLYMARKET_GAMMA_URL", "https://gamma-api.polymarket.com"),
		PolymarketSource:     strings.ToLower(env.getEnv("POLYMARKET_SOURCE", SourceREST)),
		PolymarketStreamURL:  env.getEnv("POLYMARKET_STREAM_URL", "wss://ws-live-data.polymarket.com"),
		PolymarketTradeLimit: env.getEnvInt("POLYMARKET_TRADE_LIMIT", 100),
		PolymarketCashFloor:  env.getEnvDecimal("POLYMARKET_CASH_FLOOR", threshold),
		cashFloorSet:         strings.TrimSpace(os.Getenv("POLYMARKET_CASH_FLOOR")) != "",

		// Kalshi
		KalshiAPIURL:         env.getEnv("KALSHI_API_URL", "https://api.elections.kalshi.com/trade-api/v2"),
		KalshiAPIKeyID:       env.getEnv("KALSHI_API_KEY_ID", settings.KalshiAPIKeyID),
		KalshiPrivateKeyPath: env.getEnv("KALSHI_PRIVATE_KEY_PATH", settings.KalshiPrivateKeyPath),
		KalshiTradeLimit:     env.getEnvInt("KALSHI_TRADE_LIMIT", 100),

		// Rate limiting and retries
		RequestsPerSecond: env.getEnvFloat("REQUESTS_PER_SECOND", 5),
		FetchTimeout:      env.getEnvSeconds("FETCH_TIMEOUT_SECONDS", 10),
		BackoffInitial:    env.getEnvSeconds("BACKOFF_INITIAL_SECONDS", 1),
		BackoffMax:        env.getEnvSeconds("BACKOFF_MAX_SECONDS", 60),
		NetworkRetryDelay: env.getEnvSeconds("NETWORK_RETRY_DELAY_SECONDS", 2),

		// Alerting
		WebhookURL: env.getEnv("WEBHOOK_URL", settings.WebhookURL),
		NtfyURL:    env.getEnv("NTFY_URL", settings.NtfyURL),
		AlertSound: strings.ToLower(env.getEnv("ALERT_SOUND", "auto")),

		// UI
		EnableTUI:     env.getEnvBool("ENABLE_TUI", false),
		UIRefreshRate: time.Duration(env.getEnvInt("UI_REFRESH_MS", 500)) * time.Millisecond,

		// Logging
		LogLevel: env.getEnv("LOG_LEVEL", "INFO"),
		LogFile:  env.getEnv("LOG_FILE", ""),

		SettingsPath: path,
	}

	if len(env.errs) > 0 {
		return nil, &ConfigError{Err: errors.Join(env.errs...)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are set and valid.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(!c.ThresholdUSD.IsNegative(), "WHALE_THRESHOLD_USD must not be negative")
	check(c.PollInterval > 0, "WHALE_POLL_INTERVAL_SECONDS must be positive")
	check(c.SeenSetCapacity > 0, "SEEN_SET_CAPACITY must be positive")

	check(c.PolymarketSource == SourceREST || c.PolymarketSource == SourceStream,
		"POLYMARKET_SOURCE must be %q or %q", SourceREST, SourceStream)
	check(c.PolymarketTradeLimit > 0, "POLYMARKET_TRADE_LIMIT must be positive")
	check(!c.PolymarketCashFloor.IsNegative(), "POLYMARKET_CASH_FLOOR must not be negative")
	check(c.KalshiTradeLimit > 0, "KALSHI_TRADE_LIMIT must be positive")
	check(c.KalshiPrivateKeyPath == "" || c.KalshiAPIKeyID != "",
		"KALSHI_PRIVATE_KEY_PATH requires KALSHI_API_KEY_ID")

	check(c.RequestsPerSecond >= 0, "REQUESTS_PER_SECOND must not be negative")
	check(c.FetchTimeout > 0, "FETCH_TIMEOUT_SECONDS must be positive")
	check(c.BackoffInitial > 0, "BACKOFF_INITIAL_SECONDS must be positive")
	check(c.BackoffMax >= c.BackoffInitial, "BACKOFF_MAX_SECONDS must be at least BACKOFF_INITIAL_SECONDS")
	check(c.NetworkRetryDelay >= 0, "NETWORK_RETRY_DELAY_SECONDS must not be negative")

	switch c.AlertSound {
	case "auto", "bell", "none":
	default:
		errs = append(errs, fmt.Errorf("ALERT_SOUND must be auto, bell or none"))
	}

	for key, raw := range map[string]string{
		"POLYMARKET_DATA_API_URL": c.PolymarketDataAPIURL,
		"POLYMARKET_GAMMA_URL":    c.PolymarketGammaURL,
		"KALSHI_API_URL":          c.KalshiAPIURL,
	} {
		if err := checkHTTPURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if c.WebhookURL != "" {
		if err := checkHTTPURL(c.WebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("WEBHOOK_URL: %w", err))
		}
	}

	if len(errs) > 0 {
		return &ConfigError{Err: errors.Join(errs...)}
	}
	return nil
}

// SetThreshold changes the whale threshold. The Polymarket cash floor follows
// it unless POLYMARKET_CASH_FLOOR was set explicitly.
func (c *Config) SetThreshold(d decimal.Decimal) {
	c.ThresholdUSD = d
	if !c.cashFloorSet {
		c.PolymarketCashFloor = d
	}
}

// KalshiAuthenticated reports whether Kalshi requests will be signed.
func (c *Config) KalshiAuthenticated() bool {
	return c.KalshiAPIKeyID != "" && c.KalshiPrivateKeyPath != ""
}

// MaskedKalshiKeyID returns the key id with most characters hidden for logging.
func (c *Config) MaskedKalshiKeyID() string {
	return maskSecret(c.KalshiAPIKeyID)
}

// MaskedWebhook returns the webhook URL with most characters hidden for logging.
func (c *Config) MaskedWebhook() string {
	return maskSecret(c.WebhookURL)
}

// MaskedNtfy returns the ntfy URL with most characters hidden for logging.
func (c *Config) MaskedNtfy() string {
	return maskSecret(c.NtfyURL)
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// envReader reads typed environment variables and collects parse errors.
type envReader struct {
	errs []error
}

// getEnv retrieves an environment variable or returns a default value.
func (r *envReader) getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func (r *envReader) getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intVal, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, value))
			return defaultValue
		}
		return intVal
	}
	return defaultValue
}

func (r *envReader) getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		floatVal, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %q is not a number", key, value))
			return defaultValue
		}
		return floatVal
	}
	return defaultValue
}

func (r *envReader) getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %q is not a number", key, value))
			return defaultValue
		}
		return d
	}
	return defaultValue
}

// getEnvSeconds reads a possibly fractional number of seconds.
func (r *envReader) getEnvSeconds(key string, defaultValue float64) time.Duration {
	return time.Duration(r.getEnvFloat(key, defaultValue) * float64(time.Second))
}

func (r *envReader) getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, value))
			return defaultValue
		}
		return boolVal
	}
	return defaultValue
}
