package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/whalewatcher/watcher/internal/model"
	"github.com/whalewatcher/watcher/internal/version"
)

// WebhookSender posts alerts as JSON to a generic webhook (n8n, Zapier, Make).
// When the endpoint rejects the JSON body it retries once as form data in the
// shape ntfy-compatible endpoints expect.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender creates a WebhookSender for url. A nil client gets a
// 10-second timeout.
func NewWebhookSender(url string, client *http.Client) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: defaultClient(client),
	}
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string {
	return "webhook"
}

type webhookActivity struct {
	TransactionsLastHour int         `json:"transactions_last_hour"`
	TransactionsLastDay  int         `json:"transactions_last_day"`
	TotalValueHour       json.Number `json:"total_value_hour"`
	TotalValueDay        json.Number `json:"total_value_day"`
	IsRepeatActor        bool        `json:"is_repeat_actor"`
	IsHeavyActor         bool        `json:"is_heavy_actor"`
}

type webhookPayload struct {
	AlertID        string           `json:"alert_id"`
	Platform       string           `json:"platform"`
	AlertType      string           `json:"alert_type"`
	Action         string           `json:"action"`
	Value          json.Number      `json:"value"`
	Price          json.Number      `json:"price"`
	PricePercent   json.Number      `json:"price_percent"`
	Size           json.Number      `json:"size"`
	Timestamp      string           `json:"timestamp"`
	MarketTitle    *string          `json:"market_title"`
	MarketID       string           `json:"market_id"`
	Outcome        *string          `json:"outcome"`
	Position       *string          `json:"position,omitempty"`
	WalletID       *string          `json:"wallet_id"`
	WalletActivity *webhookActivity `json:"wallet_activity"`
	Anomalies      []string         `json:"anomalies,omitempty"`
}

func newWebhookPayload(a model.Alert) webhookPayload {
	t := a.Trade
	ts := t.ExecutedAt
	if ts.IsZero() {
		ts = t.ObservedAt
	}

	p := webhookPayload{
		AlertID:      a.ID,
		Platform:     t.Venue.DisplayName(),
		AlertType:    a.Type(),
		Action:       string(t.Side),
		Value:        json.Number(t.NotionalUSD.StringFixed(2)),
		Price:        json.Number(t.Price.StringFixed(4)),
		PricePercent: json.Number(t.Price.Shift(2).StringFixed(1)),
		Size:         json.Number(t.Size.String()),
		Timestamp:    ts.UTC().Format(time.RFC3339),
		MarketID:     t.MarketID,
		MarketTitle:  optional(t.MarketTitle),
		Outcome:      optional(t.Outcome),
		Position:     optional(t.Position()),
		WalletID:     optional(t.Wallet),
		Anomalies:    a.Anomalies,
	}
	if act := a.Activity; act != nil {
		p.WalletActivity = &webhookActivity{
			TransactionsLastHour: act.TxLastHour,
			TransactionsLastDay:  act.TxLastDay,
			TotalValueHour:       json.Number(act.ValueLastHour.StringFixed(2)),
			TotalValueDay:        json.Number(act.ValueLastDay.StringFixed(2)),
			IsRepeatActor:        act.RepeatActor,
			IsHeavyActor:         act.HeavyActor,
		}
	}
	return p
}

// Send posts the alert as JSON, falling back to form data on a non-2xx status.
func (w *WebhookSender) Send(ctx context.Context, a model.Alert) error {
	body, err := json.Marshal(newWebhookPayload(a))
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	jsonErr := w.post(ctx, "application/json", body)
	if jsonErr == nil {
		return nil
	}
	if !isStatusError(jsonErr) {
		return jsonErr
	}

	if err := w.post(ctx, "application/x-www-form-urlencoded", []byte(formValues(a).Encode())); err != nil {
		return fmt.Errorf("%w (form fallback: %v)", jsonErr, err)
	}
	return nil
}

func formValues(a model.Alert) url.Values {
	priority := "default"
	if a.Trade.Side == model.SideSell {
		priority = "high"
	}
	return url.Values{
		"topic":    {DefaultTopic},
		"title":    {Title(a)},
		"message":  {Message(a)},
		"tags":     {strings.Join(Tags(a), ",")},
		"priority": {priority},
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook: unexpected status %d: %s", e.code, e.body)
}

func isStatusError(err error) bool {
	_, ok := err.(*statusError)
	return ok
}

func (w *WebhookSender) post(ctx context.Context, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, body: string(respBody)}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
