// Package notify delivers whale alerts to external channels. Alerts are
// dispatched to every registered sender (webhook, ntfy); one failing sender
// does not prevent delivery to the others.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/whalewatcher/watcher/internal/model"
)

// DefaultTimeout is the HTTP timeout used by senders without a custom client.
const DefaultTimeout = 10 * time.Second

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers one alert.
	Send(ctx context.Context, alert model.Alert) error
	// Name returns a short identifier for the sender (e.g. "ntfy").
	Name() string
}

// Notifier fans an alert out to its senders.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to senders. Nil senders are skipped.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{logger: logger.With("component", "notifier")}
	for _, s := range senders {
		if s != nil {
			n.senders = append(n.senders, s)
		}
	}
	return n
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Names lists the configured senders.
func (n *Notifier) Names() []string {
	names := make([]string, 0, len(n.senders))
	for _, s := range n.senders {
		names = append(names, s.Name())
	}
	return names
}

// Notify sends alert to every sender and returns a combined error listing the
// senders that failed.
func (n *Notifier) Notify(ctx context.Context, alert model.Alert) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.Error("sender_failed",
				"sender", s.Name(),
				"alert_id", alert.ID,
				"error", err,
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.Debug("notification_sent",
			"sender", s.Name(),
			"alert_id", alert.ID,
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: DefaultTimeout}
}
