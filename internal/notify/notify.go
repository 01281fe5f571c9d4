// Package notify delivers price alerts and decides which ones are new.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"stockwatch/internal/config"
	"stockwatch/internal/models"
)

// Notifier sends a notification to its destinations.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationChannel is one named destination inside a MultiNotifier.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification is the payload every channel receives.
type Notification struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type NotificationType string

const (
	NotificationAlert NotificationType = "alert"
	NotificationError NotificationType = "error"
	NotificationInfo  NotificationType = "info"
)

// AlertNotification builds the notification for a price alert. The backend
// message is the body; without one a ticker and price line is used.
func AlertNotification(a models.PriceAlert, fp Fingerprint) Notification {
	n := Notification{
		Type:      NotificationAlert,
		Title:     a.Title(),
		Message:   a.Message,
		Timestamp: a.Timestamp,
		Data: map[string]interface{}{
			"ticker":        a.Ticker,
			"type":          string(a.Type),
			"current_price": a.CurrentPrice,
			"fingerprint":   fp.String(),
		},
	}
	if n.Message == "" {
		n.Message = fmt.Sprintf("%s at $%.2f", a.Ticker, a.CurrentPrice)
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if a.Threshold != 0 {
		n.Data["threshold"] = a.Threshold
	}
	return n
}

// MultiNotifier fans a notification out to every enabled channel.
type MultiNotifier struct {
	mu       sync.RWMutex
	channels []NotificationChannel
}

// NewMultiNotifier creates a MultiNotifier with the channels enabled in cfg.
// Channels added later with AddChannel are used even when cfg is disabled.
func NewMultiNotifier(cfg config.NotificationConfig) *MultiNotifier {
	mn := &MultiNotifier{}
	if !cfg.Enabled {
		return mn
	}
	if cfg.Console {
		mn.channels = append(mn.channels, NewConsoleNotifier(nil, cfg.Bell))
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram))
	}
	return mn
}

func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the enabled channels.
func (mn *MultiNotifier) Channels() []string {
	var names []string
	for _, ch := range mn.enabled() {
		names = append(names, ch.Name())
	}
	return names
}

func (mn *MultiNotifier) enabled() []NotificationChannel {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	out := make([]NotificationChannel, 0, len(mn.channels))
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			out = append(out, ch)
		}
	}
	return out
}

// Send delivers n to all enabled channels concurrently. A failing channel
// does not stop the others; the returned error joins every failure.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	p := pool.New().WithErrors()
	for _, ch := range mn.enabled() {
		ch := ch
		p.Go(func() error {
			if err := ch.Send(ctx, n); err != nil {
				return fmt.Errorf("%s: %w", ch.Name(), err)
			}
			return nil
		})
	}
	return p.Wait()
}

// NoOpNotifier drops every notification.
type NoOpNotifier struct{}

func (NoOpNotifier) Send(context.Context, Notification) error { return nil }
