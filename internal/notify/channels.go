package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/logging"
)

const _channelTimeout = 10 * time.Second

// postJSON sends v to url and treats any non-2xx answer as a failure.
func postJSON(ctx context.Context, client *http.Client, url string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "stockwatch")

	resp, err := client.Do(req)
	if err != nil {
		return logging.RedactError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// WebhookNotifier posts the notification as JSON to a URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	w := &WebhookNotifier{client: &http.Client{Timeout: _channelTimeout}}
	if cfg.Enabled {
		w.url = cfg.URL
	}
	return w
}

func (w *WebhookNotifier) Name() string { return "webhook" }

// IsEnabled is false without a URL.
func (w *WebhookNotifier) IsEnabled() bool { return w.url != "" }

func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.IsEnabled() {
		return nil
	}
	return postJSON(ctx, w.client, w.url, n)
}

// TelegramNotifier sends an HTML-formatted message through the bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	t := &TelegramNotifier{
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: _channelTimeout},
	}
	if cfg.Enabled {
		t.botToken, t.chatID = cfg.BotToken, cfg.ChatID
	}
	return t
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) IsEnabled() bool { return t.botToken != "" && t.chatID != "" }

func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.IsEnabled() {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("<b>" + html.EscapeString(n.Title) + "</b>\n\n")
	sb.WriteString(html.EscapeString(n.Message))
	if fp, ok := n.Data["fingerprint"].(string); ok {
		sb.WriteString("\n<code>" + html.EscapeString(fp) + "</code>")
	}
	return postJSON(ctx, t.client, t.baseURL+"/bot"+t.botToken+"/sendMessage", map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       sb.String(),
		"parse_mode": "HTML",
	})
}
