package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# StockWatch Configuration

[backend]
# Base URL of the market-data API
base_url = "http://localhost:8000"
# Auth token sent as a bearer header (or set STOCKWATCH_API_TOKEN)
token = ""
# Per-request timeout
timeout = "30s"
# Attempts for delta and alert fetches
retry_attempts = 3
# Consecutive failures before the circuit opens
failure_threshold = 5
breaker_cooldown = "30s"

[dashboard]
# Quiet period before a ticker filter edit reloads the table
debounce = "300ms"
# Default sort
sort_column = "1D_percentage"
sort_direction = "desc"
# Background refresh: 1M, 5M, 15M, 1H
refresh_interval = "1M"
auto_refresh = false
# Exchange time zone and the local hour extended hours begin
timezone = "America/New_York"
extended_hours_from = 16
session_check = "30s"
# Price alert poll
alert_interval = "5m"
# Warn after this many failed background refreshes in a row
merge_warn_after = 3

[server]
listen = "127.0.0.1:8080"
ping_interval = "45s"
send_buffer = 16

[notifications]
enabled = true
console = true
bell = false

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""

[store]
# Alert delivery journal (defaults to alerts.db next to this file)
enabled = true
path = ""

[logging]
level = "info"
console = true
file = true
`

const viewsTemplate = `# Named filter presets for "stockwatch watch --view NAME"
views:
  - name: tech
    sector: Technology
    leverage: Ticker Only
    sort: 1D_percentage
    order: desc
  - name: leveraged
    leverage: Leverage Only
    sort: today_change
    order: desc
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

// WriteViewsTemplate writes an example views.yaml unless one exists.
func WriteViewsTemplate(configDir string) (string, error) {
	path := filepath.Join(configDir, "views.yaml")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(viewsTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing views template: %w", err)
	}
	return path, nil
}
