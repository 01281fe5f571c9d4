// Package config provides configuration management for the dashboard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/ranking"
)

// Config holds all application configuration.
type Config struct {
	Backend       BackendConfig      `mapstructure:"backend"`
	Dashboard     DashboardConfig    `mapstructure:"dashboard"`
	Server        ServerConfig       `mapstructure:"server"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Store         StoreConfig        `mapstructure:"store"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Views         []View             `mapstructure:"-"` // Loaded from views.yaml

	dir string
}

// BackendConfig describes the market-data REST API.
type BackendConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Token            string        `mapstructure:"token"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// DashboardConfig holds the table engine settings.
type DashboardConfig struct {
	Debounce          time.Duration `mapstructure:"debounce"`
	SortColumn        string        `mapstructure:"sort_column"`
	SortDirection     string        `mapstructure:"sort_direction"`
	RefreshInterval   string        `mapstructure:"refresh_interval"`
	AutoRefresh       bool          `mapstructure:"auto_refresh"`
	Timezone          string        `mapstructure:"timezone"`
	ExtendedHoursFrom int           `mapstructure:"extended_hours_from"`
	SessionCheck      time.Duration `mapstructure:"session_check"`
	AlertInterval     time.Duration `mapstructure:"alert_interval"`
	MergeWarnAfter    int           `mapstructure:"merge_warn_after"`
}

// ServerConfig holds the HTTP/websocket listener settings.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Console  bool           `mapstructure:"console"`
	Bell     bool           `mapstructure:"bell"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// StoreConfig holds the alert journal settings.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig mirrors logging.LogConfig in the config file.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Intervals accepted for refresh_interval.
var Intervals = []string{"1M", "5M", "15M", "1H"}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/stockwatch"
	}
	return filepath.Join(home, ".config", "stockwatch")
}

// Dir returns the directory the configuration was loaded from.
func (c *Config) Dir() string {
	return c.dir
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A missing .env is normal.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	cfg := &Config{dir: configDir}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	views, err := LoadViews(filepath.Join(configDir, "views.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading views.yaml: %w", err)
	}
	cfg.Views = views

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.retry_attempts", 3)
	v.SetDefault("backend.failure_threshold", 5)
	v.SetDefault("backend.breaker_cooldown", 30*time.Second)

	v.SetDefault("dashboard.debounce", 300*time.Millisecond)
	v.SetDefault("dashboard.sort_column", "1D_percentage")
	v.SetDefault("dashboard.sort_direction", "desc")
	v.SetDefault("dashboard.refresh_interval", "1M")
	v.SetDefault("dashboard.auto_refresh", false)
	v.SetDefault("dashboard.timezone", "America/New_York")
	v.SetDefault("dashboard.extended_hours_from", 16)
	v.SetDefault("dashboard.session_check", 30*time.Second)
	v.SetDefault("dashboard.alert_interval", 5*time.Minute)
	v.SetDefault("dashboard.merge_warn_after", 3)

	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.ping_interval", 45*time.Second)
	v.SetDefault("server.send_buffer", 16)

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.console", true)
	v.SetDefault("notifications.bell", false)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "")

	def := logging.DefaultLogConfig()
	v.SetDefault("logging.level", def.Level)
	v.SetDefault("logging.console", def.Console)
	v.SetDefault("logging.file", def.File)
	v.SetDefault("logging.path", def.FilePath)
	v.SetDefault("logging.max_size", def.MaxSize)
	v.SetDefault("logging.max_backups", def.MaxBackups)
	v.SetDefault("logging.max_age", def.MaxAge)
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, create template and continue on defaults
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	if err := v.Unmarshal(target); err != nil {
		return err
	}
	if target.Store.Path == "" {
		target.Store.Path = filepath.Join(configDir, "alerts.db")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STOCKWATCH_API_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("STOCKWATCH_API_TOKEN"); v != "" {
		cfg.Backend.Token = v
	}
	if v := os.Getenv("STOCKWATCH_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("STOCKWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STOCKWATCH_TELEGRAM_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return apperrors.NewValidationError("backend.base_url", c.Backend.BaseURL, "must not be empty")
	}
	if c.Backend.Timeout <= 0 {
		return apperrors.NewValidationError("backend.timeout", c.Backend.Timeout, "must be positive")
	}
	if c.Backend.RetryAttempts < 1 {
		return apperrors.NewValidationError("backend.retry_attempts", c.Backend.RetryAttempts, "must be at least 1")
	}
	if c.Dashboard.Debounce <= 0 {
		return apperrors.NewValidationError("dashboard.debounce", c.Dashboard.Debounce, "must be positive")
	}
	if !validInterval(c.Dashboard.RefreshInterval) {
		return apperrors.NewValidationError("dashboard.refresh_interval", c.Dashboard.RefreshInterval,
			"must be one of "+strings.Join(Intervals, ", "))
	}
	if _, ok := ranking.Standard().Lookup(c.Dashboard.SortColumn); !ok {
		return apperrors.NewValidationError("dashboard.sort_column", c.Dashboard.SortColumn, "unknown column")
	}
	switch strings.ToLower(c.Dashboard.SortDirection) {
	case "asc", "desc":
	default:
		return apperrors.NewValidationError("dashboard.sort_direction", c.Dashboard.SortDirection, "must be asc or desc")
	}
	if c.Dashboard.ExtendedHoursFrom < 0 || c.Dashboard.ExtendedHoursFrom > 23 {
		return apperrors.NewValidationError("dashboard.extended_hours_from", c.Dashboard.ExtendedHoursFrom, "must be an hour 0-23")
	}
	if c.Dashboard.AlertInterval <= 0 {
		return apperrors.NewValidationError("dashboard.alert_interval", c.Dashboard.AlertInterval, "must be positive")
	}
	for _, view := range c.Views {
		if err := view.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validInterval(s string) bool {
	for _, iv := range Intervals {
		if strings.EqualFold(s, iv) {
			return true
		}
	}
	return false
}

// LogConfig converts the logging section for the logging package.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.Path,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}

// View returns the named preset.
func (c *Config) View(name string) (View, bool) {
	for _, v := range c.Views {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return View{}, false
}
