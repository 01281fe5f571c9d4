// Package logging builds the zerolog logger shared by every component and
// holds the event helpers for reloads, merges, alerts and backend calls.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
	// ConsoleLevel raises the threshold for the console writer only. Empty
	// means Level.
	ConsoleLevel string
	Console      bool
	File         bool
	FilePath     string
	MaxSize      int // megabytes
	MaxBackups   int
	MaxAge       int // days
}

func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "stockwatch", "logs", "stockwatch.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
	}
}

// NewLogger creates a logger with the default configuration. It is used
// until the config file has been read.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

var levelLabels = map[string]string{
	"debug": color.CyanString("DBG"),
	"info":  color.GreenString("INF"),
	"warn":  color.YellowString("WRN"),
	"error": color.RedString("ERR"),
	"fatal": color.New(color.FgRed, color.Bold).Sprint("FTL"),
}

// NewLoggerWithConfig writes to stderr and a rotating file, each with its own
// level threshold.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	fileLevel := ParseLevel(cfg.Level)
	consoleLevel := fileLevel
	if cfg.ConsoleLevel != "" {
		consoleLevel = ParseLevel(cfg.ConsoleLevel)
	}

	var writers []io.Writer
	minLevel := zerolog.Disabled

	if cfg.Console {
		console := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			NoColor:    color.NoColor,
			TimeFormat: time.Kitchen,
			FormatLevel: func(i interface{}) string {
				if s, ok := i.(string); ok {
					if label, ok := levelLabels[s]; ok {
						return label
					}
					return strings.ToUpper(s)
				}
				return "???"
			},
		}
		writers = append(writers, &levelFilter{w: console, min: consoleLevel})
		minLevel = consoleLevel
	}

	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &levelFilter{
				w: &lumberjack.Logger{
					Filename:   cfg.FilePath,
					MaxSize:    cfg.MaxSize,
					MaxBackups: cfg.MaxBackups,
					MaxAge:     cfg.MaxAge,
					Compress:   true,
				},
				min: fileLevel,
			})
			if fileLevel < minLevel {
				minLevel = fileLevel
			}
		}
	}

	if len(writers) == 0 {
		return zerolog.Nop()
	}
	zerolog.SetGlobalLevel(minLevel)
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Logger()
}

// levelFilter drops events below min for a single writer.
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f *levelFilter) Write(p []byte) (int, error) { return f.w.Write(p) }

func (f *levelFilter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent tags the logger with the owning component.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// LogReload logs the outcome of a full table reload.
func LogReload(logger zerolog.Logger, token uint64, rows int, duration time.Duration, err error) {
	if err != nil {
		logger.Error().
			Str("event", "reload").
			Uint64("token", token).
			Dur("duration", duration).
			Err(err).
			Msg("Full reload failed")
		return
	}
	logger.Info().
		Str("event", "reload").
		Uint64("token", token).
		Int("rows", rows).
		Dur("duration", duration).
		Msg("Full reload applied")
}

// LogMerge logs a background merge cycle.
func LogMerge(logger zerolog.Logger, cycle uint64, tickers, updated int) {
	logger.Debug().
		Str("event", "merge").
		Uint64("cycle", cycle).
		Int("tickers", tickers).
		Int("updated", updated).
		Msg("Market data merged")
}

// LogAlert logs whether a price alert was delivered or suppressed as a repeat.
func LogAlert(logger zerolog.Logger, ticker, alertType, fingerprint string, price float64, delivered bool) {
	ev := logger.Debug()
	msg := "Alert suppressed"
	if delivered {
		ev = logger.Info()
		msg = "Alert delivered"
	}
	ev.Str("event", "alert").
		Str("ticker", ticker).
		Str("type", alertType).
		Str("fingerprint", fingerprint).
		Float64("price", price).
		Msg(msg)
}

// LogAPICall logs a backend API call; failures go out at warn.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	if err != nil {
		logger.Warn().
			Str("event", "api_call").
			Str("method", method).
			Str("endpoint", endpoint).
			Dur("duration", duration).
			Err(err).
			Msg("API call failed")
		return
	}
	logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration).
		Msg("API call completed")
}
