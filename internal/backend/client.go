// Package backend is the HTTP client for the market-data REST API.
package backend

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

	"github.com/rs/zerolog"

	"stockwatch/internal/config"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
	"stockwatch/internal/resilience"
	"stockwatch/pkg/utils"
)

// API paths.
const (
	PathStockHistory  = "/api/stock-history"
	PathMarketUpdates = "/api/market-data-updates"
	PathAlerts        = "/api/dashboard/alerts"
	PathUpdate        = "/api/update-ticker-data"
	PathForceUpdate   = "/api/force-update-ticker-data"
)

// Client talks to the market-data backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	retry   utils.RetryConfig
	logger  zerolog.Logger
}

// NewClient creates a client from the backend config section.
func NewClient(cfg config.BackendConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := utils.DefaultRetryConfig()
	if cfg.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.RetryAttempts
	}
	retry.Retryable = retryable

	bcfg := resilience.DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold > 0 {
		bcfg.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.BreakerCooldown > 0 {
		bcfg.Timeout = cfg.BreakerCooldown
	}
	bcfg.IsFailure = retryable

	log := logging.WithComponent(logger, "backend")
	bcfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		ev := log.Info()
		if to == resilience.CircuitOpen {
			ev = log.Warn()
		}
		ev.Str("breaker", name).Str("from", string(from)).Str("to", string(to)).Msg("Circuit breaker state changed")
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		breaker: resilience.NewCircuitBreaker("backend", bcfg),
		retry:   retry,
		logger:  log,
	}
}

// Breaker exposes the circuit breaker for status reporting.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// retryable reports whether err is a transient backend failure.
func retryable(err error) bool {
	if apperrors.IsCanceled(err) || apperrors.Is(err, apperrors.ErrCircuitOpen) {
		return false
	}
	var apiErr *apperrors.APIError
	if apperrors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var dataErr *apperrors.DataError
	return !apperrors.As(err, &dataErr)
}

// FetchTable performs a full reload with the given filters. It is not
// retried: a superseded reload is canceled, and a failed one is reported.
func (c *Client) FetchTable(ctx context.Context, filters models.Filters) (*models.TablePage, error) {
	var raw json.RawMessage
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.do(ctx, "fetch_table", http.MethodGet, PathStockHistory, filters.Params(), nil, &raw)
	})
	if err != nil {
		return nil, err
	}
	return decodeTable(raw)
}

// FetchDeltas requests partial updates for the given tickers.
func (c *Client) FetchDeltas(ctx context.Context, tickers []string) (map[string]models.TickerDelta, error) {
	if len(tickers) == 0 {
		return map[string]models.TickerDelta{}, nil
	}
	q := url.Values{}
	q.Set("tickers", strings.Join(tickers, ","))

	return utils.RetryWithResult(ctx, c.retry, func(ctx context.Context) (map[string]models.TickerDelta, error) {
		var raw json.RawMessage
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.do(ctx, "fetch_deltas", http.MethodGet, PathMarketUpdates, q, nil, &raw)
		})
		if err != nil {
			return nil, err
		}
		deltas, skipped, err := decodeDeltas(raw)
		if len(skipped) > 0 {
			c.logger.Warn().Strs("entries", skipped).Msg("Skipped malformed market update entries")
		}
		return deltas, err
	})
}

// FetchAlerts returns the currently raised price alerts.
func (c *Client) FetchAlerts(ctx context.Context) ([]models.PriceAlert, error) {
	return utils.RetryWithResult(ctx, c.retry, func(ctx context.Context) ([]models.PriceAlert, error) {
		var raw json.RawMessage
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.do(ctx, "fetch_alerts", http.MethodGet, PathAlerts, nil, nil, &raw)
		})
		if err != nil {
			return nil, err
		}
		return decodeAlerts(raw)
	})
}

// UpdateTickerData asks the backend to refresh its data. force bypasses the
// backend's own freshness check.
func (c *Client) UpdateTickerData(ctx context.Context, force bool) error {
	path := PathUpdate
	if force {
		path = PathForceUpdate
	}
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.do(ctx, "update_ticker_data", http.MethodPost, path, nil, struct{}{}, nil)
	})
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	start := time.Now()
	err := c.roundTrip(ctx, op, method, path, query, body, out)
	logging.LogAPICall(c.logger, method, path, time.Since(start), err)
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(err, "encoding request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return apperrors.NewAPIError(op, 0, "building request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return fmt.Errorf("%s: %w", op, apperrors.ErrRequestCanceled)
		}
		return apperrors.NewAPIError(op, 0, "backend unreachable", fmt.Errorf("%w: %v", apperrors.ErrBackendUnavailable, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		if ctx.Err() == context.Canceled {
			return fmt.Errorf("%s: %w", op, apperrors.ErrRequestCanceled)
		}
		return apperrors.NewAPIError(op, resp.StatusCode, "reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewAPIError(op, resp.StatusCode, errorMessage(data), nil)
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.NewDataError(op, "", "decoding response", err)
	}
	return nil
}

// errorMessage extracts a readable message from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
		Error   string      `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		switch {
		case body.Message != "":
			return logging.Redact(body.Message)
		case body.Error != "":
			return logging.Redact(body.Error)
		case body.Detail != nil:
			if s, ok := body.Detail.(string); ok {
				return s
			}
			b, _ := json.Marshal(body.Detail)
			return string(b)
		}
	}
	msg := logging.Redact(strings.TrimSpace(string(data)))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "no response body"
	}
	return msg
}
