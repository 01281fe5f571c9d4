package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/config"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.BackendConfig{
		BaseURL:          srv.URL,
		Token:            "tok",
		Timeout:          2 * time.Second,
		RetryAttempts:    3,
		FailureThreshold: 10,
	}, zerolog.Nop())
}

func TestFetchTableShapes(t *testing.T) {
	bodies := map[string]string{
		"results": `{"results":[{"ticker":"AAPL","price":"$190.00"},{"ticker":"MSFT","price":"$300.00"}],"total":42}`,
		"stocks":  `{"stocks":[{"ticker":"AAPL"},{"ticker":"MSFT"}],"total":"2"}`,
		"array":   `[{"ticker":"AAPL"},{"ticker":"MSFT"},{"ticker":""}]`,
	}
	wantTotal := map[string]int{"results": 42, "stocks": 2, "array": 2}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			page, err := c.FetchTable(context.Background(), models.DefaultFilters())
			if err != nil {
				t.Fatalf("FetchTable() error = %v", err)
			}
			if len(page.Rows) != 2 || page.Rows[0].Ticker != "AAPL" {
				t.Errorf("rows = %+v", page.Rows)
			}
			if page.Total != wantTotal[name] {
				t.Errorf("Total = %d, want %d", page.Total, wantTotal[name])
			}
		})
	}
}

func TestFetchTableSendsFiltersAndToken(t *testing.T) {
	var gotPath, gotAuth, gotLev, gotSector string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotLev = r.URL.Query().Get("leverage_filter")
		gotSector = r.URL.Query().Get("sector")
		_, _ = w.Write([]byte(`[]`))
	})
	f := models.Filters{Sector: "Energy", Leverage: models.LeverageLeverageOnly}
	if _, err := c.FetchTable(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	if gotPath != PathStockHistory || gotAuth != "Bearer tok" || gotLev != "true" || gotSector != "Energy" {
		t.Errorf("path=%q auth=%q lev=%q sector=%q", gotPath, gotAuth, gotLev, gotSector)
	}
}

func TestFetchTableErrorCarriesStatus(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"maintenance"}`))
	})
	_, err := c.FetchTable(context.Background(), models.DefaultFilters())

	var apiErr *apperrors.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not an APIError", err)
	}
	if apiErr.StatusCode != 503 || apiErr.Message != "maintenance" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("full reload was retried %d times", calls)
	}
}

func TestFetchTableCanceled(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.FetchTable(ctx, models.DefaultFilters())
	if !apperrors.IsCanceled(err) {
		t.Fatalf("err = %v, want a cancellation", err)
	}
	if c.Breaker().Stats().TotalFailures != 0 {
		t.Error("cancellation counted as a breaker failure")
	}
}

func TestFetchDeltasRetriesTransientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tickers") != "AAPL,MSFT" {
			t.Errorf("tickers = %q", r.URL.Query().Get("tickers"))
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"AAPL":{"price":"$195.00"}}`))
	})
	c.retry.InitialDelay = time.Millisecond

	deltas, err := c.FetchDeltas(context.Background(), []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("FetchDeltas() error = %v", err)
	}
	if d, ok := deltas["AAPL"]; !ok || d.Price != models.Text("$195.00") {
		t.Errorf("deltas = %+v", deltas)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestFetchDeltasDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})
	if _, err := c.FetchDeltas(context.Background(), []string{"X"}); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestFetchDeltasEmptyTickers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	d, err := c.FetchDeltas(context.Background(), nil)
	if err != nil || len(d) != 0 {
		t.Errorf("FetchDeltas(nil) = %v, %v", d, err)
	}
}

func TestFetchAlerts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathAlerts {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"alerts":[
			{"ticker":"aapl","type":"LOW","current_price":"99.995","threshold":100,"message":"AAPL below 100","timestamp":"2024-06-03T15:00:00Z"},
			{"ticker":"TSLA","type":"sideways","current_price":1},
			{"ticker":"NVDA","type":"high","current_price":120.5,"message":"NVDA above 120"}
		]}`))
	})
	alerts, err := c.FetchAlerts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 2 {
		t.Fatalf("len(alerts) = %d, want 2", len(alerts))
	}
	a := alerts[0]
	if a.Ticker != "AAPL" || a.Type != models.AlertLow || a.CurrentPrice != 99.995 || a.Timestamp.IsZero() {
		t.Errorf("alert = %+v", a)
	}
}

func TestUpdateTickerDataPaths(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		paths = append(paths, r.URL.Path)
	})
	if err := c.UpdateTickerData(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateTickerData(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || paths[0] != PathUpdate || paths[1] != PathForceUpdate {
		t.Errorf("paths = %v", paths)
	}
}

func TestBreakerOpensOnRepeatedServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := NewClient(config.BackendConfig{BaseURL: srv.URL, Timeout: time.Second, RetryAttempts: 1, FailureThreshold: 2, BreakerCooldown: time.Hour}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, _ = c.FetchTable(context.Background(), models.DefaultFilters())
	}
	_, err := c.FetchTable(context.Background(), models.DefaultFilters())
	if !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}
