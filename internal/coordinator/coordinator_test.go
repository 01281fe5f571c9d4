package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"stockwatch/internal/models"
)

// fakeFetcher returns one row named after the ticker filter. Tickers listed
// in hold block until released, ignoring cancellation, to model a slow
// response that arrives after it was superseded.
type fakeFetcher struct {
	mu    sync.Mutex
	calls []models.Filters
	hold  map[string]chan struct{}
	fail  map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{hold: map[string]chan struct{}{}, fail: map[string]error{}}
}

func (f *fakeFetcher) FetchTable(ctx context.Context, filters models.Filters) (*models.TablePage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filters)
	ch := f.hold[filters.Ticker]
	err := f.fail[filters.Ticker]
	f.mu.Unlock()

	if ch != nil {
		<-ch
	}
	if err != nil {
		return nil, err
	}
	return &models.TablePage{Rows: []*models.TickerRecord{{Ticker: filters.Ticker}}, Total: 1}, nil
}

func (f *fakeFetcher) Calls() []models.Filters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Filters(nil), f.calls...)
}

type sink struct {
	mu      sync.Mutex
	results []Result
	ch      chan Result
}

func newSink() *sink { return &sink{ch: make(chan Result, 16)} }

func (s *sink) deliver(r Result) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
	s.ch <- r
}

func (s *sink) wait(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-s.ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reload result")
		return Result{}
	}
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func TestBurstCollapsesToOneFetchWithLatestFilters(t *testing.T) {
	f := newFakeFetcher()
	s := newSink()
	c := New(f, 30*time.Millisecond, s.deliver, zerolog.Nop())
	defer c.Close()

	for _, tk := range []string{"A", "AA", "AAP", "AAPL"} {
		c.TriggerReload(models.Filters{Ticker: tk})
		time.Sleep(5 * time.Millisecond)
	}
	if c.State() != StateDebouncing {
		t.Errorf("State() = %s, want debouncing", c.State())
	}

	r := s.wait(t)
	if r.Err != nil || r.Page.Rows[0].Ticker != "AAPL" {
		t.Fatalf("result = %+v", r)
	}
	time.Sleep(60 * time.Millisecond)
	if calls := f.Calls(); len(calls) != 1 || calls[0].Ticker != "AAPL" {
		t.Errorf("calls = %+v, want one fetch for AAPL", calls)
	}
	if c.State() != StateIdle {
		t.Errorf("State() = %s, want idle", c.State())
	}
	if !c.IsCurrent(r.Token) {
		t.Error("delivered token is not current")
	}
}

func TestSupersededSlowFetchNeverDelivers(t *testing.T) {
	f := newFakeFetcher()
	release := make(chan struct{})
	f.hold["SLOW"] = release
	s := newSink()
	c := New(f, 10*time.Millisecond, s.deliver, zerolog.Nop())
	defer c.Close()

	c.ReloadNow(models.Filters{Ticker: "SLOW"})
	time.Sleep(30 * time.Millisecond)
	if c.State() != StateFetching {
		t.Fatalf("State() = %s, want fetching", c.State())
	}

	c.ReloadNow(models.Filters{Ticker: "FAST"})
	r := s.wait(t)
	if r.Page.Rows[0].Ticker != "FAST" {
		t.Fatalf("first result = %s, want FAST", r.Page.Rows[0].Ticker)
	}

	close(release)
	time.Sleep(50 * time.Millisecond)
	if n := s.count(); n != 1 {
		t.Errorf("delivered %d results, want 1 (stale SLOW must be dropped)", n)
	}
}

func TestTriggerDuringFetchRestartsDebounce(t *testing.T) {
	f := newFakeFetcher()
	release := make(chan struct{})
	f.hold["OLD"] = release
	s := newSink()
	c := New(f, 20*time.Millisecond, s.deliver, zerolog.Nop())
	defer c.Close()

	c.TriggerReload(models.Filters{Ticker: "OLD"})
	time.Sleep(50 * time.Millisecond)
	c.TriggerReload(models.Filters{Ticker: "NEW"})
	if c.State() != StateDebouncing {
		t.Errorf("State() = %s, want debouncing", c.State())
	}

	r := s.wait(t)
	close(release)
	if r.Page.Rows[0].Ticker != "NEW" {
		t.Errorf("result = %s, want NEW", r.Page.Rows[0].Ticker)
	}
	time.Sleep(30 * time.Millisecond)
	if s.count() != 1 {
		t.Errorf("delivered %d results", s.count())
	}
}

func TestReloadNowReportsFetchingImmediately(t *testing.T) {
	f := newFakeFetcher()
	release := make(chan struct{})
	f.hold["NOW"] = release
	s := newSink()
	c := New(f, time.Hour, s.deliver, zerolog.Nop())
	defer c.Close()

	c.TriggerReload(models.Filters{Ticker: "LATER"})
	if c.State() != StateDebouncing {
		t.Fatalf("State() = %s, want debouncing", c.State())
	}
	token := c.ReloadNow(models.Filters{Ticker: "NOW"})
	if c.State() != StateFetching {
		t.Errorf("State() = %s right after ReloadNow, want fetching", c.State())
	}

	close(release)
	r := s.wait(t)
	if r.Token != token || r.Page.Rows[0].Ticker != "NOW" {
		t.Errorf("result = %+v", r)
	}
	if c.State() != StateIdle {
		t.Errorf("State() = %s after delivery, want idle", c.State())
	}
	if calls := f.Calls(); len(calls) != 1 {
		t.Errorf("fetched %d times; the debounced trigger should have been superseded", len(calls))
	}
}

func TestCancelPendingDiscardsDebounce(t *testing.T) {
	f := newFakeFetcher()
	s := newSink()
	c := New(f, 20*time.Millisecond, s.deliver, zerolog.Nop())
	defer c.Close()

	c.TriggerReload(models.Filters{Ticker: "X"})
	c.CancelPending()
	time.Sleep(60 * time.Millisecond)

	if len(f.Calls()) != 0 || s.count() != 0 {
		t.Errorf("calls=%d results=%d after CancelPending", len(f.Calls()), s.count())
	}
	if c.State() != StateIdle {
		t.Errorf("State() = %s", c.State())
	}
}

func TestCancelPendingCancelsInFlightContext(t *testing.T) {
	started := make(chan struct{})
	done := make(chan error, 1)
	fetcher := fetchFunc(func(ctx context.Context, _ models.Filters) (*models.TablePage, error) {
		close(started)
		<-ctx.Done()
		done <- ctx.Err()
		return nil, ctx.Err()
	})
	s := newSink()
	c := New(fetcher, time.Millisecond, s.deliver, zerolog.Nop())
	defer c.Close()

	c.ReloadNow(models.DefaultFilters())
	<-started
	c.CancelPending()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ctx err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight fetch was not canceled")
	}
	time.Sleep(20 * time.Millisecond)
	if s.count() != 0 {
		t.Error("canceled fetch delivered a result")
	}
}

func TestErrorIsDelivered(t *testing.T) {
	f := newFakeFetcher()
	f.fail["BAD"] = errors.New("api error [fetch_table] 503")
	s := newSink()
	c := New(f, time.Millisecond, s.deliver, zerolog.Nop())
	defer c.Close()

	c.ReloadNow(models.Filters{Ticker: "BAD"})
	r := s.wait(t)
	if r.Err == nil || r.Page != nil {
		t.Errorf("result = %+v, want error", r)
	}
}

func TestCloseStopsScheduling(t *testing.T) {
	f := newFakeFetcher()
	s := newSink()
	c := New(f, 10*time.Millisecond, s.deliver, zerolog.Nop())
	c.TriggerReload(models.Filters{Ticker: "X"})
	c.Close()
	c.TriggerReload(models.Filters{Ticker: "Y"})
	c.ReloadNow(models.Filters{Ticker: "Z"})
	time.Sleep(40 * time.Millisecond)
	if len(f.Calls()) != 0 {
		t.Errorf("calls after Close = %+v", f.Calls())
	}
}

type fetchFunc func(ctx context.Context, f models.Filters) (*models.TablePage, error)

func (fn fetchFunc) FetchTable(ctx context.Context, f models.Filters) (*models.TablePage, error) {
	return fn(ctx, f)
}

// Property 5: Debounced bursts issue exactly one fetch
//
// For any burst of n rapid TriggerReload calls inside the debounce window,
// exactly one fetch is issued and it uses the filters of the last call.
func TestProperty5_BurstIssuesOneFetch(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("one fetch per burst", prop.ForAll(
		func(n int) bool {
			f := newFakeFetcher()
			s := newSink()
			c := New(f, 25*time.Millisecond, s.deliver, zerolog.Nop())
			defer c.Close()

			for i := 0; i < n; i++ {
				c.TriggerReload(models.Filters{Ticker: fmt.Sprintf("T%d", i)})
			}
			select {
			case <-s.ch:
			case <-time.After(time.Second):
				return false
			}
			calls := f.Calls()
			return len(calls) == 1 && calls[0].Ticker == fmt.Sprintf("T%d", n-1)
		},
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}
