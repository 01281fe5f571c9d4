// Package coordinator debounces full-table reloads and keeps at most one in flight.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
)

// Fetcher performs a full-table fetch.
type Fetcher interface {
	FetchTable(ctx context.Context, filters models.Filters) (*models.TablePage, error)
}

// State is the coordinator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateFetching
)

func (s State) String() string {
	switch s {
	case StateDebouncing:
		return "debouncing"
	case StateFetching:
		return "fetching"
	default:
		return "idle"
	}
}

// Result is the outcome of one reload. Token identifies the trigger that
// produced it.
type Result struct {
	Token    uint64
	Filters  models.Filters
	Page     *models.TablePage
	Err      error
	Duration time.Duration
}

// Coordinator turns reload triggers into fetches. Every trigger bumps a
// generation counter; a fetch whose generation is no longer current is
// canceled and its result never reaches the deliver callback.
type Coordinator struct {
	fetcher Fetcher
	delay   time.Duration
	deliver func(Result)
	logger  zerolog.Logger

	base     context.Context
	stopBase context.CancelFunc

	mu     sync.Mutex
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	state  State
	closed bool
	wg     sync.WaitGroup
}

// New creates a coordinator. deliver is called from the fetching goroutine
// and must not block for long.
func New(fetcher Fetcher, delay time.Duration, deliver func(Result), logger zerolog.Logger) *Coordinator {
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	base, stop := context.WithCancel(context.Background())
	return &Coordinator{
		fetcher:  fetcher,
		delay:    delay,
		deliver:  deliver,
		logger:   logging.WithComponent(logger, "coordinator"),
		base:     base,
		stopBase: stop,
	}
}

// TriggerReload schedules a fetch after the debounce delay. Calls within
// the delay collapse into one fetch using the latest filters.
func (c *Coordinator) TriggerReload(filters models.Filters) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.gen
	}

	c.gen++
	token := c.gen
	c.stopTimerLocked()
	c.state = StateDebouncing
	c.wg.Add(1)
	c.timer = time.AfterFunc(c.delay, func() {
		defer c.wg.Done()
		c.fire(token, filters)
	})
	return token
}

// ReloadNow starts a fetch immediately, superseding anything pending.
func (c *Coordinator) ReloadNow(filters models.Filters) uint64 {
	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return c.gen
	}
	c.gen++
	token := c.gen
	c.stopTimerLocked()
	c.state = StateFetching
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.fire(token, filters)
	}()
	return token
}

// CancelPending discards a pending debounce and cancels the in-flight fetch.
// Neither produces a Result.
func (c *Coordinator) CancelPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.stopTimerLocked()
	c.cancelInFlightLocked()
	c.state = StateIdle
}

// IsCurrent reports whether token belongs to the latest trigger.
func (c *Coordinator) IsCurrent(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return token == c.gen
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close cancels everything and waits for pending and in-flight fetches.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.CancelPending()
	c.stopBase()
	c.wg.Wait()
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		if c.timer.Stop() {
			c.wg.Done()
		}
		c.timer = nil
	}
}

func (c *Coordinator) cancelInFlightLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Coordinator) fire(token uint64, filters models.Filters) {
	c.mu.Lock()
	if token != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.cancelInFlightLocked()
	ctx, cancel := context.WithCancel(c.base)
	c.cancel = cancel
	c.state = StateFetching
	c.mu.Unlock()

	start := time.Now()
	page, err := c.fetcher.FetchTable(ctx, filters)
	elapsed := time.Since(start)

	c.mu.Lock()
	if token != c.gen || ctx.Err() != nil {
		c.mu.Unlock()
		cancel()
		c.logger.Debug().Uint64("token", token).Msg("Superseded reload discarded")
		return
	}
	c.state = StateIdle
	c.cancel = nil
	c.mu.Unlock()
	cancel()

	if err != nil && apperrors.IsCanceled(err) {
		return
	}
	rows := 0
	if page != nil {
		rows = len(page.Rows)
	}
	logging.LogReload(c.logger, token, rows, elapsed, err)
	c.deliver(Result{Token: token, Filters: filters, Page: page, Err: err, Duration: elapsed})
}
