package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
)

// DeltaFetcher fetches partial updates for an explicit ticker list.
type DeltaFetcher interface {
	FetchDeltas(ctx context.Context, tickers []string) (map[string]models.TickerDelta, error)
}

// Batch is one polling cycle's outcome. A Pending batch announces that the
// cycle's fetch has started and carries no deltas.
type Batch struct {
	Handle              uint64
	Cycle               uint64
	Pending             bool
	RequestedAt         time.Time
	Deltas              map[string]models.TickerDelta
	Err                 error
	ConsecutiveFailures int
	Duration            time.Duration
}

// Handle identifies one polling run. It is released by Poller.Stop.
type Handle struct {
	id       uint64
	tickers  []string
	interval Interval
	cancel   context.CancelFunc
	done     chan struct{}
}

// ID returns the run identifier stamped on every batch.
func (h *Handle) ID() uint64 { return h.id }

// Interval returns the cadence of the run.
func (h *Handle) Interval() Interval { return h.interval }

// Tickers returns a copy of the tracked ticker set.
func (h *Handle) Tickers() []string { return append([]string(nil), h.tickers...) }

// Done is closed once the run's goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Poller runs at most one polling loop at a time. Each loop fetches
// immediately, then once per interval, and hands every result to out.
// The next timer is armed only after the previous batch was accepted, so
// cycles never overlap.
type Poller struct {
	fetcher DeltaFetcher
	out     chan<- Batch
	logger  zerolog.Logger
	period  func(Interval) time.Duration

	mu     sync.Mutex
	nextID uint64
	active *Handle
}

// NewPoller creates a poller delivering batches on out.
func NewPoller(fetcher DeltaFetcher, out chan<- Batch, logger zerolog.Logger) *Poller {
	return &Poller{
		fetcher: fetcher,
		out:     out,
		logger:  logging.WithComponent(logger, "poller"),
		period:  Interval.Duration,
	}
}

// Start begins polling tickers at the given interval, replacing any active
// run. It returns ErrNoTickers for an empty set.
func (p *Poller) Start(ctx context.Context, tickers []string, iv Interval) (*Handle, error) {
	if len(tickers) == 0 {
		return nil, apperrors.ErrNoTickers
	}
	p.mu.Lock()
	prev := p.active
	p.active = nil
	p.mu.Unlock()
	p.release(prev)

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.nextID++
	h := &Handle{
		id:       p.nextID,
		tickers:  append([]string(nil), tickers...),
		interval: iv,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	p.active = h
	p.mu.Unlock()

	p.logger.Info().Uint64("handle", h.id).Int("tickers", len(tickers)).Str("interval", string(iv)).Msg("Polling started")
	go p.run(runCtx, h)
	return h, nil
}

// Stop releases h and waits for its loop to exit. Stopping a handle that is
// no longer active is a no-op.
func (p *Poller) Stop(h *Handle) {
	if h == nil {
		return
	}
	p.mu.Lock()
	if p.active == h {
		p.active = nil
	}
	p.mu.Unlock()
	p.release(h)
}

// SetInterval restarts the active run with a new cadence and the same
// tickers. It returns nil when nothing is polling.
func (p *Poller) SetInterval(ctx context.Context, iv Interval) (*Handle, error) {
	p.mu.Lock()
	cur := p.active
	p.mu.Unlock()
	if cur == nil {
		return nil, nil
	}
	return p.Start(ctx, cur.tickers, iv)
}

// Active returns the running handle or nil.
func (p *Poller) Active() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Close stops the active run.
func (p *Poller) Close() {
	p.Stop(p.Active())
}

func (p *Poller) release(h *Handle) {
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
	p.logger.Info().Uint64("handle", h.id).Msg("Polling stopped")
}

func (p *Poller) run(ctx context.Context, h *Handle) {
	defer close(h.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	var cycle uint64
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		cycle++
		requested := time.Now()
		if !p.send(ctx, Batch{Handle: h.id, Cycle: cycle, Pending: true, RequestedAt: requested}) {
			return
		}

		deltas, err := p.fetcher.FetchDeltas(ctx, h.tickers)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			p.logger.Warn().Err(err).Uint64("cycle", cycle).Int("consecutive_failures", failures).Msg("Merge fetch failed")
		} else {
			failures = 0
		}

		b := Batch{
			Handle:              h.id,
			Cycle:               cycle,
			RequestedAt:         requested,
			Deltas:              deltas,
			Err:                 err,
			ConsecutiveFailures: failures,
			Duration:            time.Since(requested),
		}
		if !p.send(ctx, b) {
			return
		}
		timer.Reset(p.period(h.interval))
	}
}

func (p *Poller) send(ctx context.Context, b Batch) bool {
	select {
	case p.out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}
