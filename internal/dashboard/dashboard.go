// Package dashboard owns the ticker table. A single event-loop goroutine
// applies reload results, merge batches, session changes and user actions
// in arrival order and publishes an immutable snapshot after each one.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/config"
	"stockwatch/internal/coordinator"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/ranking"
	"stockwatch/internal/refresh"
	"stockwatch/internal/session"
)

// Backend is everything the dashboard needs from the market-data API.
type Backend interface {
	coordinator.Fetcher
	refresh.DeltaFetcher
	UpdateTickerData(ctx context.Context, force bool) error
}

// Publisher receives every snapshot the dashboard produces.
type Publisher interface {
	Publish(snap *models.Snapshot)
}

// Options configures the engine.
type Options struct {
	Debounce       time.Duration
	Sort           models.SortState
	Filters        models.Filters
	Interval       refresh.Interval
	AutoRefresh    bool
	SessionCheck   time.Duration
	MergeWarnAfter int
}

// DefaultOptions returns the built-in engine settings.
func DefaultOptions() Options {
	return Options{
		Debounce:       300 * time.Millisecond,
		Sort:           ranking.DefaultSort,
		Filters:        models.DefaultFilters(),
		Interval:       refresh.DefaultInterval,
		SessionCheck:   30 * time.Second,
		MergeWarnAfter: 3,
	}
}

// OptionsFromConfig maps the dashboard config section onto Options.
func OptionsFromConfig(cfg config.DashboardConfig) Options {
	opts := DefaultOptions()
	if cfg.Debounce > 0 {
		opts.Debounce = cfg.Debounce
	}
	if cfg.SortColumn != "" {
		opts.Sort = models.SortState{Column: cfg.SortColumn, Direction: models.SortDirection(strings.ToLower(cfg.SortDirection))}
		if opts.Sort.Direction != models.SortAsc {
			opts.Sort.Direction = models.SortDesc
		}
	}
	if iv, err := refresh.ParseInterval(cfg.RefreshInterval); err == nil {
		opts.Interval = iv
	}
	opts.AutoRefresh = cfg.AutoRefresh
	if cfg.SessionCheck > 0 {
		opts.SessionCheck = cfg.SessionCheck
	}
	if cfg.MergeWarnAfter > 0 {
		opts.MergeWarnAfter = cfg.MergeWarnAfter
	}
	return opts
}

type command struct {
	fn    func() error
	reply chan error
}

// Dashboard is the table engine. Create it with New, start it with Run,
// and drive it with the action methods from any goroutine.
type Dashboard struct {
	backend   Backend
	registry  *ranking.Registry
	clock     *session.Clock
	tracker   *session.Tracker
	coord     *coordinator.Coordinator
	poller    *refresh.Poller
	publisher Publisher
	alerts    *notify.DedupCache
	logger    zerolog.Logger
	opts      Options

	cmds    chan command
	reloads chan coordinator.Result
	batches chan refresh.Batch
	done    chan struct{}
	running atomic.Bool
	latest  atomic.Pointer[models.Snapshot]

	// Everything below is touched only by the event loop.
	ctx         context.Context
	rows        []*models.TickerRecord
	total       int
	filters     models.Filters
	sort        models.SortState
	sortPending string
	reloading   bool
	merging     bool
	interval    refresh.Interval
	handle      *refresh.Handle
	loaded      bool
	replacedAt  time.Time
	errBanner   *models.Banner
	warnBanner  *models.Banner
	extended    bool
	phase       session.Phase
	seq         uint64
}

// New wires the engine. publisher may be nil.
func New(backend Backend, clock *session.Clock, publisher Publisher, opts Options, logger zerolog.Logger) *Dashboard {
	def := DefaultOptions()
	if opts.SessionCheck <= 0 {
		opts.SessionCheck = def.SessionCheck
	}
	if opts.Interval == "" {
		opts.Interval = def.Interval
	}
	if !opts.Sort.Active() {
		opts.Sort = def.Sort
	}
	if opts.Filters.Leverage == "" {
		opts.Filters.Leverage = models.LeverageBoth
	}
	if clock == nil {
		clock = session.NewClock(session.DefaultTimezone, session.DefaultExtendedFrom)
	}

	d := &Dashboard{
		backend:   backend,
		registry:  ranking.Standard(),
		clock:     clock,
		tracker:   session.NewTracker(clock),
		publisher: publisher,
		logger:    logging.WithComponent(logger, "dashboard"),
		opts:      opts,
		cmds:      make(chan command),
		reloads:   make(chan coordinator.Result, 1),
		batches:   make(chan refresh.Batch, 8),
		done:      make(chan struct{}),
		filters:   opts.Filters,
		sort:      opts.Sort,
		interval:  opts.Interval,
	}
	d.coord = coordinator.New(backend, opts.Debounce, d.deliverReload, logger)
	d.poller = refresh.NewPoller(backend, d.batches, logger)
	d.latest.Store(&models.Snapshot{Filters: d.filters, Sort: d.sort, Interval: string(d.interval)})
	return d
}

// SetAlertCache attaches the dedup cache cleared by ResetNotifications.
// Call it before Run.
func (d *Dashboard) SetAlertCache(c *notify.DedupCache) {
	d.alerts = c
}

func (d *Dashboard) deliverReload(r coordinator.Result) {
	select {
	case d.reloads <- r:
	case <-d.done:
	}
}

// Run loads the table and processes events until ctx is canceled.
func (d *Dashboard) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("dashboard already running")
	}
	d.ctx = ctx
	defer d.shutdown()

	check := time.NewTicker(d.opts.SessionCheck)
	defer check.Stop()

	d.checkSession(d.clock.Now())
	if d.sort.Active() && !d.registry.Sortable(d.sort.Column, d.extended) {
		d.logger.Info().Str("column", d.sort.Column).Msg("Sort column unavailable outside extended hours, using default")
		d.sort = d.defaultSort()
	}
	d.reload(false)
	d.publish()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Dashboard stopping")
			return nil
		case cmd := <-d.cmds:
			err := cmd.fn()
			d.publish()
			cmd.reply <- err
		case r := <-d.reloads:
			d.applyReload(r)
			d.publish()
		case b := <-d.batches:
			d.applyMerge(b)
			d.publish()
		case <-check.C:
			if d.checkSession(d.clock.Now()) {
				d.publish()
			}
		}
	}
}

func (d *Dashboard) shutdown() {
	close(d.done)
	d.poller.Close()
	d.coord.Close()
}

// exec runs fn on the event loop and returns its error.
func (d *Dashboard) exec(fn func() error) error {
	c := command{fn: fn, reply: make(chan error, 1)}
	select {
	case d.cmds <- c:
	case <-d.done:
		return apperrors.ErrDashboardStopped
	}
	select {
	case err := <-c.reply:
		return err
	case <-d.done:
		return apperrors.ErrDashboardStopped
	}
}

func (d *Dashboard) reload(debounced bool) {
	d.reloading = true
	if debounced {
		d.coord.TriggerReload(d.filters)
		return
	}
	d.coord.ReloadNow(d.filters)
}

func (d *Dashboard) applyReload(r coordinator.Result) {
	if !d.coord.IsCurrent(r.Token) {
		d.logger.Debug().Uint64("token", r.Token).Msg("Dropping superseded reload")
		return
	}
	d.reloading = false
	d.sortPending = ""

	if r.Err != nil {
		d.errBanner = errorBanner(r.Err)
		d.logger.Error().Err(r.Err).Msg("Full reload failed, keeping previous table")
		return
	}

	d.errBanner = nil
	d.rows = d.registry.Rank(r.Page.Rows, d.sort)
	d.total = r.Page.Total
	d.replacedAt = time.Now()

	switch {
	case d.handle != nil:
		if !sameTickers(d.handle.Tickers(), tickersOf(d.rows)) {
			if err := d.startPolling(d.handle.Interval()); err != nil {
				d.stopPolling()
			}
		}
	case !d.loaded && d.opts.AutoRefresh:
		if err := d.startPolling(d.interval); err != nil {
			d.logger.Warn().Err(err).Msg("Auto refresh not started")
		}
	}
	d.loaded = true
}

func (d *Dashboard) applyMerge(b refresh.Batch) {
	if d.handle == nil || b.Handle != d.handle.ID() {
		return
	}
	if b.Pending {
		d.merging = true
		return
	}
	d.merging = false

	if b.RequestedAt.Before(d.replacedAt) {
		d.logger.Debug().Uint64("cycle", b.Cycle).Msg("Dropping merge requested before the last full reload")
		return
	}
	if b.Err != nil {
		if d.opts.MergeWarnAfter > 0 && b.ConsecutiveFailures >= d.opts.MergeWarnAfter {
			d.warnBanner = &models.Banner{
				Title:   "Auto refresh failing",
				Message: fmt.Sprintf("%d consecutive refreshes failed; still retrying every %s", b.ConsecutiveFailures, d.handle.Interval()),
				Details: []string{b.Err.Error()},
			}
		}
		return
	}

	d.warnBanner = nil
	updated := refresh.Merge(d.rows, b.Deltas)
	logging.LogMerge(d.logger, b.Cycle, len(d.rows), updated)
	if d.sort.Active() {
		d.rows = d.registry.Rank(d.rows, d.sort)
	}
}

// checkSession reports whether anything visible changed.
func (d *Dashboard) checkSession(now time.Time) bool {
	extended, ended := d.tracker.Observe(now)
	phase := d.clock.Phase(now)
	changed := extended != d.extended || phase != d.phase
	d.extended, d.phase = extended, phase

	if ended {
		if c, ok := d.registry.Lookup(d.sort.Column); ok && c.ExtendedHoursOnly {
			d.sort = d.defaultSort()
			d.rows = d.registry.Rank(d.rows, d.sort)
			d.logger.Info().Str("column", c.ID).Str("sort", d.sort.Column).Msg("Extended hours ended, sort reset")
			changed = true
		}
	}
	return changed
}

func (d *Dashboard) defaultSort() models.SortState {
	if c, ok := d.registry.Lookup(d.opts.Sort.Column); ok && !c.ExtendedHoursOnly {
		return d.opts.Sort
	}
	return ranking.DefaultSort
}

func (d *Dashboard) startPolling(iv refresh.Interval) error {
	h, err := d.poller.Start(d.ctx, tickersOf(d.rows), iv)
	if err != nil {
		return err
	}
	d.handle = h
	d.interval = iv
	d.merging = false
	d.warnBanner = nil
	return nil
}

func (d *Dashboard) stopPolling() {
	if d.handle == nil {
		return
	}
	d.poller.Stop(d.handle)
	d.handle = nil
	d.merging = false
	d.warnBanner = nil
}

func (d *Dashboard) publish() {
	d.seq++
	rows := make([]*models.TickerRecord, len(d.rows))
	for i, r := range d.rows {
		rows[i] = r.Clone()
	}
	snap := &models.Snapshot{
		Seq:           d.seq,
		Rows:          rows,
		Total:         d.total,
		Filters:       d.filters,
		Sort:          d.sort,
		SortPending:   d.sortPending,
		Reloading:     d.reloading,
		Merging:       d.merging,
		Polling:       d.handle != nil,
		Interval:      string(d.interval),
		ExtendedHours: d.extended,
		Session:       string(d.phase),
		Error:         d.errBanner,
		Warning:       d.warnBanner,
		UpdatedAt:     time.Now(),
	}
	d.latest.Store(snap)
	if d.publisher != nil {
		d.publisher.Publish(snap)
	}
}

func errorBanner(err error) *models.Banner {
	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) {
		details := []string{
			fmt.Sprintf("Status: %d", apiErr.StatusCode),
			"Status Text: " + apiErr.StatusText(),
			"Message: " + apiErr.Message,
		}
		if apiErr.StatusCode == 0 {
			details = details[2:]
		}
		return &models.Banner{Title: "Error loading data", Message: apiErr.Message, Details: details}
	}
	if errors.Is(err, apperrors.ErrCircuitOpen) {
		return &models.Banner{Title: "Backend unavailable", Message: "Too many failures, retrying shortly"}
	}
	return &models.Banner{Title: "Error loading data", Message: err.Error()}
}

func tickersOf(rows []*models.TickerRecord) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Ticker)
	}
	return out
}

func sameTickers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, t := range a {
		seen[t]++
	}
	for _, t := range b {
		if seen[t] == 0 {
			return false
		}
		seen[t]--
	}
	return true
}
