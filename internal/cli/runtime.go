package cli

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"stockwatch/internal/backend"
	"stockwatch/internal/dashboard"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/resilience"
	"stockwatch/internal/session"
	"stockwatch/internal/store"
	"stockwatch/internal/stream"
)

// runtime is one wired dashboard with its alert watcher and snapshot hub.
type runtime struct {
	client  *backend.Client
	hub     *stream.Hub
	dash    *dashboard.Dashboard
	alerts  *notify.AlertWatcher
	journal store.Journal
	health  *resilience.HealthMonitor
	logger  zerolog.Logger
}

const (
	_goroutineThreshold = 1000
	_healthInterval     = time.Minute
)

type runtimeOptions struct {
	dashboard dashboard.Options
	// alertOut receives console alert lines; nil keeps the configured channels only.
	alertOut io.Writer
}

func (app *App) newRuntime(opts runtimeOptions) (*runtime, error) {
	cfg := app.Config
	rt := &runtime{
		client: backend.NewClient(cfg.Backend, app.Logger),
		hub:    stream.NewHub(),
		logger: app.Logger,
	}

	if cfg.Store.Enabled {
		path := cfg.Store.Path
		if path == "" {
			path = filepath.Join(cfg.Dir(), "alerts.db")
		}
		journal, err := store.NewSQLiteStore(path)
		if err != nil {
			app.Logger.Warn().Err(err).Msg("Alert journal unavailable")
		} else {
			rt.journal = journal
		}
	}

	notifier := notify.NewMultiNotifier(cfg.Notifications)
	notifier.AddChannel(rt.hub)
	if opts.alertOut != nil {
		notifier.AddChannel(notify.NewConsoleNotifier(opts.alertOut, cfg.Notifications.Bell))
	}

	var journal notify.Journal
	if rt.journal != nil {
		journal = rt.journal
	}
	cache := notify.NewDedupCache()
	rt.alerts = notify.NewAlertWatcher(rt.client, cache, notifier, journal, cfg.Dashboard.AlertInterval, app.Logger)

	clock := session.NewClock(cfg.Dashboard.Timezone, cfg.Dashboard.ExtendedHoursFrom)
	rt.dash = dashboard.New(rt.client, clock, rt.hub, opts.dashboard, app.Logger)
	rt.dash.SetAlertCache(cache)

	rt.health = resilience.NewHealthMonitor(_goroutineThreshold)
	rt.health.RegisterComponent("backend", resilience.BreakerCheck(rt.client.Breaker()))
	rt.health.RegisterComponent("dashboard", dashboardCheck(rt.dash))
	rt.health.RegisterComponent("stream", hubCheck(rt.hub))
	rt.health.OnStatusChange(func(from, to resilience.SystemHealth) {
		ev := rt.logger.Info()
		if to.Status != resilience.HealthStatusHealthy {
			ev = rt.logger.Warn()
		}
		for _, c := range to.Components {
			if c.Status != resilience.HealthStatusHealthy {
				ev = ev.Str(c.Name, c.Message)
			}
		}
		ev.Str("from", string(from.Status)).Str("to", string(to.Status)).Msg("Health status changed")
	})
	return rt, nil
}

type snapshotter interface {
	Snapshot() *models.Snapshot
}

// dashboardCheck is degraded while an error banner is up or before the first load.
func dashboardCheck(d snapshotter) resilience.HealthCheck {
	return func(context.Context) resilience.ComponentHealth {
		snap := d.Snapshot()
		h := resilience.ComponentHealth{
			Status:  resilience.HealthStatusHealthy,
			Details: map[string]interface{}{"rows": len(snap.Rows), "seq": snap.Seq},
		}
		switch {
		case snap.Error != nil:
			h.Status = resilience.HealthStatusDegraded
			h.Message = snap.Error.Title
		case snap.UpdatedAt.IsZero():
			h.Status = resilience.HealthStatusDegraded
			h.Message = "no table loaded yet"
		default:
			h.Message = "updated " + time.Since(snap.UpdatedAt).Round(time.Second).String() + " ago"
		}
		return h
	}
}

func hubCheck(hub *stream.Hub) resilience.HealthCheck {
	return func(context.Context) resilience.ComponentHealth {
		if !hub.IsStarted() {
			return resilience.ComponentHealth{Status: resilience.HealthStatusUnhealthy, Message: "hub not started"}
		}
		return resilience.ComponentHealth{
			Status:  resilience.HealthStatusHealthy,
			Details: map[string]interface{}{"subscribers": hub.SubscriberCount()},
		}
	}
}

// run starts the hub, dashboard and alert watcher plus any extra tasks and
// blocks until ctx is canceled or one of them fails.
func (rt *runtime) run(ctx context.Context, tasks ...func(context.Context) error) error {
	rt.hub.Start(ctx)
	defer rt.hub.Stop()

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(rt.dash.Run)
	p.Go(rt.alerts.Run)
	p.Go(func(ctx context.Context) error { return rt.health.Run(ctx, _healthInterval) })
	for _, task := range tasks {
		p.Go(task)
	}
	err := p.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, errQuit) {
		return nil
	}
	return err
}

func (rt *runtime) close() {
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("Failed to close alert journal")
		}
	}
}

// errQuit ends a run loop on user request.
var errQuit = errors.New("quit")
