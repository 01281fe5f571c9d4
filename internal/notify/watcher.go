package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
)

// AlertSource returns the alerts currently raised by the backend.
type AlertSource interface {
	FetchAlerts(ctx context.Context) ([]models.PriceAlert, error)
}

// Journal records delivered alerts.
type Journal interface {
	RecordDelivery(ctx context.Context, d models.AlertDelivery) error
}

// AlertWatcher polls for alerts and delivers each fingerprint once.
type AlertWatcher struct {
	source   AlertSource
	cache    *DedupCache
	notifier Notifier
	journal  Journal
	interval time.Duration
	logger   zerolog.Logger

	onDeliver func(models.PriceAlert, Fingerprint)
}

// NewAlertWatcher creates a watcher. journal may be nil.
func NewAlertWatcher(source AlertSource, cache *DedupCache, notifier Notifier, journal Journal, interval time.Duration, logger zerolog.Logger) *AlertWatcher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if notifier == nil {
		notifier = NoOpNotifier{}
	}
	return &AlertWatcher{
		source:   source,
		cache:    cache,
		notifier: notifier,
		journal:  journal,
		interval: interval,
		logger:   logging.WithComponent(logger, "alerts"),
	}
}

// SetOnDeliver sets a callback run after each delivery.
func (w *AlertWatcher) SetOnDeliver(fn func(models.PriceAlert, Fingerprint)) {
	w.onDeliver = fn
}

// Cache returns the watcher's dedup cache.
func (w *AlertWatcher) Cache() *DedupCache {
	return w.cache
}

// Run checks immediately and then once per interval until ctx is done.
func (w *AlertWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one poll cycle and returns the number of alerts delivered.
// A fetch failure delivers nothing and leaves the cache untouched.
func (w *AlertWatcher) Check(ctx context.Context) int {
	alerts, err := w.source.FetchAlerts(ctx)
	if err != nil {
		if !apperrors.IsCanceled(err) {
			w.logger.Warn().Err(err).Msg("Alert fetch failed")
		}
		return 0
	}

	delivered := 0
	for _, a := range alerts {
		// Claim records before sending so an overlapping cycle cannot
		// deliver the same fingerprint.
		fp, ok := w.cache.Claim(a)
		if !ok {
			logging.LogAlert(w.logger, a.Ticker, string(a.Type), fp.String(), a.CurrentPrice, false)
			continue
		}

		if err := w.notifier.Send(ctx, AlertNotification(a, fp)); err != nil {
			w.logger.Warn().Err(err).Str("fingerprint", fp.String()).Msg("Alert delivery failed")
		}
		logging.LogAlert(w.logger, a.Ticker, string(a.Type), fp.String(), a.CurrentPrice, true)
		delivered++

		if w.journal != nil {
			rec := models.AlertDelivery{
				Fingerprint: fp.String(),
				Ticker:      a.Ticker,
				Type:        a.Type,
				Price:       a.CurrentPrice,
				Message:     a.Message,
				DeliveredAt: time.Now(),
			}
			if err := w.journal.RecordDelivery(ctx, rec); err != nil {
				w.logger.Warn().Err(err).Msg("Alert journal write failed")
			}
		}
		if w.onDeliver != nil {
			w.onDeliver(a, fp)
		}
	}
	return delivered
}
