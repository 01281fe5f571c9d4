package dashboard

import (
	"context"
	"strings"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/ranking"
	"stockwatch/internal/refresh"
)

// Snapshot returns the latest published view. It never blocks.
func (d *Dashboard) Snapshot() *models.Snapshot {
	return d.latest.Load()
}

// Columns returns the column registry used for ranking.
func (d *Dashboard) Columns() []ranking.Column {
	return d.registry.Columns()
}

// SetTickerFilter updates the free-text ticker filter. Reloads are
// debounced so typing issues one fetch.
func (d *Dashboard) SetTickerFilter(text string) error {
	return d.exec(func() error {
		d.stopPolling()
		d.filters.Ticker = normalizeTicker(text)
		d.reload(true)
		return nil
	})
}

// SetSector changes the sector filter and reloads immediately.
func (d *Dashboard) SetSector(sector string) error {
	return d.exec(func() error {
		d.stopPolling()
		d.filters.Sector = strings.TrimSpace(sector)
		d.reload(false)
		return nil
	})
}

// SetLeverage changes the leverage filter and reloads immediately.
func (d *Dashboard) SetLeverage(filter models.LeverageFilter) error {
	lf, ok := models.ParseLeverageFilter(string(filter))
	if !ok {
		return apperrors.Wrapf(apperrors.ErrInvalidLeverage, "%q", filter)
	}
	return d.exec(func() error {
		d.stopPolling()
		d.filters.Leverage = lf
		d.reload(false)
		return nil
	})
}

// SetFilters replaces the whole filter set. A change to the ticker text
// alone goes through the debounce; anything else reloads immediately.
func (d *Dashboard) SetFilters(f models.Filters) error {
	lf, ok := models.ParseLeverageFilter(string(f.Leverage))
	if !ok {
		return apperrors.Wrapf(apperrors.ErrInvalidLeverage, "%q", f.Leverage)
	}
	f.Leverage = lf
	f.Ticker = normalizeTicker(f.Ticker)
	f.Sector = strings.TrimSpace(f.Sector)
	return d.exec(func() error {
		onlyTicker := f.Sector == d.filters.Sector && f.Leverage == d.filters.Leverage
		d.stopPolling()
		d.filters = f
		d.reload(onlyTicker)
		return nil
	})
}

// ClearFilters resets filters and sort to their defaults and reloads
// immediately.
func (d *Dashboard) ClearFilters() error {
	return d.exec(func() error {
		d.stopPolling()
		d.filters = models.DefaultFilters()
		d.sort = d.defaultSort()
		d.sortPending = ""
		d.reload(false)
		return nil
	})
}

// ClickColumn applies a header click: the same column flips direction, a
// new one sorts descending. After-hours columns are ignored outside
// extended hours. The table is re-ranked at once and reloaded.
func (d *Dashboard) ClickColumn(column string) (models.SortState, error) {
	var state models.SortState
	err := d.exec(func() error {
		if _, ok := d.registry.Lookup(column); !ok {
			state = d.sort
			return apperrors.Wrapf(apperrors.ErrUnknownColumn, "%q", column)
		}
		if !d.registry.Sortable(column, d.extended) {
			state = d.sort
			return nil
		}
		d.applySort(ranking.Toggle(d.sort, column))
		state = d.sort
		return nil
	})
	return state, err
}

// SetSort selects a column and direction explicitly. An empty direction
// behaves like a click.
func (d *Dashboard) SetSort(s models.SortState) error {
	if s.Direction != "" && s.Direction != models.SortAsc && s.Direction != models.SortDesc {
		return apperrors.NewValidationError("direction", s.Direction, "must be asc or desc")
	}
	return d.exec(func() error {
		if _, ok := d.registry.Lookup(s.Column); !ok {
			return apperrors.Wrapf(apperrors.ErrUnknownColumn, "%q", s.Column)
		}
		if !d.registry.Sortable(s.Column, d.extended) {
			return nil
		}
		if s.Direction == "" {
			s = ranking.Toggle(d.sort, s.Column)
		}
		d.applySort(s)
		return nil
	})
}

func (d *Dashboard) applySort(s models.SortState) {
	d.sort = s
	d.sortPending = s.Column
	d.rows = d.registry.Rank(d.rows, d.sort)
	d.reload(false)
}

// Reload issues an immediate full reload with the current filters.
func (d *Dashboard) Reload() error {
	return d.exec(func() error {
		d.reload(false)
		return nil
	})
}

// SetRefreshInterval changes the polling cadence. An active poll restarts
// on the new interval with the same tickers.
func (d *Dashboard) SetRefreshInterval(s string) error {
	iv, err := refresh.ParseInterval(s)
	if err != nil {
		return err
	}
	return d.exec(func() error {
		d.interval = iv
		if d.handle != nil {
			return d.startPolling(iv)
		}
		return nil
	})
}

// SetPolling turns background merging on or off. Turning it on with an
// empty table returns ErrNoTickers.
func (d *Dashboard) SetPolling(on bool) error {
	return d.exec(func() error {
		return d.setPolling(on)
	})
}

// TogglePolling flips background merging and returns the new state.
func (d *Dashboard) TogglePolling() (bool, error) {
	var on bool
	err := d.exec(func() error {
		if err := d.setPolling(d.handle == nil); err != nil {
			return err
		}
		on = d.handle != nil
		return nil
	})
	return on, err
}

func (d *Dashboard) setPolling(on bool) error {
	if !on {
		d.stopPolling()
		return nil
	}
	if d.handle != nil {
		return nil
	}
	if len(d.rows) == 0 {
		return apperrors.ErrNoTickers
	}
	return d.startPolling(d.interval)
}

// ForceUpdate asks the backend to refresh its data. On success a full
// reload is scheduled; on failure the error banner is raised.
func (d *Dashboard) ForceUpdate(ctx context.Context, force bool) error {
	if err := d.backend.UpdateTickerData(ctx, force); err != nil {
		if apperrors.IsCanceled(err) {
			return err
		}
		_ = d.exec(func() error {
			d.errBanner = errorBanner(err)
			return nil
		})
		return err
	}
	return d.exec(func() error {
		d.reload(true)
		return nil
	})
}

// DismissBanner clears the error and warning banners.
func (d *Dashboard) DismissBanner() error {
	return d.exec(func() error {
		d.errBanner = nil
		d.warnBanner = nil
		return nil
	})
}

// ResetNotifications forgets every delivered alert so it can fire again.
// It returns how many fingerprints were cleared.
func (d *Dashboard) ResetNotifications() int {
	if d.alerts == nil {
		return 0
	}
	n := d.alerts.Len()
	d.alerts.Clear()
	d.logger.Info().Int("cleared", n).Msg("Notification cache reset")
	return n
}

func normalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
