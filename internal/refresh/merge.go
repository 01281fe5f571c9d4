// Package refresh keeps a loaded table current with background delta fetches.
package refresh

import (
	"strings"
	"time"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
)

// Interval is a polling cadence selectable by the user.
type Interval string

const (
	Interval1M  Interval = "1M"
	Interval5M  Interval = "5M"
	Interval15M Interval = "15M"
	Interval1H  Interval = "1H"
)

// Intervals lists the accepted cadences in menu order.
var Intervals = []Interval{Interval1M, Interval5M, Interval15M, Interval1H}

// DefaultInterval is used when nothing is configured.
const DefaultInterval = Interval1M

// Duration returns the wall-clock period of the interval.
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval5M:
		return 5 * time.Minute
	case Interval15M:
		return 15 * time.Minute
	case Interval1H:
		return time.Hour
	default:
		return time.Minute
	}
}

// ParseInterval accepts "1M", "5m", "15M", "1H" and the equivalent
// Go durations.
func ParseInterval(s string) (Interval, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, iv := range Intervals {
		if s == string(iv) {
			return iv, nil
		}
	}
	if d, err := time.ParseDuration(strings.ToLower(s)); err == nil {
		for _, iv := range Intervals {
			if iv.Duration() == d {
				return iv, nil
			}
		}
	}
	return "", apperrors.Wrapf(apperrors.ErrInvalidInterval, "%q", s)
}

// Merge applies deltas to the matching rows in place and returns how many
// rows were touched. Fields that are not available in a delta keep their
// current value; rows without a delta are left alone.
func Merge(rows []*models.TickerRecord, deltas map[string]models.TickerDelta) int {
	if len(rows) == 0 || len(deltas) == 0 {
		return 0
	}
	updated := 0
	for _, row := range rows {
		if row == nil {
			continue
		}
		d, ok := deltas[models.NormalizeTicker(row.Ticker)]
		if !ok {
			continue
		}
		applyDelta(row, d)
		updated++
	}
	return updated
}

func applyDelta(row *models.TickerRecord, d models.TickerDelta) {
	setText(&row.Price, d.Price)
	setText(&row.AfterHoursPrice, d.AfterHoursPrice)

	td := d.Today
	if td == nil {
		return
	}
	if row.Today == nil {
		row.Today = &models.TodayStats{}
	}
	t := row.Today
	setNumber(&t.Low, td.Low)
	setNumber(&t.High, td.High)
	setNumber(&t.Open, td.Open)
	setNumber(&t.Close, td.Close)
	setNumber(&t.PrevClose, td.PrevClose)
	setText(&t.ChangePercent, td.Change)
	setText(&t.AfterHoursChangePercent, td.AfterHoursChange)
	setIndicator(&t.SMA20, td.SMA20)
	setIndicator(&t.SMA50, td.SMA50)
	setIndicator(&t.SMA200, td.SMA200)
}

func setText(dst *string, u models.TextUpdate) {
	if u.Ok {
		*dst = u.Value
	}
}

func setNumber(dst *float64, u models.NumberUpdate) {
	if u.Ok {
		*dst = u.Value
	}
}

func setIndicator(dst **float64, u models.IndicatorUpdate) {
	if !u.Ok {
		return
	}
	if u.Value == nil {
		*dst = nil
		return
	}
	v := *u.Value
	*dst = &v
}
