// Package session answers market session questions from wall-clock time.
package session

import (
	"time"
	_ "time/tzdata" // exchange zone must resolve on hosts without zoneinfo
)

// Phase is the trading phase of the exchange day.
type Phase string

const (
	PhasePre     Phase = "PRE"
	PhaseRegular Phase = "RTH"
	PhaseAfter   Phase = "AH"
	PhaseClosed  Phase = "CLOSED"
)

// String returns a human readable phase description.
func (p Phase) String() string {
	switch p {
	case PhasePre:
		return "Pre-Market (4:00-9:30)"
	case PhaseRegular:
		return "Regular Hours (9:30-16:00)"
	case PhaseAfter:
		return "After Hours (16:00-20:00)"
	default:
		return "Closed"
	}
}

// DefaultTimezone is the exchange zone used when none is configured.
const DefaultTimezone = "America/New_York"

// DefaultExtendedFrom is the local hour at which extended hours begin.
const DefaultExtendedFrom = 16

// Clock converts instants to the exchange's local time.
type Clock struct {
	location     *time.Location
	extendedFrom int
	now          func() time.Time
}

// NewClock creates a clock for the given IANA zone. An unknown zone falls
// back to DefaultTimezone, then UTC.
func NewClock(timezone string, extendedFrom int) *Clock {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		if loc, err = time.LoadLocation(DefaultTimezone); err != nil {
			loc = time.UTC
		}
	}
	if extendedFrom <= 0 || extendedFrom > 23 {
		extendedFrom = DefaultExtendedFrom
	}
	return &Clock{location: loc, extendedFrom: extendedFrom, now: time.Now}
}

// WithNow overrides the time source.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	cp := *c
	cp.now = now
	return &cp
}

// Location returns the exchange time zone.
func (c *Clock) Location() *time.Location {
	return c.location
}

// Now returns the current instant from the clock's time source.
func (c *Clock) Now() time.Time {
	return c.now()
}

// IsExtendedHours reports whether the exchange-local hour is at or past
// the extended-hours boundary.
func (c *Clock) IsExtendedHours(now time.Time) bool {
	return now.In(c.location).Hour() >= c.extendedFrom
}

// Phase returns the trading phase at now. Weekends are closed.
func (c *Clock) Phase(now time.Time) Phase {
	local := now.In(c.location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return PhaseClosed
	}
	minutes := local.Hour()*60 + local.Minute()
	switch {
	case minutes >= 4*60 && minutes < 9*60+30:
		return PhasePre
	case minutes >= 9*60+30 && minutes < 16*60:
		return PhaseRegular
	case minutes >= 16*60 && minutes < 20*60:
		return PhaseAfter
	default:
		return PhaseClosed
	}
}

// NextBoundary returns the next instant at which IsExtendedHours flips.
func (c *Clock) NextBoundary(now time.Time) time.Time {
	local := now.In(c.location)
	start := time.Date(local.Year(), local.Month(), local.Day(), c.extendedFrom, 0, 0, 0, c.location)
	if local.Before(start) {
		return start
	}
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.location)
}

// Tracker remembers the last observed extended-hours state so consumers can
// react to transitions.
type Tracker struct {
	clock    *Clock
	extended bool
	primed   bool
}

// NewTracker creates a tracker on the given clock.
func NewTracker(clock *Clock) *Tracker {
	return &Tracker{clock: clock}
}

// Observe evaluates the clock at now and reports whether extended hours
// just ended since the previous observation.
func (t *Tracker) Observe(now time.Time) (extended bool, ended bool) {
	extended = t.clock.IsExtendedHours(now)
	ended = t.primed && t.extended && !extended
	t.extended = extended
	t.primed = true
	return extended, ended
}
