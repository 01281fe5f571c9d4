// Package ranking orders dashboard rows by a typed, per-column comparator.
package ranking

import (
	"strings"

	"stockwatch/internal/models"
)

// Kind is the semantic type of a column; comparators dispatch on it.
type Kind int

const (
	KindText Kind = iota
	KindCurrency
	KindPercent
	KindMagnitude
	KindDate
	KindNumber
	KindIndicator
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindCurrency:
		return "currency"
	case KindPercent:
		return "percent"
	case KindMagnitude:
		return "magnitude"
	case KindDate:
		return "date"
	case KindNumber:
		return "number"
	case KindIndicator:
		return "indicator"
	default:
		return "unknown"
	}
}

// Column describes one sortable column.
type Column struct {
	ID    string
	Label string
	Kind  Kind
	// Raw extracts the display text. Unused for KindIndicator.
	Raw func(*models.TickerRecord) string
	// Indicator extracts a nullable value for KindIndicator.
	Indicator func(*models.TickerRecord) *float64
	// ExtendedHoursOnly columns are sortable only in the after-hours session.
	ExtendedHoursOnly bool
}

// Column identifiers.
const (
	ColTicker      = "ticker"
	ColSector      = "sector"
	ColMarketCap   = "market_cap"
	ColEarningDate = "earning_date"
	ColPrice       = "price"
	ColAHPrice     = "ah_price"
	ColAHChange    = "ah_change"
	ColTodayChange = "today_change"
	ColTodayRange  = "today_range"
	ColPERatio     = "pe_ratio"
	ColSMA20       = "sma20"
	ColSMA50       = "sma50"
	ColSMA200      = "sma200"
)

// DefaultSort is the table's sort when nothing else is selected.
var DefaultSort = models.SortState{Column: "1D_percentage", Direction: models.SortDesc}

// Registry maps column ids to their definitions.
type Registry struct {
	cols  map[string]Column
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cols: make(map[string]Column)}
}

// Register adds or replaces a column.
func (r *Registry) Register(c Column) {
	if _, ok := r.cols[c.ID]; !ok {
		r.order = append(r.order, c.ID)
	}
	r.cols[c.ID] = c
}

// Lookup returns the column with the given id.
func (r *Registry) Lookup(id string) (Column, bool) {
	c, ok := r.cols[id]
	return c, ok
}

// Columns returns all columns in registration order.
func (r *Registry) Columns() []Column {
	out := make([]Column, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.cols[id])
	}
	return out
}

// Sortable reports whether the column exists and is eligible in the given session.
func (r *Registry) Sortable(id string, extendedHours bool) bool {
	c, ok := r.cols[id]
	if !ok {
		return false
	}
	return extendedHours || !c.ExtendedHoursOnly
}

// Standard returns the registry with every dashboard column.
func Standard() *Registry {
	r := NewRegistry()
	r.Register(Column{ID: ColTicker, Label: "Ticker", Kind: KindText, Raw: func(t *models.TickerRecord) string { return t.Ticker }})
	r.Register(Column{ID: ColSector, Label: "Sector", Kind: KindText, Raw: func(t *models.TickerRecord) string { return t.Sector }})
	r.Register(Column{ID: ColMarketCap, Label: "Mkt Cap", Kind: KindMagnitude, Raw: func(t *models.TickerRecord) string { return t.MarketCap }})
	r.Register(Column{ID: ColEarningDate, Label: "Earnings", Kind: KindDate, Raw: func(t *models.TickerRecord) string { return t.EarningDate }})
	r.Register(Column{ID: ColPrice, Label: "Price", Kind: KindCurrency, Raw: func(t *models.TickerRecord) string { return t.Price }})
	r.Register(Column{ID: ColAHPrice, Label: "AH Price", Kind: KindCurrency, ExtendedHoursOnly: true,
		Raw: func(t *models.TickerRecord) string { return t.AfterHoursPrice }})
	r.Register(Column{ID: ColAHChange, Label: "AH Chg", Kind: KindPercent, ExtendedHoursOnly: true,
		Raw: today(func(s *models.TodayStats) string { return s.AfterHoursChangePercent })})
	r.Register(Column{ID: ColTodayChange, Label: "Today", Kind: KindPercent,
		Raw: today(func(s *models.TodayStats) string { return s.ChangePercent })})
	r.Register(Column{ID: ColTodayRange, Label: "Range", Kind: KindPercent, Raw: todayRange})

	for _, p := range models.Periods {
		p := p
		r.Register(Column{ID: string(p) + "_percentage", Label: string(p) + " %", Kind: KindPercent,
			Raw: window(p, func(w *models.PeriodWindow) string { return w.Percent })})
		if p == models.Period1D || p == models.Period5D {
			r.Register(Column{ID: string(p) + "_range", Label: string(p) + " Range", Kind: KindPercent,
				Raw: window(p, func(w *models.PeriodWindow) string { return w.RangePercent })})
		}
	}

	r.Register(Column{ID: ColPERatio, Label: "P/E", Kind: KindNumber, Raw: func(t *models.TickerRecord) string { return t.PERatio }})
	r.Register(Column{ID: ColSMA20, Label: "SMA20", Kind: KindIndicator, Indicator: sma(func(s *models.TodayStats) *float64 { return s.SMA20 })})
	r.Register(Column{ID: ColSMA50, Label: "SMA50", Kind: KindIndicator, Indicator: sma(func(s *models.TodayStats) *float64 { return s.SMA50 })})
	r.Register(Column{ID: ColSMA200, Label: "SMA200", Kind: KindIndicator, Indicator: sma(func(s *models.TodayStats) *float64 { return s.SMA200 })})
	return r
}

func today(get func(*models.TodayStats) string) func(*models.TickerRecord) string {
	return func(t *models.TickerRecord) string {
		if t.Today == nil {
			return ""
		}
		return get(t.Today)
	}
}

func window(p models.Period, get func(*models.PeriodWindow) string) func(*models.TickerRecord) string {
	return func(t *models.TickerRecord) string {
		w := t.Window(p)
		if w == nil {
			return ""
		}
		return get(w)
	}
}

func sma(get func(*models.TodayStats) *float64) func(*models.TickerRecord) *float64 {
	return func(t *models.TickerRecord) *float64 {
		if t.Today == nil {
			return nil
		}
		return get(t.Today)
	}
}

// TodayRangePercent is (high-low)/low*100, or false when either bound is missing.
func TodayRangePercent(t *models.TickerRecord) (float64, bool) {
	if t.Today == nil || t.Today.Low <= 0 || t.Today.High <= 0 {
		return 0, false
	}
	return (t.Today.High - t.Today.Low) / t.Today.Low * 100, true
}

func todayRange(t *models.TickerRecord) string {
	v, ok := TodayRangePercent(t)
	if !ok {
		return models.Unavailable
	}
	return strings.TrimRight(strings.TrimRight(formatFloat(v), "0"), ".") + "%"
}
