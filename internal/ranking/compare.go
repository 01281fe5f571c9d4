package ranking

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockwatch/internal/models"
)

var magnitudes = map[byte]float64{
	'K': 1e3,
	'M': 1e6,
	'B': 1e9,
	'T': 1e12,
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"Jan 2, 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func cleanNumeric(s string, strip string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(strip, r) || r == ' ' {
			return -1
		}
		return r
	}, s)
}

// ParseCurrency strips the symbol and thousands separators. Unparsable
// input yields 0.
func ParseCurrency(s string) float64 {
	s = cleanNumeric(s, "$,")
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// ParsePercent strips % and a leading sign marker. Unparsable input yields 0.
func ParsePercent(s string) float64 {
	s = cleanNumeric(s, "%+,")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}

// ParseMagnitude converts "$1.2B" style values to a plain number. Values
// without a suffix are taken as-is; unparsable input yields 0.
func ParseMagnitude(s string) float64 {
	s = strings.ToUpper(cleanNumeric(s, "$,"))
	if s == "" {
		return 0
	}
	mult := 1.0
	if m, ok := magnitudes[s[len(s)-1]]; ok {
		mult = m
		s = s[:len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64() * mult
}

// ParseDate returns the epoch milliseconds of s, or 0 when unparsable.
func ParseDate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return float64(t.UnixMilli())
		}
	}
	return 0
}

// ParseNumber parses a plain number, yielding 0 when unparsable.
func ParseNumber(s string) float64 {
	v, _ := models.ParseNumber(strings.ReplaceAll(s, ",", ""))
	return v
}

// Key extracts the comparable value of a column. Text columns compare on
// the lowercased string and return it as the second result.
func Key(c Column, r *models.TickerRecord) (float64, string) {
	if r == nil {
		return math.Inf(-1), ""
	}
	switch c.Kind {
	case KindIndicator:
		if c.Indicator == nil {
			return math.Inf(-1), ""
		}
		if v := c.Indicator(r); v != nil && !math.IsNaN(*v) {
			return *v, ""
		}
		return math.Inf(-1), ""
	case KindText:
		return 0, strings.ToLower(c.Raw(r))
	}

	raw := c.Raw(r)
	switch c.Kind {
	case KindCurrency:
		return ParseCurrency(raw), ""
	case KindPercent:
		return ParsePercent(raw), ""
	case KindMagnitude:
		return ParseMagnitude(raw), ""
	case KindDate:
		return ParseDate(raw), ""
	default:
		return ParseNumber(raw), ""
	}
}

func cmpKeys(c Column, an float64, as string, bn float64, bs string) int {
	if c.Kind == KindText {
		return strings.Compare(as, bs)
	}
	// NaN would compare equal to everything and break transitivity.
	if math.IsNaN(an) {
		an = 0
	}
	if math.IsNaN(bn) {
		bn = 0
	}
	switch {
	case an < bn:
		return -1
	case an > bn:
		return 1
	default:
		return 0
	}
}

func applyDirection(res int, dir models.SortDirection) int {
	if dir == models.SortDesc {
		return -res
	}
	return res
}

// Compare returns -1, 0 or 1 for a against b on the given column.
func Compare(c Column, a, b *models.TickerRecord, dir models.SortDirection) int {
	an, as := Key(c, a)
	bn, bs := Key(c, b)
	return applyDirection(cmpKeys(c, an, as, bn, bs), dir)
}

// CompareByID looks the column up in the registry. Unknown columns compare equal.
func (r *Registry) CompareByID(id string, a, b *models.TickerRecord, dir models.SortDirection) int {
	c, ok := r.Lookup(id)
	if !ok {
		return 0
	}
	return Compare(c, a, b, dir)
}

type keyed struct {
	row *models.TickerRecord
	num float64
	str string
}

// Rank returns the rows in a new slice ordered by the sort state. Equal
// keys keep their input order. An inactive or unknown sort returns a copy
// in the original order.
func (r *Registry) Rank(rows []*models.TickerRecord, state models.SortState) []*models.TickerRecord {
	out := make([]*models.TickerRecord, len(rows))
	c, ok := r.Lookup(state.Column)
	if !state.Active() || !ok {
		copy(out, rows)
		return out
	}

	// Parse each key once, not per comparison.
	keys := make([]keyed, len(rows))
	for i, row := range rows {
		n, s := Key(c, row)
		keys[i] = keyed{row: row, num: n, str: s}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return applyDirection(cmpKeys(c, keys[i].num, keys[i].str, keys[j].num, keys[j].str), state.Direction) < 0
	})
	for i, k := range keys {
		out[i] = k.row
	}
	return out
}

// Toggle computes the sort state after a column click: the same column
// flips direction, a new column starts descending.
func Toggle(current models.SortState, column string) models.SortState {
	if current.Column == column {
		dir := current.Direction
		if dir == "" {
			dir = models.SortDesc
		}
		return models.SortState{Column: column, Direction: dir.Flip()}
	}
	return models.SortState{Column: column, Direction: models.SortDesc}
}
