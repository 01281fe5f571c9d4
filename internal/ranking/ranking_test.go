package ranking

import (
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"stockwatch/internal/models"
)

func rows(pairs ...string) []*models.TickerRecord {
	out := make([]*models.TickerRecord, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, &models.TickerRecord{Ticker: pairs[i], Price: pairs[i+1]})
	}
	return out
}

func tickers(rs []*models.TickerRecord) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Ticker
	}
	return out
}

func TestRankPriceDescending(t *testing.T) {
	reg := Standard()
	table := rows("A", "$10", "B", "$50", "C", "$30")

	got := tickers(reg.Rank(table, models.SortState{Column: ColPrice, Direction: models.SortDesc}))
	want := []string{"B", "C", "A"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Rank() = %v, want %v", got, want)
	}
	if fmt.Sprint(tickers(table)) != "[A B C]" {
		t.Errorf("Rank() mutated its input: %v", tickers(table))
	}
}

func TestRankMarketCapAscending(t *testing.T) {
	reg := Standard()
	table := []*models.TickerRecord{
		{Ticker: "X", MarketCap: "$1.2B"},
		{Ticker: "Y", MarketCap: "$950M"},
		{Ticker: "Z", MarketCap: "$2.0T"},
	}
	got := reg.Rank(table, models.SortState{Column: ColMarketCap, Direction: models.SortAsc})
	var caps []string
	for _, r := range got {
		caps = append(caps, r.MarketCap)
	}
	if fmt.Sprint(caps) != "[$950M $1.2B $2.0T]" {
		t.Errorf("market cap order = %v", caps)
	}
}

func TestParsers(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) float64
		in   string
		want float64
	}{
		{"currency", ParseCurrency, "$1,234.50", 1234.5},
		{"currency na", ParseCurrency, "N/A", 0},
		{"currency empty", ParseCurrency, "", 0},
		{"percent", ParsePercent, "+3.25%", 3.25},
		{"percent negative", ParsePercent, "-1.5%", -1.5},
		{"percent garbage", ParsePercent, "FROZEN", 0},
		{"magnitude", ParseMagnitude, "$1.2B", 1.2e9},
		{"magnitude lowercase", ParseMagnitude, "3k", 3000},
		{"magnitude plain", ParseMagnitude, "1500000", 1.5e6},
		{"magnitude junk", ParseMagnitude, "lots", 0},
		{"date junk", ParseDate, "soon", 0},
		{"number", ParseNumber, "31.4", 31.4},
		{"number na", ParseNumber, "N/A", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDateColumnOrdersChronologically(t *testing.T) {
	reg := Standard()
	table := []*models.TickerRecord{
		{Ticker: "LATE", EarningDate: "2025-02-01"},
		{Ticker: "NONE", EarningDate: ""},
		{Ticker: "EARLY", EarningDate: "2024-11-15"},
	}
	got := tickers(reg.Rank(table, models.SortState{Column: ColEarningDate, Direction: models.SortAsc}))
	if fmt.Sprint(got) != "[NONE EARLY LATE]" {
		t.Errorf("order = %v", got)
	}
}

func TestIndicatorMissingSortsLast(t *testing.T) {
	reg := Standard()
	v1, v2 := 10.0, 20.0
	table := []*models.TickerRecord{
		{Ticker: "NIL", Today: &models.TodayStats{}},
		{Ticker: "LOW", Today: &models.TodayStats{SMA50: &v1}},
		{Ticker: "NOTODAY"},
		{Ticker: "HIGH", Today: &models.TodayStats{SMA50: &v2}},
	}

	desc := tickers(reg.Rank(table, models.SortState{Column: ColSMA50, Direction: models.SortDesc}))
	if fmt.Sprint(desc) != "[HIGH LOW NIL NOTODAY]" {
		t.Errorf("desc = %v", desc)
	}
	asc := tickers(reg.Rank(table, models.SortState{Column: ColSMA50, Direction: models.SortAsc}))
	if fmt.Sprint(asc) != "[NIL NOTODAY LOW HIGH]" {
		t.Errorf("asc = %v", asc)
	}
}

func TestTextColumnIsCaseInsensitive(t *testing.T) {
	reg := Standard()
	a := &models.TickerRecord{Sector: "energy"}
	b := &models.TickerRecord{Sector: "Energy"}
	if got := reg.CompareByID(ColSector, a, b, models.SortAsc); got != 0 {
		t.Errorf("CompareByID() = %d, want 0", got)
	}
	c := &models.TickerRecord{Sector: "Utilities"}
	if got := reg.CompareByID(ColSector, a, c, models.SortAsc); got != -1 {
		t.Errorf("asc = %d, want -1", got)
	}
	if got := reg.CompareByID(ColSector, a, c, models.SortDesc); got != 1 {
		t.Errorf("desc = %d, want 1", got)
	}
}

func TestTodayRangeColumn(t *testing.T) {
	reg := Standard()
	table := []*models.TickerRecord{
		{Ticker: "WIDE", Today: &models.TodayStats{Low: 100, High: 110}},
		{Ticker: "NARROW", Today: &models.TodayStats{Low: 100, High: 101}},
		{Ticker: "MISSING"},
	}
	got := tickers(reg.Rank(table, models.SortState{Column: ColTodayRange, Direction: models.SortDesc}))
	if fmt.Sprint(got) != "[WIDE NARROW MISSING]" {
		t.Errorf("order = %v", got)
	}
	if v, ok := TodayRangePercent(table[0]); !ok || math.Abs(v-10) > 1e-9 {
		t.Errorf("TodayRangePercent() = %v, %v", v, ok)
	}
}

func TestUnknownColumnKeepsOrder(t *testing.T) {
	reg := Standard()
	table := rows("C", "$1", "A", "$3", "B", "$2")
	got := tickers(reg.Rank(table, models.SortState{Column: "nope", Direction: models.SortAsc}))
	if fmt.Sprint(got) != "[C A B]" {
		t.Errorf("order = %v", got)
	}
}

func TestToggle(t *testing.T) {
	s := Toggle(DefaultSort, ColPrice)
	if s != (models.SortState{Column: ColPrice, Direction: models.SortDesc}) {
		t.Errorf("new column = %+v", s)
	}
	s = Toggle(s, ColPrice)
	if s.Direction != models.SortAsc {
		t.Errorf("second click = %+v", s)
	}
	s = Toggle(s, ColPrice)
	if s.Direction != models.SortDesc {
		t.Errorf("third click = %+v", s)
	}
}

func TestSortableGatesExtendedHoursColumns(t *testing.T) {
	reg := Standard()
	if reg.Sortable(ColAHPrice, false) {
		t.Error("ah_price sortable outside extended hours")
	}
	if !reg.Sortable(ColAHPrice, true) {
		t.Error("ah_price not sortable in extended hours")
	}
	if !reg.Sortable("5D_range", false) || reg.Sortable("1Y_range", true) {
		t.Error("range columns registered incorrectly")
	}
}

// Property 1: Ranking is stable
//
// For any table whose rows share a small set of price values, rows with
// equal prices keep their relative input order after Rank, in both directions.
func TestProperty1_RankIsStable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	reg := Standard()

	properties.Property("equal keys keep input order", prop.ForAll(
		func(prices []int, desc bool) bool {
			table := make([]*models.TickerRecord, len(prices))
			pos := make(map[*models.TickerRecord]int, len(prices))
			for i, p := range prices {
				table[i] = &models.TickerRecord{Ticker: fmt.Sprintf("T%03d", i), Price: fmt.Sprintf("$%d.00", p)}
				pos[table[i]] = i
			}
			dir := models.SortAsc
			if desc {
				dir = models.SortDesc
			}
			ranked := reg.Rank(table, models.SortState{Column: ColPrice, Direction: dir})
			if len(ranked) != len(table) {
				return false
			}
			for i := 1; i < len(ranked); i++ {
				a, b := ranked[i-1], ranked[i]
				c := reg.CompareByID(ColPrice, a, b, dir)
				if c > 0 {
					t.Logf("out of order at %d: %s %s", i, a.Price, b.Price)
					return false
				}
				if c == 0 && pos[a] > pos[b] {
					t.Logf("unstable at %d: %s before %s", i, a.Ticker, b.Ticker)
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property 2: Malformed values never break ordering
//
// For any mix of garbage strings in a numeric column, Rank returns every
// row exactly once and the parsed keys are monotonic in the sort direction.
func TestProperty2_RankToleratesGarbage(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)
	reg := Standard()

	values := gen.SliceOf(gen.OneGenOf(
		gen.AnyString(),
		gen.OneConstOf("nan", "NaN", "-nan", "inf", "-Inf", "N/A", "", "abc"),
		gen.Float64Range(-500, 500).Map(func(v float64) string { return fmt.Sprintf("%.2f", v) }),
		gen.Float64Range(-50, 50).Map(func(v float64) string { return fmt.Sprintf("%+.2f%%", v) }),
	))

	ordered := func(ranked []*models.TickerRecord, n int, key func(*models.TickerRecord) float64, dir models.SortDirection) bool {
		seen := make(map[string]bool, len(ranked))
		for i, r := range ranked {
			if seen[r.Ticker] {
				return false
			}
			seen[r.Ticker] = true
			if i == 0 {
				continue
			}
			prev, cur := key(ranked[i-1]), key(r)
			if dir == models.SortAsc && prev > cur {
				return false
			}
			if dir == models.SortDesc && prev < cur {
				return false
			}
		}
		return len(seen) == n
	}

	properties.Property("percent column stays ordered", prop.ForAll(
		func(values []string, asc bool) bool {
			table := make([]*models.TickerRecord, len(values))
			for i, v := range values {
				table[i] = &models.TickerRecord{
					Ticker:  fmt.Sprint(i),
					Periods: map[models.Period]*models.PeriodWindow{models.Period1D: {Percent: v}},
				}
			}
			state := DefaultSort
			if asc {
				state.Direction = models.SortAsc
			}
			key := func(r *models.TickerRecord) float64 { return ParsePercent(r.Periods[models.Period1D].Percent) }
			return ordered(reg.Rank(table, state), len(table), key, state.Direction)
		},
		values,
		gen.Bool(),
	))

	properties.Property("number column stays ordered", prop.ForAll(
		func(values []string, asc bool) bool {
			table := make([]*models.TickerRecord, len(values))
			for i, v := range values {
				table[i] = &models.TickerRecord{Ticker: fmt.Sprint(i), PERatio: v}
			}
			state := models.SortState{Column: ColPERatio, Direction: models.SortDesc}
			if asc {
				state.Direction = models.SortAsc
			}
			key := func(r *models.TickerRecord) float64 { return ParseNumber(r.PERatio) }
			return ordered(reg.Rank(table, state), len(table), key, state.Direction)
		},
		values,
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestRankNaNDegradesToZero(t *testing.T) {
	reg := Standard()
	table := []*models.TickerRecord{
		{Ticker: "A", PERatio: "30"},
		{Ticker: "B", PERatio: "nan"},
		{Ticker: "C", PERatio: "10"},
		{Ticker: "D", PERatio: "20"},
		{Ticker: "E", PERatio: "5"},
	}
	got := tickers(reg.Rank(table, models.SortState{Column: ColPERatio, Direction: models.SortAsc}))
	if fmt.Sprint(got) != "[B E C D A]" {
		t.Errorf("Rank() = %v, want [B E C D A]", got)
	}

	for _, s := range []string{"nan", "NaN", "+Inf", "-inf"} {
		if v := ParseNumber(s); v != 0 {
			t.Errorf("ParseNumber(%q) = %v, want 0", s, v)
		}
	}
	col, _ := reg.Lookup(ColPERatio)
	if c := cmpKeys(col, math.NaN(), "", 5, ""); c != -1 {
		t.Errorf("cmpKeys(NaN, 5) = %d, want -1", c)
	}
}
