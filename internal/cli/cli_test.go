package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"stockwatch/internal/config"
	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/ranking"
	"stockwatch/internal/refresh"
)

func ptr(v float64) *float64 { return &v }

func sampleRows() []*models.TickerRecord {
	return []*models.TickerRecord{
		{
			Ticker: "NVDA", Sector: "Semiconductors and Semiconductor Equipment", Price: "$120.50",
			AfterHoursPrice: "$121.00", MarketCap: "$2.9T",
			Today:   &models.TodayStats{ChangePercent: "2.10%", AfterHoursChangePercent: "0.41%", SMA50: ptr(110.123)},
			Periods: map[models.Period]*models.PeriodWindow{models.Period1D: {Percent: "2.10%"}, models.Period5D: {Percent: "-1.5%"}},
		},
		{
			Ticker: "AAPL", Sector: "Technology", Price: "N/A",
			Today: &models.TodayStats{ChangePercent: "-0.80%"},
		},
	}
}

// Property 9: Cells are never blank
//
// For any display text, FormatCell yields a non-empty string, and yields "-"
// exactly when the value is blank or the unavailable marker.
func TestProperty9_CellsNeverBlank(t *testing.T) {
	reg := ranking.Standard()
	price, _ := reg.Lookup(ranking.ColPrice)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("blank or N/A prints a dash", prop.ForAll(
		func(raw string) bool {
			got := FormatCell(price, &models.TickerRecord{Price: raw})
			if got == "" {
				return false
			}
			missing := strings.TrimSpace(raw) == "" || strings.EqualFold(strings.TrimSpace(raw), models.Unavailable)
			return missing == (got == "-") || strings.TrimSpace(raw) == "-"
		},
		gen.OneGenOf(gen.AlphaString(), gen.Const("N/A"), gen.Const("  "), gen.Const("$1,234.50")),
	))

	properties.TestingRun(t)
}

func TestFormatCell(t *testing.T) {
	reg := ranking.Standard()
	col := func(id string) ranking.Column {
		c, ok := reg.Lookup(id)
		if !ok {
			t.Fatalf("unknown column %s", id)
		}
		return c
	}
	rows := sampleRows()

	tests := []struct {
		col  string
		row  *models.TickerRecord
		want string
	}{
		{ranking.ColPrice, rows[0], "$120.50"},
		{ranking.ColPrice, rows[1], "-"},
		{ranking.ColSMA50, rows[0], "110.12"},
		{ranking.ColSMA50, rows[1], "-"},
		{ranking.ColSector, rows[0], "Semiconductors an…"},
		{"5D_percentage", rows[0], "-1.5%"},
		{"1M_percentage", rows[0], "-"},
	}
	for _, tt := range tests {
		if got := FormatCell(col(tt.col), tt.row); got != tt.want {
			t.Errorf("FormatCell(%s, %s) = %q, want %q", tt.col, tt.row.Ticker, got, tt.want)
		}
	}
}

func TestRenderSnapshotHidesAfterHoursColumns(t *testing.T) {
	reg := ranking.Standard()
	snap := &models.Snapshot{
		Rows:    sampleRows(),
		Total:   2,
		Session: "RTH",
		Sort:    models.SortState{Column: "1D_percentage", Direction: models.SortDesc},
		Filters: models.DefaultFilters(),
		Error: &models.Banner{
			Title:   "Error",
			Message: "Failed to load tickers",
			Details: []string{"Status: 503", "Message: upstream down"},
		},
	}

	var buf bytes.Buffer
	RenderSnapshot(newOutput(&buf, false, false), reg, snap, nil)
	out := buf.String()

	if strings.Contains(out, "AH Price") {
		t.Error("after-hours column rendered during regular hours")
	}
	if !strings.Contains(out, "1D % ▼") {
		t.Errorf("sort marker missing:\n%s", out)
	}
	if !strings.Contains(out, "Status: 503") {
		t.Errorf("banner details missing:\n%s", out)
	}
	if strings.Index(out, "NVDA") > strings.Index(out, "AAPL") {
		t.Error("rows not rendered in snapshot order")
	}

	buf.Reset()
	snap.ExtendedHours = true
	snap.Session = "AH"
	snap.SortPending = ranking.ColAHPrice
	RenderSnapshot(newOutput(&buf, false, false), reg, snap, nil)
	if !strings.Contains(buf.String(), "AH Price …") {
		t.Errorf("pending after-hours sort not shown:\n%s", buf.String())
	}
}

func TestRenderSnapshotEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderSnapshot(newOutput(&buf, false, false), ranking.Standard(), &models.Snapshot{Session: "CLOSED"}, []string{"ticker", "price"})
	if !strings.Contains(buf.String(), "No tickers match") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line, verb, arg string
	}{
		{"t aapl", "t", "aapl"},
		{"  S   Information Technology ", "s", "Information Technology"},
		{`s ""`, "s", ""},
		{"Q", "q", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		verb, arg := parseCommand(tt.line)
		if verb != tt.verb || arg != tt.arg {
			t.Errorf("parseCommand(%q) = (%q, %q), want (%q, %q)", tt.line, verb, arg, tt.verb, tt.arg)
		}
	}
}

type fakeController struct {
	snap    models.Snapshot
	calls   []string
	pollErr error
}

func (f *fakeController) Snapshot() *models.Snapshot { s := f.snap; return &s }
func (f *fakeController) Columns() []ranking.Column { return ranking.Standard().Columns() }
func (f *fakeController) SetFilters(models.Filters) error {
	f.calls = append(f.calls, "filters")
	return nil
}
func (f *fakeController) SetTickerFilter(text string) error {
	f.calls = append(f.calls, "ticker:"+text)
	return nil
}
func (f *fakeController) SetSector(s string) error {
	f.calls = append(f.calls, "sector:"+s)
	return nil
}
func (f *fakeController) SetLeverage(l models.LeverageFilter) error {
	if _, ok := models.ParseLeverageFilter(string(l)); !ok {
		return apperrors.ErrInvalidLeverage
	}
	f.calls = append(f.calls, "leverage:"+string(l))
	return nil
}
func (f *fakeController) ClearFilters() error {
	f.calls = append(f.calls, "clear")
	return nil
}
func (f *fakeController) ClickColumn(c string) (models.SortState, error) {
	if _, ok := ranking.Standard().Lookup(c); !ok {
		return models.SortState{}, apperrors.ErrUnknownColumn
	}
	f.calls = append(f.calls, "click:"+c)
	return models.SortState{Column: c, Direction: models.SortDesc}, nil
}
func (f *fakeController) SetSort(models.SortState) error { return nil }
func (f *fakeController) Reload() error {
	f.calls = append(f.calls, "reload")
	return nil
}
func (f *fakeController) SetRefreshInterval(iv string) error {
	_, err := refresh.ParseInterval(iv)
	return err
}
func (f *fakeController) SetPolling(on bool) error {
	if f.pollErr != nil {
		return f.pollErr
	}
	f.snap.Polling = on
	return nil
}
func (f *fakeController) ForceUpdate(_ context.Context, force bool) error {
	if force {
		f.calls = append(f.calls, "update:force")
	} else {
		f.calls = append(f.calls, "update")
	}
	return nil
}
func (f *fakeController) DismissBanner() error { return nil }
func (f *fakeController) ResetNotifications() int { return 2 }

func TestApplyCommand(t *testing.T) {
	ctx := context.Background()
	ctrl := &fakeController{}

	for _, line := range []string{"t msft", "s Energy", "l leverage", "c price", "r", "u", "u force", "clear"} {
		if _, err := applyCommand(ctx, ctrl, line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
	want := "ticker:msft,sector:Energy,leverage:leverage,click:price,reload,update,update:force,clear"
	if got := strings.Join(ctrl.calls, ","); got != want {
		t.Errorf("calls = %s\nwant    %s", got, want)
	}

	msg, err := applyCommand(ctx, ctrl, "p")
	if err != nil || msg != "Auto refresh on" || !ctrl.snap.Polling {
		t.Errorf("toggle on: msg=%q err=%v", msg, err)
	}
	msg, _ = applyCommand(ctx, ctrl, "p")
	if msg != "Auto refresh off" {
		t.Errorf("toggle off: msg=%q", msg)
	}

	msg, _ = applyCommand(ctx, ctrl, "n")
	if msg != "Cleared 2 delivered alerts" {
		t.Errorf("reset msg = %q", msg)
	}

	if _, err := applyCommand(ctx, ctrl, "c nope"); !errors.Is(err, apperrors.ErrUnknownColumn) {
		t.Errorf("unknown column err = %v", err)
	}
	if _, err := applyCommand(ctx, ctrl, "i 2M"); !errors.Is(err, apperrors.ErrInvalidInterval) {
		t.Errorf("bad interval err = %v", err)
	}
	if _, err := applyCommand(ctx, ctrl, "launch"); err == nil {
		t.Error("unknown verb accepted")
	}
	if _, err := applyCommand(ctx, ctrl, "q"); err != errQuit {
		t.Errorf("quit err = %v", err)
	}

	ctrl.pollErr = apperrors.ErrNoTickers
	ctrl.snap.Polling = false
	if _, err := applyCommand(ctx, ctrl, "p"); !errors.Is(err, apperrors.ErrNoTickers) {
		t.Errorf("poll without tickers err = %v", err)
	}
}

func TestInteractQuitsOnEOF(t *testing.T) {
	ctrl := &fakeController{}
	var buf bytes.Buffer
	w := &watcher{out: newOutput(&buf, false, false), ctrl: ctrl, reg: ranking.Standard()}

	err := w.interact(context.Background(), strings.NewReader("t aapl\nr\n"))
	if err != errQuit {
		t.Fatalf("err = %v", err)
	}
	if len(ctrl.calls) != 2 {
		t.Errorf("calls = %v", ctrl.calls)
	}
	if !strings.Contains(buf.String(), "Reloading") {
		t.Errorf("last message not drawn:\n%s", buf.String())
	}
}

func TestWatchOptionsLayering(t *testing.T) {
	app := &App{
		Config: &config.Config{
			Dashboard: config.DashboardConfig{SortColumn: "price", SortDirection: "asc", RefreshInterval: "5M"},
			Views: []config.View{
				{Name: "semis", Ticker: "NVDA", Sector: "Semiconductors", Leverage: "Both", Sort: "1M_percentage", Order: "desc"},
			},
		},
		Logger: zerolog.Nop(),
	}
	cmd := newWatchCmd(app)

	f := watchFlags{view: "semis", leverage: "ticker", order: "desc"}
	opts, err := f.options(app, cmd)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Filters.Ticker != "NVDA" || opts.Filters.Leverage != models.LeverageTickerOnly {
		t.Errorf("filters = %+v", opts.Filters)
	}
	if opts.Sort.Column != "1M_percentage" || opts.Interval != refresh.Interval5M {
		t.Errorf("sort = %+v interval = %s", opts.Sort, opts.Interval)
	}

	bad := watchFlags{sort: "volume_spike"}
	if _, err := bad.options(app, cmd); !errors.Is(err, apperrors.ErrUnknownColumn) {
		t.Errorf("err = %v", err)
	}
	missing := watchFlags{view: "nope"}
	if _, err := missing.options(app, cmd); err == nil {
		t.Error("unknown view accepted")
	}
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(zerolog.Nop())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", t.TempDir()))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := runRoot(t, "version", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	if v["version"] != Version {
		t.Errorf("version = %v", v)
	}
}

func TestConfigShowRedactsToken(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STOCKWATCH_API_TOKEN", "secret-token")
	out, err := runRoot(t, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "secret-token") || !strings.Contains(out, "****") {
		t.Errorf("token not redacted:\n%s", out)
	}
}

func TestAlertsHistoryEmptyJournal(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := runRoot(t, "alerts", "history")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No delivered alerts") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigViewsCreatesTemplate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	root := NewRootCmd(zerolog.Nop())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "views", "--config", dir})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "views.yaml")); err != nil {
		t.Errorf("views.yaml not created: %v", err)
	}
}
