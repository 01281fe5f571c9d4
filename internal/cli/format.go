package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"stockwatch/internal/models"
	"stockwatch/internal/ranking"
	"stockwatch/pkg/utils"
)

// defaultColumns is the compact column set shown by watch.
var defaultColumns = []string{
	ranking.ColTicker,
	ranking.ColSector,
	ranking.ColPrice,
	ranking.ColAHPrice,
	ranking.ColAHChange,
	ranking.ColTodayChange,
	"1D_percentage",
	"5D_percentage",
	"1M_percentage",
	ranking.ColMarketCap,
	ranking.ColSMA50,
}

const _sectorWidth = 18

// FormatCell returns the terminal text for one cell. Missing values print as "-".
func FormatCell(col ranking.Column, r *models.TickerRecord) string {
	if col.Kind == ranking.KindIndicator {
		v := col.Indicator(r)
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.2f", *v)
	}
	raw := strings.TrimSpace(col.Raw(r))
	if raw == "" || strings.EqualFold(raw, models.Unavailable) {
		return "-"
	}
	switch col.Kind {
	case ranking.KindText:
		if col.ID == ranking.ColSector {
			return utils.Truncate(raw, _sectorWidth)
		}
	case ranking.KindPercent:
		if !strings.HasSuffix(raw, "%") {
			return utils.FormatPercent(ranking.ParsePercent(raw))
		}
	}
	return raw
}

// selectColumns resolves ids against the registry and drops after-hours
// columns outside extended hours. Unknown ids are skipped.
func selectColumns(reg *ranking.Registry, ids []string, extended bool) []ranking.Column {
	if len(ids) == 0 {
		ids = defaultColumns
	}
	cols := make([]ranking.Column, 0, len(ids))
	for _, id := range ids {
		c, ok := reg.Lookup(id)
		if !ok || (c.ExtendedHoursOnly && !extended) {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func headerLabel(col ranking.Column, snap *models.Snapshot) string {
	label := col.Label
	if snap.Sort.Column == col.ID {
		if snap.Sort.Direction == models.SortAsc {
			label += " ▲"
		} else {
			label += " ▼"
		}
	}
	if snap.SortPending == col.ID {
		label += " …"
	}
	return label
}

// RenderSnapshot writes the status line, any banners and the table.
func RenderSnapshot(o *Output, reg *ranking.Registry, snap *models.Snapshot, columnIDs []string) {
	polling := "off"
	if snap.Polling {
		polling = "every " + snap.Interval
	}
	status := fmt.Sprintf("Session %s │ %d of %d rows │ Refresh %s", snap.Session, len(snap.Rows), snap.Total, polling)
	if !snap.UpdatedAt.IsZero() {
		status += " │ Updated " + snap.UpdatedAt.Local().Format("15:04:05")
	}
	o.Bold("%s", status)
	o.Dim("Filters: ticker=%q sector=%q leverage=%s", snap.Filters.Ticker, snap.Filters.Sector, snap.Filters.Leverage)

	switch {
	case snap.Reloading:
		o.Info("Loading…")
	case snap.Merging:
		o.Dim("Refreshing prices…")
	}
	if b := snap.Error; b != nil {
		renderBanner(o, o.red, b)
	}
	if b := snap.Warning; b != nil {
		renderBanner(o, o.yellow, b)
	}

	cols := selectColumns(reg, columnIDs, snap.ExtendedHours)
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = headerLabel(c, snap)
	}
	table := NewTable(o, headers...)
	for _, r := range snap.Rows {
		row := make([]cell, len(cols))
		for i, c := range cols {
			text := FormatCell(c, r)
			row[i] = cell{text: text}
			if c.Kind == ranking.KindPercent && text != "-" {
				row[i].color = o.tone(ranking.ParsePercent(text))
			}
		}
		table.addCells(row)
	}
	table.Render()
	if len(snap.Rows) == 0 && !snap.Reloading {
		o.Dim("No tickers match the current filters.")
	}
}

func renderBanner(o *Output, c *color.Color, b *models.Banner) {
	c.Fprintln(o.writer, b.Title+": "+b.Message)
	for _, d := range b.Details {
		c.Fprintln(o.writer, "  "+d)
	}
}

const watchHelp = `Commands:
  t <text>         filter by ticker (debounced)
  s <sector>       filter by sector ("" for all)
  l <leverage>     ticker | leverage | both
  c <column>       click a column header to sort
  clear            reset filters and sort
  r                reload now
  p                toggle auto refresh
  i <interval>     refresh interval: 1M 5M 15M 1H
  u [force]        ask the backend to update ticker data
  n                reset delivered alerts
  d                dismiss the error banner
  cols             list column ids
  q                quit`

// parseCommand splits an interactive line into verb and argument.
func parseCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	verb, arg, _ := strings.Cut(line, " ")
	return strings.ToLower(verb), strings.Trim(strings.TrimSpace(arg), `"`)
}
