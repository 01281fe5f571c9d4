package models

import (
	"net/url"
	"strings"
)

// LeverageFilter restricts the table to plain tickers, leveraged products, or both.
type LeverageFilter string

const (
	LeverageTickerOnly   LeverageFilter = "Ticker Only"
	LeverageLeverageOnly LeverageFilter = "Leverage Only"
	LeverageBoth         LeverageFilter = "Both"
)

// ParseLeverageFilter accepts the display names and a few short aliases.
func ParseLeverageFilter(s string) (LeverageFilter, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ticker only", "ticker", "plain":
		return LeverageTickerOnly, true
	case "leverage only", "leverage", "leveraged":
		return LeverageLeverageOnly, true
	case "both", "all", "":
		return LeverageBoth, true
	default:
		return "", false
	}
}

// Filters is the user-selected query for a full reload.
type Filters struct {
	Ticker   string         `json:"ticker" yaml:"ticker"`
	Sector   string         `json:"sector" yaml:"sector"`
	Leverage LeverageFilter `json:"leverage" yaml:"leverage"`
}

// DefaultFilters returns the cleared filter set.
func DefaultFilters() Filters {
	return Filters{Leverage: LeverageBoth}
}

// Params encodes the filters as backend query parameters. The leverage
// parameter is omitted for Both.
func (f Filters) Params() url.Values {
	v := url.Values{}
	v.Set("ticker", strings.TrimSpace(f.Ticker))
	v.Set("sector", f.Sector)
	switch f.Leverage {
	case LeverageLeverageOnly:
		v.Set("leverage_filter", "true")
	case LeverageTickerOnly:
		v.Set("leverage_filter", "false")
	}
	return v
}

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Flip returns the opposite direction.
func (d SortDirection) Flip() SortDirection {
	if d == SortAsc {
		return SortDesc
	}
	return SortAsc
}

// SortState is the single active sort key. A zero Column means no sort.
type SortState struct {
	Column    string        `json:"column"`
	Direction SortDirection `json:"direction"`
}

// Active reports whether a sort column is selected.
func (s SortState) Active() bool { return s.Column != "" }
