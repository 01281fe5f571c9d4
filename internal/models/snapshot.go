package models

import "time"

// TablePage is the result of a full reload.
type TablePage struct {
	Rows  []*TickerRecord `json:"results"`
	Total int             `json:"total"`
}

// Banner is a user-visible error or warning.
type Banner struct {
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Snapshot is an immutable view of the dashboard handed to renderers.
type Snapshot struct {
	Seq           uint64          `json:"seq"`
	Rows          []*TickerRecord `json:"rows"`
	Total         int             `json:"total"`
	Filters       Filters         `json:"filters"`
	Sort          SortState       `json:"sort"`
	SortPending   string          `json:"sort_pending,omitempty"`
	Reloading     bool            `json:"reloading"`
	Merging       bool            `json:"merging"`
	Polling       bool            `json:"polling"`
	Interval      string          `json:"interval"`
	ExtendedHours bool            `json:"extended_hours"`
	Session       string          `json:"session"`
	Error         *Banner         `json:"error,omitempty"`
	Warning       *Banner         `json:"warning,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Tickers returns the row keys in table order.
func (s *Snapshot) Tickers() []string {
	out := make([]string, 0, len(s.Rows))
	for _, r := range s.Rows {
		out = append(out, r.Ticker)
	}
	return out
}
