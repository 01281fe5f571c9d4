// Package models contains the data structures shared by the dashboard engine.
package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Period identifies a trailing price window reported per ticker.
type Period string

const (
	Period1D Period = "1D"
	Period5D Period = "5D"
	Period1M Period = "1M"
	Period6M Period = "6M"
	Period1Y Period = "1Y"
)

// Periods lists the windows in display order.
var Periods = []Period{Period1D, Period5D, Period1M, Period6M, Period1Y}

// Unavailable is the backend marker for "no value right now".
const Unavailable = "N/A"

// PeriodWindow holds the OHLC summary of one trailing window.
type PeriodWindow struct {
	Low          float64 `json:"low"`
	High         float64 `json:"high"`
	Open         float64 `json:"open"`
	Close        float64 `json:"close"`
	Percent      string  `json:"percentage"`
	RangePercent string  `json:"high_low_percentage"`
}

// TodayStats holds the intraday figures of a ticker.
// SMA values are nil when the backend has no indicator for the ticker.
type TodayStats struct {
	Low                     float64  `json:"low"`
	High                    float64  `json:"high"`
	Open                    float64  `json:"open"`
	Close                   float64  `json:"close"`
	PrevClose               float64  `json:"prev_close"`
	ChangePercent           string   `json:"change"`
	AfterHoursChangePercent string   `json:"ah_change"`
	SMA20                   *float64 `json:"sma20"`
	SMA50                   *float64 `json:"sma50"`
	SMA200                  *float64 `json:"sma200"`
}

// TickerRecord is one row of the dashboard table. Ticker is the row key
// and never changes once the row exists.
type TickerRecord struct {
	Ticker          string
	Sector          string
	IsLeveraged     bool
	MarketCap       string
	PERatio         string
	EarningDate     string
	Price           string
	AfterHoursPrice string
	Volume          float64
	LastUpdated     string
	Today           *TodayStats
	Periods         map[Period]*PeriodWindow
}

// Window returns the period window or nil.
func (r *TickerRecord) Window(p Period) *PeriodWindow {
	if r.Periods == nil {
		return nil
	}
	return r.Periods[p]
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *TickerRecord) Clone() *TickerRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Today != nil {
		t := *r.Today
		t.SMA20 = cloneFloat(r.Today.SMA20)
		t.SMA50 = cloneFloat(r.Today.SMA50)
		t.SMA200 = cloneFloat(r.Today.SMA200)
		c.Today = &t
	}
	if r.Periods != nil {
		c.Periods = make(map[Period]*PeriodWindow, len(r.Periods))
		for k, w := range r.Periods {
			if w == nil {
				continue
			}
			cw := *w
			c.Periods[k] = &cw
		}
	}
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

// recordWire is the backend representation of a row. Period windows sit at
// the top level keyed by their period name.
type recordWire struct {
	Ticker          string        `json:"ticker"`
	Sector          string        `json:"sector"`
	IsLeveraged     bool          `json:"isleverage"`
	MarketCap       FlexString    `json:"market_cap"`
	PERatio         FlexString    `json:"pe_ratio,omitempty"`
	EarningDate     FlexString    `json:"earning_date"`
	Price           FlexString    `json:"price"`
	AfterHoursPrice FlexString    `json:"after_hour_price"`
	Volume          FlexNumber    `json:"volume"`
	LastUpdated     string        `json:"last_updated,omitempty"`
	Today           *TodayStats   `json:"today,omitempty"`
	D1              *PeriodWindow `json:"1D,omitempty"`
	D5              *PeriodWindow `json:"5D,omitempty"`
	M1              *PeriodWindow `json:"1M,omitempty"`
	M6              *PeriodWindow `json:"6M,omitempty"`
	Y1              *PeriodWindow `json:"1Y,omitempty"`
}

// UnmarshalJSON decodes the backend row shape.
func (r *TickerRecord) UnmarshalJSON(data []byte) error {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = TickerRecord{
		Ticker:          NormalizeTicker(w.Ticker),
		Sector:          w.Sector,
		IsLeveraged:     w.IsLeveraged,
		MarketCap:       string(w.MarketCap),
		PERatio:         string(w.PERatio),
		EarningDate:     string(w.EarningDate),
		Price:           string(w.Price),
		AfterHoursPrice: string(w.AfterHoursPrice),
		Volume:          float64(w.Volume),
		LastUpdated:     w.LastUpdated,
		Today:           w.Today,
	}
	windows := map[Period]*PeriodWindow{
		Period1D: w.D1, Period5D: w.D5, Period1M: w.M1, Period6M: w.M6, Period1Y: w.Y1,
	}
	for p, win := range windows {
		if win == nil {
			continue
		}
		if r.Periods == nil {
			r.Periods = make(map[Period]*PeriodWindow, len(windows))
		}
		r.Periods[p] = win
	}
	return nil
}

// MarshalJSON encodes the row in the same shape the backend uses.
func (r TickerRecord) MarshalJSON() ([]byte, error) {
	w := recordWire{
		Ticker:          r.Ticker,
		Sector:          r.Sector,
		IsLeveraged:     r.IsLeveraged,
		MarketCap:       FlexString(r.MarketCap),
		PERatio:         FlexString(r.PERatio),
		EarningDate:     FlexString(r.EarningDate),
		Price:           FlexString(r.Price),
		AfterHoursPrice: FlexString(r.AfterHoursPrice),
		Volume:          FlexNumber(r.Volume),
		LastUpdated:     r.LastUpdated,
		Today:           r.Today,
		D1:              r.Window(Period1D),
		D5:              r.Window(Period5D),
		M1:              r.Window(Period1M),
		M6:              r.Window(Period6M),
		Y1:              r.Window(Period1Y),
	}
	return json.Marshal(w)
}

// UnmarshalJSON tolerates "N/A" and numeric strings in numeric fields.
func (t *TodayStats) UnmarshalJSON(data []byte) error {
	var w struct {
		Low       FlexNumber `json:"low"`
		High      FlexNumber `json:"high"`
		Open      FlexNumber `json:"open"`
		Close     FlexNumber `json:"close"`
		PrevClose FlexNumber `json:"prev_close"`
		Change    FlexString `json:"change"`
		AHChange  FlexString `json:"ah_change"`
		SMA20     *FlexNumber `json:"sma20"`
		SMA50     *FlexNumber `json:"sma50"`
		SMA200    *FlexNumber `json:"sma200"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = TodayStats{
		Low:                     float64(w.Low),
		High:                    float64(w.High),
		Open:                    float64(w.Open),
		Close:                   float64(w.Close),
		PrevClose:               float64(w.PrevClose),
		ChangePercent:           string(w.Change),
		AfterHoursChangePercent: string(w.AHChange),
		SMA20:                   w.SMA20.Ptr(),
		SMA50:                   w.SMA50.Ptr(),
		SMA200:                  w.SMA200.Ptr(),
	}
	return nil
}

// UnmarshalJSON tolerates "N/A" and numeric strings in numeric fields.
func (p *PeriodWindow) UnmarshalJSON(data []byte) error {
	var w struct {
		Low          FlexNumber `json:"low"`
		High         FlexNumber `json:"high"`
		Open         FlexNumber `json:"open"`
		Close        FlexNumber `json:"close"`
		Percent      FlexString `json:"percentage"`
		RangePercent FlexString `json:"high_low_percentage"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = PeriodWindow{
		Low:          float64(w.Low),
		High:         float64(w.High),
		Open:         float64(w.Open),
		Close:        float64(w.Close),
		Percent:      string(w.Percent),
		RangePercent: string(w.RangePercent),
	}
	return nil
}

// FlexString accepts either a JSON string or a JSON number. Numbers keep
// their literal text so "1.2B" and 1200000000 both survive decoding.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
	default:
		*s = FlexString(string(data))
	}
	return nil
}

// FlexNumber accepts a JSON number or a numeric string. Anything else,
// including the "N/A" marker, decodes to zero instead of failing the row.
type FlexNumber float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	text := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}
	v, ok := ParseNumber(text)
	if !ok {
		v = 0
	}
	*n = FlexNumber(v)
	return nil
}

// Ptr converts an optional number to *float64.
func (n *FlexNumber) Ptr() *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}

// NormalizeTicker is the canonical form used to match table rows with
// market data updates.
func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// ParseNumber parses a plain decimal number, ignoring surrounding spaces.
// NaN and infinities are rejected.
func ParseNumber(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, Unavailable) {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
