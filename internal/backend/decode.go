package backend

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "stockwatch/internal/errors"
	"stockwatch/internal/models"
)

// Frozen marks a change field the backend is not updating right now.
const Frozen = "FROZEN"

func decodeTable(data []byte) (*models.TablePage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, apperrors.NewDataError("table", "", "empty response", apperrors.ErrMalformedPayload)
	}

	var rows []*models.TickerRecord
	total := -1
	if data[0] == '[' {
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, apperrors.NewDataError("table", "", "decoding rows", err)
		}
	} else {
		var env struct {
			Results []*models.TickerRecord `json:"results"`
			Stocks  []*models.TickerRecord `json:"stocks"`
			Total   *models.FlexNumber     `json:"total"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, apperrors.NewDataError("table", "", "decoding envelope", err)
		}
		rows = env.Results
		if rows == nil {
			rows = env.Stocks
		}
		if env.Total != nil {
			total = int(*env.Total)
		}
	}

	out := make([]*models.TickerRecord, 0, len(rows))
	for _, r := range rows {
		if r == nil || r.Ticker == "" {
			continue
		}
		out = append(out, r)
	}
	if total < 0 {
		total = len(out)
	}
	return &models.TablePage{Rows: out, Total: total}, nil
}

// DecodeDeltas parses a delta payload keyed by ticker. Absent keys, null,
// and the unavailable markers all decode as "no update". A malformed entry
// only loses its own update.
func DecodeDeltas(data []byte) (map[string]models.TickerDelta, error) {
	out, _, err := decodeDeltas(data)
	return out, err
}

// decodeDeltas also returns the tickers whose entry, or whose today block,
// was not an object.
func decodeDeltas(data []byte) (map[string]models.TickerDelta, []string, error) {
	var byTicker map[string]json.RawMessage
	if err := json.Unmarshal(data, &byTicker); err != nil {
		return nil, nil, apperrors.NewDataError("deltas", "", "decoding payload", err)
	}

	out := make(map[string]models.TickerDelta, len(byTicker))
	var skipped []string
	for ticker, raw := range byTicker {
		if isNull(raw) {
			continue
		}
		ticker = models.NormalizeTicker(ticker)
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			skipped = append(skipped, ticker)
			continue
		}
		d := models.TickerDelta{
			Price:           textField(fields, "price", false),
			AfterHoursPrice: textField(fields, "after_hour_price", false),
		}
		if raw, ok := fields["today"]; ok && !isNull(raw) {
			var today map[string]json.RawMessage
			if err := json.Unmarshal(raw, &today); err != nil {
				skipped = append(skipped, ticker+".today")
			} else {
				d.Today = decodeToday(today)
			}
		}
		out[ticker] = d
	}
	sort.Strings(skipped)
	return out, skipped, nil
}

func decodeToday(today map[string]json.RawMessage) *models.TodayDelta {
	return &models.TodayDelta{
		Low:              numberField(today, "low"),
		High:             numberField(today, "high"),
		Open:             numberField(today, "open"),
		Close:            numberField(today, "close"),
		PrevClose:        numberField(today, "prev_close"),
		Change:           textField(today, "change", true),
		AfterHoursChange: textField(today, "ah_change", true),
		SMA20:            indicatorField(today, "sma20"),
		SMA50:            indicatorField(today, "sma50"),
		SMA200:           indicatorField(today, "sma200"),
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func unavailable(s string, frozenToo bool) bool {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, models.Unavailable) {
		return true
	}
	return frozenToo && strings.EqualFold(s, Frozen)
}

func textField(fields map[string]json.RawMessage, key string, frozenToo bool) models.TextUpdate {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return models.TextUpdate{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return models.TextUpdate{}
		}
		s = n.String()
	}
	if unavailable(s, frozenToo) {
		return models.TextUpdate{}
	}
	return models.Text(s)
}

func parseNumberRaw(raw json.RawMessage) (float64, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v, err := n.Float64()
		return v, err == nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	return models.ParseNumber(strings.ReplaceAll(s, ",", ""))
}

func numberField(fields map[string]json.RawMessage, key string) models.NumberUpdate {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return models.NumberUpdate{}
	}
	v, ok := parseNumberRaw(raw)
	if !ok {
		return models.NumberUpdate{}
	}
	return models.Number(v)
}

// indicatorField treats an explicit null as "clear the value".
func indicatorField(fields map[string]json.RawMessage, key string) models.IndicatorUpdate {
	raw, ok := fields[key]
	if !ok {
		return models.IndicatorUpdate{}
	}
	if isNull(raw) {
		return models.Indicator(nil)
	}
	v, ok := parseNumberRaw(raw)
	if !ok {
		return models.IndicatorUpdate{}
	}
	return models.Indicator(&v)
}

type alertWire struct {
	Ticker       string            `json:"ticker"`
	Type         string            `json:"type"`
	CurrentPrice models.FlexNumber `json:"current_price"`
	Threshold    models.FlexNumber `json:"threshold"`
	Message      string            `json:"message"`
	Timestamp    string            `json:"timestamp"`
}

func decodeAlerts(data []byte) ([]models.PriceAlert, error) {
	data = bytes.TrimSpace(data)
	var wire []alertWire
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, apperrors.NewDataError("alerts", "", "decoding alerts", err)
		}
	} else {
		var env struct {
			Alerts []alertWire `json:"alerts"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, apperrors.NewDataError("alerts", "", "decoding alerts", err)
		}
		wire = env.Alerts
	}

	out := make([]models.PriceAlert, 0, len(wire))
	for _, w := range wire {
		typ := models.AlertType(strings.ToLower(strings.TrimSpace(w.Type)))
		if w.Ticker == "" || (typ != models.AlertLow && typ != models.AlertHigh) {
			continue
		}
		out = append(out, models.PriceAlert{
			Ticker:       models.NormalizeTicker(w.Ticker),
			Type:         typ,
			CurrentPrice: float64(w.CurrentPrice),
			Threshold:    float64(w.Threshold),
			Message:      w.Message,
			Timestamp:    parseTimestamp(w.Timestamp),
		})
	}
	return out, nil
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(int64(secs), 0)
	}
	return time.Time{}
}
