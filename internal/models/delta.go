package models

// TextUpdate is a string field from a delta payload. Ok is false when the
// key was absent or carried an unavailable marker.
type TextUpdate struct {
	Value string
	Ok    bool
}

// NumberUpdate is a numeric field from a delta payload.
type NumberUpdate struct {
	Value float64
	Ok    bool
}

// IndicatorUpdate carries a nullable indicator. Ok with a nil Value clears it.
type IndicatorUpdate struct {
	Value *float64
	Ok    bool
}

// TodayDelta is the partial intraday update for one ticker.
type TodayDelta struct {
	Low              NumberUpdate
	High             NumberUpdate
	Open             NumberUpdate
	Close            NumberUpdate
	PrevClose        NumberUpdate
	Change           TextUpdate
	AfterHoursChange TextUpdate
	SMA20            IndicatorUpdate
	SMA50            IndicatorUpdate
	SMA200           IndicatorUpdate
}

// TickerDelta is the partial field set returned by a delta fetch.
type TickerDelta struct {
	Price           TextUpdate
	AfterHoursPrice TextUpdate
	Today           *TodayDelta
}

// Text returns an available text update.
func Text(v string) TextUpdate { return TextUpdate{Value: v, Ok: true} }

// Number returns an available numeric update.
func Number(v float64) NumberUpdate { return NumberUpdate{Value: v, Ok: true} }

// Indicator returns a present indicator update; nil clears the value.
func Indicator(v *float64) IndicatorUpdate { return IndicatorUpdate{Value: v, Ok: true} }
