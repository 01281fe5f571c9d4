package models

import (
	"strings"
	"time"
)

// AlertType is the threshold side that fired.
type AlertType string

const (
	AlertLow  AlertType = "low"
	AlertHigh AlertType = "high"
)

// PriceAlert is a price threshold crossing reported by the backend.
type PriceAlert struct {
	Ticker       string    `json:"ticker"`
	Type         AlertType `json:"type"`
	CurrentPrice float64   `json:"current_price"`
	Threshold    float64   `json:"threshold,omitempty"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// Title returns the human readable alert heading.
func (a PriceAlert) Title() string {
	switch AlertType(strings.ToLower(string(a.Type))) {
	case AlertLow:
		return "Low Price Alert"
	case AlertHigh:
		return "High Price Alert"
	default:
		return "Price Alert"
	}
}

// AlertDelivery is one journaled delivery.
type AlertDelivery struct {
	ID          int64
	Fingerprint string
	Ticker      string
	Type        AlertType
	Price       float64
	Message     string
	DeliveredAt time.Time
}
