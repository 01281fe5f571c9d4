// Package store persists the alert delivery journal.
package store

import (
	"context"
	"time"

	"stockwatch/internal/models"
)

// Journal records delivered alerts for later review. It is an audit trail
// only; deduplication never reads from it.
type Journal interface {
	RecordDelivery(ctx context.Context, d models.AlertDelivery) error
	Deliveries(ctx context.Context, filter DeliveryFilter) ([]models.AlertDelivery, error)
	CountByTicker(ctx context.Context, since time.Time) (map[string]int, error)
	Close() error
}

// DeliveryFilter narrows a journal query. Zero fields match everything.
type DeliveryFilter struct {
	Ticker string
	Type   models.AlertType
	Since  time.Time
	Limit  int
}
