package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"stockwatch/internal/models"
)

// SQLiteStore implements Journal using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the journal database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alert_deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint TEXT NOT NULL,
		ticker TEXT NOT NULL,
		type TEXT NOT NULL,
		price REAL NOT NULL,
		message TEXT,
		delivered_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_alert_deliveries_ticker ON alert_deliveries(ticker, delivered_at);
	CREATE INDEX IF NOT EXISTS idx_alert_deliveries_time ON alert_deliveries(delivered_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordDelivery appends one delivered alert.
func (s *SQLiteStore) RecordDelivery(ctx context.Context, d models.AlertDelivery) error {
	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_deliveries (fingerprint, ticker, type, price, message, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.Fingerprint, d.Ticker, string(d.Type), d.Price, d.Message, d.DeliveredAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// Deliveries returns journaled deliveries, newest first.
func (s *SQLiteStore) Deliveries(ctx context.Context, filter DeliveryFilter) ([]models.AlertDelivery, error) {
	query := `SELECT id, fingerprint, ticker, type, price, COALESCE(message, ''), delivered_at FROM alert_deliveries WHERE 1=1`
	args := []interface{}{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, strings.ToUpper(filter.Ticker))
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		query += " AND delivered_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	query += " ORDER BY delivered_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var out []models.AlertDelivery
	for rows.Next() {
		var d models.AlertDelivery
		var typ string
		if err := rows.Scan(&d.ID, &d.Fingerprint, &d.Ticker, &typ, &d.Price, &d.Message, &d.DeliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.Type = models.AlertType(typ)
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountByTicker returns delivery counts per ticker since the given time.
func (s *SQLiteStore) CountByTicker(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, COUNT(*) FROM alert_deliveries
		WHERE delivered_at >= ?
		GROUP BY ticker
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ticker string
		var n int
		if err := rows.Scan(&ticker, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[ticker] = n
	}
	return counts, rows.Err()
}
