package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/folio/internal/analytics"
)

// Schema creates the table read by the Postgres market data provider.
const Schema = `
	CREATE TABLE IF NOT EXISTS price_history (
		symbol TEXT        NOT NULL,
		ts     TIMESTAMPTZ NOT NULL,
		close  DOUBLE PRECISION NOT NULL CHECK (close > 0),
		PRIMARY KEY (symbol, ts)
	)`

const upsertPrice = `
	INSERT INTO price_history (symbol, ts, close)
	VALUES ($1, $2, $3)
	ON CONFLICT (symbol, ts) DO UPDATE SET close = EXCLUDED.close`

// PriceStore writes close history into price_history.
type PriceStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPriceStore creates a store with a per-statement timeout.
func NewPriceStore(db *sqlx.DB, timeout time.Duration) *PriceStore {
	if timeout <= 0 {
		timeout = DefaultConfig().QueryTimeout
	}
	return &PriceStore{db: db, timeout: timeout}
}

// EnsureSchema creates price_history when missing.
func (s *PriceStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create price_history: %w", err)
	}
	return nil
}

// Upsert stores points for symbol in one transaction and returns how many were written.
func (s *PriceStore) Upsert(ctx context.Context, symbol string, points []analytics.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(len(points)/100+1))
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPrice)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, symbol, p.Date.UTC(), p.Close); err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" {
				return 0, fmt.Errorf("invalid close %v for %s at %s: %w", p.Close, symbol, p.Date.Format(time.DateOnly), err)
			}
			return 0, fmt.Errorf("failed to upsert price for %s: %w", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prices for %s: %w", symbol, err)
	}
	return len(points), nil
}
