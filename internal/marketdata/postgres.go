package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/sawpanic/folio/internal/analytics"
)

// MaxRangeYears bounds the MAX range when querying stored history.
const MaxRangeYears = 15

const historyQuery = `
	SELECT ts, close
	FROM price_history
	WHERE symbol = $1 AND ts >= $2
	ORDER BY ts ASC`

type priceRow struct {
	TS    time.Time `db:"ts"`
	Close float64   `db:"close"`
}

// PostgresProvider reads closes from a price_history(symbol, ts, close) table.
type PostgresProvider struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewPostgresProvider queries db with a per-symbol timeout.
func NewPostgresProvider(db *sqlx.DB, timeout time.Duration, logger zerolog.Logger) *PostgresProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresProvider{
		db:      db,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.With().Str("component", "postgres_prices").Logger(),
	}
}

// GetReturns implements Provider.
func (p *PostgresProvider) GetReturns(ctx context.Context, req Request) (*Result, error) {
	return returnsFromHistory(ctx, p, req, p.logger)
}

// History implements HistorySource. One extra month is loaded so the window yields the
// full number of returns.
func (p *PostgresProvider) History(ctx context.Context, symbol string, r Range) ([]analytics.PricePoint, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	since := p.now().UTC().AddDate(0, -(MonthsForRange(r) + 1), 0)

	var rows []priceRow
	if err := p.db.SelectContext(ctx, &rows, historyQuery, symbol, since); err != nil {
		return nil, fmt.Errorf("query price history for %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}

	points := make([]analytics.PricePoint, len(rows))
	for i, row := range rows {
		points[i] = analytics.PricePoint{Date: row.TS, Close: row.Close}
	}
	return points, nil
}
