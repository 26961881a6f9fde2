package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/folio/internal/analytics"
)

var csvDateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"}

// CSVProvider reads <dir>/<SYMBOL>.csv files with a date,close header.
type CSVProvider struct {
	dir    string
	logger zerolog.Logger
}

// NewCSVProvider serves files from dir.
func NewCSVProvider(dir string, logger zerolog.Logger) *CSVProvider {
	return &CSVProvider{
		dir:    dir,
		logger: logger.With().Str("component", "csv_prices").Logger(),
	}
}

// GetReturns implements Provider.
func (c *CSVProvider) GetReturns(ctx context.Context, req Request) (*Result, error) {
	return returnsFromHistory(ctx, c, req, c.logger)
}

// History implements HistorySource. The window is anchored at the newest row of the file.
func (c *CSVProvider) History(_ context.Context, symbol string, r Range) ([]analytics.PricePoint, error) {
	name := filepath.Base(strings.ToUpper(symbol)) + ".csv"
	records, err := readCSVFile(filepath.Join(c.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w for %s", ErrNoData, symbol)
		}
		return nil, err
	}
	if len(records) <= 1 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}

	points := make([]analytics.PricePoint, 0, len(records)-1)
	for line, record := range records[1:] {
		if len(record) < 2 {
			return nil, fmt.Errorf("%s line %d: expected date,close", name, line+2)
		}
		date, err := parseCSVDate(record[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, line+2, err)
		}
		closeValue, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, line+2, err)
		}
		points = append(points, analytics.PricePoint{Date: date, Close: closeValue})
	}

	return windowed(MonthlyCloses(points), MonthsForRange(r)+1), nil
}

// windowed keeps the last n points.
func windowed(points []analytics.PricePoint, n int) []analytics.PricePoint {
	if len(points) > n {
		return points[len(points)-n:]
	}
	return points
}

func parseCSVDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}
