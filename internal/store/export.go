package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"algo-trader/internal/models"
)

// WriteCSV renders trade records as CSV, one row per fill.
func WriteCSV(w io.Writer, records []models.TradeRecord) error {
	if err := gocsv.Marshal(&records, w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// ExportCSV writes the journal rows for [from, to) to path.
func (j *TradeJournal) ExportCSV(ctx context.Context, path string, from, to time.Time) (int, error) {
	records, err := j.Trades(ctx, from, to)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(f, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ExportDayCSV writes one trading day's journal rows to path.
func (j *TradeJournal) ExportDayCSV(ctx context.Context, path, day string) (int, error) {
	start, err := time.ParseInLocation("2006-01-02", day, time.Local)
	if err != nil {
		return 0, fmt.Errorf("invalid trading day %q: %w", day, err)
	}
	return j.ExportCSV(ctx, path, start, start.AddDate(0, 0, 1))
}
