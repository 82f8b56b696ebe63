// Package store provides durable persistence for the trade journal.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"algo-trader/internal/models"
)

// TradeJournal is the append-only SQLite record of every committed fill.
// The ledger snapshot holds current state; the journal holds history.
type TradeJournal struct {
	db *sql.DB
}

// NewTradeJournal opens or creates the journal database at dbPath.
func NewTradeJournal(dbPath string) (*TradeJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	j := &TradeJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

func (j *TradeJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		fees REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		closing INTEGER NOT NULL,
		cash_after REAL NOT NULL,
		strategy TEXT,
		attempt_id TEXT NOT NULL UNIQUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (j *TradeJournal) Close() error {
	return j.db.Close()
}

// LogTrade appends a committed trade record. Replaying the same attempt ID
// is a no-op, so a crash between commit and journal write cannot produce a
// duplicate row on recovery.
func (j *TradeJournal) LogTrade(ctx context.Context, rec models.TradeRecord) error {
	closing := 0
	if rec.Closing {
		closing = 1
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades
		(seq, timestamp, symbol, side, quantity, price, fees, realized_pnl, closing, cash_after, strategy, attempt_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Seq, rec.Timestamp, rec.Symbol, string(rec.Side), rec.Quantity,
		rec.Price, rec.Fees, rec.RealizedPnL, closing, rec.CashAfter,
		rec.Strategy, rec.AttemptID,
	)
	if err != nil {
		return fmt.Errorf("failed to log trade: %w", err)
	}
	return nil
}

// Trades returns records in [from, to), ordered by timestamp then
// per-day sequence.
func (j *TradeJournal) Trades(ctx context.Context, from, to time.Time) ([]models.TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, timestamp, symbol, side, quantity, price, fees, realized_pnl, closing, cash_after, strategy, attempt_id
		FROM trades
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp, seq`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var records []models.TradeRecord
	for rows.Next() {
		var rec models.TradeRecord
		var side string
		var closing int
		if err := rows.Scan(&rec.Seq, &rec.Timestamp, &rec.Symbol, &side, &rec.Quantity,
			&rec.Price, &rec.Fees, &rec.RealizedPnL, &closing, &rec.CashAfter,
			&rec.Strategy, &rec.AttemptID); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		rec.Side = models.OrderSide(side)
		rec.Closing = closing == 1
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TradesForDay returns every record for one trading day (YYYY-MM-DD, local).
func (j *TradeJournal) TradesForDay(ctx context.Context, day string) ([]models.TradeRecord, error) {
	start, err := time.ParseInLocation("2006-01-02", day, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid trading day %q: %w", day, err)
	}
	return j.Trades(ctx, start, start.AddDate(0, 0, 1))
}

// Summary aggregates closed-trade statistics over [from, to).
func (j *TradeJournal) Summary(ctx context.Context, from, to time.Time) (models.TradeStats, error) {
	records, err := j.Trades(ctx, from, to)
	if err != nil {
		return models.TradeStats{}, err
	}
	var stats models.TradeStats
	for _, rec := range records {
		if rec.Closing {
			stats.Record(rec.RealizedPnL)
		}
	}
	return stats, nil
}
