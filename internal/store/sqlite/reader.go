package sqlite

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"bollinger-service/internal/model"
)

const dsnParams = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

// Reader provides read-only access to the candle history.
type Reader struct {
	db *sqlx.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sqlx.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// NewReaderDB wraps an already opened database.
func NewReaderDB(db *sqlx.DB) *Reader {
	return &Reader{db: db}
}

// DB returns the underlying database for health checks.
func (r *Reader) DB() *sqlx.DB { return r.db }

// ReadCandles returns the newest limit candles of key ordered by timestamp
// ascending. limit <= 0 reads the whole series.
func (r *Reader) ReadCandles(ctx context.Context, key model.SeriesKey, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means no limit
	}
	candles := []model.Candle{}
	err := r.db.SelectContext(ctx, &candles, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND interval_s = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, key.Symbol, key.Interval, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles %s: %w", key, err)
	}
	return candles, nil
}

// ListSeries returns every stored (symbol, interval) pair.
func (r *Reader) ListSeries(ctx context.Context) ([]model.SeriesKey, error) {
	keys := []model.SeriesKey{}
	err := r.db.SelectContext(ctx, &keys, `
		SELECT DISTINCT symbol, interval_s
		FROM candles
		ORDER BY symbol ASC, interval_s ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list series: %w", err)
	}
	return keys, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
