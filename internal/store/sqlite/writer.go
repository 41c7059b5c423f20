package sqlite

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"bollinger-service/internal/model"
)

const defaultBatchSize = 500

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db *sqlx.DB
}

// DB returns the underlying database for health checks.
func (w *Writer) DB() *sqlx.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sqlx.Open("sqlite3", cfg.DBPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol     TEXT    NOT NULL,
			interval_s INTEGER NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, interval_s, ts)
		);
	`)
	return err
}

// InsertCandles upserts candles for key, committing every defaultBatchSize rows.
func (w *Writer) InsertCandles(ctx context.Context, key model.SeriesKey, candles []model.Candle) error {
	start := time.Now()
	for lo := 0; lo < len(candles); lo += defaultBatchSize {
		hi := lo + defaultBatchSize
		if hi > len(candles) {
			hi = len(candles)
		}
		if err := w.insertBatch(ctx, key, candles[lo:hi]); err != nil {
			return fmt.Errorf("sqlite insert %s: %w", key, err)
		}
	}
	log.Printf("[sqlite] committed %d candles for %s in %v", len(candles), key, time.Since(start))
	return nil
}

// insertBatch inserts a batch of candles in a single transaction.
func (w *Writer) insertBatch(ctx context.Context, key model.SeriesKey, candles []model.Candle) error {
	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, interval_s, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, key.Symbol, key.Interval, c.TS, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
