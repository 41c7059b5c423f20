package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"bollinger-service/internal/candlefile"
	"bollinger-service/internal/model"
	redisstore "bollinger-service/internal/store/redis"
	sqlitestore "bollinger-service/internal/store/sqlite"
)

func init() {
	importCmd.Flags().String("file", "", "candle file (.json or .csv)")
	importCmd.Flags().String("symbol", "", "series symbol, e.g. BTCUSDT")
	importCmd.Flags().Int("interval", 60, "candle interval in seconds")
	importCmd.Flags().String("redis", "", "append to the Redis stream at this address instead of SQLite")
	importCmd.MarkFlagRequired("file")
	importCmd.MarkFlagRequired("symbol")
	RootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "import a candle file into the SQLite history or a Redis stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		path, err := flags.GetString("file")
		if err != nil {
			return err
		}
		symbol, err := flags.GetString("symbol")
		if err != nil {
			return err
		}
		interval, err := flags.GetInt("interval")
		if err != nil {
			return err
		}
		redisAddr, err := flags.GetString("redis")
		if err != nil {
			return err
		}
		dbPath, err := flags.GetString("db")
		if err != nil {
			return err
		}

		if interval <= 0 {
			return fmt.Errorf("interval must be positive, got %d", interval)
		}

		candles, err := candlefile.Read(path)
		if err != nil {
			return err
		}

		key := model.SeriesKey{Symbol: symbol, Interval: interval}
		w, target, err := openTarget(dbPath, redisAddr)
		if err != nil {
			return err
		}
		defer w.Close()

		if err := importCandles(cmd.Context(), w, key, candles); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d candles into %s (%s)\n", len(candles), key, target)
		return nil
	},
}

// openTarget returns the Redis stream writer when redisAddr is set and the
// SQLite writer otherwise, plus a label for the summary line.
func openTarget(dbPath, redisAddr string) (model.CandleWriter, string, error) {
	if redisAddr != "" {
		rdb, err := redisstore.Dial(redisstore.Config{Addr: redisAddr})
		if err != nil {
			return nil, "", err
		}
		return streamWriter{client: rdb, w: redisstore.NewWriter(rdb, nil)}, "redis " + redisAddr, nil
	}
	w, err := openWriter(dbPath)
	return w, dbPath, err
}

func openWriter(dbPath string) (model.CandleWriter, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath})
}

// streamWriter seeds a Redis candle stream through the CandleWriter port.
type streamWriter struct {
	client *goredis.Client
	w      *redisstore.Writer
}

func (s streamWriter) InsertCandles(ctx context.Context, key model.SeriesKey, candles []model.Candle) error {
	return s.w.AppendCandles(ctx, key, candles)
}

func (s streamWriter) Close() error { return s.client.Close() }

// importCandles rejects empty files and duplicate timestamps before writing.
func importCandles(ctx context.Context, w model.CandleWriter, key model.SeriesKey, candles []model.Candle) error {
	if len(candles) == 0 {
		return fmt.Errorf("no candles to import for %s", key)
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].TS == candles[i-1].TS {
			return fmt.Errorf("duplicate timestamp %d for %s", candles[i].TS, key)
		}
	}
	return w.InsertCandles(ctx, key, candles)
}
