// Package store combines the concrete candle stores.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"bollinger-service/internal/model"
)

// ErrNoCandles is returned when no source has the requested series.
var ErrNoCandles = errors.New("no candles for series")

// NamedReader is a candle reader with a label for logs and metrics.
type NamedReader struct {
	Name   string
	Reader model.CandleReader
}

// FallbackReader asks each reader in turn and returns the first non-empty
// answer. Errors from one reader are logged and the next one is tried.
type FallbackReader struct {
	readers []NamedReader

	// OnRead, when set, is told which source answered and how many candles it gave.
	OnRead func(source string, n int)
}

// NewFallbackReader returns a reader over readers in priority order.
// Entries with a nil Reader are skipped.
func NewFallbackReader(readers ...NamedReader) *FallbackReader {
	fr := &FallbackReader{}
	for _, r := range readers {
		if r.Reader != nil {
			fr.readers = append(fr.readers, r)
		}
	}
	return fr
}

// Sources lists the configured reader names in order.
func (f *FallbackReader) Sources() []string {
	names := make([]string, len(f.readers))
	for i, r := range f.readers {
		names[i] = r.Name
	}
	return names
}

// ReadCandles implements model.CandleReader.
func (f *FallbackReader) ReadCandles(ctx context.Context, key model.SeriesKey, limit int) ([]model.Candle, error) {
	var (
		errs     []error
		answered bool
	)
	for _, r := range f.readers {
		candles, err := r.Reader.ReadCandles(ctx, key, limit)
		if err != nil {
			log.Printf("[store] %s read %s failed: %v", r.Name, key, err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
			continue
		}
		if len(candles) == 0 {
			answered = true
			continue
		}
		if f.OnRead != nil {
			f.OnRead(r.Name, len(candles))
		}
		return candles, nil
	}
	if len(errs) > 0 {
		if answered {
			errs = append([]error{ErrNoCandles}, errs...)
		}
		return nil, errors.Join(errs...)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoCandles, key)
}
