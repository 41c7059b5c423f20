package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the service from concrete storage
// implementations (Redis, SQLite).

// CandleReader reads candle history for one series.
type CandleReader interface {
	// ReadCandles returns the newest limit candles of key in ascending
	// time order. limit <= 0 means no limit.
	ReadCandles(ctx context.Context, key SeriesKey, limit int) ([]Candle, error)
}

// CandleWriter seeds candle history.
type CandleWriter interface {
	// InsertCandles upserts candles for key in one batch.
	InsertCandles(ctx context.Context, key SeriesKey, candles []Candle) error

	// Close releases underlying resources.
	Close() error
}

// SeriesLister enumerates stored series.
type SeriesLister interface {
	ListSeries(ctx context.Context) ([]SeriesKey, error)
}

// BandPublisher pushes the latest band point of a series to downstream consumers.
type BandPublisher interface {
	PublishBands(ctx context.Context, key SeriesKey, p BandPoint) error
}

// SettingsPublisher announces indicator settings to other instances.
type SettingsPublisher interface {
	PublishSettings(ctx context.Context, opts BollingerOptions) error
}
