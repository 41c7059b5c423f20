package model

import "encoding/json"

// Candle is one OHLCV sample of a series.
// TS is the bucket start in epoch milliseconds; prices are plain floats
// because band math is done in float64 anyway.
type Candle struct {
	TS     int64   `json:"timestamp" db:"ts"`
	Open   float64 `json:"open" db:"open"`
	High   float64 `json:"high" db:"high"`
	Low    float64 `json:"low" db:"low"`
	Close  float64 `json:"close" db:"close"`
	Volume float64 `json:"volume" db:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Closes extracts the close price of every candle, index-aligned.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// SeriesKey identifies one stored candle series.
type SeriesKey struct {
	Symbol   string `json:"symbol" db:"symbol"`
	Interval int    `json:"interval" db:"interval_s"` // seconds
}

// String returns "symbol@{interval}s".
func (k SeriesKey) String() string {
	return k.Symbol + "@" + Itoa(k.Interval) + "s"
}

// StreamKey returns the Redis stream key: "candle:{interval}s:{symbol}".
func (k SeriesKey) StreamKey() string {
	return "candle:" + Itoa(k.Interval) + "s:" + k.Symbol
}

// BandsChannel returns the PubSub channel band updates are published on:
// "pub:bands:{interval}s:{symbol}".
func (k SeriesKey) BandsChannel() string {
	return "pub:bands:" + Itoa(k.Interval) + "s:" + k.Symbol
}
