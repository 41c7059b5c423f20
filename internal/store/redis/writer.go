package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"bollinger-service/internal/model"
)

// streamMaxLen bounds every candle stream (approximate trimming).
const streamMaxLen = 20000

// Writer appends candles to Redis Streams and publishes band updates.
type Writer struct {
	client  *goredis.Client
	breaker *Breaker
}

// NewWriter wraps client. breaker may be nil.
func NewWriter(client *goredis.Client, breaker *Breaker) *Writer {
	return &Writer{client: client, breaker: breaker}
}

// AppendCandles XADDs candles to the series stream in one pipeline.
func (w *Writer) AppendCandles(ctx context.Context, key model.SeriesKey, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	stream := key.StreamKey()
	err := w.guard(func() error {
		pipe := w.client.Pipeline()
		for i := range candles {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: stream,
				MaxLen: streamMaxLen,
				Approx: true,
				Values: map[string]interface{}{"data": string(candles[i].JSON())},
			})
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}

// bandMessage is the PubSub payload of a band update.
type bandMessage struct {
	Symbol   string          `json:"symbol"`
	Interval int             `json:"interval"`
	Point    model.BandPoint `json:"point"`
}

// PublishBands publishes p on the series bands channel.
func (w *Writer) PublishBands(ctx context.Context, key model.SeriesKey, p model.BandPoint) error {
	data, err := json.Marshal(bandMessage{Symbol: key.Symbol, Interval: key.Interval, Point: p})
	if err != nil {
		return fmt.Errorf("marshal band point: %w", err)
	}
	channel := key.BandsChannel()
	return w.guard(func() error {
		return w.client.Publish(ctx, channel, data).Err()
	})
}

// PublishSettings broadcasts opts to every instance watching SettingsChannel.
func (w *Writer) PublishSettings(ctx context.Context, opts model.BollingerOptions) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return w.guard(func() error {
		return w.client.Publish(ctx, SettingsChannel, data).Err()
	})
}

func (w *Writer) guard(fn func() error) error {
	if w.breaker == nil {
		return fn()
	}
	return w.breaker.Do(fn)
}
