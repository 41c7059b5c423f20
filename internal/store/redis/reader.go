package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	goredis "github.com/go-redis/redis/v8"

	"bollinger-service/internal/model"
)

// SettingsChannel carries JSON-encoded model.BollingerOptions pushed by
// another settings surface.
const SettingsChannel = "config:bollinger"

// Reader reads candle history from Redis Streams.
//
// Candles live in "candle:{interval}s:{symbol}" streams, one entry per
// candle with the JSON candle in the "data" field.
type Reader struct {
	client  *goredis.Client
	breaker *Breaker
}

// NewReader wraps client. breaker may be nil.
func NewReader(client *goredis.Client, breaker *Breaker) *Reader {
	return &Reader{client: client, breaker: breaker}
}

// ReadCandles returns the newest limit candles of key in ascending order.
// limit <= 0 reads the whole stream. Entries that fail to decode are skipped.
func (r *Reader) ReadCandles(ctx context.Context, key model.SeriesKey, limit int) ([]model.Candle, error) {
	stream := key.StreamKey()

	var msgs []goredis.XMessage
	err := r.guard(func() error {
		var err error
		if limit > 0 {
			msgs, err = r.client.XRevRangeN(ctx, stream, "+", "-", int64(limit)).Result()
		} else {
			msgs, err = r.client.XRevRange(ctx, stream, "+", "-").Result()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", stream, err)
	}

	candles := make([]model.Candle, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		c, err := decodeCandle(msgs[i])
		if err != nil {
			log.Printf("[redis-reader] skipping %s %s: %v", stream, msgs[i].ID, err)
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func decodeCandle(msg goredis.XMessage) (model.Candle, error) {
	var c model.Candle
	data, ok := msg.Values["data"].(string)
	if !ok {
		return c, fmt.Errorf("missing data field")
	}
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return c, err
	}
	return c, nil
}

// SubscribeChannel subscribes to a Pub/Sub channel and waits for the
// confirmation. Returns nil when the subscription fails.
func (r *Reader) SubscribeChannel(ctx context.Context, channel string) *goredis.PubSub {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("[redis-reader] subscribe to %s failed: %v", channel, err)
		pubsub.Close()
		return nil
	}
	return pubsub
}

// WatchSettings delivers every valid options message published on
// SettingsChannel to fn until ctx is done.
func (r *Reader) WatchSettings(ctx context.Context, fn func(model.BollingerOptions)) error {
	pubsub := r.SubscribeChannel(ctx, SettingsChannel)
	if pubsub == nil {
		return fmt.Errorf("subscribe %s failed", SettingsChannel)
	}
	defer pubsub.Close()
	log.Printf("[redis-reader] subscribed to %s", SettingsChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			opts, err := DecodeSettings(msg.Payload)
			if err != nil {
				log.Printf("[redis-reader] ignoring settings message: %v", err)
				continue
			}
			fn(opts)
		}
	}
}

// DecodeSettings parses a settings payload. Missing fields keep their defaults.
func DecodeSettings(payload string) (model.BollingerOptions, error) {
	opts := model.DefaultBollingerOptions()
	if err := json.Unmarshal([]byte(payload), &opts); err != nil {
		return opts, fmt.Errorf("decode settings: %w", err)
	}
	opts.Inputs = opts.Inputs.Normalize()
	if err := opts.Inputs.Validate(); err != nil {
		return opts, err
	}
	if err := opts.Style.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (r *Reader) guard(fn func() error) error {
	if r.breaker == nil {
		return fn()
	}
	return r.breaker.Do(fn)
}
