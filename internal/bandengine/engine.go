package bandengine

import (
	"context"
	"errors"
	"log"
	"time"

	"bollinger-service/internal/indicator"
	"bollinger-service/internal/metrics"
	"bollinger-service/internal/model"
	"bollinger-service/internal/registry"
	"bollinger-service/internal/store"
)

// Engine loads candles and turns them into band points on demand.
// It keeps nothing between calls: every Compute reads a fresh candle
// snapshot and runs the full calculation.
type Engine struct {
	calc      registry.CalcFunc
	reader    model.CandleReader
	publisher model.BandPublisher // optional
	prom      *metrics.Metrics    // optional
	limit     int
}

// NewEngine builds an engine running the Bollinger calc registered in reg,
// reading at most limit candles per call (limit <= 0 means the whole series).
func NewEngine(reg *registry.Registry, reader model.CandleReader, publisher model.BandPublisher, prom *metrics.Metrics, limit int) (*Engine, error) {
	def, err := reg.Lookup(registry.BollingerName)
	if err != nil {
		return nil, err
	}
	return &Engine{calc: def.Calc, reader: reader, publisher: publisher, prom: prom, limit: limit}, nil
}

// Compute reads the series and returns its bands. limit overrides the
// engine default when > 0. The newest defined point is published when a
// publisher is configured; publish failures are logged, not returned.
func (e *Engine) Compute(ctx context.Context, key model.SeriesKey, p model.BollingerParams, limit int) ([]model.BandPoint, error) {
	if limit <= 0 {
		limit = e.limit
	}

	candles, err := e.reader.ReadCandles(ctx, key, limit)
	if err != nil {
		if errors.Is(err, store.ErrNoCandles) {
			e.count("no_data")
		} else {
			e.count("error")
		}
		return nil, err
	}

	start := time.Now()
	points := e.calc(candles, p.Normalize())
	if e.prom != nil {
		e.prom.ComputeDur.Observe(time.Since(start).Seconds())
		e.prom.PointsTotal.Add(float64(len(points)))
	}
	e.count("ok")

	e.publish(ctx, key, points)
	return points, nil
}

func (e *Engine) publish(ctx context.Context, key model.SeriesKey, points []model.BandPoint) {
	if e.publisher == nil {
		return
	}
	last, ok := indicator.LastDefined(points)
	if !ok {
		return
	}
	if err := e.publisher.PublishBands(ctx, key, last); err != nil {
		log.Printf("[bandengine] publish %s: %v", key, err)
		if e.prom != nil {
			e.prom.PublishErrors.Inc()
		}
	}
}

func (e *Engine) count(result string) {
	if e.prom != nil {
		e.prom.ComputationsTotal.WithLabelValues(result).Inc()
	}
}
