package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"bollinger-service/internal/indicator"
	"bollinger-service/internal/metrics"
	"bollinger-service/internal/model"
	"bollinger-service/internal/registry"
	"bollinger-service/internal/store"
)

var testKey = model.SeriesKey{Symbol: "BTCUSDT", Interval: 60}

// fakeBands serves closes 1..5 for testKey unless closes is set.
type fakeBands struct {
	mu       sync.Mutex
	err      error
	closes   []float64
	lastKey  model.SeriesKey
	lastP    model.BollingerParams
	lastLim  int
	requests int
}

func (f *fakeBands) Compute(ctx context.Context, key model.SeriesKey, p model.BollingerParams, limit int) ([]model.BandPoint, error) {
	f.mu.Lock()
	f.lastKey, f.lastP, f.lastLim = key, p, limit
	f.requests++
	err, closes := f.err, f.closes
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if key != testKey {
		return nil, store.ErrNoCandles
	}
	if closes == nil {
		closes = []float64{1, 2, 3, 4, 5}
	}
	candles := make([]model.Candle, len(closes))
	for i := range candles {
		candles[i] = model.Candle{TS: int64(i+1) * 60_000, Close: closes[i]}
	}
	return indicator.Bollinger(candles, p), nil
}

func (f *fakeBands) last() (model.SeriesKey, model.BollingerParams, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKey, f.lastP, f.lastLim
}

type memSettings struct {
	mu    sync.Mutex
	opts  model.BollingerOptions
	onSet func(model.BollingerOptions)
}

func (m *memSettings) Get() model.BollingerOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

func (m *memSettings) Set(opts model.BollingerOptions) error {
	opts.Inputs = opts.Inputs.Normalize()
	if err := opts.Inputs.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.opts = opts
	fn := m.onSet
	m.mu.Unlock()
	if fn != nil {
		fn(opts)
	}
	return nil
}

type announcer struct {
	mu   sync.Mutex
	sent []model.BollingerOptions
}

func (a *announcer) PublishSettings(ctx context.Context, opts model.BollingerOptions) error {
	a.mu.Lock()
	a.sent = append(a.sent, opts)
	a.mu.Unlock()
	return nil
}

type seriesStub struct {
	keys []model.SeriesKey
	err  error
}

func (s seriesStub) ListSeries(ctx context.Context) ([]model.SeriesKey, error) {
	return s.keys, s.err
}

type fixture struct {
	mux      *http.ServeMux
	hub      *Hub
	bands    *fakeBands
	settings *memSettings
	ann      *announcer
	prom     *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := registry.New()
	if err := registry.RegisterBuiltins(reg, model.DefaultBollingerOptions()); err != nil {
		t.Fatalf("register: %v", err)
	}

	f := &fixture{
		mux:      http.NewServeMux(),
		bands:    &fakeBands{},
		settings: &memSettings{opts: model.DefaultBollingerOptions()},
		ann:      &announcer{},
		prom:     metrics.NewMetrics(prometheus.NewRegistry()),
	}
	f.hub = NewHub(f.bands, f.settings, f.prom, 1000)
	f.settings.onSet = f.hub.OnSettingsChange

	RegisterRoutes(f.mux, Deps{
		Hub:       f.hub,
		Bands:     f.bands,
		Settings:  f.settings,
		Registry:  reg,
		Series:    seriesStub{keys: []model.SeriesKey{testKey, {Symbol: "ETHUSDT", Interval: 300}}},
		Announcer: f.ann,
		Health:    http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
		Gatherer:  prometheus.NewRegistry(),
		Metrics:   f.prom,
		MaxLimit:  1000,
	})
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, stringsReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

var errBoom = errors.New("boom")
