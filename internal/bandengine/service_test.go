package bandengine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bollinger-service/config"
	"bollinger-service/internal/model"
	"bollinger-service/internal/registry"
	sqlitestore "bollinger-service/internal/store/sqlite"
)

// testConfig points Redis at a closed port so the service runs on SQLite alone.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		RedisAddr:         "127.0.0.1:1",
		SQLitePath:        filepath.Join(t.TempDir(), "candles.db"),
		HTTPAddr:          "127.0.0.1:0",
		MetricsAddr:       "127.0.0.1:0",
		LogLevel:          "error",
		Bollinger:         model.DefaultBollingerParams(),
		CandleLimit:       1000,
		PublishBands:      true,
		LivenessIntervalS: 1,
	}
}

func seedSQLite(t *testing.T, path string, key model.SeriesKey, n int) {
	t.Helper()
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: path})
	require.NoError(t, err)
	defer w.Close()

	candles := make([]model.Candle, n)
	for i := range candles {
		c := float64(i + 1)
		candles[i] = model.Candle{TS: int64(i+1) * 60_000, Open: c, High: c, Low: c, Close: c}
	}
	require.NoError(t, w.InsertCandles(context.Background(), key, candles))
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := testConfig(t)
	seedSQLite(t, cfg.SQLitePath, btc, 30)

	svc, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestService_ComputeFromSQLite(t *testing.T) {
	svc := newTestService(t)

	points, err := svc.Compute(context.Background(), btc, model.DefaultBollingerParams(), 0)
	require.NoError(t, err)
	require.Len(t, points, 30)
	assert.Nil(t, points[18].Basis)
	require.NotNil(t, points[19].Basis)
	assert.InDelta(t, 10.5, *points[19].Basis, 1e-9)

	assert.Equal(t, 30.0, testutil.ToFloat64(svc.prom.CandlesRead.WithLabelValues("sqlite")))
}

func TestService_RegistersBuiltinsOnce(t *testing.T) {
	svc := newTestService(t)

	def, err := svc.Registry().Lookup(registry.BollingerName)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultLength, def.Defaults.Inputs.Length)

	err = registry.RegisterBuiltins(svc.Registry(), model.DefaultBollingerOptions())
	assert.ErrorIs(t, err, registry.ErrAlreadyRegistered)
}

func TestService_HTTPBands(t *testing.T) {
	svc := newTestService(t)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bands?symbol=BTCUSDT&interval=60&length=5&offset=1", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"offset":1`)

	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"BTCUSDT"`)
}

func TestService_ApplyRemoteSettings(t *testing.T) {
	svc := newTestService(t)

	opts := svc.Settings().Get()
	svc.applyRemoteSettings(opts)
	assert.Equal(t, 0.0, testutil.ToFloat64(svc.prom.SettingsChanges.WithLabelValues("redis")))

	opts.Inputs.Length = 50
	svc.applyRemoteSettings(opts)
	assert.Equal(t, 50, svc.Settings().Get().Inputs.Length)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.SettingsChanges.WithLabelValues("redis")))

	opts.Inputs.Length = -3
	svc.applyRemoteSettings(opts)
	assert.Equal(t, 50, svc.Settings().Get().Inputs.Length)
}

func TestService_RejectsInvalidDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bollinger.Length = -1

	_, err := New(cfg)
	assert.ErrorIs(t, err, model.ErrInvalidParams)
}

func TestService_RunStopsOnCancel(t *testing.T) {
	svc := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
