package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bollinger-service/internal/candlefile"
	"bollinger-service/internal/model"
	redisstore "bollinger-service/internal/store/redis"
)

func rampCandles(n int) []model.Candle {
	candles := make([]model.Candle, n)
	for i := range candles {
		candles[i] = model.Candle{TS: int64(i+1) * 1000, Close: float64(i + 1)}
	}
	return candles
}

func TestWriteBands_All(t *testing.T) {
	var buf bytes.Buffer
	p := model.BollingerParams{Length: 3, StdDevMultiplier: 2}
	require.NoError(t, writeBands(&buf, rampCandles(4), p, false))

	var points []model.BandPoint
	require.NoError(t, json.Unmarshal(buf.Bytes(), &points))
	require.Len(t, points, 4)
	assert.Nil(t, points[0].Basis)
	require.NotNil(t, points[3].Basis)
	assert.InDelta(t, 3.0, *points[3].Basis, 1e-12)
}

func TestWriteBands_Last(t *testing.T) {
	var buf bytes.Buffer
	p := model.BollingerParams{Length: 2, StdDevMultiplier: 1}
	require.NoError(t, writeBands(&buf, rampCandles(3), p, true))

	var point model.BandPoint
	require.NoError(t, json.Unmarshal(buf.Bytes(), &point))
	assert.Equal(t, int64(3000), point.TS)
	assert.InDelta(t, 2.5, *point.Basis, 1e-12)
	assert.InDelta(t, 3.0, *point.Upper, 1e-12)
	assert.InDelta(t, 2.0, *point.Lower, 1e-12)

	buf.Reset()
	err := writeBands(&buf, rampCandles(1), p, true)
	assert.Error(t, err)
}

func TestWriteBands_NaNClose(t *testing.T) {
	csv := "1000,1,1,1,1,0\n2000,2,2,2,NaN,0\n3000,3,3,3,3,0\n4000,4,4,4,4,0\n"
	candles, err := candlefile.Decode(strings.NewReader(csv), candlefile.FormatCSV)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeBands(&buf, candles, model.BollingerParams{Length: 2, StdDevMultiplier: 2}, false))

	var points []model.BandPoint
	require.NoError(t, json.Unmarshal(buf.Bytes(), &points))
	require.Len(t, points, 4)
	assert.Nil(t, points[1].Basis)
	assert.Nil(t, points[2].Basis)
	require.NotNil(t, points[3].Basis)
	assert.InDelta(t, 3.5, *points[3].Basis, 1e-12)
}

type fakeWriter struct {
	key     model.SeriesKey
	candles []model.Candle
	closed  bool
}

func (f *fakeWriter) InsertCandles(ctx context.Context, key model.SeriesKey, candles []model.Candle) error {
	f.key, f.candles = key, candles
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestImportCandles(t *testing.T) {
	key := model.SeriesKey{Symbol: "BTCUSDT", Interval: 60}

	w := &fakeWriter{}
	require.NoError(t, importCandles(context.Background(), w, key, rampCandles(3)))
	assert.Equal(t, key, w.key)
	assert.Len(t, w.candles, 3)

	assert.Error(t, importCandles(context.Background(), &fakeWriter{}, key, nil))

	dup := rampCandles(2)
	dup[1].TS = dup[0].TS
	assert.Error(t, importCandles(context.Background(), &fakeWriter{}, key, dup))
}

func TestImportAndListSeries(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "eth.csv")
	db := filepath.Join(dir, "db", "candles.db")
	require.NoError(t, os.WriteFile(file, []byte("ts,o,h,l,c,v\n1000,1,1,1,1,5\n2000,2,2,2,2,5\n"), 0o644))

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs([]string{"import", "--file", file, "--symbol", "ETHUSDT", "--interval", "300", "--db", db})
	require.NoError(t, RootCmd.Execute())
	assert.Contains(t, out.String(), "imported 2 candles")

	out.Reset()
	RootCmd.SetArgs([]string{"series", "--db", db})
	require.NoError(t, RootCmd.Execute())
	assert.Contains(t, out.String(), "ETHUSDT")
	assert.Contains(t, out.String(), "candle:300s:ETHUSDT")
}

func TestStreamWriter_Unreachable(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	w := streamWriter{client: rdb, w: redisstore.NewWriter(rdb, nil)}
	defer w.Close()

	key := model.SeriesKey{Symbol: "BTCUSDT", Interval: 60}
	err := importCandles(context.Background(), w, key, rampCandles(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "candle:60s:BTCUSDT")
}

func TestImport_RedisTargetUnreachable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "btc.json")
	require.NoError(t, os.WriteFile(file, []byte(`[{"timestamp":1000,"close":1}]`), 0o644))
	t.Cleanup(func() { importCmd.Flags().Set("redis", "") })

	RootCmd.SetArgs([]string{"import", "--file", file, "--symbol", "BTCUSDT", "--redis", "127.0.0.1:1"})
	err := RootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping 127.0.0.1:1")
}
