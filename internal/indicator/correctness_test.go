package indicator

import (
	"math"
	"testing"

	"bollinger-service/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func candlesFromCloses(closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			TS:   1_700_000_000_000 + int64(i)*60_000,
			Open: c, High: c + 0.5, Low: c - 0.5, Close: c,
			Volume: 100,
		}
	}
	return out
}

func assertClose(t *testing.T, label string, got *float64, want, tol float64) {
	t.Helper()
	if got == nil {
		t.Errorf("%s: got nil, want %.6f", label, want)
		return
	}
	if math.Abs(*got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, *got, want, tol, math.Abs(*got-want))
	}
}

func assertNil(t *testing.T, label string, got *float64) {
	t.Helper()
	if got != nil {
		t.Errorf("%s: got %.6f, want nil", label, *got)
	}
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA at 2: (100+102+104)/3 = 102
	// SMA at 3: (102+104+103)/3 = 103
	// SMA at 4: (104+103+105)/3 = 104
	got := SMA([]float64{100, 102, 104, 103, 105}, 3)
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	assertNil(t, "SMA(3)[0]", got[0])
	assertNil(t, "SMA(3)[1]", got[1])
	assertClose(t, "SMA(3)[2]", got[2], 102, 1e-9)
	assertClose(t, "SMA(3)[3]", got[3], 103, 1e-9)
	assertClose(t, "SMA(3)[4]", got[4], 104, 1e-9)
}

func TestSMA_NonPositiveLength(t *testing.T) {
	for _, length := range []int{0, -1, -20} {
		got := SMA([]float64{1, 2, 3}, length)
		if len(got) != 3 {
			t.Fatalf("length %d: len = %d, want 3", length, len(got))
		}
		if definedCount(got) != 0 {
			t.Errorf("length %d: expected all nil, got %d defined", length, definedCount(got))
		}
	}
}

func TestSMA_LengthOne_IsIdentity(t *testing.T) {
	vals := []float64{3.5, -1, 7}
	got := SMA(vals, 1)
	for i, v := range vals {
		assertClose(t, "SMA(1)", got[i], v, 0)
	}
}

func TestSMA_LengthLongerThanSeries(t *testing.T) {
	got := SMA([]float64{1, 2, 3}, 4)
	if definedCount(got) != 0 {
		t.Errorf("expected all nil, got %d defined", definedCount(got))
	}
}

func TestSMA_RunningSumDrift(t *testing.T) {
	// Long series of awkward decimals: the incremental sum must stay within
	// tolerance of a fresh per-window sum.
	vals := make([]float64, 5000)
	for i := range vals {
		vals[i] = 10000 + 0.1*float64(i%97) + 0.01*float64(i%13)
	}
	const length = 50
	got := SMA(vals, length)
	for i := length - 1; i < len(vals); i++ {
		want := windowSum(vals[i-length+1:i+1]) / length
		assertClose(t, "SMA drift", got[i], want, 1e-6)
	}
}

// ────────────────────────────────────────────────────────────
// StdDev
// ────────────────────────────────────────────────────────────

func naivePopStdDev(w []float64) float64 {
	var mean float64
	for _, v := range w {
		mean += v
	}
	mean /= float64(len(w))
	var ss float64
	for _, v := range w {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(w)))
}

func TestStdDev_Population(t *testing.T) {
	// Population (not sample) deviation of [2,4,4,4,5,5,7,9] is exactly 2.
	got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
	assertClose(t, "StdDev(8)", got[7], 2, 1e-12)
	for i := 0; i < 7; i++ {
		assertNil(t, "StdDev warm-up", got[i])
	}
}

func TestStdDev_LengthAtMostOne(t *testing.T) {
	for _, length := range []int{1, 0, -3} {
		got := StdDev([]float64{1, 2, 3, 4}, length)
		if definedCount(got) != 0 {
			t.Errorf("length %d: expected all nil, got %d defined", length, definedCount(got))
		}
	}
}

func TestStdDev_LargeWindowLargePrices(t *testing.T) {
	// Large offsets with tiny spread: a sum-of-squares shortcut loses every
	// significant digit here, the two-pass evaluation must not.
	const length = 200
	vals := make([]float64, 1000)
	for i := range vals {
		vals[i] = 1e9 + float64(i%7)*0.001
	}
	got := StdDev(vals, length)
	for i := length - 1; i < len(vals); i++ {
		want := naivePopStdDev(vals[i-length+1 : i+1])
		assertClose(t, "StdDev large", got[i], want, 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// Bollinger scenarios
// ────────────────────────────────────────────────────────────

const (
	sd123    = 0.816496580927726 // population deviation of three consecutive integers
	bandTol  = 1e-5
	exactTol = 1e-12
)

func TestBollinger_ScenarioA(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3, 4, 5)
	out := Bollinger(candles, model.BollingerParams{Length: 3, StdDevMultiplier: 2})

	if len(out) != 5 {
		t.Fatalf("len = %d, want 5", len(out))
	}
	for i := 0; i < 2; i++ {
		assertNil(t, "basis warm-up", out[i].Basis)
		assertNil(t, "upper warm-up", out[i].Upper)
		assertNil(t, "lower warm-up", out[i].Lower)
	}
	for i, basis := range map[int]float64{2: 2, 3: 3, 4: 4} {
		assertClose(t, "basis", out[i].Basis, basis, exactTol)
		assertClose(t, "upper", out[i].Upper, basis+2*sd123, bandTol)
		assertClose(t, "lower", out[i].Lower, basis-2*sd123, bandTol)
	}
	assertClose(t, "upper[2]", out[2].Upper, 3.63299, bandTol)
	assertClose(t, "lower[2]", out[2].Lower, 0.36701, bandTol)
	assertClose(t, "upper[4]", out[4].Upper, 5.63299, bandTol)
	assertClose(t, "lower[4]", out[4].Lower, 2.36701, bandTol)
}

func TestBollinger_ScenarioB_OffsetOne(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3, 4, 5)
	out := Bollinger(candles, model.BollingerParams{Length: 3, StdDevMultiplier: 2, Offset: 1})

	for i := 0; i < 3; i++ {
		assertNil(t, "basis", out[i].Basis)
		assertNil(t, "upper", out[i].Upper)
		assertNil(t, "lower", out[i].Lower)
	}
	assertClose(t, "basis[3]", out[3].Basis, 2, exactTol)
	assertClose(t, "upper[3]", out[3].Upper, 3.63299, bandTol)
	assertClose(t, "lower[3]", out[3].Lower, 0.36701, bandTol)
	assertClose(t, "basis[4]", out[4].Basis, 3, exactTol)
	assertClose(t, "upper[4]", out[4].Upper, 4.63299, bandTol)
	assertClose(t, "lower[4]", out[4].Lower, 1.36701, bandTol)

	for i := range out {
		if out[i].TS != candles[i].TS {
			t.Errorf("ts[%d] = %d, want %d", i, out[i].TS, candles[i].TS)
		}
	}
}

func TestBollinger_ScenarioC_ZeroLength(t *testing.T) {
	out := Bollinger(candlesFromCloses(5, 4, 3, 2, 1, 0), model.BollingerParams{Length: 0, StdDevMultiplier: 2})
	for i, p := range out {
		if p.Basis != nil || p.Upper != nil || p.Lower != nil {
			t.Errorf("point %d: expected all nil, got %+v", i, p)
		}
	}
}

func TestBollinger_LengthOne_NoBands(t *testing.T) {
	out := Bollinger(candlesFromCloses(1, 2, 3), model.BollingerParams{Length: 1, StdDevMultiplier: 2})
	for i, p := range out {
		assertClose(t, "basis", p.Basis, float64(i+1), 0)
		assertNil(t, "upper", p.Upper)
		assertNil(t, "lower", p.Lower)
	}
}

func TestBollinger_Empty(t *testing.T) {
	out := Bollinger(nil, model.DefaultBollingerParams())
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", out)
	}
}

func TestBollinger_WarmUpBoundary(t *testing.T) {
	closes := []float64{10, 11, 9, 12, 14, 13, 15, 16, 12, 11, 10, 18}
	const length = 5
	out := Bollinger(candlesFromCloses(closes...), model.BollingerParams{Length: length, StdDevMultiplier: 2})
	for i := 0; i < length-1; i++ {
		assertNil(t, "basis warm-up", out[i].Basis)
	}
	assertClose(t, "first basis", out[length-1].Basis, (10+11+9+12+14)/5.0, exactTol)
}

func TestBollinger_ConstantPrice(t *testing.T) {
	const c = 101.25 // exactly representable, so every window sum is exact
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = c
	}
	for _, mult := range []float64{0, 1, 2, 3.5, -2} {
		out := Bollinger(candlesFromCloses(closes...), model.BollingerParams{Length: 20, StdDevMultiplier: mult})
		for i := 19; i < len(out); i++ {
			assertClose(t, "basis", out[i].Basis, c, 0)
			assertClose(t, "upper", out[i].Upper, c, 0)
			assertClose(t, "lower", out[i].Lower, c, 0)
		}
	}
}

func TestBollinger_NegativeMultiplierInvertsBands(t *testing.T) {
	out := Bollinger(candlesFromCloses(1, 2, 3, 4, 5), model.BollingerParams{Length: 3, StdDevMultiplier: -2})
	for i := 2; i < 5; i++ {
		if !(*out[i].Upper < *out[i].Basis && *out[i].Basis < *out[i].Lower) {
			t.Errorf("point %d: expected upper < basis < lower, got %v %v %v", i, *out[i].Upper, *out[i].Basis, *out[i].Lower)
		}
	}
}

func TestBollinger_DoesNotMutateInput(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3, 4, 5)
	before := make([]model.Candle, len(candles))
	copy(before, candles)

	Bollinger(candles, model.BollingerParams{Length: 2, StdDevMultiplier: 1, Offset: -1})

	for i := range candles {
		if candles[i] != before[i] {
			t.Fatalf("candle %d mutated: %+v -> %+v", i, before[i], candles[i])
		}
	}
}

func TestLastDefined(t *testing.T) {
	out := Bollinger(candlesFromCloses(1, 2, 3, 4, 5), model.BollingerParams{Length: 3, StdDevMultiplier: 2, Offset: -1})
	p, ok := LastDefined(out)
	if !ok {
		t.Fatal("expected a defined point")
	}
	if p.TS != out[3].TS {
		t.Errorf("last defined ts = %d, want %d", p.TS, out[3].TS)
	}
	assertClose(t, "last basis", p.Basis, 4, exactTol)

	if _, ok := LastDefined(Bollinger(candlesFromCloses(1, 2), model.DefaultBollingerParams())); ok {
		t.Error("expected no defined point during warm-up")
	}
}

func definedCount(s Series) int {
	n := 0
	for _, v := range s {
		if v != nil {
			n++
		}
	}
	return n
}
