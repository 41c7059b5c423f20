// Package indicator computes Bollinger Bands over candle data.
//
// Everything here is a pure function of its arguments: the same candles and
// params always give the same output, nothing is cached between calls and
// inputs are never mutated. Undefined values (warm-up, shifted out of
// range) are nil pointers rather than zeros so callers can tell "no value"
// from 0.
package indicator

import "math"

// Series is an index-aligned sequence of optional values.
type Series []*float64

// At returns the value at i and whether it is defined.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) || s[i] == nil {
		return 0, false
	}
	return *s[i], true
}

func float(v float64) *float64 { return &v }

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
