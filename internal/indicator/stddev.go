package indicator

import "gonum.org/v1/gonum/stat"

// StdDev calculates the rolling population standard deviation (divide by
// length, not length-1) over values.
//
// length <= 1 yields an all-nil series. Each window is evaluated from
// scratch with a two-pass mean/deviation computation, O(n·length) overall.
func StdDev(values []float64, length int) Series {
	out := make(Series, len(values))
	if length <= 1 {
		return out
	}
	for i := length - 1; i < len(values); i++ {
		out[i] = float(stat.PopStdDev(values[i-length+1:i+1], nil))
	}
	return out
}
