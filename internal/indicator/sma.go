package indicator

// SMA calculates a rolling simple moving average over values.
//
// out[i] is the mean of values[i-length+1..i] for i >= length-1 and nil
// before that. length <= 0 yields an all-nil series.
//
// The window sum is maintained incrementally (add the entering value,
// subtract the leaving one), so the whole series is O(n). Only finite
// values go through the running sum: a window holding NaN or ±Inf is
// summed directly, which lets IEEE propagation produce NaN/Inf for exactly
// the windows that contain the bad value instead of poisoning the running
// sum for the rest of the series.
func SMA(values []float64, length int) Series {
	out := make(Series, len(values))
	if length <= 0 {
		return out
	}

	n := float64(length)
	var sum float64
	nonFinite := 0 // non-finite values currently inside the window

	for i, v := range values {
		if isFinite(v) {
			sum += v
		} else {
			nonFinite++
		}
		if i >= length {
			old := values[i-length]
			if isFinite(old) {
				sum -= old
			} else {
				nonFinite--
			}
		}
		if i < length-1 {
			continue
		}
		if nonFinite > 0 {
			out[i] = float(windowSum(values[i-length+1:i+1]) / n)
			continue
		}
		out[i] = float(sum / n)
	}
	return out
}

func windowSum(w []float64) float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}
