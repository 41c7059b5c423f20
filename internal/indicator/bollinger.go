package indicator

import "bollinger-service/internal/model"

// Bands holds the un-shifted intermediate series of one computation.
type Bands struct {
	Basis  Series
	StdDev Series
	Upper  Series
	Lower  Series
}

// ComputeBands builds basis, deviation and raw upper/lower series from
// closes. Upper and lower are defined iff both basis and deviation are.
// No offset is applied.
func ComputeBands(closes []float64, length int, multiplier float64) Bands {
	b := Bands{
		Basis:  SMA(closes, length),
		StdDev: StdDev(closes, length),
		Upper:  make(Series, len(closes)),
		Lower:  make(Series, len(closes)),
	}
	for i := range closes {
		basis, ok := b.Basis.At(i)
		if !ok {
			continue
		}
		sd, ok := b.StdDev.At(i)
		if !ok {
			continue
		}
		width := multiplier * sd
		b.Upper[i] = float(basis + width)
		b.Lower[i] = float(basis - width)
	}
	return b
}

// Bollinger computes Bollinger Bands over candles.
//
// Output is index-aligned with candles: out[i].TS == candles[i].TS for
// every i whatever the offset, only the values move. Basis, upper and
// lower are shifted independently by p.Offset. MAType and Source are not
// consulted; SMA of close is the only supported combination.
func Bollinger(candles []model.Candle, p model.BollingerParams) []model.BandPoint {
	b := ComputeBands(model.Closes(candles), p.Length, p.StdDevMultiplier)

	basis := Shift(b.Basis, p.Offset)
	upper := Shift(b.Upper, p.Offset)
	lower := Shift(b.Lower, p.Offset)

	out := make([]model.BandPoint, len(candles))
	for i := range candles {
		out[i] = model.BandPoint{
			TS:    candles[i].TS,
			Basis: basis[i],
			Upper: upper[i],
			Lower: lower[i],
		}
	}
	return out
}

// LastDefined returns the newest point with a defined basis, as shown in
// legends and tooltips. ok is false when there is none.
func LastDefined(points []model.BandPoint) (p model.BandPoint, ok bool) {
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Defined() {
			return points[i], true
		}
	}
	return model.BandPoint{}, false
}
