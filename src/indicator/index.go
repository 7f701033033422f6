package indicator

// Rolling indicators over an immutable close series. Every function returns a
// Set aligned 1:1 with the input; entries before the window is full are marked
// insufficient instead of carrying a fabricated number.

import (
	"gonum.org/v1/gonum/stat"
)

// Point is one per-timestamp indicator value. OK is false while the rolling
// window has not yet filled.
type Point struct {
	Value float64
	OK    bool
}

// Set is an indicator column aligned with the candle series that produced it.
type Set []Point

// Last returns the final point of the set.
func (s Set) Last() (float64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	p := s[len(s)-1]
	return p.Value, p.OK
}

// SMA computes the simple moving average over the given window.
func SMA(closes []float64, window int) Set {
	out := make(Set, len(closes))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(closes); i++ {
		out[i] = Point{Value: stat.Mean(closes[i-window+1:i+1], nil), OK: true}
	}
	return out
}

// StdDev computes the rolling sample standard deviation over the window.
func StdDev(closes []float64, window int) Set {
	out := make(Set, len(closes))
	if window <= 1 {
		return out
	}
	for i := window - 1; i < len(closes); i++ {
		out[i] = Point{Value: stat.StdDev(closes[i-window+1:i+1], nil), OK: true}
	}
	return out
}

// Bollinger returns the upper, middle and lower bands: SMA ± k standard
// deviations over the same window.
func Bollinger(closes []float64, window int, k float64) (upper, mid, lower Set) {
	mid = SMA(closes, window)
	sd := StdDev(closes, window)
	upper = make(Set, len(closes))
	lower = make(Set, len(closes))
	for i := range closes {
		if !mid[i].OK || !sd[i].OK {
			continue
		}
		upper[i] = Point{Value: mid[i].Value + k*sd[i].Value, OK: true}
		lower[i] = Point{Value: mid[i].Value - k*sd[i].Value, OK: true}
	}
	return upper, mid, lower
}

// RSI computes the relative strength index from simple rolling means of gains
// and losses. When the average loss is zero the value pins to 100; the result
// never carries a NaN upward.
func RSI(closes []float64, window int) Set {
	out := make(Set, len(closes))
	if window <= 0 || len(closes) < 2 {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	// The first delta exists at index 1, so the window fills at index `window`.
	for i := window; i < len(closes); i++ {
		avgGain := stat.Mean(gains[i-window+1:i+1], nil)
		avgLoss := stat.Mean(losses[i-window+1:i+1], nil)
		if avgLoss == 0 {
			out[i] = Point{Value: 100, OK: true}
			continue
		}
		rs := avgGain / avgLoss
		out[i] = Point{Value: 100 - 100/(1+rs), OK: true}
	}
	return out
}
