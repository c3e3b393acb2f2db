// Package signal provides a reference signal source built from explicit
// rule conditions evaluated over daily closes.
package signal

// Smoothing routines over a price series. Each returns the latest smoothed
// value and false when the series is shorter than the period. Semantics
// match the usual definitions: SMA averages the trailing window, EMA seeds
// with the SMA of the first window and applies k = 2/(period+1), Wilder
// smoothing is an EMA with alpha = 1/period.

// SMA returns the simple moving average of the trailing window
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// EMA returns the exponential moving average of the full series
func EMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}

	seed, _ := SMA(values[:period], period)
	k := 2.0 / float64(period+1)

	ema := seed
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
	}
	return ema, true
}

// Wilder returns the Wilder-smoothed average of the full series
func Wilder(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}

	seed, _ := SMA(values[:period], period)
	alpha := 1.0 / float64(period)

	smoothed := seed
	for _, v := range values[period:] {
		smoothed = v*alpha + smoothed*(1-alpha)
	}
	return smoothed, true
}
