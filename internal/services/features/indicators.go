package features

// EMA computes the exponential moving average of values for period.
// The first output is the simple average of the first period values, so the
// result has len(values)-period+1 entries and out[j] lines up with values[j+period-1].
// It returns nil when there is not enough data.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)

	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	prev := sum / float64(period)
	out = append(out, prev)

	for _, v := range values[period:] {
		prev = (v-prev)*k + prev
		out = append(out, prev)
	}
	return out
}

// AlignedEMA returns a slice of len(values) where index i holds the EMA ending at
// values[i], and ok[i] reports whether that value exists.
func AlignedEMA(values []float64, period int) ([]float64, []bool) {
	aligned := make([]float64, len(values))
	ok := make([]bool, len(values))
	ema := EMA(values, period)
	offset := len(values) - len(ema)
	for j, v := range ema {
		aligned[offset+j] = v
		ok[offset+j] = true
	}
	return aligned, ok
}
