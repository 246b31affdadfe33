package forecast

// holtWinters fits additive level/trend smoothing, adding a seasonal
// component only when the series covers at least two full seasons.
// Otherwise it degrades to Holt's non-seasonal double exponential
// smoothing rather than failing.
func holtWinters(vals []float64, periods int, opts Options) []float64 {
	m := opts.SeasonalPeriod
	if m >= 2 && len(vals) >= 2*m {
		return holtWintersSeasonal(vals, periods, m, opts)
	}
	return holtLinear(vals, periods, opts)
}

// holtLinear is double exponential smoothing: level plus trend.
func holtLinear(vals []float64, periods int, opts Options) []float64 {
	level := vals[0]
	trend := vals[1] - vals[0]
	for _, v := range vals[1:] {
		prevLevel := level
		level = opts.Alpha*v + (1-opts.Alpha)*(level+trend)
		trend = opts.Beta*(level-prevLevel) + (1-opts.Beta)*trend
	}
	out := make([]float64, periods)
	for k := 0; k < periods; k++ {
		out[k] = level + float64(k+1)*trend
	}
	return out
}

// holtWintersSeasonal adds an additive seasonal component of period m.
// Initial components come from the first two seasons: season-mean level,
// season-over-season trend, and first-season deviations.
func holtWintersSeasonal(vals []float64, periods, m int, opts Options) []float64 {
	var mean1, mean2 float64
	for i := 0; i < m; i++ {
		mean1 += vals[i]
		mean2 += vals[m+i]
	}
	mean1 /= float64(m)
	mean2 /= float64(m)

	level := mean1
	trend := (mean2 - mean1) / float64(m)
	seasonal := make([]float64, m)
	for i := 0; i < m; i++ {
		seasonal[i] = vals[i] - mean1
	}

	for i := m; i < len(vals); i++ {
		v := vals[i]
		si := i % m
		prevLevel := level
		level = opts.Alpha*(v-seasonal[si]) + (1-opts.Alpha)*(level+trend)
		trend = opts.Beta*(level-prevLevel) + (1-opts.Beta)*trend
		seasonal[si] = opts.Gamma*(v-level) + (1-opts.Gamma)*seasonal[si]
	}

	out := make([]float64, periods)
	for k := 0; k < periods; k++ {
		si := (len(vals) + k) % m
		out[k] = level + float64(k+1)*trend + seasonal[si]
	}
	return out
}
