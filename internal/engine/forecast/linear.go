package forecast

// linearRegression fits value = a + b·t over the position index by
// ordinary least squares and projects periods steps past the end.
func linearRegression(vals []float64, periods int) []float64 {
	n := float64(len(vals))
	var sumT, sumV, sumTV, sumTT float64
	for i, v := range vals {
		t := float64(i)
		sumT += t
		sumV += v
		sumTV += t * v
		sumTT += t * t
	}
	denom := n*sumTT - sumT*sumT
	var a, b float64
	if denom == 0 {
		a = sumV / n // all points share one index; flat projection
	} else {
		b = (n*sumTV - sumT*sumV) / denom
		a = (sumV - b*sumT) / n
	}

	out := make([]float64, periods)
	for k := 0; k < periods; k++ {
		t := n + float64(k)
		out[k] = a + b*t
	}
	return out
}
