package anomaly

import (
	"math"

	"github.com/driftwatch/driftwatch/internal/engine/series"
)

// detectZScore flags observations that deviate from the rest of the
// series. Each point is scored against the mean and population standard
// deviation of the remaining points (leave-one-out): a lone extreme
// value in a short series would otherwise inflate σ enough to hide
// itself. A constant series has zero deviation and no anomalies.
func detectZScore(s *series.Series, opts Options) []Anomaly {
	n := s.Len()
	if n < 3 {
		return nil
	}

	var sum, sumSq float64
	for _, o := range s.Obs {
		sum += o.Value
		sumSq += o.Value * o.Value
	}

	var out []Anomaly
	for i, o := range s.Obs {
		score, ok := looScore(o.Value, sum, sumSq, n)
		if !ok || math.Abs(score) < opts.Threshold {
			continue
		}
		out = append(out, Anomaly{
			Timestamp: o.TimeLabel(),
			Value:     o.Value,
			Severity:  zSeverity(score, opts.Threshold),
			Score:     score,
			Index:     i,
		})
	}
	return out
}

// looScore computes the z-score of v against the n-1 other values,
// given the full-series sum and sum of squares. Returns false when the
// remaining values have zero spread.
func looScore(v, sum, sumSq float64, n int) (float64, bool) {
	rest := float64(n - 1)
	mean := (sum - v) / rest
	variance := (sumSq-v*v)/rest - mean*mean
	if variance <= 0 {
		return 0, false
	}
	sd := math.Sqrt(variance)
	return (v - mean) / sd, true
}

func zSeverity(score, threshold float64) Severity {
	if math.Abs(score) >= 2*threshold {
		return SeverityHigh
	}
	return SeverityMedium
}
