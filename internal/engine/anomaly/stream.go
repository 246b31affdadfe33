package anomaly

import (
	"math"

	"github.com/driftwatch/driftwatch/internal/engine/series"
)

// Observe pushes point into the window and scores it against the other
// buffered values, using the same leave-one-out z-score as the batch
// detector but recomputed over the window rather than the whole
// history. A window holding fewer than MinSamples points (including the
// new one) never flags: insufficient history, not insufficient anomaly.
// Returns nil when the point is unremarkable.
func Observe(w *series.RollingWindow, point series.Observation, opts Options) *Anomaly {
	opts = opts.withDefaults()
	w.Push(point)
	n := w.Len()
	if n < opts.MinSamples {
		return nil
	}

	var sum, sumSq float64
	for _, v := range w.Values() {
		sum += v
		sumSq += v * v
	}
	score, ok := looScore(point.Value, sum, sumSq, n)
	if !ok || math.Abs(score) < opts.Threshold {
		return nil
	}
	return &Anomaly{
		Timestamp: point.TimeLabel(),
		Value:     point.Value,
		Severity:  zSeverity(score, opts.Threshold),
		Score:     score,
		Index:     point.Index,
	}
}
