// Package pipeline implements the ordered, audited cleaning pass that
// repairs or removes bad rows before detection and forecasting. Cleaning
// is deterministic and total: every input produces an output.
package pipeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/driftwatch/driftwatch/internal/engine/series"
)

// StepRecord is one audit entry for a transform that actually changed
// rows. No-op stages are not recorded.
type StepRecord struct {
	Description  string `json:"description" yaml:"description"`
	RowsAffected int    `json:"rows_affected" yaml:"rows_affected"`
}

func (r StepRecord) String() string {
	return fmt.Sprintf("%s (%d rows)", r.Description, r.RowsAffected)
}

// Config carries the cleaning policy knobs.
type Config struct {
	// ClipSigma is the outlier-clipping boundary for feature columns,
	// in standard deviations from the column mean. The target column is
	// never clipped.
	ClipSigma float64 `yaml:"clip_sigma"`
}

// DefaultConfig returns the standard cleaning policy.
func DefaultConfig() Config {
	return Config{ClipSigma: 6.0}
}

// Clean runs the full stage sequence on a copy of s and returns the
// cleaned series with the audit log. The input series is not mutated.
//
// Stage order: drop missing targets, dedupe by timestamp (last wins),
// sort ascending, interpolate feature gaps, clip feature outliers.
func Clean(s *series.Series, cfg Config) (*series.Series, []StepRecord) {
	out := s.Clone()
	var steps []StepRecord

	record := func(desc string, n int) {
		if n > 0 {
			steps = append(steps, StepRecord{Description: desc, RowsAffected: n})
		}
	}

	record("dropped rows with missing target value", dropMissingTarget(out))
	record("removed duplicate timestamps (kept most recent)", dedupeTimestamps(out))
	record("sorted by "+orderLabel(out), sortByKey(out))
	record("interpolated missing feature values", interpolateFeatures(out))
	record(fmt.Sprintf("clipped feature outliers beyond ±%.0fσ", cfg.ClipSigma), clipFeatureOutliers(out, cfg.ClipSigma))

	return out, steps
}

func orderLabel(s *series.Series) string {
	if s.DateCol != "" {
		return s.DateCol
	}
	return "row order"
}

// dropMissingTarget removes rows whose target is missing or non-finite.
// A missing target always removes the row; it is never imputed.
func dropMissingTarget(s *series.Series) int {
	kept := s.Obs[:0]
	dropped := 0
	for _, o := range s.Obs {
		if o.Missing || math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			dropped++
			continue
		}
		kept = append(kept, o)
	}
	s.Obs = kept
	return dropped
}

// dedupeTimestamps keeps the last occurrence of each timestamp. Rows
// without a parsed timestamp never collide.
func dedupeTimestamps(s *series.Series) int {
	if s.DateCol == "" {
		return 0
	}
	seen := make(map[int64]bool, len(s.Obs))
	kept := make([]series.Observation, 0, len(s.Obs))
	removed := 0
	for i := len(s.Obs) - 1; i >= 0; i-- {
		o := s.Obs[i]
		if o.HasTime {
			key := o.Timestamp.UnixNano()
			if seen[key] {
				removed++
				continue
			}
			seen[key] = true
		}
		kept = append(kept, o)
	}
	// restore original order
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	s.Obs = kept
	return removed
}

// sortByKey sorts ascending and returns how many rows moved.
func sortByKey(s *series.Series) int {
	before := make([]series.Observation, len(s.Obs))
	copy(before, s.Obs)
	sort.SliceStable(s.Obs, func(i, j int) bool {
		return s.Obs[i].Before(s.Obs[j])
	})
	moved := 0
	for i := range s.Obs {
		if s.Obs[i].Index != before[i].Index {
			moved++
		}
	}
	return moved
}

// interpolateFeatures fills missing feature cells by linear
// interpolation between the nearest non-missing neighbors; runs touching
// a series boundary are filled with the nearest available value. A
// column with no values at all is zero-filled.
func interpolateFeatures(s *series.Series) int {
	touched := make([]bool, len(s.Obs))
	for _, col := range s.Features {
		vals := make([]float64, len(s.Obs))
		for i, o := range s.Obs {
			vals[i] = featureVal(o, col)
		}
		filled := fillGaps(vals)
		for i, v := range filled {
			if math.IsNaN(featureVal(s.Obs[i], col)) {
				if s.Obs[i].Features == nil {
					s.Obs[i].Features = make(map[string]float64)
				}
				s.Obs[i].Features[col] = v
				touched[i] = true
			}
		}
	}
	n := 0
	for _, t := range touched {
		if t {
			n++
		}
	}
	return n
}

func featureVal(o series.Observation, col string) float64 {
	if o.Features == nil {
		return math.NaN()
	}
	v, ok := o.Features[col]
	if !ok {
		return math.NaN()
	}
	return v
}

// fillGaps returns a copy of vals with NaN runs linearly interpolated
// and boundary runs edge-filled.
func fillGaps(vals []float64) []float64 {
	out := make([]float64, len(vals))
	copy(out, vals)
	prev := -1 // index of last known value
	for i := 0; i < len(out); i++ {
		if math.IsNaN(out[i]) {
			continue
		}
		if prev == -1 && i > 0 {
			// leading run: backward fill
			for j := 0; j < i; j++ {
				out[j] = out[i]
			}
		} else if prev >= 0 && i-prev > 1 {
			step := (out[i] - out[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				out[j] = out[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	if prev == -1 {
		// no known values at all
		for i := range out {
			out[i] = 0
		}
		return out
	}
	for j := prev + 1; j < len(out); j++ {
		out[j] = out[prev] // trailing run: forward fill
	}
	return out
}

// clipFeatureOutliers clamps feature cells beyond ±sigma standard
// deviations of the column mean to the boundary. Detection sees the
// clipped features; the target column passes through untouched.
//
// Each clamp shrinks the column mean and deviation, which can push the
// clamped cell outside the recomputed boundary again, so the stage
// repeats per column until a pass changes nothing. That fixed point is
// what keeps Clean idempotent: re-cleaning clipped data is a no-op.
func clipFeatureOutliers(s *series.Series, sigma float64) int {
	if sigma <= 0 || len(s.Obs) == 0 {
		return 0
	}
	touched := make([]bool, len(s.Obs))
	for _, col := range s.Features {
		for clipColumnPass(s, col, sigma, touched) {
		}
	}
	n := 0
	for _, t := range touched {
		if t {
			n++
		}
	}
	return n
}

// clipColumnPass runs one clamp pass over col and reports whether any
// cell changed. The deviation of every cell is non-increasing across
// passes, so repeated passes terminate.
func clipColumnPass(s *series.Series, col string, sigma float64, touched []bool) bool {
	mean, sd := columnStats(s, col)
	if sd == 0 {
		return false
	}
	lo, hi := mean-sigma*sd, mean+sigma*sd
	changed := false
	for i := range s.Obs {
		v := featureVal(s.Obs[i], col)
		if math.IsNaN(v) {
			continue
		}
		clipped := math.Min(math.Max(v, lo), hi)
		if clipped != v {
			s.Obs[i].Features[col] = clipped
			touched[i] = true
			changed = true
		}
	}
	return changed
}

func columnStats(s *series.Series, col string) (mean, sd float64) {
	sum, n := 0.0, 0
	for _, o := range s.Obs {
		v := featureVal(o, col)
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, 0
	}
	mean = sum / float64(n)
	varSum := 0.0
	for _, o := range s.Obs {
		v := featureVal(o, col)
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		varSum += d * d
	}
	return mean, math.Sqrt(varSum / float64(n))
}
