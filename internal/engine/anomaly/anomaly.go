// Package anomaly flags statistically unusual observations. The method
// set is closed (zscore, isolation_forest) and dispatched by a switch;
// a streaming variant recomputes the z-score against a rolling window.
package anomaly

import (
	"github.com/driftwatch/driftwatch/internal/engine/series"
	"github.com/driftwatch/driftwatch/internal/errs"
)

// Supported batch detection methods.
const (
	MethodZScore          = "zscore"
	MethodIsolationForest = "isolation_forest"
)

// Severity buckets an anomaly's numeric score.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is one flagged observation. Produced, never mutated.
type Anomaly struct {
	Timestamp string   `json:"timestamp"`
	Value     float64  `json:"value"`
	Severity  Severity `json:"severity"`
	Score     float64  `json:"score"`

	// Index is the observation's position in the cleaned series.
	Index int `json:"-"`
}

// Options carries the detection policy. Zero values are replaced by
// DefaultOptions values in Detect.
type Options struct {
	// Threshold is the |z| flag boundary for zscore and streaming
	// detection; high severity starts at twice this value.
	Threshold float64 `yaml:"threshold"`

	// Seed fixes the isolation forest's randomness.
	Seed int64 `yaml:"seed"`

	// IsoTrees and IsoSampleSize size the isolation forest ensemble.
	IsoTrees      int `yaml:"iso_trees"`
	IsoSampleSize int `yaml:"iso_sample_size"`

	// IsoScoreThreshold flags rows at or above this [0,1] score;
	// IsoHighThreshold upgrades them to high severity.
	IsoScoreThreshold float64 `yaml:"iso_score_threshold"`
	IsoHighThreshold  float64 `yaml:"iso_high_threshold"`

	// MinSamples is the smallest window (including the new point) the
	// streaming detector will flag against.
	MinSamples int `yaml:"min_samples"`
}

// DefaultOptions returns the standard detection policy.
func DefaultOptions() Options {
	return Options{
		Threshold:         3.0,
		Seed:              1,
		IsoTrees:          100,
		IsoSampleSize:     256,
		IsoScoreThreshold: 0.60,
		IsoHighThreshold:  0.80,
		MinSamples:        5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	if o.IsoTrees <= 0 {
		o.IsoTrees = d.IsoTrees
	}
	if o.IsoSampleSize <= 0 {
		o.IsoSampleSize = d.IsoSampleSize
	}
	if o.IsoScoreThreshold <= 0 {
		o.IsoScoreThreshold = d.IsoScoreThreshold
	}
	if o.IsoHighThreshold <= 0 {
		o.IsoHighThreshold = d.IsoHighThreshold
	}
	if o.MinSamples <= 0 {
		o.MinSamples = d.MinSamples
	}
	return o
}

// Detect runs the batch detector named by method over the cleaned
// series. Output is ordered by series position, not by score. An empty
// series yields an empty list; an unknown method is an error.
func Detect(s *series.Series, method string, opts Options) ([]Anomaly, error) {
	opts = opts.withDefaults()
	switch method {
	case MethodZScore:
		return detectZScore(s, opts), nil
	case MethodIsolationForest:
		return detectIsolationForest(s, opts), nil
	default:
		return nil, &errs.UnsupportedMethodError{Feature: "anomaly", Method: method}
	}
}
