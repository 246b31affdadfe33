// Package forecast projects future values of the cleaned target series.
// The method set is closed (linear_regression, holt_winters) and
// dispatched by a switch.
package forecast

import (
	"fmt"
	"time"

	"github.com/driftwatch/driftwatch/internal/engine/series"
	"github.com/driftwatch/driftwatch/internal/errs"
)

// Supported forecast methods.
const (
	MethodLinearRegression = "linear_regression"
	MethodHoltWinters      = "holt_winters"
)

// MinObservations is the smallest cleaned series any method accepts.
const MinObservations = 2

// Point is a single projected value. Timestamp is set when the source
// series carried dates; Step is the absolute position index either way.
type Point struct {
	Timestamp  time.Time
	HasTime    bool
	Step       int
	Prediction float64
}

// Label renders the projected ordering key the same way observations
// render theirs.
func (p Point) Label() string {
	if p.HasTime {
		return p.Timestamp.Format(time.RFC3339)
	}
	return fmt.Sprintf("#%d", p.Step)
}

// Options carries the forecasting policy knobs.
type Options struct {
	// SeasonalPeriod enables the seasonal Holt-Winters component when
	// at least two full seasons of data exist. Zero disables it.
	SeasonalPeriod int `yaml:"seasonal_period"`

	// Holt-Winters smoothing constants.
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
	Gamma float64 `yaml:"gamma"`
}

// DefaultOptions returns the standard forecasting policy.
func DefaultOptions() Options {
	return Options{Alpha: 0.5, Beta: 0.3, Gamma: 0.2}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Alpha <= 0 || o.Alpha >= 1 {
		o.Alpha = d.Alpha
	}
	if o.Beta <= 0 || o.Beta >= 1 {
		o.Beta = d.Beta
	}
	if o.Gamma <= 0 || o.Gamma >= 1 {
		o.Gamma = d.Gamma
	}
	return o
}

// Forecast projects periods future points from the cleaned series using
// the named method. Fewer than MinObservations cleaned points is an
// explicit error, never a degenerate forecast.
func Forecast(s *series.Series, method string, periods int, opts Options) ([]Point, error) {
	if s.Len() < MinObservations {
		return nil, &errs.InsufficientDataError{Got: s.Len(), Min: MinObservations}
	}
	if periods <= 0 {
		return []Point{}, nil
	}
	opts = opts.withDefaults()

	var preds []float64
	switch method {
	case MethodLinearRegression:
		preds = linearRegression(s.Values(), periods)
	case MethodHoltWinters:
		preds = holtWinters(s.Values(), periods, opts)
	default:
		return nil, &errs.UnsupportedMethodError{Feature: "forecast", Method: method}
	}

	return schedule(s, preds), nil
}

// schedule attaches future ordering keys to the raw predictions,
// carrying the historical timestamp cadence forward.
func schedule(s *series.Series, preds []float64) []Point {
	last := s.Obs[s.Len()-1]
	cad := cadence(s)
	out := make([]Point, len(preds))
	for k, v := range preds {
		p := Point{Step: last.Index + k + 1, Prediction: v}
		if last.HasTime {
			p.HasTime = true
			p.Timestamp = last.Timestamp.Add(time.Duration(k+1) * cad)
		}
		out[k] = p
	}
	return out
}

// cadence infers the dominant interval between consecutive cleaned
// timestamps. Falls back to one day when the series has no usable
// spacing, which only happens with degenerate timestamp data.
func cadence(s *series.Series) time.Duration {
	counts := make(map[time.Duration]int)
	var best time.Duration
	for i := 1; i < s.Len(); i++ {
		a, b := s.Obs[i-1], s.Obs[i]
		if !a.HasTime || !b.HasTime {
			continue
		}
		d := b.Timestamp.Sub(a.Timestamp)
		if d <= 0 {
			continue
		}
		counts[d]++
		if best == 0 || counts[d] > counts[best] || (counts[d] == counts[best] && d < best) {
			best = d
		}
	}
	if best == 0 {
		return 24 * time.Hour
	}
	return best
}
