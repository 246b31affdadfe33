// Package series holds the typed in-memory representation of a dataset:
// observations, ordered series, and the rolling window used by the
// streaming path.
package series

import (
	"fmt"
	"math"
	"time"
)

// Observation is a single typed row. Value is the target column; before
// cleaning it may be NaN with Missing set, after cleaning it is always
// finite. Features map feature column names to values, with NaN marking
// a missing cell.
type Observation struct {
	Timestamp time.Time
	HasTime   bool
	Index     int // original row position, ordering fallback when HasTime is false
	Value     float64
	Missing   bool
	Features  map[string]float64
	Raw       map[string]interface{}
}

// TimeLabel renders the observation's ordering key for output: RFC3339
// when a timestamp exists, the row index otherwise.
func (o Observation) TimeLabel() string {
	if o.HasTime {
		return o.Timestamp.Format(time.RFC3339)
	}
	return fmt.Sprintf("#%d", o.Index)
}

// Before reports whether o orders strictly before other, by timestamp
// when both carry one and by original row position otherwise.
func (o Observation) Before(other Observation) bool {
	if o.HasTime && other.HasTime {
		if !o.Timestamp.Equal(other.Timestamp) {
			return o.Timestamp.Before(other.Timestamp)
		}
		return o.Index < other.Index
	}
	return o.Index < other.Index
}

// SameKey reports whether two observations share an ordering key. Only
// timestamped observations can collide; row indices are unique.
func (o Observation) SameKey(other Observation) bool {
	return o.HasTime && other.HasTime && o.Timestamp.Equal(other.Timestamp)
}

// Series is an ordered sequence of observations for one target column.
type Series struct {
	Target   string
	DateCol  string // empty when no date column was supplied
	Features []string
	Obs      []Observation
}

func (s *Series) Len() int { return len(s.Obs) }

// Values returns the target column as a slice, in series order.
func (s *Series) Values() []float64 {
	vals := make([]float64, len(s.Obs))
	for i, o := range s.Obs {
		vals[i] = o.Value
	}
	return vals
}

// Mean returns the population mean of the target column, ignoring
// missing values. Zero for an empty series.
func (s *Series) Mean() float64 {
	sum, n := 0.0, 0
	for _, o := range s.Obs {
		if o.Missing || math.IsNaN(o.Value) {
			continue
		}
		sum += o.Value
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// StdDev returns the population standard deviation of the target column,
// ignoring missing values.
func (s *Series) StdDev() float64 {
	mean := s.Mean()
	sum, n := 0.0, 0
	for _, o := range s.Obs {
		if o.Missing || math.IsNaN(o.Value) {
			continue
		}
		d := o.Value - mean
		sum += d * d
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// Clone returns a deep copy. Pipeline stages mutate their own copy so
// the caller's series is never touched.
func (s *Series) Clone() *Series {
	out := &Series{
		Target:   s.Target,
		DateCol:  s.DateCol,
		Features: append([]string(nil), s.Features...),
		Obs:      make([]Observation, len(s.Obs)),
	}
	for i, o := range s.Obs {
		c := o
		if o.Features != nil {
			c.Features = make(map[string]float64, len(o.Features))
			for k, v := range o.Features {
				c.Features[k] = v
			}
		}
		out.Obs[i] = c
	}
	return out
}
