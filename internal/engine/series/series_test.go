package series

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollingWindow_FIFOEviction(t *testing.T) {
	w := NewRollingWindow(3)
	for i := 0; i < 5; i++ {
		w.Push(Observation{Index: i, Value: float64(i)})
	}
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 3, w.Capacity())
	assert.Equal(t, []float64{2, 3, 4}, w.Values())
}

func TestRollingWindow_Stats(t *testing.T) {
	w := NewRollingWindow(10)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.Push(Observation{Value: v})
	}
	assert.InDelta(t, 5.0, w.Mean(), 1e-9)
	assert.InDelta(t, 2.0, w.StdDev(), 1e-9)
}

func TestSeries_StatsIgnoreMissing(t *testing.T) {
	s := &Series{Obs: []Observation{
		{Value: 10},
		{Value: math.NaN(), Missing: true},
		{Value: 20},
	}}
	assert.InDelta(t, 15.0, s.Mean(), 1e-9)
	assert.InDelta(t, 5.0, s.StdDev(), 1e-9)
}

func TestSeries_CloneIsDeep(t *testing.T) {
	s := &Series{
		Target:   "value",
		Features: []string{"f"},
		Obs: []Observation{
			{Index: 0, Value: 1, Features: map[string]float64{"f": 7}},
		},
	}
	c := s.Clone()
	c.Obs[0].Value = 99
	c.Obs[0].Features["f"] = 99

	assert.Equal(t, 1.0, s.Obs[0].Value)
	assert.Equal(t, 7.0, s.Obs[0].Features["f"])
}

func TestObservation_Ordering(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	a := Observation{Timestamp: t1, HasTime: true, Index: 5}
	b := Observation{Timestamp: t2, HasTime: true, Index: 0}
	require.True(t, a.Before(b))
	require.False(t, b.Before(a))

	// same timestamp falls back to row position
	c := Observation{Timestamp: t1, HasTime: true, Index: 6}
	assert.True(t, a.Before(c))
	assert.True(t, a.SameKey(c))

	// no timestamps: row order
	x := Observation{Index: 1}
	y := Observation{Index: 2}
	assert.True(t, x.Before(y))
	assert.False(t, x.SameKey(y))
}

func TestObservation_TimeLabel(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-01T12:00:00Z", Observation{Timestamp: ts, HasTime: true}.TimeLabel())
	assert.Equal(t, "#4", Observation{Index: 4}.TimeLabel())
}
