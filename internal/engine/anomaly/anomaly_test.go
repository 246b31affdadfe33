package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch/driftwatch/internal/engine/series"
	"github.com/driftwatch/driftwatch/internal/errs"
)

func seriesOf(values ...float64) *series.Series {
	s := &series.Series{Target: "v"}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		s.Obs = append(s.Obs, series.Observation{
			Index:     i,
			Timestamp: base.AddDate(0, 0, i),
			HasTime:   true,
			Value:     v,
		})
	}
	return s
}

func TestDetect_ZScoreFlagsSpikeAsHigh(t *testing.T) {
	s := seriesOf(10, 10, 11, 1000, 11)
	anomalies, err := Detect(s, MethodZScore, Options{Threshold: 2.0})
	require.NoError(t, err)

	require.Len(t, anomalies, 1)
	a := anomalies[0]
	assert.Equal(t, 1000.0, a.Value)
	assert.Equal(t, SeverityHigh, a.Severity)
	assert.Greater(t, a.Score, 4.0)
	assert.Equal(t, 3, a.Index)
}

func TestDetect_ZScoreZeroVarianceGuard(t *testing.T) {
	s := seriesOf(5, 5, 5, 5, 5, 5, 5, 5, 5, 5)
	anomalies, err := Detect(s, MethodZScore, Options{Threshold: 2.0})
	require.NoError(t, err)
	assert.Empty(t, anomalies, "a constant series has no anomalies")
}

func TestDetect_ZScoreDeterministic(t *testing.T) {
	s := seriesOf(10, 12, 9, 11, 300, 10, 13)
	first, err := Detect(s, MethodZScore, Options{Threshold: 2.0})
	require.NoError(t, err)
	second, err := Detect(s, MethodZScore, Options{Threshold: 2.0})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDetect_OutputOrderedBySeriesPosition(t *testing.T) {
	s := seriesOf(10, 500, 10, 10, 10, 10, -400, 10, 10, 10)
	anomalies, err := Detect(s, MethodZScore, Options{Threshold: 2.0})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(anomalies), 2)
	for i := 1; i < len(anomalies); i++ {
		assert.Greater(t, anomalies[i].Index, anomalies[i-1].Index)
	}
}

func TestDetect_UnknownMethod(t *testing.T) {
	s := seriesOf(1, 2, 3)
	_, err := Detect(s, "deep_magic", Options{})
	require.Error(t, err)

	var methodErr *errs.UnsupportedMethodError
	require.ErrorAs(t, err, &methodErr)
	assert.Equal(t, "deep_magic", methodErr.Method)
	assert.Equal(t, "anomaly", methodErr.Feature)
}

func TestDetect_EmptySeries(t *testing.T) {
	for _, method := range []string{MethodZScore, MethodIsolationForest} {
		anomalies, err := Detect(&series.Series{Target: "v"}, method, Options{})
		require.NoError(t, err, method)
		assert.Empty(t, anomalies, method)
	}
}

func TestDetect_IsolationForestDeterministicUnderSeed(t *testing.T) {
	vals := make([]float64, 0, 60)
	for i := 0; i < 59; i++ {
		vals = append(vals, 100+float64(i%7))
	}
	vals = append(vals, 5000)
	s := seriesOf(vals...)

	opts := Options{Seed: 42}
	first, err := Detect(s, MethodIsolationForest, opts)
	require.NoError(t, err)
	second, err := Detect(s, MethodIsolationForest, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same seed must reproduce the same ensemble")
}

func TestDetect_IsolationForestIsolatesExtremeRow(t *testing.T) {
	vals := make([]float64, 0, 80)
	for i := 0; i < 79; i++ {
		vals = append(vals, 100+float64(i%5))
	}
	vals = append(vals, 10000)
	s := seriesOf(vals...)

	anomalies, err := Detect(s, MethodIsolationForest, Options{Seed: 7})
	require.NoError(t, err)

	require.NotEmpty(t, anomalies)
	found := false
	for _, a := range anomalies {
		assert.GreaterOrEqual(t, a.Score, 0.0)
		assert.LessOrEqual(t, a.Score, 1.0)
		if a.Value == 10000 {
			found = true
		}
	}
	assert.True(t, found, "the extreme row should be among the flagged set")
}

func TestObserve_UnderFilledWindowNeverFlags(t *testing.T) {
	w := series.NewRollingWindow(180)
	opts := Options{Threshold: 2.0, MinSamples: 5}

	// four points of any spread: insufficient history
	for i, v := range []float64{10, 10, 11, 100000} {
		a := Observe(w, series.Observation{Index: i, Value: v}, opts)
		assert.Nil(t, a, "point %d must not be flagged", i)
	}

	// the fifth point can flag
	a := Observe(w, series.Observation{Index: 4, Value: 10}, opts)
	_ = a // spread is dominated by the earlier spike; just must not panic

	w2 := series.NewRollingWindow(180)
	for i, v := range []float64{10, 10, 11, 11} {
		require.Nil(t, Observe(w2, series.Observation{Index: i, Value: v}, opts))
	}
	flagged := Observe(w2, series.Observation{Index: 4, Value: 1000}, opts)
	require.NotNil(t, flagged)
	assert.Equal(t, SeverityHigh, flagged.Severity)
	assert.Equal(t, 1000.0, flagged.Value)
}

func TestObserve_ZeroSpreadNeverFlags(t *testing.T) {
	w := series.NewRollingWindow(10)
	opts := Options{Threshold: 2.0, MinSamples: 5}
	for i := 0; i < 8; i++ {
		assert.Nil(t, Observe(w, series.Observation{Index: i, Value: 5}, opts))
	}
}

func TestObserve_WindowEvictsOldHistory(t *testing.T) {
	w := series.NewRollingWindow(5)
	opts := Options{Threshold: 3.0, MinSamples: 5}
	for i := 0; i < 20; i++ {
		Observe(w, series.Observation{Index: i, Value: 50}, opts)
	}
	assert.Equal(t, 5, w.Len(), "window stays at capacity")
}
