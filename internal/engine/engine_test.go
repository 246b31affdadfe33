package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch/driftwatch/internal/engine/anomaly"
	"github.com/driftwatch/driftwatch/internal/engine/forecast"
	"github.com/driftwatch/driftwatch/internal/engine/series"
	"github.com/driftwatch/driftwatch/internal/errs"
)

func demoRows(n int) []map[string]interface{} {
	rows := make([]map[string]interface{}, n)
	for i := range rows {
		rows[i] = map[string]interface{}{
			"day":     fmt.Sprintf("2024-01-%02d", i+1),
			"revenue": 100.0 + float64(i),
		}
	}
	return rows
}

func baseRequest(rows []map[string]interface{}) Request {
	return Request{
		Rows:            rows,
		TargetColumn:    "revenue",
		DateColumn:      "day",
		AnomalyMethod:   anomaly.MethodZScore,
		ForecastMethod:  forecast.MethodLinearRegression,
		ForecastPeriods: 5,
	}
}

func TestAnalyze_MetricsConservation(t *testing.T) {
	eng := New(DefaultConfig())
	result, err := eng.Analyze(context.Background(), baseRequest(demoRows(20)))
	require.NoError(t, err)

	assert.Equal(t, len(result.Historical), result.Metrics.RowsProcessed)
	assert.Equal(t, len(result.Anomalies), result.Metrics.AnomaliesDetected)
	assert.Equal(t, len(result.Forecast), result.Metrics.ForecastHorizon)
	assert.Equal(t, 5, result.Metrics.ForecastHorizon)
}

func TestAnalyze_TruncationRecordsOneStep(t *testing.T) {
	req := baseRequest(demoRows(10))
	req.MaxRows = 3
	req.ForecastPeriods = 1

	eng := New(DefaultConfig())
	result, err := eng.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Metrics.RowsProcessed)
	truncSteps := 0
	for _, s := range result.PipelineSteps {
		if s.RowsAffected == 7 {
			truncSteps++
			assert.Contains(t, s.Description, "row limit applied")
		}
	}
	assert.Equal(t, 1, truncSteps)
}

func TestAnalyze_OutlierScenario(t *testing.T) {
	rows := []map[string]interface{}{
		{"day": "2024-01-01", "revenue": 10.0},
		{"day": "2024-01-02", "revenue": 10.0},
		{"day": "2024-01-03", "revenue": 11.0},
		{"day": "2024-01-04", "revenue": 1000.0},
		{"day": "2024-01-05", "revenue": 11.0},
	}
	req := baseRequest(rows)
	req.AnomalyThreshold = 2.0
	req.ForecastPeriods = 1

	eng := New(DefaultConfig())
	result, err := eng.Analyze(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, 1000.0, result.Anomalies[0].Value)
	assert.Equal(t, anomaly.SeverityHigh, result.Anomalies[0].Severity)

	// the unclipped outlier legitimately pulls the fit upward
	require.Len(t, result.Forecast, 1)
	assert.Greater(t, result.Forecast[0].Prediction, 11.0)
}

func TestAnalyze_SchemaErrorSurfaces(t *testing.T) {
	req := baseRequest(demoRows(5))
	req.TargetColumn = "profit"

	eng := New(DefaultConfig())
	_, err := eng.Analyze(context.Background(), req)

	var schemaErr *errs.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestAnalyze_InsufficientDataSurfaces(t *testing.T) {
	req := baseRequest(demoRows(1))

	eng := New(DefaultConfig())
	_, err := eng.Analyze(context.Background(), req)

	var dataErr *errs.InsufficientDataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, 2, dataErr.Min)
}

func TestAnalyze_UnknownMethodSurfaces(t *testing.T) {
	req := baseRequest(demoRows(5))
	req.AnomalyMethod = "tea_leaves"

	eng := New(DefaultConfig())
	_, err := eng.Analyze(context.Background(), req)

	var methodErr *errs.UnsupportedMethodError
	require.ErrorAs(t, err, &methodErr)
}

func TestAnalyze_DeterministicAcrossRuns(t *testing.T) {
	req := baseRequest(demoRows(30))
	eng := New(DefaultConfig())

	first, err := eng.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := eng.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAnalyze_HistoricalStrictlyOrdered(t *testing.T) {
	rows := demoRows(10)
	// shuffle a couple of rows out of order and duplicate one day
	rows[2], rows[7] = rows[7], rows[2]
	rows = append(rows, map[string]interface{}{"day": "2024-01-05", "revenue": 500.0})

	eng := New(DefaultConfig())
	result, err := eng.Analyze(context.Background(), baseRequest(rows))
	require.NoError(t, err)

	for i := 1; i < len(result.Historical); i++ {
		assert.Less(t, result.Historical[i-1].Timestamp, result.Historical[i].Timestamp)
	}
	assert.Equal(t, 10, result.Metrics.RowsProcessed, "duplicate day deduplicated")
}

func TestSummarize_PureConservation(t *testing.T) {
	s := &series.Series{Obs: make([]series.Observation, 4)}
	m := Summarize(s, []anomaly.Anomaly{{}, {}}, []forecast.Point{{}, {}, {}})
	assert.Equal(t, RunMetrics{RowsProcessed: 4, AnomaliesDetected: 2, ForecastHorizon: 3}, m)
}
