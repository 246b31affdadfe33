// Package engine orchestrates the batch analysis pipeline: ingest →
// clean → {detect, forecast} → summarize. Every Analyze call is
// independent; the engine holds only configuration.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftwatch/driftwatch/internal/engine/anomaly"
	"github.com/driftwatch/driftwatch/internal/engine/forecast"
	"github.com/driftwatch/driftwatch/internal/engine/ingest"
	"github.com/driftwatch/driftwatch/internal/engine/pipeline"
	"github.com/driftwatch/driftwatch/internal/engine/series"
)

// Request is the batch analysis input. Rows are raw column→value maps
// straight from the source.
type Request struct {
	Rows             []map[string]interface{} `json:"rows"`
	FeatureColumns   []string                 `json:"feature_columns"`
	TargetColumn     string                   `json:"target_column"`
	DateColumn       string                   `json:"date_column"`
	AnomalyMethod    string                   `json:"anomaly_method"`
	AnomalyThreshold float64                  `json:"anomaly_threshold"`
	ForecastMethod   string                   `json:"forecast_method"`
	ForecastPeriods  int                      `json:"forecast_periods"`
	MaxRows          int                      `json:"max_rows"`
}

// HistoricalPoint is one cleaned observation in the response.
type HistoricalPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// ForecastRecord is one projected point in the response.
type ForecastRecord struct {
	Date       string  `json:"date"`
	Prediction float64 `json:"prediction"`
}

// Result is the batch analysis output. The caller owns it once Analyze
// returns.
type Result struct {
	PipelineSteps []pipeline.StepRecord `json:"pipeline_steps"`
	Anomalies     []anomaly.Anomaly     `json:"anomalies"`
	Forecast      []ForecastRecord      `json:"forecast"`
	Metrics       RunMetrics            `json:"metrics"`
	Historical    []HistoricalPoint     `json:"historical"`
}

// Config carries the engine's policy defaults. Request fields override
// the per-run knobs (threshold, periods, max rows) when set.
type Config struct {
	Pipeline pipeline.Config  `yaml:"pipeline"`
	Anomaly  anomaly.Options  `yaml:"anomaly"`
	Forecast forecast.Options `yaml:"forecast"`
	MaxRows  int              `yaml:"max_rows"`
}

// DefaultConfig returns the standard engine policy.
func DefaultConfig() Config {
	return Config{
		Pipeline: pipeline.DefaultConfig(),
		Anomaly:  anomaly.DefaultOptions(),
		Forecast: forecast.DefaultOptions(),
		MaxRows:  10000,
	}
}

// Engine runs batch analyses. Safe for concurrent use.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultConfig().MaxRows
	}
	return &Engine{cfg: cfg}
}

// Analyze runs the full batch pipeline. Detection and forecasting both
// depend only on the cleaned series and run concurrently; their
// completion order does not affect the result.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxRows := req.MaxRows
	if maxRows <= 0 {
		maxRows = e.cfg.MaxRows
	}

	raw, steps, err := ingest.Ingest(req.Rows, req.FeatureColumns, req.TargetColumn, req.DateColumn, maxRows)
	if err != nil {
		return nil, err
	}

	cleaned, cleanSteps := pipeline.Clean(raw, e.cfg.Pipeline)
	steps = append(steps, cleanSteps...)

	anomalyOpts := e.cfg.Anomaly
	if req.AnomalyThreshold > 0 {
		anomalyOpts.Threshold = req.AnomalyThreshold
	}

	var (
		wg          sync.WaitGroup
		anomalies   []anomaly.Anomaly
		points      []forecast.Point
		detectErr   error
		forecastErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		anomalies, detectErr = anomaly.Detect(cleaned, req.AnomalyMethod, anomalyOpts)
	}()
	go func() {
		defer wg.Done()
		points, forecastErr = forecast.Forecast(cleaned, req.ForecastMethod, req.ForecastPeriods, e.cfg.Forecast)
	}()
	wg.Wait()

	if detectErr != nil {
		return nil, detectErr
	}
	if forecastErr != nil {
		return nil, forecastErr
	}

	result := &Result{
		PipelineSteps: steps,
		Anomalies:     anomalies,
		Forecast:      make([]ForecastRecord, len(points)),
		Historical:    make([]HistoricalPoint, cleaned.Len()),
		Metrics:       Summarize(cleaned, anomalies, points),
	}
	for i, p := range points {
		result.Forecast[i] = ForecastRecord{Date: p.Label(), Prediction: p.Prediction}
	}
	for i, o := range cleaned.Obs {
		result.Historical[i] = HistoricalPoint{Timestamp: o.TimeLabel(), Value: o.Value}
	}

	log.Debug().
		Str("target", req.TargetColumn).
		Int("rows_in", len(req.Rows)).
		Int("rows_processed", result.Metrics.RowsProcessed).
		Int("anomalies", result.Metrics.AnomaliesDetected).
		Dur("elapsed", time.Since(start)).
		Msg("analysis complete")

	return result, nil
}

// Summarize derives the run metrics from the pipeline outcome. Pure and
// total.
func Summarize(cleaned *series.Series, anomalies []anomaly.Anomaly, points []forecast.Point) RunMetrics {
	return RunMetrics{
		RowsProcessed:     cleaned.Len(),
		AnomaliesDetected: len(anomalies),
		ForecastHorizon:   len(points),
	}
}

// RunMetrics summarizes one analysis run. Recomputed per run, never
// persisted.
type RunMetrics struct {
	RowsProcessed     int `json:"rows_processed"`
	AnomaliesDetected int `json:"anomalies_detected"`
	ForecastHorizon   int `json:"forecast_horizon"`
}
