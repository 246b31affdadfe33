package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/engine"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a one-shot analysis over a CSV file",
		Long:  "Cleans the dataset, detects anomalies, forecasts the target column, and prints a summary. Use --out to write a YAML report.",
		RunE:  runAnalyze,
	}
	cmd.Flags().String("csv", "", "Input CSV file (required)")
	cmd.Flags().String("target", "", "Target column (required)")
	cmd.Flags().String("date", "", "Date column")
	cmd.Flags().String("features", "", "Comma-separated feature columns")
	cmd.Flags().String("anomaly-method", "zscore", "Anomaly method (zscore|isolation_forest)")
	cmd.Flags().Float64("threshold", 0, "Anomaly threshold override")
	cmd.Flags().String("forecast-method", "linear_regression", "Forecast method (linear_regression|holt_winters)")
	cmd.Flags().Int("periods", 10, "Forecast horizon")
	cmd.Flags().Int("max-rows", 0, "Row limit (0 = config default)")
	cmd.Flags().String("out", "", "Write a YAML report to this path")
	_ = cmd.MarkFlagRequired("csv")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

// analysisReport is the YAML artifact written by --out.
type analysisReport struct {
	GeneratedAt   string             `yaml:"generated_at"`
	Source        string             `yaml:"source"`
	Target        string             `yaml:"target"`
	Metrics       reportMetrics      `yaml:"metrics"`
	PipelineSteps []string           `yaml:"pipeline_steps"`
	Anomalies     []reportAnomaly    `yaml:"anomalies"`
	Forecast      []reportPrediction `yaml:"forecast"`
}

type reportMetrics struct {
	RowsProcessed     int `yaml:"rows_processed"`
	AnomaliesDetected int `yaml:"anomalies_detected"`
	ForecastHorizon   int `yaml:"forecast_horizon"`
}

type reportAnomaly struct {
	Timestamp string  `yaml:"timestamp"`
	Value     float64 `yaml:"value"`
	Severity  string  `yaml:"severity"`
	Score     float64 `yaml:"score"`
}

type reportPrediction struct {
	Date       string  `yaml:"date"`
	Prediction float64 `yaml:"prediction"`
}

// analyzeOptions is the parsed analyze flag set.
type analyzeOptions struct {
	csvPath        string
	target         string
	dateCol        string
	features       []string
	anomalyMethod  string
	threshold      float64
	forecastMethod string
	periods        int
	maxRows        int
	outPath        string
}

func analyzeOptionsFrom(flags *pflag.FlagSet) analyzeOptions {
	var opts analyzeOptions
	opts.csvPath, _ = flags.GetString("csv")
	opts.target, _ = flags.GetString("target")
	opts.dateCol, _ = flags.GetString("date")
	if featuresFlag, _ := flags.GetString("features"); featuresFlag != "" {
		for _, f := range strings.Split(featuresFlag, ",") {
			opts.features = append(opts.features, strings.TrimSpace(f))
		}
	}
	opts.anomalyMethod, _ = flags.GetString("anomaly-method")
	opts.threshold, _ = flags.GetFloat64("threshold")
	opts.forecastMethod, _ = flags.GetString("forecast-method")
	opts.periods, _ = flags.GetInt("periods")
	opts.maxRows, _ = flags.GetInt("max-rows")
	opts.outPath, _ = flags.GetString("out")
	return opts
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	setLogLevel(cfg.LogLevel)

	opts := analyzeOptionsFrom(cmd.Flags())
	rows, err := readCSV(opts.csvPath)
	if err != nil {
		return err
	}

	eng := engine.New(cfg.Engine)
	result, err := eng.Analyze(cmd.Context(), engine.Request{
		Rows:             rows,
		FeatureColumns:   opts.features,
		TargetColumn:     opts.target,
		DateColumn:       opts.dateCol,
		AnomalyMethod:    opts.anomalyMethod,
		AnomalyThreshold: opts.threshold,
		ForecastMethod:   opts.forecastMethod,
		ForecastPeriods:  opts.periods,
		MaxRows:          opts.maxRows,
	})
	if err != nil {
		return err
	}

	printSummary(result)

	if opts.outPath != "" {
		if err := writeReport(opts.outPath, opts.csvPath, opts.target, result); err != nil {
			return err
		}
		log.Info().Str("path", opts.outPath).Msg("report written")
	}
	return nil
}

func readCSV(path string) ([]map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	var rows []map[string]interface{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		row := make(map[string]interface{}, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func printSummary(result *engine.Result) {
	fmt.Printf("Rows processed:     %d\n", result.Metrics.RowsProcessed)
	fmt.Printf("Anomalies detected: %d\n", result.Metrics.AnomaliesDetected)
	fmt.Printf("Forecast horizon:   %d\n", result.Metrics.ForecastHorizon)
	if len(result.PipelineSteps) > 0 {
		fmt.Println("Pipeline steps:")
		for _, s := range result.PipelineSteps {
			fmt.Printf("  - %s\n", s.String())
		}
	}
	for _, a := range result.Anomalies {
		fmt.Printf("ANOMALY %-8s %s value=%.4f score=%.3f\n", a.Severity, a.Timestamp, a.Value, a.Score)
	}
	for _, p := range result.Forecast {
		fmt.Printf("FORECAST %s prediction=%.4f\n", p.Date, p.Prediction)
	}
}

func writeReport(path, source, target string, result *engine.Result) error {
	report := analysisReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Source:      source,
		Target:      target,
		Metrics: reportMetrics{
			RowsProcessed:     result.Metrics.RowsProcessed,
			AnomaliesDetected: result.Metrics.AnomaliesDetected,
			ForecastHorizon:   result.Metrics.ForecastHorizon,
		},
	}
	for _, s := range result.PipelineSteps {
		report.PipelineSteps = append(report.PipelineSteps, s.String())
	}
	for _, a := range result.Anomalies {
		report.Anomalies = append(report.Anomalies, reportAnomaly{
			Timestamp: a.Timestamp,
			Value:     a.Value,
			Severity:  string(a.Severity),
			Score:     a.Score,
		})
	}
	for _, p := range result.Forecast {
		report.Forecast = append(report.Forecast, reportPrediction{Date: p.Date, Prediction: p.Prediction})
	}

	data, err := yaml.Marshal(&report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
