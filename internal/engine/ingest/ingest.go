// Package ingest turns raw row maps plus column roles into a validated,
// typed series. Coercion failures become missing markers here; the
// cleaning pipeline decides what to do with them.
package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/driftwatch/driftwatch/internal/engine/pipeline"
	"github.com/driftwatch/driftwatch/internal/engine/series"
	"github.com/driftwatch/driftwatch/internal/errs"
)

// dateLayouts are tried in order when the date column arrives as text.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// Ingest validates the column roles against the row schema, bounds the
// input to maxRows, and coerces every row into a typed observation.
// Target cells that fail numeric coercion become missing markers, not
// errors; unparsable dates fall back to row-index ordering. The returned
// step log holds at most the row-limit entry.
func Ingest(rows []map[string]interface{}, featureCols []string, targetCol, dateCol string, maxRows int) (*series.Series, []pipeline.StepRecord, error) {
	var steps []pipeline.StepRecord

	if len(rows) > 0 {
		schema := rows[0]
		if _, ok := schema[targetCol]; !ok {
			return nil, nil, &errs.SchemaError{Column: targetCol}
		}
		for _, col := range featureCols {
			if _, ok := schema[col]; !ok {
				return nil, nil, &errs.SchemaError{Column: col}
			}
		}
		if dateCol != "" {
			if _, ok := schema[dateCol]; !ok {
				return nil, nil, &errs.SchemaError{Column: dateCol}
			}
		}
	}

	if maxRows > 0 && len(rows) > maxRows {
		dropped := len(rows) - maxRows
		rows = rows[:maxRows]
		steps = append(steps, pipeline.StepRecord{
			Description:  fmt.Sprintf("row limit applied (first %d of %d rows kept)", maxRows, maxRows+dropped),
			RowsAffected: dropped,
		})
	}

	s := &series.Series{
		Target:   targetCol,
		DateCol:  dateCol,
		Features: append([]string(nil), featureCols...),
		Obs:      make([]series.Observation, 0, len(rows)),
	}

	for i, row := range rows {
		obs := series.Observation{Index: i, Raw: row}

		if v, ok := coerceNumber(row[targetCol]); ok {
			obs.Value = v
		} else {
			obs.Value = math.NaN()
			obs.Missing = true
		}

		if dateCol != "" {
			if ts, ok := coerceTime(row[dateCol]); ok {
				obs.Timestamp = ts
				obs.HasTime = true
			}
		}

		if len(featureCols) > 0 {
			obs.Features = make(map[string]float64, len(featureCols))
			for _, col := range featureCols {
				if v, ok := coerceNumber(row[col]); ok {
					obs.Features[col] = v
				} else {
					obs.Features[col] = math.NaN()
				}
			}
		}

		s.Obs = append(s.Obs, obs)
	}

	return s, steps, nil
}

// coerceNumber converts the value types produced by SQL drivers and
// JSON decoding into a float64.
func coerceNumber(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// coerceTime parses the date column into an ordered key. Numeric values
// are read as unix seconds.
func coerceTime(v interface{}) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	case int64:
		return time.Unix(x, 0).UTC(), true
	case float64:
		return time.Unix(int64(x), 0).UTC(), true
	case []byte:
		return parseTime(string(x))
	case string:
		return parseTime(x)
	default:
		return time.Time{}, false
	}
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
