package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftwatch/driftwatch/internal/connect"
	"github.com/driftwatch/driftwatch/internal/engine"
	"github.com/driftwatch/driftwatch/internal/errs"
	"github.com/driftwatch/driftwatch/internal/live"
	"github.com/driftwatch/driftwatch/internal/metrics"
)

// Handlers holds the API endpoint implementations and their
// collaborators.
type Handlers struct {
	engine *engine.Engine
	conn   *connect.Connector
	stream *live.Engine
	met    *metrics.Registry
}

func NewHandlers(eng *engine.Engine, conn *connect.Connector, stream *live.Engine, met *metrics.Registry) *Handlers {
	return &Handlers{engine: eng, conn: conn, stream: stream, met: met}
}

// Health reports liveness plus the live stream state.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	state := "disabled"
	if h.stream != nil {
		state = h.stream.State().String()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"stream":    state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Connect validates database credentials and returns a connection
// token. The credentials are never stored or echoed back.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	var creds connect.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if creds.Host == "" || creds.Database == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "host and database are required")
		return
	}
	token, err := h.conn.Connect(r.Context(), creds)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("connection failed")
		writeError(w, http.StatusBadRequest, "connection_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"connection_id": token,
	})
}

// Disconnect drops a connection token.
func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ConnectionID string `json:"connection_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ConnectionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "connection_id is required")
		return
	}
	if err := h.conn.Disconnect(r.Context(), body.ConnectionID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}

// Tables returns the reflected schema for a connection token.
func (h *Handlers) Tables(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("connection_id")
	if token == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "connection_id is required")
		return
	}
	tables, err := h.conn.ReflectSchema(r.Context(), token)
	if err != nil {
		if errors.Is(err, connect.ErrUnknownToken) {
			writeError(w, http.StatusNotFound, "unknown_connection", "unknown connection_id")
			return
		}
		log.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("schema reflection failed")
		writeError(w, http.StatusInternalServerError, "internal", "unable to list tables")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"tables": tables,
	})
}

// analyzeRequest is the /api/analyze body: where to pull rows from plus
// the engine's knobs.
type analyzeRequest struct {
	ConnectionID     string   `json:"connection_id"`
	Table            string   `json:"table"`
	FeatureColumns   []string `json:"feature_columns"`
	TargetColumn     string   `json:"target_column"`
	DateColumn       string   `json:"date_column"`
	AnomalyMethod    string   `json:"anomaly_method"`
	AnomalyThreshold float64  `json:"anomaly_threshold"`
	ForecastMethod   string   `json:"forecast_method"`
	ForecastPeriods  int      `json:"forecast_periods"`
	Limit            int      `json:"limit"`
	MaxRows          int      `json:"max_rows"`
}

func (req *analyzeRequest) applyDefaults() {
	if req.AnomalyMethod == "" {
		req.AnomalyMethod = "zscore"
	}
	if req.ForecastMethod == "" {
		req.ForecastMethod = "linear_regression"
	}
	if req.ForecastPeriods <= 0 {
		req.ForecastPeriods = 10
	}
	if req.Limit <= 0 {
		req.Limit = 10000
	}
}

// Analyze pulls rows for the requested table and runs the full batch
// pipeline: clean, detect, forecast, summarize.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.ConnectionID == "" || req.Table == "" || req.TargetColumn == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "connection_id, table and target_column are required")
		return
	}
	req.applyDefaults()

	fetchLimit := req.Limit
	if req.MaxRows > 0 && req.MaxRows < fetchLimit {
		fetchLimit = req.MaxRows
	}

	columns := append([]string(nil), req.FeatureColumns...)
	columns = append(columns, req.TargetColumn)
	if req.DateColumn != "" {
		columns = append(columns, req.DateColumn)
	}

	rows, err := h.conn.FetchRows(r.Context(), req.ConnectionID, req.Table, columns, fetchLimit)
	if err != nil {
		h.met.AnalysesTotal.WithLabelValues("error").Inc()
		if errors.Is(err, connect.ErrUnknownToken) {
			writeError(w, http.StatusNotFound, "unknown_connection", "unknown connection_id")
			return
		}
		log.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("row fetch failed")
		writeError(w, http.StatusBadRequest, "fetch_failed", err.Error())
		return
	}

	result, err := h.engine.Analyze(r.Context(), engine.Request{
		Rows:             rows,
		FeatureColumns:   req.FeatureColumns,
		TargetColumn:     req.TargetColumn,
		DateColumn:       req.DateColumn,
		AnomalyMethod:    req.AnomalyMethod,
		AnomalyThreshold: req.AnomalyThreshold,
		ForecastMethod:   req.ForecastMethod,
		ForecastPeriods:  req.ForecastPeriods,
		MaxRows:          req.MaxRows,
	})
	if err != nil {
		h.met.AnalysesTotal.WithLabelValues("error").Inc()
		writeEngineError(w, err)
		return
	}

	h.met.AnalysesTotal.WithLabelValues("ok").Inc()
	h.met.AnalysisDuration.Observe(time.Since(start).Seconds())
	h.met.AnomaliesDetected.WithLabelValues(req.AnomalyMethod).Add(float64(len(result.Anomalies)))

	steps := make([]string, len(result.PipelineSteps))
	for i, s := range result.PipelineSteps {
		steps[i] = s.String()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "success",
		"pipeline_steps": steps,
		"anomalies":      result.Anomalies,
		"forecast":       result.Forecast,
		"metrics":        result.Metrics,
		"historical":     result.Historical,
	})
}

// writeEngineError maps the typed engine errors onto status codes. User
// input errors are 400 with the error kind; anything else is internal.
func writeEngineError(w http.ResponseWriter, err error) {
	var schemaErr *errs.SchemaError
	var methodErr *errs.UnsupportedMethodError
	var dataErr *errs.InsufficientDataError
	switch {
	case errors.As(err, &schemaErr):
		writeError(w, http.StatusBadRequest, schemaErr.Kind(), schemaErr.Error())
	case errors.As(err, &methodErr):
		writeError(w, http.StatusBadRequest, methodErr.Kind(), methodErr.Error())
	case errors.As(err, &dataErr):
		writeError(w, http.StatusBadRequest, dataErr.Kind(), dataErr.Error())
	default:
		log.Error().Err(err).Msg("analysis failed")
		writeError(w, http.StatusInternalServerError, "internal", "analysis failed")
	}
}

// NotFound is the JSON 404 handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "no such endpoint")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, kind, detail string) {
	writeJSON(w, status, map[string]interface{}{
		"status": "error",
		"error":  kind,
		"detail": detail,
	})
}
