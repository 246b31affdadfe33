// Package errs defines the typed errors surfaced by the analysis engine.
// Callers match them with errors.As; each carries a stable Kind string
// the HTTP layer maps onto status codes.
package errs

import "fmt"

// SchemaError reports a column reference that does not exist in the
// input rows. User input error, surfaced verbatim.
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("unknown column %q in dataset", e.Column)
}

func (e *SchemaError) Kind() string { return "schema_error" }

// UnsupportedMethodError reports an unknown strategy name for anomaly
// detection or forecasting.
type UnsupportedMethodError struct {
	Feature string // "anomaly" or "forecast"
	Method  string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported %s method %q", e.Feature, e.Method)
}

func (e *UnsupportedMethodError) Kind() string { return "unsupported_method" }

// InsufficientDataError reports a forecast request against a cleaned
// series with fewer points than the method requires.
type InsufficientDataError struct {
	Got int
	Min int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d cleaned observations, need at least %d", e.Got, e.Min)
}

func (e *InsufficientDataError) Kind() string { return "insufficient_data" }
