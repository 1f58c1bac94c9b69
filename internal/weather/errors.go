package weather

import (
	"errors"
	"fmt"
	"strings"
)

// NoDataError means the provider answered but had no point at or after the
// requested time.
type NoDataError struct {
	Provider  string
	Timestamp int64
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("%s: no data at or after %d", e.Provider, e.Timestamp)
}

// UpstreamHTTPError covers transport failures, non-2xx statuses and
// non-JSON responses. StatusCode is 0 when no response was received.
type UpstreamHTTPError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *UpstreamHTTPError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: upstream request failed: %v", e.Provider, e.Err)
}

func (e *UpstreamHTTPError) Unwrap() error { return e.Err }

// SchemaError means the payload did not match the expected shape.
type SchemaError struct {
	Provider string
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: unexpected payload: %v", e.Provider, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Attempt records one failed provider call inside a fallback chain.
type Attempt struct {
	Provider string `json:"provider"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

// AggregateError is returned by FallbackProvider when every provider failed.
type AggregateError struct {
	Op       string
	Attempts []Attempt
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Provider+": "+a.Message)
	}
	return fmt.Sprintf("all weather providers failed (%s): %s", e.Op, strings.Join(parts, "; "))
}

func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// IsNoData reports whether err means "no data yet" rather than a failure:
// either a NoDataError or an AggregateError whose attempts were all NoDataError.
func IsNoData(err error) bool {
	var agg *AggregateError
	if errors.As(err, &agg) {
		if len(agg.Attempts) == 0 {
			return false
		}
		for _, a := range agg.Attempts {
			var nd *NoDataError
			if !errors.As(a.Err, &nd) {
				return false
			}
		}
		return true
	}
	var nd *NoDataError
	return errors.As(err, &nd)
}
