package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks transport failures talking to the forecast API.
	ErrNetwork = errors.New("network error")
	// ErrAPI marks non-success responses from the forecast API.
	ErrAPI = errors.New("api error")
	// ErrDecode marks response bodies that do not have the expected shape.
	ErrDecode = errors.New("decode error")
	// ErrData marks corrupt persisted records or unparsable stored temperatures.
	ErrData = errors.New("data error")
	// ErrMissingAPIKey is returned when no forecast API key is configured.
	ErrMissingAPIKey = errors.New("forecast api key is not configured")
)

// APIError is returned when the forecast API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool { return target == ErrAPI }

// DataError describes one bad value found in stored state.
type DataError struct {
	CityName string
	Value    string
	Err      error
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("data error: %q", e.Value)
	if e.CityName != "" {
		msg = fmt.Sprintf("data error for %s: %q", e.CityName, e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Is(target error) bool { return target == ErrData }

func (e *DataError) Unwrap() error { return e.Err }
