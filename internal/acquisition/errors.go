package acquisition

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineClosed is returned when starting a session after Close.
	ErrEngineClosed = errors.New("acquisition: engine closed")

	// ErrResponseTooLarge is returned when a response body exceeds the configured limit.
	ErrResponseTooLarge = errors.New("acquisition: response too large")
)

// FetchError describes a failed REST fetch. Its message is what the widget shows.
type FetchError struct {
	URL    string
	Status int // HTTP status, 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func statusError(url string, code int, text string) *FetchError {
	return &FetchError{URL: url, Status: code, Err: fmt.Errorf("HTTP %d: %s", code, text)}
}
