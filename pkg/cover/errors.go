package cover

import (
	"context"
	"errors"
	"fmt"
)

// ErrCancelled is returned by adapter internals when the token fired between
// two blocking steps.
var ErrCancelled = errors.New("cancelled")

// ErrForeignService marks a candidate or image handed to an adapter that does
// not own it. It indicates a caller bug rather than a service failure.
var ErrForeignService = errors.New("item belongs to another service")

// NetworkError wraps transport level failures such as timeouts or refused
// connections.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError reports a non-success HTTP status returned by a service.
type APIError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("api error for %s: %s", e.URL, e.Status)
	}
	return fmt.Sprintf("api error for %s: status %d", e.URL, e.StatusCode)
}

// DataError reports a response that could not be parsed or lacked required
// fields.
type DataError struct {
	URL string
	Msg string
	Err error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error for %s: %s: %v", e.URL, e.Msg, e.Err)
	}
	return fmt.Sprintf("data error for %s: %s", e.URL, e.Msg)
}

func (e *DataError) Unwrap() error { return e.Err }

// InputError reports a query the service cannot act on, such as both search
// terms being empty or a missing API credential.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return "input error: " + e.Msg }

// IsCancellation reports whether err stems from the token firing.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// classify returns a short label used for logs and metrics.
func classify(err error) string {
	var (
		netErr  *NetworkError
		apiErr  *APIError
		dataErr *DataError
		inErr   *InputError
	)
	switch {
	case err == nil:
		return "ok"
	case IsCancellation(err):
		return "cancelled"
	case errors.Is(err, ErrForeignService):
		return "contract"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &apiErr):
		return "api"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &dataErr):
		return "data"
	case errors.As(err, &inErr):
		return "input"
	}
	return "error"
}
