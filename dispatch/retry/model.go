package retry

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrThrottled is wrapped by [ThrottledError].
	ErrThrottled = errors.New("throttled")
	// ErrRetryExhausted is wrapped by [RetryExhaustedError].
	ErrRetryExhausted = errors.New("retries exhausted")
	// ErrRequestFailed is wrapped by [RequestFailedError].
	ErrRequestFailed = errors.New("request failed")
	// ErrPermanent marks a transport error that retrying cannot fix.
	ErrPermanent = errors.New("permanent transport failure")
)

// ThrottledError is returned once the remote keeps throttling a request
// past the policy's wall-clock budget.
type ThrottledError struct {
	RetryAfter time.Duration
	Waited     time.Duration
	Global     bool
	Err        error
}

func (e *ThrottledError) Error() string {
	scope := "bucket"
	if e.Global {
		scope = "global"
	}
	return fmt.Sprintf("%v (%s): retry after %s exceeds budget, waited %s", e.Err, scope, e.RetryAfter, e.Waited)
}

func (e *ThrottledError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is returned when transient failures outlast the
// attempt bound. Last holds the final attempt's failure.
type RetryExhaustedError struct {
	Attempts   int
	StatusCode int
	Last       error
	Err        error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", e.Err, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Last}
}

// RequestFailedError is a non-retriable rejection by the remote.
type RequestFailedError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %d: %s", e.Err, e.StatusCode, e.Message)
	}
	if e.Body != "" {
		return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%v: %d (no body)", e.Err, e.StatusCode)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// StatusError describes a transient non-2xx response. It is carried as
// [RetryExhaustedError.Last].
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}
