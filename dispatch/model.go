package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/adamwoolhether/botcommons/dispatch/retry"
)

// Transport performs a single HTTP exchange. Implementations own
// connection pooling, TLS and keep-alive. A non-nil error means no
// response was received.
type Transport interface {
	Do(ctx context.Context, call *Call) (*Response, error)
}

// TransportFunc adapts a function to [Transport].
type TransportFunc func(ctx context.Context, call *Call) (*Response, error)

// Do calls f.
func (f TransportFunc) Do(ctx context.Context, call *Call) (*Response, error) {
	return f(ctx, call)
}

// Call is what the dispatcher hands the transport for one attempt.
type Call struct {
	ID     string
	Method string
	URL    string
	Header http.Header
	Body   []byte
	Bucket string
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// UnreadableResponseError is returned by a transport that got a response
// but could not read its body. The dispatcher still learns the bucket's
// rate state from Header.
type UnreadableResponseError struct {
	StatusCode int
	Header     http.Header
	Err        error
}

func (e *UnreadableResponseError) Error() string {
	return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
}

func (e *UnreadableResponseError) Unwrap() error {
	return e.Err
}

var (
	// ErrValidation is wrapped by every [FieldErrors] value.
	ErrValidation = errors.New("invalid request")
	// ErrCancelled resolves a future cancelled by its caller.
	ErrCancelled = errors.New("request cancelled")
	// ErrDraining is returned by Submit once Shutdown has begun.
	ErrDraining = errors.New("dispatcher is draining")
	// ErrMustNotBeZero reports a non-positive rate or burst.
	ErrMustNotBeZero = errors.New("must be greater than zero")
)

// Remote failure types are defined next to the policy that produces them.
type (
	// ThrottledError means the wait budget ran out while throttled.
	ThrottledError = retry.ThrottledError
	// RetryExhaustedError means transient failures outlasted the attempt bound.
	RetryExhaustedError = retry.RetryExhaustedError
	// RequestFailedError is a permanent rejection by the remote.
	RequestFailedError = retry.RequestFailedError
)

var (
	ErrThrottled      = retry.ErrThrottled
	ErrRetryExhausted = retry.ErrRetryExhausted
	ErrRequestFailed  = retry.ErrRequestFailed
	ErrPermanent      = retry.ErrPermanent
)
