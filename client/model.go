package client

import (
	"errors"
	"fmt"
)

// defaultMaxBodySize caps decoded response bodies unless overridden with
// [WithMaxBodySize].
const defaultMaxBodySize = 8 << 20 // 8MB

var (
	// ErrBodyTooLarge is the sentinel error wrapped by [BodyTooLargeError].
	ErrBodyTooLarge = errors.New("response body too large")
	// ErrUnsupportedEncoding is returned for a Content-Encoding the client
	// did not ask for.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
)

// BodyTooLargeError is returned when a response body exceeds the
// configured limit.
type BodyTooLargeError struct {
	Limit int64
	Err   error
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("%v: limit %d bytes", e.Err, e.Limit)
}

func (e *BodyTooLargeError) Unwrap() error {
	return e.Err
}
