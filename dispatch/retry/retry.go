// Package retry decides what happens after each attempt of a dispatched
// request: complete it, fail it, or try again after a delay.
//
// # Classification
//
//   - 1xx-3xx: success.
//   - 429: throttled. The wait comes from the response's Retry-After or
//     reset metadata, falling back to an exponential floor. Throttles do not
//     use up attempts, but the total wait is capped by [Policy.MaxWait].
//   - 5xx (except 501) and transport errors: transient. Retried with
//     jittered exponential backoff up to [Policy.MaxAttempts]. Transport
//     errors wrapping [ErrPermanent] fail at once.
//   - Anything else: permanent, failed on the spot.
package retry

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/adamwoolhether/botcommons/dispatch/ratelimit"
)

// maxErrBodySize caps the body text copied into errors.
const maxErrBodySize = 4 << 10 // 4KB

// Action is the verdict for one attempt.
type Action int

const (
	Succeed Action = iota
	Fail
	Retry
)

func (a Action) String() string {
	switch a {
	case Succeed:
		return "succeed"
	case Fail:
		return "fail"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}

// Outcome describes a finished attempt.
type Outcome struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Err        error

	// Attempt is the 1-based number of the attempt that produced this outcome.
	Attempt int
	// Failures counts transient failures before this attempt.
	Failures int
	// Throttles counts throttled responses before this attempt.
	Throttles int
	// Elapsed is the time since the request was submitted.
	Elapsed time.Duration

	Rate ratelimit.Info
}

// Decision is the policy's verdict.
type Decision struct {
	Action Action
	Delay  time.Duration
	Err    error

	Throttled bool
	Transient bool
}

// Policy holds the retry bounds.
type Policy struct {
	// MaxAttempts bounds attempts spent on transient failures. Throttled
	// attempts are not counted.
	MaxAttempts int
	// MinBackoff and MaxBackoff bound the exponential backoff.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// ThrottleFloor is the first backoff step when a throttled response
	// gives no hint of how long to wait.
	ThrottleFloor time.Duration
	// MaxWait caps total time from submission to the next attempt of a
	// throttled request. Zero disables the cap.
	MaxWait time.Duration
	// Jitter spreads transient backoff. Nil selects equal jitter.
	Jitter func(time.Duration) time.Duration
}

// Default returns the policy used when none is configured.
func Default() Policy {
	return Policy{
		MaxAttempts:   3,
		MinBackoff:    100 * time.Millisecond,
		MaxBackoff:    5 * time.Second,
		ThrottleFloor: 500 * time.Millisecond,
		MaxWait:       2 * time.Minute,
	}
}

// Validate reports a misconfigured policy.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return errors.New("max attempts must be at least 1")
	case p.MinBackoff < 0 || p.MaxBackoff < 0 || p.ThrottleFloor < 0 || p.MaxWait < 0:
		return errors.New("durations must not be negative")
	case p.MaxBackoff < p.MinBackoff:
		return errors.New("max backoff must not be below min backoff")
	}
	return nil
}

// Decide classifies an outcome. ctx is the request context; a finished
// context stops transport-error retries.
func (p Policy) Decide(ctx context.Context, o Outcome) Decision {
	if o.Err != nil {
		return p.transportFailure(ctx, o)
	}

	switch {
	case o.StatusCode < http.StatusBadRequest:
		return Decision{Action: Succeed}
	case o.StatusCode == http.StatusTooManyRequests:
		return p.throttled(o)
	}

	// Response classification only looks at the status, so the request
	// context must not veto it.
	retryable, _ := retryablehttp.DefaultRetryPolicy(context.Background(), &http.Response{StatusCode: o.StatusCode}, nil)
	if retryable && o.StatusCode >= http.StatusInternalServerError {
		return p.transient(o, &StatusError{StatusCode: o.StatusCode, Body: truncate(o.Body)})
	}

	return Decision{Action: Fail, Err: requestFailed(o)}
}

func (p Policy) transportFailure(ctx context.Context, o Outcome) Decision {
	if (ctx != nil && ctx.Err() != nil) || errors.Is(o.Err, ErrPermanent) {
		return Decision{Action: Fail, Err: o.Err}
	}

	// retryablehttp inspects *url.Error directly, so hand it the innermost one.
	probe := o.Err
	var uerr *url.Error
	if errors.As(o.Err, &uerr) {
		probe = uerr
	}

	if retryable, _ := retryablehttp.DefaultRetryPolicy(context.Background(), nil, probe); !retryable {
		return Decision{Action: Fail, Err: o.Err}
	}

	return p.transient(o, o.Err)
}

func (p Policy) transient(o Outcome, cause error) Decision {
	failures := o.Failures + 1
	if failures >= p.MaxAttempts {
		return Decision{
			Action:    Fail,
			Transient: true,
			Err: &RetryExhaustedError{
				Attempts:   o.Attempt,
				StatusCode: o.StatusCode,
				Last:       cause,
				Err:        ErrRetryExhausted,
			},
		}
	}

	var resp *http.Response
	if o.StatusCode != 0 {
		resp = &http.Response{StatusCode: o.StatusCode, Header: o.Header}
	}

	delay := retryablehttp.DefaultBackoff(p.MinBackoff, p.MaxBackoff, failures-1, resp)
	if !o.Rate.HasRetryAfter() {
		delay = p.jitter(delay)
	}

	return Decision{Action: Retry, Delay: delay, Transient: true}
}

func (p Policy) throttled(o Outcome) Decision {
	delay := o.Rate.RetryAfter
	if delay <= 0 && o.Rate.Valid && o.Rate.Remaining == 0 {
		delay = time.Until(o.Rate.ResetAt)
	}
	if delay <= 0 {
		delay = retryablehttp.DefaultBackoff(p.ThrottleFloor, max(p.MaxBackoff, p.ThrottleFloor), o.Throttles, nil)
	}

	if p.MaxWait > 0 && o.Elapsed+delay > p.MaxWait {
		return Decision{
			Action:    Fail,
			Throttled: true,
			Err: &ThrottledError{
				RetryAfter: delay,
				Waited:     o.Elapsed,
				Global:     o.Rate.Global,
				Err:        ErrThrottled,
			},
		}
	}

	return Decision{Action: Retry, Delay: delay, Throttled: true}
}

func (p Policy) jitter(d time.Duration) time.Duration {
	if p.Jitter != nil {
		return p.Jitter(d)
	}
	if d <= 1 {
		return d
	}

	half := d / 2
	return half + rand.N(d-half)
}

// requestFailed builds the permanent error, lifting the remote's
// message and code out of a JSON body when there is one.
func requestFailed(o Outcome) *RequestFailedError {
	e := &RequestFailedError{
		StatusCode: o.StatusCode,
		Body:       truncate(o.Body),
		Err:        ErrRequestFailed,
	}

	var payload struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code"`
	}
	if len(o.Body) > 0 && json.Unmarshal(o.Body, &payload) == nil {
		e.Message = payload.Message
		e.Code = strings.Trim(string(payload.Code), `"`)
	}

	return e
}

func truncate(b []byte) string {
	if len(b) > maxErrBodySize {
		b = b[:maxErrBodySize]
	}
	return string(b)
}
