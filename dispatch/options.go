package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/botcommons/dispatch/retry"
	"github.com/adamwoolhether/botcommons/dispatch/stats"
)

// defaultFallbackReset is how long a bucket stays closed after a response
// that carried no usable rate metadata.
const defaultFallbackReset = time.Second

// Option is a functional option for configuring a [Dispatcher] via [New].
type Option func(*options) error
type options struct {
	logger       *slog.Logger
	tracer       trace.Tracer
	policy       *retry.Policy
	maxInFlight  int
	globalWindow bool
	globalRate   *globalRate
	fallback     *time.Duration
	priority     bool
	recorder     stats.Recorder
}

type globalRate struct {
	rps   int
	burst int
}

// WithLogger injects a custom [slog.Logger] into the [Dispatcher].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used for per-attempt spans. A no-op tracer is
// used by default.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// WithRetryPolicy replaces [retry.Default].
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) error {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("retry policy: %w", err)
		}
		o.policy = &p
		return nil
	}
}

// WithMaxInFlight caps transport calls in flight across all buckets.
// Zero means unlimited.
func WithMaxInFlight(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return errors.New("max in flight must not be negative")
		}
		o.maxInFlight = n
		return nil
	}
}

// WithGlobalWindow makes a throttled response flagged as global pause
// every bucket until the remote's retry-after has passed.
func WithGlobalWindow() Option {
	return func(o *options) error {
		o.globalWindow = true
		return nil
	}
}

// WithGlobalRate paces dispatches across all buckets with a token bucket of
// the given requests per second and burst capacity. It implies
// [WithGlobalWindow].
func WithGlobalRate(rps, burst int) Option {
	return func(o *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
		}
		o.globalWindow = true
		o.globalRate = &globalRate{rps: rps, burst: burst}
		return nil
	}
}

// WithFallbackReset sets how long a bucket waits after a response without
// usable rate-limit metadata. Zero trusts such responses and keeps
// dispatching.
func WithFallbackReset(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.New("fallback reset must not be negative")
		}
		o.fallback = &d
		return nil
	}
}

// WithPriorityQueue lets higher [Request.Priority] values go ahead of
// lower ones within a bucket. Equal priorities keep arrival order.
func WithPriorityQueue() Option {
	return func(o *options) error {
		o.priority = true
		return nil
	}
}

// WithRecorder reports every terminal outcome to r.
func WithRecorder(r stats.Recorder) Option {
	return func(o *options) error {
		if r == nil {
			return errors.New("recorder must not be nil")
		}
		o.recorder = r
		return nil
	}
}
