package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// pacer is an http.RoundTripper that holds each request until the token
// bucket has room for it.
type pacer struct {
	limiter *rate.Limiter
	cfg     Config
	next    http.RoundTripper
	logFn   func() *slog.Logger
}

// NewRoundTripper returns an http.RoundTripper that paces outbound requests
// with a token bucket. logFn lazily resolves the logger at request time,
// making option ordering irrelevant; a nil logger disables wait logging.
func NewRoundTripper(cfg Config, logFn func() *slog.Logger, next http.RoundTripper) (http.RoundTripper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if next == nil {
		next = http.DefaultTransport
	}
	if logFn == nil {
		logFn = func() *slog.Logger { return nil }
	}

	return &pacer{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cfg:     cfg,
		next:    next,
		logFn:   logFn,
	}, nil
}

func (p *pacer) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	res := p.limiter.Reserve()
	delay := res.Delay()
	if delay == 0 {
		return p.next.RoundTrip(r)
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		res.Cancel()
		return nil, fmt.Errorf("%w: need %s: %w", ErrWaitingFailed, delay, context.DeadlineExceeded)
	}

	logger := p.logFn()
	if logger != nil {
		logger.Info("throttle tokens exhausted", "rate", p.cfg.RPS, "burst", p.cfg.Burst, "host", r.URL.Host, "delay", delay.String())
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		res.Cancel()
		return nil, fmt.Errorf("%w: %w", ErrWaitingFailed, ctx.Err())
	}

	if logger != nil {
		logger.Debug("throttle wait complete", "waited", delay.String(), "host", r.URL.Host)
	}

	return p.next.RoundTrip(r)
}
