package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/adamwoolhether/botcommons/dispatch/ratelimit"
)

func noJitter() Policy {
	p := Default()
	p.Jitter = func(d time.Duration) time.Duration { return d }
	return p
}

func TestPolicy_Decide(t *testing.T) {
	p := noJitter()

	testCases := []struct {
		name         string
		outcome      Outcome
		expAction    Action
		expDelay     time.Duration
		expErr       error
		expThrottled bool
		expTransient bool
	}{
		{
			name:      "OK",
			outcome:   Outcome{StatusCode: http.StatusOK, Attempt: 1},
			expAction: Succeed,
		},
		{
			name:      "No content",
			outcome:   Outcome{StatusCode: http.StatusNoContent, Attempt: 1},
			expAction: Succeed,
		},
		{
			name:      "Not found is permanent",
			outcome:   Outcome{StatusCode: http.StatusNotFound, Attempt: 1},
			expAction: Fail,
			expErr:    ErrRequestFailed,
		},
		{
			name:      "Forbidden is permanent",
			outcome:   Outcome{StatusCode: http.StatusForbidden, Attempt: 1},
			expAction: Fail,
			expErr:    ErrRequestFailed,
		},
		{
			name:      "Not implemented is permanent",
			outcome:   Outcome{StatusCode: http.StatusNotImplemented, Attempt: 1},
			expAction: Fail,
			expErr:    ErrRequestFailed,
		},
		{
			name:         "First server error backs off from min",
			outcome:      Outcome{StatusCode: http.StatusBadGateway, Attempt: 1},
			expAction:    Retry,
			expDelay:     100 * time.Millisecond,
			expTransient: true,
		},
		{
			name:         "Second server error doubles",
			outcome:      Outcome{StatusCode: http.StatusInternalServerError, Attempt: 2, Failures: 1},
			expAction:    Retry,
			expDelay:     200 * time.Millisecond,
			expTransient: true,
		},
		{
			name:         "Third server error exhausts",
			outcome:      Outcome{StatusCode: http.StatusServiceUnavailable, Attempt: 3, Failures: 2},
			expAction:    Fail,
			expErr:       ErrRetryExhausted,
			expTransient: true,
		},
		{
			name: "Throttled honours retry-after",
			outcome: Outcome{
				StatusCode: http.StatusTooManyRequests,
				Attempt:    1,
				Rate:       ratelimit.Info{RetryAfter: 750 * time.Millisecond},
			},
			expAction:    Retry,
			expDelay:     750 * time.Millisecond,
			expThrottled: true,
		},
		{
			name: "Throttled does not consume attempts",
			outcome: Outcome{
				StatusCode: http.StatusTooManyRequests,
				Attempt:    9,
				Failures:   2,
				Rate:       ratelimit.Info{RetryAfter: time.Second},
			},
			expAction:    Retry,
			expDelay:     time.Second,
			expThrottled: true,
		},
		{
			name:         "Throttled without hint uses floor",
			outcome:      Outcome{StatusCode: http.StatusTooManyRequests, Attempt: 1},
			expAction:    Retry,
			expDelay:     500 * time.Millisecond,
			expThrottled: true,
		},
		{
			name:         "Repeated hintless throttle grows",
			outcome:      Outcome{StatusCode: http.StatusTooManyRequests, Attempt: 3, Throttles: 2},
			expAction:    Retry,
			expDelay:     2 * time.Second,
			expThrottled: true,
		},
		{
			name: "Throttle past wait budget fails",
			outcome: Outcome{
				StatusCode: http.StatusTooManyRequests,
				Attempt:    4,
				Elapsed:    119 * time.Second,
				Rate:       ratelimit.Info{RetryAfter: 2 * time.Second},
			},
			expAction:    Fail,
			expErr:       ErrThrottled,
			expThrottled: true,
		},
		{
			name:         "Connection reset is transient",
			outcome:      Outcome{Err: &net.OpError{Op: "read", Err: errors.New("connection reset by peer")}, Attempt: 1},
			expAction:    Retry,
			expDelay:     100 * time.Millisecond,
			expTransient: true,
		},
		{
			name: "Unsupported scheme is permanent",
			outcome: Outcome{
				Err:     &url.Error{Op: "Get", URL: "ftp://x", Err: errors.New("unsupported protocol scheme \"ftp\"")},
				Attempt: 1,
			},
			expAction: Fail,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := p.Decide(t.Context(), tc.outcome)

			if d.Action != tc.expAction {
				t.Fatalf("exp action %s, got %s (err: %v)", tc.expAction, d.Action, d.Err)
			}
			if d.Delay != tc.expDelay {
				t.Errorf("exp delay %v, got %v", tc.expDelay, d.Delay)
			}
			if tc.expErr != nil && !errors.Is(d.Err, tc.expErr) {
				t.Errorf("exp err %v, got %v", tc.expErr, d.Err)
			}
			if tc.expAction == Fail && d.Err == nil {
				t.Error("exp non-nil err on fail")
			}
			if d.Throttled != tc.expThrottled {
				t.Errorf("exp throttled %t, got %t", tc.expThrottled, d.Throttled)
			}
			if d.Transient != tc.expTransient {
				t.Errorf("exp transient %t, got %t", tc.expTransient, d.Transient)
			}
		})
	}
}

func TestPolicy_Decide_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	d := Default().Decide(ctx, Outcome{Err: context.Canceled, Attempt: 1})
	if d.Action != Fail {
		t.Fatalf("exp fail, got %s", d.Action)
	}
	if !errors.Is(d.Err, context.Canceled) {
		t.Errorf("exp context.Canceled, got %v", d.Err)
	}
}

func TestPolicy_Decide_Permanent(t *testing.T) {
	err := fmt.Errorf("reading body: %w", ErrPermanent)

	d := Default().Decide(t.Context(), Outcome{Err: err, Attempt: 1})
	if d.Action != Fail {
		t.Fatalf("exp fail, got %s", d.Action)
	}
	if d.Err != err {
		t.Errorf("exp the transport error back, got %v", d.Err)
	}
}

func TestPolicy_Decide_RemoteMessage(t *testing.T) {
	d := Default().Decide(t.Context(), Outcome{
		StatusCode: http.StatusForbidden,
		Body:       []byte(`{"message":"Missing Access","code":50001}`),
		Attempt:    1,
	})

	var rf *RequestFailedError
	if !errors.As(d.Err, &rf) {
		t.Fatalf("exp *RequestFailedError, got %T", d.Err)
	}
	if rf.Message != "Missing Access" {
		t.Errorf("exp message %q, got %q", "Missing Access", rf.Message)
	}
	if rf.Code != "50001" {
		t.Errorf("exp code %q, got %q", "50001", rf.Code)
	}
	if rf.StatusCode != http.StatusForbidden {
		t.Errorf("exp status %d, got %d", http.StatusForbidden, rf.StatusCode)
	}
}

func TestPolicy_Decide_ExhaustedKeepsCause(t *testing.T) {
	p := Default()
	p.MaxAttempts = 1

	d := p.Decide(t.Context(), Outcome{StatusCode: http.StatusBadGateway, Body: []byte("upstream down"), Attempt: 1})

	var ex *RetryExhaustedError
	if !errors.As(d.Err, &ex) {
		t.Fatalf("exp *RetryExhaustedError, got %T", d.Err)
	}

	var se *StatusError
	if !errors.As(d.Err, &se) {
		t.Fatalf("exp wrapped *StatusError, got %v", d.Err)
	}
	if se.StatusCode != http.StatusBadGateway || se.Body != "upstream down" {
		t.Errorf("unexpected status error: %+v", se)
	}
}

func TestPolicy_Jitter(t *testing.T) {
	p := Default()

	for range 100 {
		d := p.Decide(t.Context(), Outcome{StatusCode: http.StatusInternalServerError, Attempt: 2, Failures: 1})
		if d.Delay < 100*time.Millisecond || d.Delay >= 200*time.Millisecond {
			t.Fatalf("jittered delay %v outside [100ms, 200ms)", d.Delay)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Policy)
		expErr bool
	}{
		{name: "Default", mutate: func(*Policy) {}},
		{name: "Zero attempts", mutate: func(p *Policy) { p.MaxAttempts = 0 }, expErr: true},
		{name: "Negative wait", mutate: func(p *Policy) { p.MaxWait = -1 }, expErr: true},
		{name: "Inverted backoff", mutate: func(p *Policy) { p.MaxBackoff = time.Millisecond }, expErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := Default()
			tc.mutate(&p)

			err := p.Validate()
			if tc.expErr && err == nil {
				t.Error("exp error, got nil")
			}
			if !tc.expErr && err != nil {
				t.Errorf("exp nil err, got: %v", err)
			}
		})
	}
}
