package throttle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRoundTripper_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		cfg    Config
		expErr error
	}{
		{
			name:   "Invalid RPS (zero)",
			cfg:    Config{RPS: 0, Burst: 10},
			expErr: ErrMustNotBeZero,
		},
		{
			name:   "Invalid RPS (negative)",
			cfg:    Config{RPS: -5, Burst: 10},
			expErr: ErrMustNotBeZero,
		},
		{
			name:   "Invalid Burst (zero)",
			cfg:    Config{RPS: 10, Burst: 0},
			expErr: ErrMustNotBeZero,
		},
		{
			name:   "Invalid Burst (negative)",
			cfg:    Config{RPS: 10, Burst: -5},
			expErr: ErrMustNotBeZero,
		},
		{
			name: "Valid input",
			cfg:  Config{RPS: 10, Burst: 20},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rt, err := NewRoundTripper(tc.cfg, nil, http.DefaultTransport)

			if tc.expErr != nil {
				if !errors.Is(err, tc.expErr) {
					t.Errorf("exp err %v; got: %v", tc.expErr, err)
				}
				return
			}

			if err != nil {
				t.Errorf("exp nil err, got: %v", err)
			}
			if rt == nil {
				t.Error("exp non-nil RoundTripper")
			}
		})
	}
}

func TestPacer_Behavior(t *testing.T) {
	checkDeadline := func(t *testing.T, err error) {
		if !errors.Is(err, ErrWaitingFailed) {
			t.Errorf("exp ErrWaitingFailed, got: %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("exp context.DeadlineExceeded, got: %v", err)
		}
	}
	checkEarly := func(t *testing.T, err error) {
		if !errors.Is(err, ErrContextEnded) {
			t.Errorf("exp ErrContextEnded, got: %v", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("exp context.Canceled, got: %v", err)
		}
	}

	testCases := []struct {
		name        string
		cfg         Config
		numRequests int
		reqTimeout  time.Duration
		preCancel   bool
		expErrs     int
		errorCheck  func(t *testing.T, err error)
		minDuration time.Duration
		maxDuration time.Duration
	}{
		{
			name:        "High limits under concurrent load",
			cfg:         Config{RPS: 10000, Burst: 100},
			numRequests: 50,
			maxDuration: 300 * time.Millisecond,
		},
		{
			name:        "Within burst",
			cfg:         Config{RPS: 5, Burst: 5},
			numRequests: 5,
			maxDuration: 150 * time.Millisecond,
		},
		{
			name:        "Exceed burst and wait",
			cfg:         Config{RPS: 10, Burst: 5},
			numRequests: 8,
			reqTimeout:  time.Second,
			// (8-5) / 10 RPS
			minDuration: 250 * time.Millisecond,
		},
		{
			name:        "Exceed burst past the deadline",
			cfg:         Config{RPS: 5, Burst: 2},
			numRequests: 5,
			reqTimeout:  50 * time.Millisecond,
			expErrs:     3,
			errorCheck:  checkDeadline,
			// Requests that cannot make their deadline fail without waiting.
			maxDuration: 150 * time.Millisecond,
		},
		{
			name:        "Pre-cancelled context fails early",
			cfg:         Config{RPS: 20, Burst: 10},
			numRequests: 1,
			preCancel:   true,
			expErrs:     1,
			errorCheck:  checkEarly,
			maxDuration: 50 * time.Millisecond,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var callCount atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				callCount.Add(1)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			rt, err := NewRoundTripper(tc.cfg, nil, http.DefaultTransport)
			if err != nil {
				t.Fatal(err)
			}
			client := &http.Client{Transport: rt}

			errs := make([]error, tc.numRequests)
			start := time.Now()

			var wg sync.WaitGroup
			for i := range tc.numRequests {
				wg.Go(func() {
					var ctx context.Context
					var cancel context.CancelFunc
					if tc.reqTimeout > 0 {
						ctx, cancel = context.WithTimeout(context.Background(), tc.reqTimeout)
					} else {
						ctx, cancel = context.WithCancel(context.Background())
					}
					defer cancel()
					if tc.preCancel {
						cancel()
					}

					req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
					if err != nil {
						errs[i] = err
						return
					}

					resp, err := client.Do(req)
					if err != nil {
						errs[i] = err
						return
					}
					resp.Body.Close()
				})
			}
			wg.Wait()
			duration := time.Since(start)

			var failed int
			for _, err := range errs {
				if err == nil {
					continue
				}
				failed++
				if tc.errorCheck != nil {
					tc.errorCheck(t, err)
				}
			}

			if failed != tc.expErrs {
				t.Errorf("exp %d failed requests; got %d", tc.expErrs, failed)
			}
			if got := int(callCount.Load()); got != tc.numRequests-failed {
				t.Errorf("exp %d server calls; got %d", tc.numRequests-failed, got)
			}
			if tc.minDuration > 0 && duration < tc.minDuration {
				t.Errorf("exp throttling to take at least %v, took %v", tc.minDuration, duration)
			}
			if tc.maxDuration > 0 && duration > tc.maxDuration {
				t.Errorf("exp to finish within %v, took %v", tc.maxDuration, duration)
			}
		})
	}
}

func TestPacer_CancelWhileWaiting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	rt, err := NewRoundTripper(Config{RPS: 1, Burst: 1}, nil, http.DefaultTransport)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Transport: rt}

	first, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(first)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	second, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	start := time.Now()
	_, err = client.Do(second)

	if !errors.Is(err, ErrWaitingFailed) || !errors.Is(err, context.Canceled) {
		t.Errorf("exp ErrWaitingFailed wrapping context.Canceled, got: %v", err)
	}
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Errorf("exp cancel to cut the wait short, took %v", d)
	}
}

func TestPacer_LogsWaits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))

	rt, err := NewRoundTripper(Config{RPS: 50, Burst: 1}, func() *slog.Logger { return logger }, http.DefaultTransport)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Transport: rt}

	for range 2 {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
	}

	mu.Lock()
	defer mu.Unlock()
	if got := strings.Count(buf.String(), "throttle tokens exhausted"); got != 1 {
		t.Errorf("exp one wait logged, got %d:\n%s", got, buf.String())
	}
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
