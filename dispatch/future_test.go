package dispatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testFuture(t *testing.T) *Future {
	t.Helper()

	d, err := NewDescriptor(Request{Method: http.MethodGet, BaseURL: "https://api.example.com"})
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	return newFuture(d)
}

func TestFuture_ResolveOnce(t *testing.T) {
	f := testFuture(t)

	var calls atomic.Int32
	f.OnComplete(func(*Response, error) { calls.Add(1) })

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := range 10 {
		wg.Go(func() {
			var won bool
			if i%2 == 0 {
				won = f.resolve(StateSucceeded, ok(), nil)
			} else {
				won = f.resolve(StateFailed, nil, errors.New("boom"))
			}
			if won {
				wins.Add(1)
			}
		})
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("exp exactly one resolution, got %d", got)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("exp callback once, got %d", got)
	}
	if !f.State().Terminal() {
		t.Errorf("exp terminal state, got %s", f.State())
	}
	if f.setState(StateRetrying) || f.begin() {
		t.Error("exp no transition out of a terminal state")
	}
}

func TestFuture_Poll(t *testing.T) {
	f := testFuture(t)

	if _, done, _ := f.Poll(); done {
		t.Fatal("exp pending future")
	}

	f.begin()
	if got := f.State(); got != StateExecuting {
		t.Errorf("exp executing, got %s", got)
	}

	f.resolve(StateSucceeded, ok(), nil)

	resp, done, err := f.Poll()
	if !done || err != nil || resp.StatusCode != http.StatusOK {
		t.Errorf("exp resolved 200, got done=%t resp=%v err=%v", done, resp, err)
	}

	select {
	case <-f.Done():
	default:
		t.Error("exp done channel closed")
	}
}

func TestFuture_OnCompleteAfterResolve(t *testing.T) {
	f := testFuture(t)
	f.resolve(StateFailed, nil, ErrRequestFailed)

	var got error
	f.OnComplete(func(_ *Response, err error) { got = err })

	if !errors.Is(got, ErrRequestFailed) {
		t.Errorf("exp callback to run inline with the stored error, got %v", got)
	}
}

func TestFuture_WaitContext(t *testing.T) {
	f := testFuture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("exp deadline exceeded, got %v", err)
	}
	if f.State().Terminal() {
		t.Error("exp waiting to leave the request alone")
	}
}

func TestFuture_Cancel(t *testing.T) {
	f := testFuture(t)

	var dequeued bool
	f.dequeue = func() bool {
		dequeued = true
		return true
	}

	if !f.Cancel() {
		t.Fatal("exp cancel to resolve")
	}
	if !dequeued {
		t.Error("exp cancel to dequeue")
	}
	if _, err := f.Wait(t.Context()); !errors.Is(err, ErrCancelled) {
		t.Errorf("exp ErrCancelled, got %v", err)
	}
	if f.Cancel() {
		t.Error("exp second cancel to be a no-op")
	}
}

func TestState_String(t *testing.T) {
	for s, exp := range map[State]string{
		StatePending:   "pending",
		StateExecuting: "executing",
		StateRetrying:  "retrying",
		StateSucceeded: "succeeded",
		StateFailed:    "failed",
		StateCancelled: "cancelled",
		State(42):      "unknown",
	} {
		if got := s.String(); got != exp {
			t.Errorf("exp %s, got %s", exp, got)
		}
	}
}
