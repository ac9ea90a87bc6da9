package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// inFlight counts unresolved submissions so a drain knows when the
// dispatcher has gone quiet.
type inFlight struct {
	n      atomic.Int64
	closed atomic.Bool
	once   sync.Once
	ch     chan struct{}
}

func newInFlight() *inFlight {
	return &inFlight{ch: make(chan struct{})}
}

// begin admits one submission. It fails once close has been called.
func (f *inFlight) begin() bool {
	if f.closed.Load() {
		return false
	}
	f.n.Add(1)
	if f.closed.Load() {
		f.end()
		return false
	}
	return true
}

// end retires one submission.
func (f *inFlight) end() {
	if f.n.Add(-1) == 0 && f.closed.Load() {
		f.signal()
	}
}

// close stops admissions. It reports false if already closed.
func (f *inFlight) close() bool {
	if !f.closed.CompareAndSwap(false, true) {
		return false
	}
	if f.n.Load() == 0 {
		f.signal()
	}
	return true
}

func (f *inFlight) signal() {
	f.once.Do(func() { close(f.ch) })
}

// wait blocks until drained or ctx ends.
func (f *inFlight) wait(ctx context.Context) error {
	select {
	case <-f.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *inFlight) pending() int64 {
	return f.n.Load()
}
