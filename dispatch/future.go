package dispatch

import (
	"context"
	"sync"
)

// State is a request's position in its lifecycle:
//
//	Pending -> Executing -> {Succeeded | Retrying -> Pending... | Failed}
//
// Cancelled may be entered from any non-terminal state.
type State int

const (
	StatePending State = iota
	StateExecuting
	StateRetrying
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExecuting:
		return "executing"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is final.
func (s State) Terminal() bool {
	return s >= StateSucceeded
}

// Future is the caller's handle on a submitted request. It resolves
// exactly once.
type Future struct {
	id     string
	bucket string
	done   chan struct{}

	mu        sync.Mutex
	state     State
	resp      *Response
	err       error
	attempts  int
	callbacks []func(*Response, error)

	// dequeue removes the request from its bucket queue, reporting
	// whether it was still there.
	dequeue func() bool
	// hooks run after resolution, before waiters and callbacks.
	hooks []func(*Future)
}

func newFuture(d Descriptor) *Future {
	return &Future{
		id:     d.ID(),
		bucket: d.BucketKey(),
		done:   make(chan struct{}),
	}
}

// ID is the descriptor ID of the request.
func (f *Future) ID() string { return f.id }

// Bucket is the rate-limit bucket the request was queued on.
func (f *Future) Bucket() string { return f.bucket }

// Done returns a channel closed on resolution.
func (f *Future) Done() <-chan struct{} { return f.done }

// State returns the current lifecycle state.
func (f *Future) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Attempts returns how many transport calls have been started.
func (f *Future) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Wait blocks until the request resolves or ctx ends. A ctx error does
// not cancel the request.
func (f *Future) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resp, f.err
}

// Poll returns the outcome without blocking. done is false while the
// request is still live.
func (f *Future) Poll() (resp *Response, done bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.state.Terminal() {
		return nil, false, nil
	}
	return f.resp, true, f.err
}

// OnComplete registers fn to run once on resolution. If the future has
// already resolved, fn runs immediately on the calling goroutine.
func (f *Future) OnComplete(fn func(*Response, error)) {
	f.mu.Lock()
	if !f.state.Terminal() {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	resp, err := f.resp, f.err
	f.mu.Unlock()

	fn(resp, err)
}

// Cancel withdraws the request. A queued request is removed from its
// bucket and never executed. A request already executing resolves as
// cancelled now and its transport result is discarded when it arrives.
// Cancel reports whether this call resolved the future.
func (f *Future) Cancel() bool {
	if f.State().Terminal() {
		return false
	}

	if f.dequeue != nil {
		f.dequeue()
	}

	return f.resolve(StateCancelled, nil, ErrCancelled)
}

// setState moves a live future between non-terminal states.
func (f *Future) setState(s State) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.Terminal() {
		return false
	}
	f.state = s
	return true
}

// begin marks the start of an attempt.
func (f *Future) begin() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.Terminal() {
		return false
	}
	f.state = StateExecuting
	f.attempts++
	return true
}

// resolve settles the future. Only the first call has any effect.
func (f *Future) resolve(s State, resp *Response, err error) bool {
	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return false
	}

	f.state = s
	f.resp = resp
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	hooks := f.hooks
	f.hooks = nil
	f.mu.Unlock()

	// Hooks finish their bookkeeping before any waiter wakes.
	for _, h := range hooks {
		h(f)
	}
	close(f.done)

	for _, cb := range callbacks {
		cb(resp, err)
	}

	return true
}
