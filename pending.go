package botcommons

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/adamwoolhether/botcommons/dispatch"
)

// Mapper turns a successful response into a value.
type Mapper[T any] func(*dispatch.Response) (T, error)

// Pending is a request that has been described but not yet sent. Its
// setters return the receiver for chaining and must not be called once
// the request is sent.
type Pending[T any] struct {
	web           *Web
	req           dispatch.Request
	mapper        Mapper[T]
	allowNotFound bool
	err           error
}

func newPending[T any](w *Web, req dispatch.Request, mapper Mapper[T], err error) *Pending[T] {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	return &Pending[T]{web: w, req: req, mapper: mapper, err: err}
}

// Header sets a request header.
func (p *Pending[T]) Header(key, value string) *Pending[T] {
	p.req.Header.Set(key, value)
	return p
}

// Priority orders the request within its bucket when the dispatcher runs
// a priority queue. Higher runs first.
func (p *Pending[T]) Priority(n int) *Pending[T] {
	p.req.Priority = n
	return p
}

// AllowNotFound resolves a 404 with the zero value of T instead of an error.
func (p *Pending[T]) AllowNotFound() *Pending[T] {
	p.allowNotFound = true
	return p
}

// Request returns a copy of the request that will be submitted.
func (p *Pending[T]) Request() dispatch.Request {
	req := p.req
	req.Header = p.req.Header.Clone()
	return req
}

// Execute sends the request and blocks until it resolves or ctx ends.
func (p *Pending[T]) Execute(ctx context.Context) (T, error) {
	f, err := p.Submit(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return f.Wait(ctx)
}

// Async sends the request and reports the outcome to one of the callbacks
// from a dispatcher goroutine. Either callback may be nil.
func (p *Pending[T]) Async(ctx context.Context, onSuccess func(T), onError func(error)) {
	f, err := p.Submit(ctx)
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return
	}

	f.f.OnComplete(func(resp *dispatch.Response, err error) {
		v, err := f.settle(resp, err)
		switch {
		case err != nil && onError != nil:
			onError(err)
		case err == nil && onSuccess != nil:
			onSuccess(v)
		}
	})
}

// Submit queues the request and returns a handle to its outcome.
func (p *Pending[T]) Submit(ctx context.Context) (*Future[T], error) {
	if p.err != nil {
		return nil, p.err
	}

	req := p.Request()
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", p.web.UserAgent())
	}
	if req.Header.Get("Cache-Control") == "" {
		req.Header.Set("Cache-Control", "no-cache")
	}

	f, err := p.web.d.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Future[T]{f: f, mapper: p.mapper, allowNotFound: p.allowNotFound}, nil
}

// Future is the typed outcome of a submitted [Pending].
type Future[T any] struct {
	f             *dispatch.Future
	mapper        Mapper[T]
	allowNotFound bool
}

// Wait blocks until the request resolves or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	resp, err := f.f.Wait(ctx)
	return f.settle(resp, err)
}

// Cancel cancels the request. See [dispatch.Future.Cancel].
func (f *Future[T]) Cancel() bool {
	return f.f.Cancel()
}

// Untyped returns the underlying dispatcher future.
func (f *Future[T]) Untyped() *dispatch.Future {
	return f.f
}

func (f *Future[T]) settle(resp *dispatch.Response, err error) (T, error) {
	var zero T

	if err != nil {
		var rf *dispatch.RequestFailedError
		if f.allowNotFound && errors.As(err, &rf) && rf.StatusCode == http.StatusNotFound {
			return zero, nil
		}
		return zero, err
	}

	v, err := f.mapper(resp)
	if err != nil {
		return zero, fmt.Errorf("mapping response: %w", err)
	}
	return v, nil
}
