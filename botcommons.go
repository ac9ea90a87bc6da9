// Package botcommons exposes web helpers for chat bots on top of a
// rate-limited request dispatcher.
//
// A [Web] owns a [dispatch.Dispatcher] and a [client.Client]. Its helpers
// return [Pending] requests that can be executed synchronously, run with
// callbacks, or submitted for a future:
//
//	web, err := botcommons.New()
//	if err != nil {
//		return err
//	}
//	defer web.Shutdown(context.Background())
//
//	text, err := web.GetText("https://example.com/motd").Execute(ctx)
//
// Requests to the same method, host and path share a rate-limit bucket.
package botcommons

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/adamwoolhether/botcommons/client"
	"github.com/adamwoolhether/botcommons/dispatch"
)

// Version is reported in the default User-Agent.
const Version = "1.0.0"

// DefaultUserAgent identifies requests made through a [Web].
const DefaultUserAgent = "Mozilla/5.0 (compatible; BotCommons/" + Version + "; +https://github.com/adamwoolhether/botcommons)"

// Web issues HTTP requests through a dispatcher.
type Web struct {
	d         *dispatch.Dispatcher
	userAgent atomic.Pointer[string]
}

// Option is a functional option for configuring a [Web] via [New].
type Option func(*options) error
type options struct {
	dispatcher   *dispatch.Dispatcher
	clientOpts   []client.Option
	dispatchOpts []dispatch.Option
	userAgent    string
}

// WithDispatcher uses an existing dispatcher. Client and dispatch options
// are ignored when it is set.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(o *options) error {
		if d == nil {
			return errors.New("dispatcher must not be nil")
		}
		o.dispatcher = d
		return nil
	}
}

// WithClientOptions configures the underlying [client.Client].
func WithClientOptions(opts ...client.Option) Option {
	return func(o *options) error {
		o.clientOpts = append(o.clientOpts, opts...)
		return nil
	}
}

// WithDispatchOptions configures the underlying [dispatch.Dispatcher].
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(o *options) error {
		o.dispatchOpts = append(o.dispatchOpts, opts...)
		return nil
	}
}

// WithUserAgent replaces [DefaultUserAgent].
func WithUserAgent(ua string) Option {
	return func(o *options) error {
		if ua == "" {
			return errors.New("user agent must not be empty")
		}
		o.userAgent = ua
		return nil
	}
}

// New constructs a [Web].
func New(optFns ...Option) (*Web, error) {
	o := options{userAgent: DefaultUserAgent}
	for _, opt := range optFns {
		if err := opt(&o); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	d := o.dispatcher
	if d == nil {
		c, err := client.Build(o.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("building client: %w", err)
		}

		d, err = dispatch.New(c, o.dispatchOpts...)
		if err != nil {
			return nil, fmt.Errorf("building dispatcher: %w", err)
		}
	}

	w := Web{d: d}
	w.userAgent.Store(&o.userAgent)

	return &w, nil
}

// UserAgent returns the User-Agent sent with new requests.
func (w *Web) UserAgent() string {
	return *w.userAgent.Load()
}

// SetUserAgent changes the User-Agent for requests built afterwards.
func (w *Web) SetUserAgent(ua string) {
	w.userAgent.Store(&ua)
}

// Dispatcher exposes the dispatcher for introspection.
func (w *Web) Dispatcher() *dispatch.Dispatcher {
	return w.d
}

// Shutdown drains the dispatcher. See [dispatch.Dispatcher.Shutdown].
func (w *Web) Shutdown(ctx context.Context) error {
	return w.d.Shutdown(ctx)
}
