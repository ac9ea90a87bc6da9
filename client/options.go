package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/textproto"
	"time"

	"github.com/adamwoolhether/botcommons/client/throttle"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	userAgent         string
	headers           http.Header
	throttle          *throttle.Config
	proxy             *proxyConfig
	cookieJar         bool
	maxBodySize       int64
	noFollowRedirects bool
	logger            *slog.Logger
}

// WithClient replaces the default [http.Client] used by the [Client].
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout sets the overall request timeout on the underlying [http.Client].
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithUserAgent sets the User-Agent of outgoing requests that do not
// carry their own.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithHeader sets a header on every request that does not already carry it.
func WithHeader(key, value string) Option {
	return func(c *options) error {
		if key == "" {
			return errors.New("header key must not be empty")
		}
		if c.headers == nil {
			c.headers = http.Header{}
		}
		c.headers.Set(textproto.CanonicalMIMEHeaderKey(key), value)
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests per second and burst capacity.
//
// The wait happens inside Do, so under a [dispatch.Dispatcher] it holds the
// bucket's in-flight slot and a [dispatch.WithMaxInFlight] slot while it
// sleeps. Prefer [dispatch.WithGlobalRate] there; it paces with timers and
// occupies nothing while waiting.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		cfg := throttle.Config{RPS: rps, Burst: burst}
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.throttle = &cfg
		return nil
	}
}

// WithProxy routes requests through proxyURL, except for hosts matched by
// noProxy (comma separated hosts, domains and CIDRs, as in NO_PROXY).
func WithProxy(proxyURL, noProxy string) Option {
	return func(c *options) error {
		if proxyURL == "" {
			return errors.New("proxy url must not be empty")
		}
		c.proxy = &proxyConfig{url: proxyURL, noProxy: noProxy}
		return nil
	}
}

// WithProxyFromEnvironment reads HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
func WithProxyFromEnvironment() Option {
	return func(c *options) error {
		c.proxy = &proxyConfig{fromEnv: true}
		return nil
	}
}

// WithCookieJar keeps cookies between requests, scoped by public suffix.
func WithCookieJar() Option {
	return func(c *options) error {
		c.cookieJar = true
		return nil
	}
}

// WithMaxBodySize caps how many decoded response bytes are read. Larger
// bodies fail with [ErrBodyTooLarge].
func WithMaxBodySize(n int64) Option {
	return func(c *options) error {
		if n <= 0 {
			return fmt.Errorf("max body size[%d] %w", n, throttle.ErrMustNotBeZero)
		}
		c.maxBodySize = n
		return nil
	}
}

// WithNoFollowRedirects prevents the [Client] from following HTTP redirects.
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the default User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") != "" {
		return ua.base.RoundTrip(r)
	}

	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}
