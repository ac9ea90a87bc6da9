package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/http/httpproxy"
	"golang.org/x/net/publicsuffix"
)

type proxyConfig struct {
	url     string
	noProxy string
	fromEnv bool
}

// proxyFunc resolves the proxy for each request, honouring the bypass list.
func (p proxyConfig) proxyFunc() (func(*http.Request) (*url.URL, error), error) {
	cfg := httpproxy.FromEnvironment()
	if !p.fromEnv {
		if _, err := url.Parse(p.url); err != nil {
			return nil, fmt.Errorf("parsing proxy url: %w", err)
		}
		cfg = &httpproxy.Config{
			HTTPProxy:  p.url,
			HTTPSProxy: p.url,
			NoProxy:    p.noProxy,
		}
	}

	fn := cfg.ProxyFunc()
	return func(r *http.Request) (*url.URL, error) {
		return fn(r.URL)
	}, nil
}

// withProxy returns a copy of base that routes through the proxy. Only
// an *http.Transport can carry a proxy.
func withProxy(base http.RoundTripper, p proxyConfig) (http.RoundTripper, error) {
	tr, ok := base.(*http.Transport)
	if !ok {
		return nil, errors.New("proxy requires the base transport to be an *http.Transport")
	}

	fn, err := p.proxyFunc()
	if err != nil {
		return nil, err
	}

	tr = tr.Clone()
	tr.Proxy = fn

	return tr, nil
}

func newCookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return jar, nil
}
