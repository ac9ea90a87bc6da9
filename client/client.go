package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/adamwoolhether/botcommons/client/throttle"
	"github.com/adamwoolhether/botcommons/dispatch"
)

// Client wraps the std-lib *http.Client and performs single HTTP
// exchanges for a [dispatch.Dispatcher]. It sets a default *http.Client
// and *http.Transport, which can be customized via optional funcs.
type Client struct {
	c           *http.Client
	logger      *slog.Logger
	headers     http.Header
	maxBodySize int64
}

var _ dispatch.Transport = (*Client)(nil)

// Build constructs a [Client].
func Build(optFns ...Option) (*Client, error) {
	client := &Client{
		c:           &http.Client{},
		logger:      slog.Default(),
		maxBodySize: defaultMaxBodySize,
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	if opts.client != nil {
		client.c = opts.client
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	if opts.timeout != nil {
		client.c.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		client.c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if opts.maxBodySize > 0 {
		client.maxBodySize = opts.maxBodySize
	}
	client.headers = opts.headers

	if opts.cookieJar {
		jar, err := newCookieJar()
		if err != nil {
			return nil, err
		}
		client.c.Jar = jar
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}
	if opts.proxy != nil {
		rt, err := withProxy(transport, *opts.proxy)
		if err != nil {
			return nil, fmt.Errorf("configuring proxy: %w", err)
		}
		transport = rt
	}
	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}
	if opts.throttle != nil {
		rt, err := throttle.NewRoundTripper(*opts.throttle, func() *slog.Logger { return client.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	client.c.Transport = transport

	return client, nil
}

// HTTPClient returns the underlying *http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.c
}

// Do performs one exchange and reads the whole, decoded body. Any status
// code is a response; only failures to get one are errors.
func (c *Client) Do(ctx context.Context, call *dispatch.Call) (*dispatch.Response, error) {
	var body io.Reader
	if len(call.Body) > 0 {
		body = bytes.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	for k, v := range call.Header {
		req.Header[k] = append([]string(nil), v...)
	}
	for k, v := range c.headers {
		if _, ok := req.Header[k]; !ok {
			req.Header[k] = append([]string(nil), v...)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exec http do: %w", err)
	}

	defer func() {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			c.logger.Error("failed to discard unused body", "error", err)
		}
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	b, err := c.read(resp)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", resp.Status,
			&dispatch.UnreadableResponseError{StatusCode: resp.StatusCode, Header: resp.Header, Err: err})
	}

	c.logger.Debug("http exchange", "id", call.ID, "method", call.Method, "url", call.URL, "status", resp.StatusCode, "bytes", len(b))

	return &dispatch.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       b,
	}, nil
}

// read drains the decoded body up to the size limit. Decoded responses
// lose their Content-Encoding and Content-Length headers.
func (c *Client) read(resp *http.Response) ([]byte, error) {
	r, closeFn, err := decode(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dispatch.ErrPermanent, err)
	}
	defer closeFn()

	b, err := io.ReadAll(io.LimitReader(r, c.maxBodySize+1))
	if err != nil {
		return nil, err
	}

	if int64(len(b)) > c.maxBodySize {
		return nil, fmt.Errorf("%w: %w", dispatch.ErrPermanent, &BodyTooLargeError{Limit: c.maxBodySize, Err: ErrBodyTooLarge})
	}

	if resp.Header.Get("Content-Encoding") != "" {
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
	}

	return b, nil
}
