package dispatch

import (
	"bytes"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request is the caller's description of one outbound call. It is
// validated and frozen into a [Descriptor] on submission.
//
// Route is a path template whose {name} placeholders are filled from
// Params. Requests sharing Method, host, Route and the value of the
// Major parameter share a bucket; Bucket overrides that key entirely.
type Request struct {
	Method   string            `json:"method" validate:"required,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS"`
	BaseURL  string            `json:"base_url" validate:"required,http_url"`
	Route    string            `json:"route" validate:"omitempty,startswith=/"`
	Params   map[string]string `json:"params" validate:"omitempty,dive,keys,required,endkeys"`
	Major    string            `json:"major" validate:"omitempty,max=64"`
	Bucket   string            `json:"bucket" validate:"omitempty,max=256"`
	Header   http.Header       `json:"-"`
	Body     []byte            `json:"-"`
	Priority int               `json:"priority" validate:"gte=0,lte=100"`
}

// Descriptor is an immutable, validated request. Accessors return copies.
type Descriptor struct {
	id        string
	method    string
	url       string
	route     string
	params    map[string]string
	bucket    string
	header    http.Header
	body      []byte
	priority  int
	submitted time.Time
}

// NewDescriptor validates req and freezes it. The returned error is a
// [FieldErrors] wrapping [ErrValidation].
func NewDescriptor(req Request) (Descriptor, error) {
	if err := check(req); err != nil {
		return Descriptor{}, err
	}

	if req.Major != "" {
		if _, ok := req.Params[req.Major]; !ok {
			return Descriptor{}, fieldError("major", "Must name one of the route params")
		}
	}

	path, err := expand(req.Route, req.Params)
	if err != nil {
		return Descriptor{}, err
	}

	base := strings.TrimSuffix(req.BaseURL, "/")
	if _, err := url.Parse(base + path); err != nil {
		return Descriptor{}, fieldError("route", "Does not form a valid URL")
	}

	d := Descriptor{
		id:        uuid.NewString(),
		method:    req.Method,
		url:       base + path,
		route:     req.Route,
		params:    maps.Clone(req.Params),
		bucket:    req.Bucket,
		header:    req.Header.Clone(),
		body:      bytes.Clone(req.Body),
		priority:  req.Priority,
		submitted: time.Now(),
	}

	if d.bucket == "" {
		d.bucket = bucketKey(req)
	}
	if d.header == nil {
		d.header = http.Header{}
	}

	return d, nil
}

// ID is the generated request ID.
func (d Descriptor) ID() string { return d.id }

// Method is the HTTP method.
func (d Descriptor) Method() string { return d.method }

// URL is the resolved request URL with route params substituted.
func (d Descriptor) URL() string { return d.url }

// Route is the unresolved route template.
func (d Descriptor) Route() string { return d.route }

// BucketKey is the rate-limit bucket the request queues on.
func (d Descriptor) BucketKey() string { return d.bucket }

// Priority orders the request under [WithPriorityQueue].
func (d Descriptor) Priority() int { return d.priority }

// Submitted is when the descriptor was created.
func (d Descriptor) Submitted() time.Time { return d.submitted }

// Params returns a copy of the route params.
func (d Descriptor) Params() map[string]string { return maps.Clone(d.params) }

// Header returns a copy of the request headers.
func (d Descriptor) Header() http.Header { return d.header.Clone() }

// Body returns a copy of the request body.
func (d Descriptor) Body() []byte { return bytes.Clone(d.body) }

// valid reports whether d came from NewDescriptor.
func (d Descriptor) valid() bool {
	return d.id != ""
}

// call builds the transport input for one attempt.
func (d Descriptor) call() *Call {
	return &Call{
		ID:     d.id,
		Method: d.method,
		URL:    d.url,
		Header: d.header.Clone(),
		Body:   bytes.Clone(d.body),
		Bucket: d.bucket,
	}
}

// bucketKey derives the rate-limit bucket for req.
func bucketKey(req Request) string {
	route := req.Route
	if route == "" {
		route = "/"
	}

	var host string
	if u, err := url.Parse(req.BaseURL); err == nil {
		host = u.Host
	}

	key := req.Method + " " + host + route
	if req.Major != "" {
		key += ":" + req.Params[req.Major]
	}

	return key
}

// expand substitutes {name} placeholders in route.
func expand(route string, params map[string]string) (string, error) {
	var b strings.Builder
	rest := route

	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return "", fieldError("route", "Unbalanced '}' in route")
			}
			b.WriteString(rest)
			return b.String(), nil
		}

		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fieldError("route", "Unbalanced '{' in route")
		}
		end += open

		name := rest[open+1 : end]
		val, ok := params[name]
		if name == "" || !ok {
			return "", fieldError("params", "Missing value for route param {"+name+"}")
		}

		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(val))
		rest = rest[end+1:]
	}
}
