package botcommons

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/adamwoolhether/botcommons/dispatch"
)

const maxBucketKey = 256

var braces = strings.NewReplacer("{", "%7B", "}", "%7D")

// ErrEmptyBody is returned by JSON mappers for a response without content.
var ErrEmptyBody = errors.New("response body is empty")

// Text maps a response body to a string.
func Text(resp *dispatch.Response) (string, error) {
	return string(resp.Body), nil
}

// Bytes maps a response to its raw body.
func Bytes(resp *dispatch.Response) ([]byte, error) {
	return resp.Body, nil
}

// DecodeJSON returns a [Mapper] that unmarshals the body into a T.
func DecodeJSON[T any]() Mapper[T] {
	return func(resp *dispatch.Response) (T, error) {
		var v T
		if len(resp.Body) == 0 {
			return v, ErrEmptyBody
		}
		if err := json.Unmarshal(resp.Body, &v); err != nil {
			return v, fmt.Errorf("decoding json: %w", err)
		}
		return v, nil
	}
}

// GetText fetches rawURL as text.
func (w *Web) GetText(rawURL string) *Pending[string] {
	return prepare(w, http.MethodGet, rawURL, Any, nil, Text)
}

// GetHTML fetches rawURL asking for HTML.
func (w *Web) GetHTML(rawURL string) *Pending[string] {
	return prepare(w, http.MethodGet, rawURL, TextHTML, nil, Text)
}

// GetBytes fetches rawURL as raw bytes.
func (w *Web) GetBytes(rawURL string) *Pending[[]byte] {
	return prepare(w, http.MethodGet, rawURL, Any, nil, Bytes)
}

// Post sends body to rawURL and returns the response text.
func (w *Web) Post(rawURL string, body Body, accept ContentType) *Pending[string] {
	return prepare(w, http.MethodPost, rawURL, accept, body, Text)
}

// PostForm sends a URL-encoded form to rawURL.
func (w *Web) PostForm(rawURL string, form *FormBody) *Pending[string] {
	if form == nil {
		form = &FormBody{}
	}
	return prepare(w, http.MethodPost, rawURL, Any, form, Text)
}

// PostText sends text as text/plain to rawURL.
func (w *Web) PostText(rawURL, text string) *Pending[string] {
	return prepare(w, http.MethodPost, rawURL, Any, new(TextBody).SetContent(text), Text)
}

// Do sends an arbitrary request and returns the raw response. body may
// be nil.
func (w *Web) Do(method, rawURL string, body Body, accept ContentType) *Pending[*dispatch.Response] {
	return prepare(w, method, rawURL, accept, body, raw)
}

func raw(resp *dispatch.Response) (*dispatch.Response, error) {
	return resp, nil
}

// GetJSON fetches rawURL and decodes the JSON response into a T.
func GetJSON[T any](w *Web, rawURL string) *Pending[T] {
	return prepare(w, http.MethodGet, rawURL, JSON, nil, DecodeJSON[T]())
}

// PostJSON encodes v as JSON, posts it to rawURL and decodes the JSON
// response into a T.
func PostJSON[T any](w *Web, rawURL string, v any) *Pending[T] {
	return prepare(w, http.MethodPost, rawURL, JSON, JSONBody(v), DecodeJSON[T]())
}

// Prepare wraps a fully described request with a custom mapper.
func Prepare[T any](w *Web, req dispatch.Request, mapper Mapper[T]) *Pending[T] {
	var err error
	if mapper == nil {
		err = errors.New("mapper must not be nil")
	}
	req.Header = req.Header.Clone()
	return newPending(w, req, mapper, err)
}

// prepare splits rawURL into the dispatcher's base and route. The bucket
// is the method, host and path so query strings share one bucket.
func prepare[T any](w *Web, method, rawURL string, accept ContentType, body Body, mapper Mapper[T]) *Pending[T] {
	req := dispatch.Request{Method: method, Header: http.Header{}}

	u, err := url.Parse(rawURL)
	if err != nil {
		return newPending(w, req, mapper, fmt.Errorf("parsing url: %w", err))
	}
	if u.Scheme == "" || u.Host == "" {
		return newPending(w, req, mapper, fmt.Errorf("parsing url: %q is not absolute", rawURL))
	}

	route := u.EscapedPath()
	if route == "" {
		route = "/"
	}

	req.BaseURL = u.Scheme + "://" + u.Host
	req.Bucket = method + " " + u.Host + route
	if len(req.Bucket) > maxBucketKey {
		req.Bucket = req.Bucket[:maxBucketKey]
	}
	req.Route = route
	if u.RawQuery != "" {
		// Braces would read as route placeholders.
		req.Route += "?" + braces.Replace(u.RawQuery)
	}
	req.Header.Set("Accept", accept.String())

	if body != nil {
		b, err := body.Encode()
		if err != nil {
			return newPending(w, req, mapper, err)
		}
		req.Body = b
		req.Header.Set("Content-Type", body.ContentType().String())
	}

	return newPending(w, req, mapper, nil)
}
