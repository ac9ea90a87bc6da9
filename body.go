package botcommons

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ContentType is a media type used for Accept and Content-Type headers.
type ContentType string

const (
	JSON        ContentType = "application/json"
	XML         ContentType = "application/xml"
	URLEncoded  ContentType = "application/x-www-form-urlencoded"
	TextPlain   ContentType = "text/plain"
	TextHTML    ContentType = "text/html"
	OctetStream ContentType = "application/octet-stream"
	Any         ContentType = "*/*"
)

func (c ContentType) String() string {
	return string(c)
}

// Body is a request payload.
type Body interface {
	ContentType() ContentType
	Encode() ([]byte, error)
}

// JSONBody encodes v as JSON. A []byte, string or [json.RawMessage] is
// taken as already encoded and only validated.
func JSONBody(v any) Body {
	return jsonBody{v: v}
}

type jsonBody struct {
	v any
}

func (jsonBody) ContentType() ContentType { return JSON }

func (b jsonBody) Encode() ([]byte, error) {
	var raw []byte
	switch v := b.v.(type) {
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	case string:
		raw = []byte(v)
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding json body: %w", err)
		}
		return out, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("invalid json body: %w", err)
	}
	return buf.Bytes(), nil
}

// FormBody is a URL-encoded form. The zero value is empty and ready to use.
type FormBody struct {
	values url.Values
}

// Append sets key to value, replacing an earlier value for key.
func (f *FormBody) Append(key, value string) *FormBody {
	if f.values == nil {
		f.values = url.Values{}
	}
	f.values.Set(key, value)
	return f
}

func (*FormBody) ContentType() ContentType { return URLEncoded }

func (f *FormBody) Encode() ([]byte, error) {
	return []byte(f.values.Encode()), nil
}

// TextBody is a plain text payload built up in place.
type TextBody struct {
	b strings.Builder
}

// SetContent replaces the content.
func (t *TextBody) SetContent(s string) *TextBody {
	t.b.Reset()
	t.b.WriteString(s)
	return t
}

// AppendContent adds s to the end of the content.
func (t *TextBody) AppendContent(s string) *TextBody {
	t.b.WriteString(s)
	return t
}

func (t *TextBody) String() string {
	return t.b.String()
}

func (*TextBody) ContentType() ContentType { return TextPlain }

func (t *TextBody) Encode() ([]byte, error) {
	return []byte(t.b.String()), nil
}
