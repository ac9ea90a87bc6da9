package client

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// acceptEncoding is sent on every request so compressed bodies are
// decoded here rather than by net/http, which only handles gzip.
const acceptEncoding = "gzip, deflate"

// decode wraps body according to the response's Content-Encoding. The
// returned closer releases the decoder, not the body.
func decode(resp *http.Response) (io.Reader, func() error, error) {
	noop := func() error { return nil }

	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch enc {
	case "", "identity":
		return resp.Body, noop, nil

	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if errors.Is(err, io.EOF) {
			// HEAD, 204 and friends advertise an encoding with no body.
			return bytes.NewReader(nil), noop, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, zr.Close, nil

	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		br := bufio.NewReader(resp.Body)
		head, err := br.Peek(2)
		if len(head) == 0 && errors.Is(err, io.EOF) {
			return bytes.NewReader(nil), noop, nil
		}
		if err == nil && isZlibHeader(head) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, nil, fmt.Errorf("deflate: %w", err)
			}
			return zr, zr.Close, nil
		}
		fr := flate.NewReader(br)
		return fr, fr.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}
}

// isZlibHeader reports whether b starts an RFC 1950 stream.
func isZlibHeader(b []byte) bool {
	return b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}
