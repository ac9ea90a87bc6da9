// Package ratelimit parses the rate-limit metadata a remote API attaches
// to its responses.
//
// Recognised headers:
//
//	X-RateLimit-Limit        requests allowed per window
//	X-RateLimit-Remaining    requests left in the current window
//	X-RateLimit-Reset        epoch seconds (fractional) when the window resets
//	X-RateLimit-Reset-After  seconds (fractional) until the window resets
//	X-RateLimit-Bucket       opaque server-side bucket identifier
//	X-RateLimit-Global       "true" when a throttle applies to every route
//	X-RateLimit-Scope        "global" has the same meaning as the above
//	Retry-After              seconds or an HTTP date
//
// Throttled JSON bodies of the form {"retry_after": 1.5, "global": true}
// are honoured when the corresponding headers are missing.
package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderResetAfter = "X-RateLimit-Reset-After"
	HeaderBucket     = "X-RateLimit-Bucket"
	HeaderGlobal     = "X-RateLimit-Global"
	HeaderScope      = "X-RateLimit-Scope"
	HeaderRetryAfter = "Retry-After"
)

// maxBodyScan bounds how much of a response body is inspected for
// retry_after hints.
const maxBodyScan = 4 << 10

// Info is the rate-limit state reported by one response.
type Info struct {
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Global     bool
	Bucket     string

	// Present reports whether any window header was sent.
	Present bool
	// Valid reports whether the window headers that were sent could all be
	// parsed and together describe remaining quota and a reset time.
	Valid bool
}

// HasRetryAfter reports whether the response carried an explicit wait hint.
func (i Info) HasRetryAfter() bool {
	return i.RetryAfter > 0
}

// Parse extracts rate-limit metadata from a response. now anchors the
// relative durations. body may be nil.
func Parse(h http.Header, body []byte, now time.Time) Info {
	var info Info
	if h == nil {
		h = http.Header{}
	}

	valid := true
	var haveRemaining, haveReset bool

	if v := h.Get(HeaderLimit); v != "" {
		info.Present = true
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			valid = false
		} else {
			info.Limit = n
		}
	}

	if v := h.Get(HeaderRemaining); v != "" {
		info.Present = true
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			valid = false
		} else {
			info.Remaining = n
			haveRemaining = true
		}
	}

	if v := h.Get(HeaderResetAfter); v != "" {
		info.Present = true
		d, ok := parseSeconds(v)
		if !ok {
			valid = false
		} else {
			info.ResetAt = now.Add(d)
			haveReset = true
		}
	} else if v := h.Get(HeaderReset); v != "" {
		info.Present = true
		at, ok := parseEpoch(v)
		if !ok {
			valid = false
		} else {
			info.ResetAt = at
			haveReset = true
		}
	}

	info.Valid = info.Present && valid && haveRemaining && haveReset
	info.Bucket = h.Get(HeaderBucket)
	info.Global = strings.EqualFold(h.Get(HeaderGlobal), "true") || strings.EqualFold(h.Get(HeaderScope), "global")

	if v := h.Get(HeaderRetryAfter); v != "" {
		info.RetryAfter = parseRetryAfter(v, now)
	}

	if info.RetryAfter <= 0 || !info.Global {
		hint := parseBody(h, body)
		if info.RetryAfter <= 0 {
			info.RetryAfter = hint.retryAfter
		}
		info.Global = info.Global || hint.global
	}

	return info
}

// parseRetryAfter accepts delta-seconds (fractional allowed) or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if d, ok := parseSeconds(v); ok {
		return d
	}

	at, err := http.ParseTime(strings.TrimSpace(v))
	if err != nil {
		return 0
	}

	if d := at.Sub(now); d > 0 {
		return d
	}

	return 0
}

func parseSeconds(v string) (time.Duration, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return time.Duration(f * float64(time.Second)), true
}

func parseEpoch(v string) (time.Time, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}

	sec, frac := math.Modf(f)

	return time.Unix(int64(sec), int64(frac*float64(time.Second))), true
}

type bodyHint struct {
	retryAfter time.Duration
	global     bool
}

func parseBody(h http.Header, body []byte) bodyHint {
	if len(body) == 0 || len(body) > maxBodyScan {
		return bodyHint{}
	}

	if ct := h.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		return bodyHint{}
	}

	var payload struct {
		RetryAfter *float64 `json:"retry_after"`
		Global     bool     `json:"global"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return bodyHint{}
	}

	hint := bodyHint{global: payload.Global}
	if payload.RetryAfter != nil && *payload.RetryAfter > 0 {
		hint.retryAfter = time.Duration(*payload.RetryAfter * float64(time.Second))
	}

	return hint
}
