package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	testCases := []struct {
		name          string
		header        map[string]string
		body          string
		expPresent    bool
		expValid      bool
		expLimit      int
		expRemaining  int
		expResetAt    time.Time
		expRetryAfter time.Duration
		expGlobal     bool
	}{
		{
			name: "No headers",
		},
		{
			name: "Full window with reset-after",
			header: map[string]string{
				HeaderLimit:      "5",
				HeaderRemaining:  "3",
				HeaderResetAfter: "1.5",
			},
			expPresent:   true,
			expValid:     true,
			expLimit:     5,
			expRemaining: 3,
			expResetAt:   now.Add(1500 * time.Millisecond),
		},
		{
			name: "Epoch reset used when reset-after missing",
			header: map[string]string{
				HeaderLimit:     "10",
				HeaderRemaining: "0",
				HeaderReset:     "1700000002.250",
			},
			expPresent: true,
			expValid:   true,
			expLimit:   10,
			expResetAt: now.Add(2250 * time.Millisecond),
		},
		{
			name: "Remaining without reset is not usable",
			header: map[string]string{
				HeaderRemaining: "4",
			},
			expPresent:   true,
			expRemaining: 4,
		},
		{
			name: "Garbage remaining",
			header: map[string]string{
				HeaderRemaining:  "lots",
				HeaderResetAfter: "1",
			},
			expPresent: true,
			expResetAt: now.Add(time.Second),
		},
		{
			name: "Negative reset-after",
			header: map[string]string{
				HeaderRemaining:  "1",
				HeaderResetAfter: "-3",
			},
			expPresent:   true,
			expRemaining: 1,
		},
		{
			name: "Retry-After seconds and global flag",
			header: map[string]string{
				HeaderRetryAfter: "2",
				HeaderGlobal:     "true",
			},
			expRetryAfter: 2 * time.Second,
			expGlobal:     true,
		},
		{
			name: "Global scope header",
			header: map[string]string{
				HeaderScope: "global",
			},
			expGlobal: true,
		},
		{
			name: "Retry-After HTTP date",
			header: map[string]string{
				HeaderRetryAfter: now.Add(3 * time.Second).UTC().Format(http.TimeFormat),
			},
			expRetryAfter: 3 * time.Second,
		},
		{
			name: "JSON body hint",
			header: map[string]string{
				"Content-Type": "application/json",
			},
			body:          `{"message":"You are being rate limited.","retry_after":0.25,"global":true}`,
			expRetryAfter: 250 * time.Millisecond,
			expGlobal:     true,
		},
		{
			name: "Body ignored for non-json content",
			header: map[string]string{
				"Content-Type": "text/html",
			},
			body: `{"retry_after":9}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.header {
				h.Set(k, v)
			}

			info := Parse(h, []byte(tc.body), now)

			if info.Present != tc.expPresent {
				t.Errorf("present: exp %t, got %t", tc.expPresent, info.Present)
			}
			if info.Valid != tc.expValid {
				t.Errorf("valid: exp %t, got %t", tc.expValid, info.Valid)
			}
			if info.Limit != tc.expLimit {
				t.Errorf("limit: exp %d, got %d", tc.expLimit, info.Limit)
			}
			if info.Remaining != tc.expRemaining {
				t.Errorf("remaining: exp %d, got %d", tc.expRemaining, info.Remaining)
			}
			if !info.ResetAt.Equal(tc.expResetAt) {
				t.Errorf("resetAt: exp %v, got %v", tc.expResetAt, info.ResetAt)
			}
			if info.RetryAfter != tc.expRetryAfter {
				t.Errorf("retryAfter: exp %v, got %v", tc.expRetryAfter, info.RetryAfter)
			}
			if info.Global != tc.expGlobal {
				t.Errorf("global: exp %t, got %t", tc.expGlobal, info.Global)
			}
		})
	}
}

func TestParse_NilHeader(t *testing.T) {
	info := Parse(nil, nil, time.Now())
	if info.Present || info.Valid || info.HasRetryAfter() {
		t.Errorf("exp empty info, got %+v", info)
	}
}
