// Package throttle provides an [http.RoundTripper] that paces outbound
// HTTP requests with a token bucket from [golang.org/x/time/rate].
//
// # Usage
//
// Wrap an existing transport with [NewRoundTripper]:
//
//	rt, err := throttle.NewRoundTripper(
//		throttle.Config{RPS: 50, Burst: 10},
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//	httpClient := &http.Client{Transport: rt}
//
// Requests over the rate wait for a token. A request whose context
// deadline falls before its token is available fails at once instead of
// waiting.
package throttle
