// Package dispatch queues outbound HTTP calls on rate-limit buckets and
// executes them without breaking the remote's rate contract.
//
// # Buckets
//
// Every request maps to a bucket key derived from its method, host, route
// template and major parameter. A bucket runs one call at a time, in
// submission order, and learns its quota from the X-RateLimit-* headers of
// each response. When a bucket runs out it waits for the reset on a timer
// instead of blocking a goroutine. Distinct buckets run in parallel.
//
// # Usage
//
//	d, err := dispatch.New(transport, dispatch.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	defer d.Shutdown(context.Background())
//
//	f, err := d.Submit(ctx, dispatch.Request{
//		Method:  http.MethodPost,
//		BaseURL: "https://discord.com/api/v10",
//		Route:   "/channels/{channel}/messages",
//		Params:  map[string]string{"channel": "1234"},
//		Major:   "channel",
//		Body:    body,
//	})
//	if err != nil {
//		return err // FieldErrors or ErrDraining
//	}
//
//	resp, err := f.Wait(ctx)
//
// Throttled responses and transient failures are retried per the
// configured [retry.Policy]. The future resolves once, with the final
// response or one of [ThrottledError], [RetryExhaustedError],
// [RequestFailedError] or [ErrCancelled].
package dispatch
