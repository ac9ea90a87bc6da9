// Package client provides the HTTP transport behind a
// [github.com/adamwoolhether/botcommons/dispatch.Dispatcher], built on
// [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("mybot/1.0"),
//		client.WithHeader("Cache-Control", "no-cache"),
//		client.WithCookieJar(),
//	)
//
// # Dispatching
//
// A [Client] satisfies [dispatch.Transport]:
//
//	d, err := dispatch.New(c)
//
// Each call reads the full response body, decoding gzip and deflate
// content, up to the limit set by [WithMaxBodySize]. Every status code is
// returned as a response; classifying it is the dispatcher's job.
//
// # Proxies and pacing
//
// [WithProxy] and [WithProxyFromEnvironment] route traffic through a
// proxy with NO_PROXY style bypass rules. [WithThrottle] adds a
// client-side token bucket in front of every request; see the
// [github.com/adamwoolhether/botcommons/client/throttle] package.
package client
