package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/adamwoolhether/botcommons/client"
	"github.com/adamwoolhether/botcommons/dispatch"
)

func ExampleBuild() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s %s", r.Header.Get("User-Agent"), r.Header.Get("Cache-Control"))
	}))
	defer ts.Close()

	c, err := client.Build(
		client.WithTimeout(5*time.Second),
		client.WithUserAgent("mybot/1.0"),
		client.WithHeader("Cache-Control", "no-cache"),
	)
	if err != nil {
		fmt.Println(err)
		return
	}

	resp, err := c.Do(context.Background(), &dispatch.Call{Method: http.MethodGet, URL: ts.URL})
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(resp.StatusCode, string(resp.Body))
	// Output: 200 mybot/1.0 no-cache
}

func ExampleClient_Do_dispatcher() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5")
		w.Header().Set("X-RateLimit-Remaining", "4")
		w.Header().Set("X-RateLimit-Reset-After", "1")
		fmt.Fprint(w, "pong")
	}))
	defer ts.Close()

	c, err := client.Build(client.WithThrottle(50, 5))
	if err != nil {
		fmt.Println(err)
		return
	}

	d, err := dispatch.New(c)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer d.Shutdown(context.Background())

	f, err := d.Submit(context.Background(), dispatch.Request{
		Method:  http.MethodGet,
		BaseURL: ts.URL,
		Route:   "/ping",
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	resp, err := f.Wait(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(string(resp.Body))
	// Output: pong
}
