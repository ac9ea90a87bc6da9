package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/botcommons"
	"github.com/adamwoolhether/botcommons/dispatch"
	"github.com/adamwoolhether/botcommons/dispatch/stats"
)

type fireFlags struct {
	method string
	repeat int
	body   string
	accept string
}

func newFireCmd(a *app) *cobra.Command {
	var f fireFlags

	cmd := &cobra.Command{
		Use:   "fire URL...",
		Short: "Send requests and report how they resolved",
		Long: `fire submits every URL --repeat times. Requests to the same method,
host and path share a bucket and run one at a time in order; different
buckets run in parallel.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.fire(cmd.Context(), f, args)
		},
	}

	cmd.Flags().StringVarP(&f.method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().IntVarP(&f.repeat, "repeat", "n", 1, "Times to send each URL")
	cmd.Flags().StringVarP(&f.body, "data", "d", "", "Request body, sent as text/plain")
	cmd.Flags().StringVar(&f.accept, "accept", string(botcommons.Any), "Accept header")

	return cmd
}

// outcome is what fire prints per request.
type outcome struct {
	url    string
	status int
	err    error
}

func (a *app) fire(ctx context.Context, f fireFlags, urls []string) error {
	if f.repeat < 1 {
		return fmt.Errorf("repeat[%d] %w", f.repeat, dispatch.ErrMustNotBeZero)
	}

	mem := stats.NewMemory()
	var recorder stats.Recorder = mem
	if rdb := a.redisClient(); rdb != nil {
		defer rdb.Close()
		recorder = stats.Tee(mem, a.redisStats(rdb))
	}

	web, err := a.newWeb(recorder)
	if err != nil {
		return err
	}

	var body botcommons.Body
	if f.body != "" {
		body = new(botcommons.TextBody).SetContent(f.body)
	}

	total := len(urls) * f.repeat
	progress := newReporter(a.stderr, total, !a.cfg.noProgress)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes []outcome
	)
	record := func(o outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
		progress.Add()
		wg.Done()
	}

	method := strings.ToUpper(f.method)
	for range f.repeat {
		for _, u := range urls {
			wg.Add(1)
			web.Do(method, u, body, botcommons.ContentType(f.accept)).Async(ctx,
				func(resp *dispatch.Response) { record(outcome{url: u, status: resp.StatusCode}) },
				func(err error) { record(outcome{url: u, status: statusOf(err), err: err}) },
			)
		}
	}

	wg.Wait()
	progress.Finish()

	if err := web.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn("shutdown", "error", err)
	}

	return a.report(outcomes, mem)
}

// statusOf extracts the remote status from a failure, or 0.
func statusOf(err error) int {
	var rf *dispatch.RequestFailedError
	if errors.As(err, &rf) {
		return rf.StatusCode
	}
	return 0
}

func (a *app) report(outcomes []outcome, mem *stats.Memory) error {
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)

	var failed int
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			a.logger.Warn("request failed", "url", o.url, "status", o.status, "error", o.err)
		}
	}

	total := mem.Total()
	fmt.Fprintf(tw, "succeeded\t%d\n", total.Succeeded)
	fmt.Fprintf(tw, "failed\t%d\n", total.Failed)
	fmt.Fprintf(tw, "cancelled\t%d\n", total.Cancelled)
	fmt.Fprintf(tw, "attempts\t%d\n", total.Attempts)
	fmt.Fprintf(tw, "throttles\t%d\n", total.Throttles)
	fmt.Fprintf(tw, "mean latency\t%s\n", mem.MeanLatency())

	buckets := mem.Buckets()
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "BUCKET\tOK\tFAILED\tATTEMPTS\tTHROTTLES")
	for _, k := range keys {
		c := buckets[k]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", k, c.Succeeded, c.Failed, c.Attempts, c.Throttles)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(outcomes))
	}
	return nil
}
