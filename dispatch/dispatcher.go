package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/adamwoolhether/botcommons/dispatch/ratelimit"
	"github.com/adamwoolhether/botcommons/dispatch/retry"
	"github.com/adamwoolhether/botcommons/dispatch/stats"
)

// Dispatcher runs submitted requests through their rate-limit buckets.
// Each bucket executes one request at a time in submission order; distinct
// buckets run in parallel.
type Dispatcher struct {
	transport Transport
	log       *slog.Logger
	tracer    trace.Tracer
	policy    retry.Policy
	fallback  time.Duration
	recorder  stats.Recorder
	registry  *Registry
	drain     *inFlight

	mu           sync.Mutex
	running      int
	maxInFlight  int
	globalWindow bool
	globalUntil  time.Time
	limiter      *rate.Limiter
	parked       map[*Bucket]struct{}
	globalTimer  *time.Timer
	globalWake   time.Time
}

// New constructs a [Dispatcher] over transport.
func New(transport Transport, opts ...Option) (*Dispatcher, error) {
	if transport == nil {
		return nil, errors.New("transport must not be nil")
	}

	var o options
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	d := Dispatcher{
		transport:    transport,
		log:          o.logger,
		tracer:       o.tracer,
		policy:       retry.Default(),
		fallback:     defaultFallbackReset,
		recorder:     o.recorder,
		registry:     newRegistry(o.priority),
		drain:        newInFlight(),
		maxInFlight:  o.maxInFlight,
		globalWindow: o.globalWindow,
		parked:       make(map[*Bucket]struct{}),
	}

	if d.log == nil {
		d.log = slog.Default()
	}
	if d.tracer == nil {
		d.tracer = noop.NewTracerProvider().Tracer("no-op tracer")
	}
	if d.recorder == nil {
		d.recorder = stats.Nop{}
	}
	if o.policy != nil {
		d.policy = *o.policy
	}
	if o.fallback != nil {
		d.fallback = *o.fallback
	}
	if o.globalRate != nil {
		d.limiter = rate.NewLimiter(rate.Limit(o.globalRate.rps), o.globalRate.burst)
	}

	return &d, nil
}

// Submit validates req and queues it on its bucket. Validation failures
// are returned as [FieldErrors] and nothing is queued. Once [Dispatcher.Shutdown]
// has begun Submit returns [ErrDraining].
//
// Cancelling ctx cancels the request. ctx is also passed to the transport.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (*Future, error) {
	desc, err := NewDescriptor(req)
	if err != nil {
		return nil, err
	}

	return d.SubmitDescriptor(ctx, desc)
}

// SubmitDescriptor queues an already validated descriptor.
func (d *Dispatcher) SubmitDescriptor(ctx context.Context, desc Descriptor) (*Future, error) {
	if !desc.valid() {
		return nil, fieldError("descriptor", "Must be created with NewDescriptor")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !d.drain.begin() {
		return nil, ErrDraining
	}

	b := d.registry.Resolve(desc.BucketKey())
	f := newFuture(desc)
	e := &entry{desc: desc, ctx: ctx, future: f, submitted: time.Now()}

	// The future is fully wired before ctx can cancel it.
	f.dequeue = func() bool { return b.remove(e) }
	f.hooks = append(f.hooks, func(*Future) { d.finish(b, e) })

	b.enqueue(e)
	d.log.Debug("request queued", "request_id", desc.ID(), "bucket", b.key)

	stop := context.AfterFunc(ctx, func() { f.Cancel() })
	f.OnComplete(func(*Response, error) { stop() })

	d.schedule(b)

	return f, nil
}

// Buckets returns the state of every bucket seen so far, ordered by key.
func (d *Dispatcher) Buckets() []BucketState {
	return d.registry.Snapshot()
}

// Pending returns the number of submitted requests not yet resolved.
func (d *Dispatcher) Pending() int64 {
	return d.drain.pending()
}

// Shutdown stops admitting requests and waits until every submitted
// request has resolved or ctx ends. Queued requests still run. In-flight
// calls are not interrupted.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d.drain.close() {
		d.log.Info("dispatcher draining", "pending", d.drain.pending())
	}

	if err := d.drain.wait(ctx); err != nil {
		return fmt.Errorf("drain: %d pending: %w", d.drain.pending(), err)
	}

	d.log.Info("dispatcher drained")

	return nil
}

// schedule starts the head of b's queue if the bucket and the global gate
// allow it, and otherwise arranges to be called again when they might.
func (d *Dispatcher) schedule(b *Bucket) {
	b.mu.Lock()
	e, woken := d.nextLocked(b, time.Now())
	b.mu.Unlock()

	if e != nil {
		go d.attempt(b, e)
	}
	for _, w := range woken {
		d.schedule(w)
	}
}

func (d *Dispatcher) nextLocked(b *Bucket, now time.Time) (*entry, []*Bucket) {
	held := false

	for b.executing == nil && len(b.queue) > 0 {
		if wait := b.readyLocked(now); wait > 0 {
			b.wakeLocked(now, wait, func() { d.schedule(b) })
			break
		}

		if !held {
			if !d.acquire(b, now) {
				break
			}
			held = true
		}

		e := b.popLocked()
		if e.future.begin() {
			return e, nil
		}

		// Cancelled after the queue check; try the next one with the same slot.
		b.unpopLocked(e)
	}

	if held {
		return nil, d.release()
	}

	return nil, nil
}

// acquire takes a global execution slot for b, parking b when the global
// window or the in-flight ceiling forbids it.
func (d *Dispatcher) acquire(b *Bucket, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Before(d.globalUntil) {
		d.parkLocked(b)
		d.armGlobalLocked(now, d.globalUntil.Sub(now))
		return false
	}

	if d.maxInFlight > 0 && d.running >= d.maxInFlight {
		d.parkLocked(b)
		return false
	}

	if d.limiter != nil {
		r := d.limiter.ReserveN(now, 1)
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			d.parkLocked(b)
			d.armGlobalLocked(now, delay)
			return false
		}
	}

	delete(d.parked, b)
	d.running++

	return true
}

// release returns a slot and hands back the parked buckets for rescheduling.
func (d *Dispatcher) release() []*Bucket {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.running--
	return d.unparkLocked()
}

func (d *Dispatcher) parkLocked(b *Bucket) {
	d.parked[b] = struct{}{}
}

func (d *Dispatcher) unparkLocked() []*Bucket {
	if len(d.parked) == 0 {
		return nil
	}

	woken := make([]*Bucket, 0, len(d.parked))
	for b := range d.parked {
		woken = append(woken, b)
	}
	clear(d.parked)

	return woken
}

// armGlobalLocked wakes parked buckets after wait, keeping only the
// earliest pending wake-up.
func (d *Dispatcher) armGlobalLocked(now time.Time, wait time.Duration) {
	at := now.Add(wait)
	if d.globalTimer != nil && !d.globalWake.After(at) && d.globalWake.After(now) {
		return
	}

	if d.globalTimer != nil {
		d.globalTimer.Stop()
	}
	d.globalWake = at
	d.globalTimer = time.AfterFunc(wait, func() {
		d.mu.Lock()
		woken := d.unparkLocked()
		d.mu.Unlock()

		for _, b := range woken {
			d.schedule(b)
		}
	})
}

// pauseGlobal stops every bucket from dispatching before until.
func (d *Dispatcher) pauseGlobal(until time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if until.After(d.globalUntil) {
		d.globalUntil = until
	}
}

// attempt performs one transport call for e and applies the retry
// policy's verdict.
func (d *Dispatcher) attempt(b *Bucket, e *entry) {
	n := e.future.Attempts()

	ctx, span := d.tracer.Start(e.ctx, "dispatch.attempt", trace.WithAttributes(
		attribute.String("request.id", e.desc.ID()),
		attribute.String("dispatch.bucket", b.key),
		attribute.String("http.request.method", e.desc.Method()),
		attribute.String("url.full", e.desc.URL()),
		attribute.Int("dispatch.attempt", n),
	))
	defer span.End()

	log := d.log.With("request_id", e.desc.ID(), "bucket", b.key, "attempt", n)
	log.Debug("dispatching", "method", e.desc.Method(), "url", e.desc.URL())

	resp, err := d.transport.Do(ctx, e.desc.call())
	now := time.Now()

	out := retry.Outcome{
		Err:       err,
		Attempt:   n,
		Failures:  e.failures,
		Throttles: e.throttles,
		Elapsed:   now.Sub(e.submitted),
	}
	if err == nil && resp == nil {
		out.Err = errors.New("transport returned no response")
	}
	if out.Err == nil {
		out.StatusCode = resp.StatusCode
		out.Header = resp.Header
		out.Body = resp.Body
		out.Rate = ratelimit.Parse(resp.Header, resp.Body, now)
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}

	rate, observed := out.Rate, out.Err == nil
	var ue *UnreadableResponseError
	if !observed && errors.As(out.Err, &ue) {
		rate, observed = ratelimit.Parse(ue.Header, nil, now), true
	}

	dec := d.policy.Decide(e.ctx, out)

	b.mu.Lock()
	b.executing = nil
	if observed {
		b.observeLocked(rate, now, d.fallback)
		log.Debug("rate metadata", "status", out.StatusCode, "remaining", rate.Remaining,
			"reset_at", rate.ResetAt, "server_bucket", rate.Bucket)
	}

	requeued := false
	if dec.Action == retry.Retry {
		if dec.Throttled {
			e.throttles++
		} else {
			e.failures++
		}
		b.pauseLocked(now.Add(dec.Delay))

		if e.future.setState(StateRetrying) {
			b.requeueLocked(e)
			requeued = true
		}
	}
	b.mu.Unlock()

	if dec.Throttled && out.Rate.Global && d.globalWindow {
		d.pauseGlobal(now.Add(dec.Delay))
	}

	switch {
	case requeued && dec.Throttled:
		log.Info("throttled, waiting", "delay", dec.Delay, "global", out.Rate.Global)
	case requeued:
		log.Warn("transient failure, retrying", "delay", dec.Delay, "status", out.StatusCode, "error", out.Err)
	case dec.Action == retry.Succeed:
		e.future.resolve(StateSucceeded, resp, nil)
	case dec.Action == retry.Fail:
		span.SetStatus(codes.Error, dec.Err.Error())
		span.RecordError(dec.Err)
		log.Debug("request failed", "status", out.StatusCode, "error", dec.Err)
		e.future.resolve(StateFailed, nil, dec.Err)
	}

	woken := d.release()
	d.schedule(b)
	for _, w := range woken {
		if w != b {
			d.schedule(w)
		}
	}
}

// finish runs once when e's future resolves.
func (d *Dispatcher) finish(b *Bucket, e *entry) {
	defer d.drain.end()

	b.mu.Lock()
	throttles := e.throttles
	b.mu.Unlock()

	f := e.future
	ev := stats.Event{
		Bucket:    e.desc.BucketKey(),
		Method:    e.desc.Method(),
		Route:     e.desc.Route(),
		Attempts:  f.attempts,
		Throttles: throttles,
		Latency:   time.Since(e.submitted),
		At:        time.Now(),
	}

	switch f.state {
	case StateSucceeded:
		ev.Outcome = stats.Succeeded
		if f.resp != nil {
			ev.StatusCode = f.resp.StatusCode
		}
	case StateCancelled:
		ev.Outcome = stats.Cancelled
	default:
		ev.Outcome = stats.Failed
		var rf *RequestFailedError
		var re *RetryExhaustedError
		switch {
		case errors.As(f.err, &rf):
			ev.StatusCode = rf.StatusCode
		case errors.As(f.err, &re):
			ev.StatusCode = re.StatusCode
		}
	}

	if err := d.recorder.Record(context.WithoutCancel(e.ctx), ev); err != nil {
		d.log.Warn("recording outcome", "request_id", e.desc.ID(), "error", err)
	}
}
