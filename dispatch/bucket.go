package dispatch

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/adamwoolhether/botcommons/dispatch/ratelimit"
)

// entry is one queued request plus its retry bookkeeping. Its counters
// are only touched by the goroutine executing it or under the bucket lock.
type entry struct {
	desc      Descriptor
	ctx       context.Context
	future    *Future
	submitted time.Time
	failures  int
	throttles int
	// charged is set when the current dispatch took a unit of quota.
	charged bool
}

// Bucket serializes requests that share a rate limit and tracks the
// remote's quota for them. At most one request per bucket is in flight.
type Bucket struct {
	key      string
	priority bool

	mu        sync.Mutex
	queue     []*entry
	executing *entry

	// limited is false until the remote has told us something about
	// the window, and again once an unlimited window has expired.
	limited   bool
	limit     int
	remaining int
	resetAt   time.Time
	// retryAt pauses the bucket after a throttle or transient failure.
	retryAt time.Time
	server  string

	timer  *time.Timer
	wakeAt time.Time
}

// BucketState is a point-in-time view of a bucket.
type BucketState struct {
	Key       string
	Limited   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	RetryAt   time.Time
	Queued    int
	Executing bool
	Server    string
}

func newBucket(key string, priority bool) *Bucket {
	return &Bucket{key: key, priority: priority}
}

// Key returns the bucket key.
func (b *Bucket) Key() string { return b.key }

// State returns a snapshot of the bucket.
func (b *Bucket) State() BucketState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BucketState{
		Key:       b.key,
		Limited:   b.limited,
		Limit:     b.limit,
		Remaining: b.remaining,
		ResetAt:   b.resetAt,
		RetryAt:   b.retryAt,
		Queued:    len(b.queue),
		Executing: b.executing != nil,
		Server:    b.server,
	}
}

// enqueue appends e in arrival order. With priority enabled, e goes ahead
// of every queued entry with a strictly lower priority.
func (b *Bucket) enqueue(e *entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.priority {
		b.queue = append(b.queue, e)
		return
	}

	i := len(b.queue)
	for i > 0 && b.queue[i-1].desc.Priority() < e.desc.Priority() {
		i--
	}
	b.queue = slices.Insert(b.queue, i, e)
}

// remove drops e from the queue, reporting whether it was there.
func (b *Bucket) remove(e *entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.Index(b.queue, e)
	if i < 0 {
		return false
	}
	b.queue = slices.Delete(b.queue, i, i+1)
	return true
}

// requeueLocked puts a retried entry back at the head so later
// submissions cannot overtake it.
func (b *Bucket) requeueLocked(e *entry) {
	b.queue = slices.Insert(b.queue, 0, e)
}

// readyLocked reports how long the bucket must wait before its next
// dispatch. Zero means it may dispatch now.
func (b *Bucket) readyLocked(now time.Time) time.Duration {
	if now.Before(b.retryAt) {
		return b.retryAt.Sub(now)
	}

	if b.limited && !b.resetAt.IsZero() && !now.Before(b.resetAt) {
		if b.limit > 0 {
			b.remaining = b.limit
		} else {
			b.limited = false
		}
		b.resetAt = time.Time{}
	}

	if !b.limited || b.remaining > 0 || b.resetAt.IsZero() {
		return 0
	}

	return b.resetAt.Sub(now)
}

// popLocked takes the head of the queue for execution and charges it
// against the local quota.
func (b *Bucket) popLocked() *entry {
	e := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	b.executing = e

	e.charged = b.limited && b.remaining > 0
	if e.charged {
		b.remaining--
	}

	return e
}

// unpopLocked undoes popLocked for an entry that will not run.
func (b *Bucket) unpopLocked(e *entry) {
	b.executing = nil
	if e.charged {
		b.remaining++
		e.charged = false
	}
}

// observeLocked folds a response's rate metadata into the bucket. When
// metadata is missing or unusable the bucket assumes it is exhausted
// until fallback has passed.
func (b *Bucket) observeLocked(info ratelimit.Info, now time.Time, fallback time.Duration) {
	if info.Bucket != "" {
		b.server = info.Bucket
	}

	if info.Valid {
		b.limited = true
		if info.Limit > 0 {
			b.limit = info.Limit
		}
		b.remaining = info.Remaining
		b.resetAt = info.ResetAt
		return
	}

	if fallback <= 0 {
		return
	}

	b.limited = true
	b.remaining = 0
	b.resetAt = now.Add(fallback)
}

// pauseLocked blocks dispatch until at least until.
func (b *Bucket) pauseLocked(until time.Time) {
	if until.After(b.retryAt) {
		b.retryAt = until
	}
}

// wakeLocked arranges for fn to run after d, keeping only the earliest
// pending wake-up.
func (b *Bucket) wakeLocked(now time.Time, d time.Duration, fn func()) {
	at := now.Add(d)
	if b.timer != nil && !b.wakeAt.After(at) && b.wakeAt.After(now) {
		return
	}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.wakeAt = at
	b.timer = time.AfterFunc(d, fn)
}
