// Package stats records the terminal outcome of dispatched requests.
//
// [Memory] keeps counters in process. [Redis] keeps them in Redis so every
// shard of a bot writes to one tally.
package stats

import (
	"context"
	"errors"
	"time"
)

// Outcome labels a terminal state.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
	Cancelled Outcome = "cancelled"
)

// Event describes one resolved request.
type Event struct {
	Bucket     string
	Method     string
	Route      string
	Outcome    Outcome
	StatusCode int
	Attempts   int
	Throttles  int
	Latency    time.Duration
	At         time.Time
}

// Recorder persists events. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// Tee records every event with each recorder in turn. All recorders see
// the event; their errors are joined.
func Tee(recorders ...Recorder) Recorder {
	return tee(recorders)
}

type tee []Recorder

func (t tee) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range t {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
