package stats

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Counts tallies outcomes.
type Counts struct {
	Succeeded int64
	Failed    int64
	Cancelled int64
	Attempts  int64
	Throttles int64
}

func (c *Counts) add(ev Event) {
	switch ev.Outcome {
	case Succeeded:
		c.Succeeded++
	case Failed:
		c.Failed++
	case Cancelled:
		c.Cancelled++
	}
	c.Attempts += int64(ev.Attempts)
	c.Throttles += int64(ev.Throttles)
}

// Memory is an in-process [Recorder].
type Memory struct {
	mu        sync.Mutex
	total     Counts
	byBucket  map[string]Counts
	latency   time.Duration
	completed int64
}

// NewMemory returns an empty recorder.
func NewMemory() *Memory {
	return &Memory{byBucket: make(map[string]Counts)}
}

func (m *Memory) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total.add(ev)

	c := m.byBucket[ev.Bucket]
	c.add(ev)
	m.byBucket[ev.Bucket] = c

	if ev.Outcome != Cancelled {
		m.latency += ev.Latency
		m.completed++
	}

	return nil
}

// Total returns counts across every bucket.
func (m *Memory) Total() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Buckets returns counts per bucket key.
func (m *Memory) Buckets() map[string]Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.byBucket)
}

// MeanLatency is the average submission-to-resolution time of requests
// that were not cancelled.
func (m *Memory) MeanLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.completed == 0 {
		return 0
	}
	return m.latency / time.Duration(m.completed)
}
