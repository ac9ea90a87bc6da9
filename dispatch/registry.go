package dispatch

import (
	"slices"
	"sync"
)

// Registry maps bucket keys to buckets. Buckets are created on first use
// and live as long as the registry.
type Registry struct {
	mu       sync.RWMutex
	buckets  map[string]*Bucket
	priority bool
}

// NewRegistry returns an empty registry whose buckets queue in strict
// arrival order.
func NewRegistry() *Registry {
	return newRegistry(false)
}

func newRegistry(priority bool) *Registry {
	return &Registry{
		buckets:  make(map[string]*Bucket),
		priority: priority,
	}
}

// Resolve returns the bucket for key, creating it if needed. Concurrent
// calls for an unseen key all receive the same bucket.
func (r *Registry) Resolve(key string) *Bucket {
	r.mu.RLock()
	b, ok := r.buckets[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[key]; ok {
		return b
	}

	b = newBucket(key, r.priority)
	r.buckets[key] = b

	return b
}

// Lookup returns the bucket for key without creating it.
func (r *Registry) Lookup(key string) (*Bucket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.buckets[key]
	return b, ok
}

// Len returns the number of buckets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.buckets)
}

// Keys returns the bucket keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.buckets))
	for k := range r.buckets {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	slices.Sort(keys)
	return keys
}

// Snapshot returns the state of every bucket, ordered by key.
func (r *Registry) Snapshot() []BucketState {
	keys := r.Keys()
	states := make([]BucketState, 0, len(keys))
	for _, k := range keys {
		if b, ok := r.Lookup(k); ok {
			states = append(states, b.State())
		}
	}
	return states
}
