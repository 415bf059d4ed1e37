package state

import "sync"

// Registry ties subscriptions (realtime feeds, debouncers, renderer
// callbacks) to a component lifetime. Everything registered is torn down
// as a unit by Close, in reverse registration order, exactly once.
type Registry struct {
	mu     sync.Mutex
	subs   []func()
	closed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a teardown function. Adding to a closed registry runs the
// teardown immediately: a late subscriber must not leak.
func (r *Registry) Add(unsub func()) {
	if unsub == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		unsub()
		return
	}
	r.subs = append(r.subs, unsub)
	r.mu.Unlock()
}

// Len reports the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Close tears down all subscriptions in reverse order. Subsequent calls
// are no-ops.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for i := len(subs) - 1; i >= 0; i-- {
		subs[i]()
	}
}
