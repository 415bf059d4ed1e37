package view

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Loader drives append-mode page loads for infinite scroll. Failed loads
// retry with capped exponential backoff; once retries are exhausted the
// error is parked as a dismissible inline state instead of failing
// silently.
type Loader struct {
	fetch      func(ctx context.Context) error
	maxRetries uint64
	maxDelay   time.Duration

	mu      sync.Mutex
	busy    bool
	loadErr error
}

// NewLoader builds a loader around an append-mode fetch.
func NewLoader(fetch func(ctx context.Context) error, maxRetries int, maxDelay time.Duration) *Loader {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}
	return &Loader{
		fetch:      fetch,
		maxRetries: uint64(maxRetries),
		maxDelay:   maxDelay,
	}
}

// LoadMore requests the next page. Re-entrant calls while a load (or its
// retries) are in flight are dropped, as are calls while an undismissed
// error is showing.
func (l *Loader) LoadMore(ctx context.Context) {
	l.mu.Lock()
	if l.busy || l.loadErr != nil {
		l.mu.Unlock()
		return
	}
	l.busy = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.busy = false
		l.mu.Unlock()
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = l.maxDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, l.maxRetries), ctx)

	err := backoff.Retry(func() error { return l.fetch(ctx) }, policy)
	if err != nil {
		l.mu.Lock()
		l.loadErr = err
		l.mu.Unlock()
	}
}

// Err returns the parked load error, if any.
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadErr
}

// Dismiss clears the parked error so the next scroll may retry.
func (l *Loader) Dismiss() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadErr = nil
}
