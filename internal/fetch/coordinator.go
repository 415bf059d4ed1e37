// Package fetch owns the single "current" paginated list query: it cancels
// superseded requests, decides cache-or-network, and gates every commit on
// a monotonic request id so only the latest intent can touch ListState.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/cache"
	"github.com/overseasops/claimgrid/internal/query"
	"github.com/overseasops/claimgrid/internal/remote"
	"github.com/overseasops/claimgrid/internal/state"
)

// ErrSuperseded marks a fetch whose result was discarded because a newer
// fetch was issued. Never user-visible.
var ErrSuperseded = errors.New("fetch: superseded by a newer request")

// ErrDegraded wraps a network failure that was answered from the local
// snapshot. The view keeps working on stale data; the caller surfaces a
// non-blocking notification.
var ErrDegraded = errors.New("fetch: serving last-known-good snapshot")

// DataSource is the slice of the remote client the coordinator needs.
type DataSource interface {
	Select(ctx context.Context, q *remote.Query) ([]api.ClaimRecord, int, error)
}

// Options modify one fetch.
type Options struct {
	// Force bypasses the cache read (the result is still cached).
	Force bool
	// Append loads the next window after the loaded rows instead of
	// replacing them (infinite scroll). Append pages are never cached.
	Append bool
}

// Coordinator serializes all list fetches. Safe for concurrent use; at
// most one in-flight request is ever honored.
type Coordinator struct {
	source DataSource
	cache  *cache.Cache
	snap   *Snapshot
	list   *state.ListState

	counter atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc // in-flight request, nil when idle
}

// NewCoordinator wires the coordinator. snap may be nil (no fallback).
func NewCoordinator(source DataSource, c *cache.Cache, snap *Snapshot, list *state.ListState) *Coordinator {
	return &Coordinator{source: source, cache: c, snap: snap, list: list}
}

// latest reports whether id is still the newest issued request.
func (co *Coordinator) latest(id uint64) bool {
	return co.counter.Load() == id
}

// begin stamps a new request id and cancels any in-flight predecessor.
// The id is allocated inside the critical section: allocating it outside
// would let an older request install its cancel func over a newer one's
// and cancel the request that should win.
func (co *Coordinator) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	reqCtx, cancel := context.WithCancel(ctx)

	co.mu.Lock()
	id := co.counter.Add(1)
	if co.cancel != nil {
		co.cancel()
	}
	co.cancel = cancel
	co.mu.Unlock()

	return id, reqCtx, cancel
}

// Fetch loads the page described by the current ListState. Stale results
// are dropped without side effects; a network failure falls back to the
// snapshot and returns an error wrapping ErrDegraded.
func (co *Coordinator) Fetch(ctx context.Context, opts Options) error {
	id, reqCtx, cancel := co.begin(ctx)
	defer cancel()

	filters, sort, page, pageSize := co.list.Snapshot()
	if opts.Append {
		loaded, _ := co.list.Rows()
		page = len(loaded)/pageSize + 1
	}
	key := cache.Key(filters, sort, page, pageSize)

	if !opts.Force && !opts.Append {
		if entry, ok := co.cache.Get(key); ok {
			co.commit(id, entry.Rows, entry.TotalCount, false)
			return nil
		}
	}

	co.list.SetLoading(true)
	defer func() {
		// Only the latest request may clear the flag: a slow superseded
		// request must not blank the spinner of a newer one.
		if co.latest(id) {
			co.list.SetLoading(false)
		}
	}()

	q := query.Build(filters, sort, page, pageSize)
	rows, total, err := co.source.Select(reqCtx, q)
	if err != nil {
		if remote.IsCanceled(err) {
			return ErrSuperseded
		}
		return co.fallback(id, page, pageSize, err)
	}

	if !co.commit(id, rows, total, opts.Append) {
		return ErrSuperseded
	}
	co.setConnIfLatest(id, state.ConnOK)

	if !opts.Append {
		co.cache.Set(key, rows, total)
		if co.snap != nil && page == 1 {
			if err := co.snap.Save(rows, total); err != nil {
				log.Printf("fetch: save snapshot: %v", err)
			}
		}
	}
	return nil
}

// commit writes rows into ListState iff id is still the latest request.
// The mutex serializes the check with the write so two racing completions
// cannot interleave.
func (co *Coordinator) commit(id uint64, rows []api.ClaimRecord, total int, appendMode bool) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	if !co.latest(id) {
		return false
	}
	if appendMode {
		co.list.AppendRows(rows, total)
	} else {
		co.list.SetRows(rows, total)
	}
	return true
}

// fallback answers a failed fetch from the local snapshot, if possible.
// A superseded request returns ErrSuperseded without touching the
// connection indicator: stale failures must not flip a healthy view to
// degraded.
func (co *Coordinator) fallback(id uint64, page, pageSize int, cause error) error {
	if co.snap != nil {
		if rows, total, ok := co.snap.Window((page-1)*pageSize, pageSize); ok {
			if !co.commit(id, rows, total, false) {
				return ErrSuperseded
			}
			co.setConnIfLatest(id, state.ConnDegraded)
			return fmt.Errorf("%w: %v", ErrDegraded, cause)
		}
	}
	if !co.latest(id) {
		return ErrSuperseded
	}
	co.setConnIfLatest(id, state.ConnDegraded)
	return fmt.Errorf("fetch page %d: %w", page, cause)
}

// setConnIfLatest flips the connection indicator only when id is still the
// newest request, serialized against commits.
func (co *Coordinator) setConnIfLatest(id uint64, c state.ConnState) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.latest(id) {
		co.list.SetConn(c)
	}
}

// SortChanged drops cache entries that share the current filters but carry
// a stale sort, then refetches. Entries for unrelated filters survive.
func (co *Coordinator) SortChanged(ctx context.Context) error {
	filters, sort, _, _ := co.list.Snapshot()
	prefix := cache.SortPrefix(filters)
	dir := "asc"
	if sort.Desc {
		dir = "desc"
	}
	keep := prefix + sort.Column + "." + dir + "|"
	co.cache.Invalidate(func(key string) bool {
		return strings.HasPrefix(key, prefix) && !strings.HasPrefix(key, keep)
	})
	return co.Fetch(ctx, Options{})
}

// InvalidateAll clears the query cache and forces a refetch. Used when
// realtime change events arrive: any cached page may now be stale.
func (co *Coordinator) InvalidateAll(ctx context.Context) error {
	co.cache.Clear()
	return co.Fetch(ctx, Options{Force: true})
}

// Stop cancels any in-flight request.
func (co *Coordinator) Stop() {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.cancel != nil {
		co.cancel()
		co.cancel = nil
	}
}
