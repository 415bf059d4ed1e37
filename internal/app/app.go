// Package app assembles the engine: configuration, the two-tier query
// cache, the remote client, the fetch coordinator, the conflict-aware
// writer, and the realtime invalidation loop, behind one Engine facade.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/cache"
	"github.com/overseasops/claimgrid/internal/config"
	"github.com/overseasops/claimgrid/internal/export"
	"github.com/overseasops/claimgrid/internal/fetch"
	"github.com/overseasops/claimgrid/internal/query"
	"github.com/overseasops/claimgrid/internal/remote"
	"github.com/overseasops/claimgrid/internal/state"
	"github.com/overseasops/claimgrid/internal/writer"
)

// ErrPermission is returned when the session role does not allow the
// attempted action. The check is local; nothing reaches the network.
var ErrPermission = errors.New("app: permission denied")

// ErrPageSize rejects a page size outside the configured selector.
var ErrPageSize = errors.New("app: page size not allowed")

// Backend is the full remote surface the engine uses. *remote.Client
// implements it; tests substitute fakes.
type Backend interface {
	Select(ctx context.Context, q *remote.Query) ([]api.ClaimRecord, int, error)
	Get(ctx context.Context, id string) (*api.ClaimRecord, error)
	Insert(ctx context.Context, rec *api.ClaimRecord) (*api.ClaimRecord, error)
	Update(ctx context.Context, id string, fields map[string]any, expectUpdatedAt time.Time) (int, error)
	Delete(ctx context.Context, id string) error
}

// Engine is one back-office session over the claims list.
type Engine struct {
	cfg     *config.Config
	perms   api.Permissions
	backend Backend

	cache  *cache.Cache
	list   *state.ListState
	coord  *fetch.Coordinator
	writer *writer.Writer
	prefs  *state.Prefs
	subs   *state.Registry

	debounce *remote.Debouncer
}

// EngineOptions override pieces of the default wiring.
type EngineOptions struct {
	// Backend replaces the HTTP client (tests, embedded stub).
	Backend Backend
	// Realtime enables change-event driven invalidation when non-nil.
	Realtime remote.RealtimeSource
	// Ephemeral skips the persistent cache tier and snapshot file.
	Ephemeral bool
}

// NewEngine wires an engine from cfg for a session with the given role.
func NewEngine(cfg *config.Config, role api.Role, opts EngineOptions) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	backend := opts.Backend
	if backend == nil {
		backend = remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Table, cfg.Remote.APIKey)
	}

	var store *cache.Store
	var snap *fetch.Snapshot
	if !opts.Ephemeral {
		var err error
		store, err = cache.OpenStore(cfg.CacheDBPath())
		if err != nil {
			// degrade to memory-only, the session still works
			log.Printf("app: persistent cache unavailable: %v", err)
			store = nil
		}
		snap = fetch.NewSnapshot(cfg.SnapshotPath())
	}

	qc, err := cache.New(cache.Options{
		MemoryTTL:     cfg.MemoryTTL(),
		PersistentTTL: cfg.PersistentTTL(),
		MemoryCap:     cfg.Cache.MemoryCap,
		PersistentCap: cfg.Cache.PersistentCap,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("build query cache: %w", err)
	}

	prefs := state.LoadPrefs(cfg.PrefsPath())
	pageSize := cfg.List.DefaultPageSize
	if prefs.PageSize != 0 && cfg.PageSizeAllowed(prefs.PageSize) {
		pageSize = prefs.PageSize
	}

	list := state.NewListState(pageSize)
	e := &Engine{
		cfg:     cfg,
		perms:   api.Permissions{Role: role},
		backend: backend,
		cache:   qc,
		list:    list,
		coord:   fetch.NewCoordinator(backend, qc, snap, list),
		writer:  writer.New(backend, qc),
		prefs:   prefs,
		subs:    state.NewRegistry(),
	}

	if opts.Realtime != nil {
		if err := e.subscribeRealtime(opts.Realtime); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// subscribeRealtime routes debounced change events into cache
// invalidation plus one refetch per quiet window.
func (e *Engine) subscribeRealtime(src remote.RealtimeSource) error {
	e.debounce = remote.NewDebouncer(250*time.Millisecond, func(batch []api.ChangeEvent) {
		log.Printf("app: %d change events, refreshing", len(batch))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.coord.InvalidateAll(ctx); err != nil && !errors.Is(err, fetch.ErrSuperseded) {
			log.Printf("app: realtime refetch: %v", err)
		}
	})
	e.subs.Add(e.debounce.Close)

	events, cancel, err := src.Subscribe(e.cfg.Remote.Table)
	if err != nil {
		return fmt.Errorf("subscribe realtime: %w", err)
	}
	e.subs.Add(cancel)

	go func() {
		for ev := range events {
			e.debounce.Add(ev)
		}
	}()
	return nil
}

// List exposes the mutable list state for renderers.
func (e *Engine) List() *state.ListState { return e.list }

// Coordinator exposes the fetch coordinator for renderers and loaders.
func (e *Engine) Coordinator() *fetch.Coordinator { return e.coord }

// Permissions returns the session permissions.
func (e *Engine) Permissions() api.Permissions { return e.perms }

// CacheStats reports cache hit/miss counters for diagnostics.
func (e *Engine) CacheStats() cache.Stats { return e.cache.Stats() }

// Load runs the initial fetch for the current state.
func (e *Engine) Load(ctx context.Context) error {
	return e.coord.Fetch(ctx, fetch.Options{})
}

// Search applies a new filter set and fetches page 1.
func (e *Engine) Search(ctx context.Context, f query.Filters) error {
	e.list.SetFilters(f)
	return e.coord.Fetch(ctx, fetch.Options{})
}

// ResetFilters clears all filters and fetches page 1.
func (e *Engine) ResetFilters(ctx context.Context) error {
	e.list.ResetFilters()
	return e.coord.Fetch(ctx, fetch.Options{})
}

// Sort applies a user-chosen sort and refetches, dropping cache entries
// that carry the stale sort for the current filters.
func (e *Engine) Sort(ctx context.Context, column string, desc bool) error {
	e.list.SetSort(column, desc)
	return e.coord.SortChanged(ctx)
}

// GoToPage jumps to a 1-based page and fetches it.
func (e *Engine) GoToPage(ctx context.Context, page int) error {
	e.list.SetPage(page)
	return e.coord.Fetch(ctx, fetch.Options{})
}

// SetPageSize switches the page size, persists it as a preference, and
// refetches from page 1.
func (e *Engine) SetPageSize(ctx context.Context, size int) error {
	if !e.cfg.PageSizeAllowed(size) {
		return fmt.Errorf("%w: %d", ErrPageSize, size)
	}
	e.list.SetPageSize(size)
	e.prefs.PageSize = size
	e.savePrefs()
	return e.coord.Fetch(ctx, fetch.Options{})
}

// SetColumns persists the visible-column selection. Export follows it.
func (e *Engine) SetColumns(columns []string) {
	e.prefs.Columns = columns
	e.savePrefs()
}

// SetLastView persists the active view identifier so the next session can
// restore it.
func (e *Engine) SetLastView(id string) {
	e.prefs.LastView = id
	e.savePrefs()
}

// LastView returns the persisted view identifier from the previous
// session, empty for a fresh install.
func (e *Engine) LastView() string { return e.prefs.LastView }

// savePrefs persists preferences; failures are logged, never fatal.
func (e *Engine) savePrefs() {
	if err := e.prefs.Save(e.cfg.PrefsPath()); err != nil {
		log.Printf("app: save prefs: %v", err)
	}
}

// Refresh bypasses the cache and refetches the current page.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.coord.Fetch(ctx, fetch.Options{Force: true})
}

// exportPageSize is the window used to drain the filtered set for export.
const exportPageSize = 200

// Export writes every row matching the current filters (not just the
// visible page) as CSV, in the preferred column order.
func (e *Engine) Export(ctx context.Context, w io.Writer) error {
	if !e.perms.CanExport() {
		return ErrPermission
	}
	filters, sort, _, _ := e.list.Snapshot()

	var all []api.ClaimRecord
	for page := 1; ; page++ {
		q := query.Build(filters, sort, page, exportPageSize)
		rows, total, err := e.backend.Select(ctx, q)
		if err != nil {
			return fmt.Errorf("export fetch page %d: %w", page, err)
		}
		all = append(all, rows...)
		if len(rows) == 0 || len(all) >= total {
			break
		}
	}

	columns := e.prefs.Columns
	if len(columns) == 0 {
		columns = state.DefaultColumns()
	}
	return export.WriteCSV(w, all, columns)
}

// Create validates and inserts a new claim, then refetches the list.
func (e *Engine) Create(ctx context.Context, rec *api.ClaimRecord) (*api.ClaimRecord, error) {
	if !e.perms.CanEdit() {
		return nil, ErrPermission
	}
	if err := ValidateClaim(rec); err != nil {
		return nil, err
	}
	if dup := e.list.FindByOrderNo(rec.OrderNo, ""); dup != nil {
		return nil, &ValidationError{Field: "order_no",
			Msg: fmt.Sprintf("order %s already has claim %s", rec.OrderNo, dup.ID)}
	}
	stored, err := e.backend.Insert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create claim: %w", err)
	}
	e.cache.InvalidatePrefix(cache.KeyPrefix)
	if err := e.coord.Fetch(ctx, fetch.Options{Force: true}); err != nil && !errors.Is(err, fetch.ErrSuperseded) {
		log.Printf("app: refetch after create: %v", err)
	}
	return stored, nil
}

// Delete removes a claim and refetches the list.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if !e.perms.CanDelete() {
		return ErrPermission
	}
	if err := e.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete claim %s: %w", id, err)
	}
	e.cache.InvalidatePrefix(cache.KeyPrefix)
	if err := e.coord.Fetch(ctx, fetch.Options{Force: true}); err != nil && !errors.Is(err, fetch.ErrSuperseded) {
		log.Printf("app: refetch after delete: %v", err)
	}
	return nil
}

// Close tears down subscriptions and the cache, in that order.
func (e *Engine) Close() {
	e.subs.Close()
	e.coord.Stop()
	if err := e.cache.Close(); err != nil {
		log.Printf("app: close cache: %v", err)
	}
}
