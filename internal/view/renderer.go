package view

import (
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/overseasops/claimgrid/api"
)

// Config sizes the renderer. Zero values take the defaults below.
type Config struct {
	RowHeight      int           // pixels per row
	ViewportHeight int           // pixels of visible list area
	BufferRows     int           // extra rows materialized on each side
	FrameInterval  time.Duration // minimum time between window recomputes
}

const (
	defaultRowHeight      = 40
	defaultViewportHeight = 600
	defaultBufferRows     = 5
	defaultFrameInterval  = 16 * time.Millisecond

	// changedRatioRepaint: above this fraction of changed rows a data
	// update is a full repaint instead of a per-row patch.
	changedRatioRepaint = 0.3
)

func (c Config) withDefaults() Config {
	if c.RowHeight <= 0 {
		c.RowHeight = defaultRowHeight
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = defaultViewportHeight
	}
	if c.BufferRows <= 0 {
		c.BufferRows = defaultBufferRows
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = defaultFrameInterval
	}
	return c
}

// visibleCount is how many rows intersect the viewport.
func (c Config) visibleCount() int {
	return (c.ViewportHeight + c.RowHeight - 1) / c.RowHeight
}

// Renderer keeps the materialized row window in sync with scroll position
// and data updates. DOM-node count stays bounded by visible + 2*buffer for
// any total row count. Single-writer: only the renderer mutates its
// surface, so node reuse cannot race.
type Renderer struct {
	cfg     Config
	surface Surface

	// OnNeedMore fires when scroll approaches the end of materialized
	// content; the app responds with an append-mode fetch.
	OnNeedMore func()

	mu         sync.Mutex
	rows       []api.ClaimRecord
	totalCount int

	start, end int // materialized window [start, end)
	window     *roaring.Bitmap

	scrollTop      int
	lastScrollTop  int
	lastScrollAt   time.Time
	lastRecompute  time.Time
	velocityPxPerS float64

	destroyed bool

	// now is swappable for throttle tests.
	now func() time.Time
}

// NewRenderer builds a renderer painting onto surface.
func NewRenderer(cfg Config, surface Surface) *Renderer {
	return &Renderer{
		cfg:     cfg.withDefaults(),
		surface: surface,
		window:  roaring.New(),
		now:     time.Now,
	}
}

// UpdateData replaces the backing rows. When most rows are unchanged the
// update patches only the changed ones; otherwise it repaints the window.
func (r *Renderer) UpdateData(rows []api.ClaimRecord, totalCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}

	old := r.rows
	if r.patchableLocked(old, rows) {
		r.rows = rows
		r.totalCount = totalCount
		r.patchChangedLocked(old, rows)
		r.setSpacersLocked()
		return
	}

	// Full replacement: release the window against the rows it was built
	// from before swapping, or the old nodes leak under their old ids.
	r.releaseWindowLocked(old)
	r.rows = rows
	r.totalCount = totalCount
	r.materializeLocked()
}

// patchableLocked reports whether the data update can be a per-row patch:
// same length and the changed-row ratio below the repaint threshold.
func (r *Renderer) patchableLocked(old, new []api.ClaimRecord) bool {
	if len(old) == 0 || len(old) != len(new) {
		return false
	}
	changed := 0
	for i := range new {
		if rowChanged(old[i], new[i]) {
			changed++
		}
	}
	return float64(changed)/float64(len(new)) < changedRatioRepaint
}

// rowChanged compares identity plus the mutable fields the list displays.
func rowChanged(a, b api.ClaimRecord) bool {
	return a.ID != b.ID || a.Status != b.Status || a.Amount != b.Amount
}

// patchChangedLocked rebinds only the changed rows inside the window.
func (r *Renderer) patchChangedLocked(old, new []api.ClaimRecord) {
	for i := r.start; i < r.end && i < len(new); i++ {
		if !rowChanged(old[i], new[i]) {
			continue
		}
		if old[i].ID != new[i].ID {
			r.surface.Release(old[i].ID)
		}
		r.surface.Acquire(new[i].ID).Bind(i, new[i])
	}
}

// OnScroll handles a scroll to scrollTop pixels. Recomputation is frame
// throttled and skipped outright when the window would not move.
func (r *Renderer) OnScroll(scrollTop int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}

	now := r.now()
	if dt := now.Sub(r.lastScrollAt); dt > 0 && !r.lastScrollAt.IsZero() {
		delta := scrollTop - r.lastScrollTop
		if delta < 0 {
			delta = -delta
		}
		r.velocityPxPerS = float64(delta) / dt.Seconds()
	}
	r.lastScrollTop = scrollTop
	r.lastScrollAt = now
	r.scrollTop = scrollTop

	if now.Sub(r.lastRecompute) < r.cfg.FrameInterval {
		return
	}
	r.lastRecompute = now

	start, end := r.windowForLocked(scrollTop)
	if start == r.start && end == r.end {
		r.maybeTriggerAppendLocked()
		return
	}
	r.applyWindowLocked(start, end)
	r.maybeTriggerAppendLocked()
}

// windowForLocked computes the materialized window for a scroll offset:
// visible rows plus BufferRows on each side, clamped to the loaded rows.
func (r *Renderer) windowForLocked(scrollTop int) (int, int) {
	first := scrollTop / r.cfg.RowHeight
	start := first - r.cfg.BufferRows
	if start < 0 {
		start = 0
	}
	end := first + r.cfg.visibleCount() + r.cfg.BufferRows
	if end > len(r.rows) {
		end = len(r.rows)
	}
	if start > end {
		start = end
	}
	return start, end
}

// applyWindowLocked moves the materialized window to [start, end). Small
// shifts patch incrementally via bitmap deltas; a jump larger than twice
// the visible count discards and repaints.
func (r *Renderer) applyWindowLocked(start, end int) {
	shift := start - r.start
	if shift < 0 {
		shift = -shift
	}
	if shift >= 2*r.cfg.visibleCount() {
		r.releaseWindowLocked(r.rows)
		r.materializeLocked()
		return
	}

	newWindow := roaring.New()
	if start < end {
		newWindow.AddRange(uint64(start), uint64(end))
	}

	gone := roaring.AndNot(r.window, newWindow)
	added := roaring.AndNot(newWindow, r.window)

	it := gone.Iterator()
	for it.HasNext() {
		i := int(it.Next())
		if i < len(r.rows) {
			r.surface.Release(r.rows[i].ID)
		}
	}
	it = added.Iterator()
	for it.HasNext() {
		i := int(it.Next())
		if i < len(r.rows) {
			r.surface.Acquire(r.rows[i].ID).Bind(i, r.rows[i])
		}
	}

	r.window = newWindow
	r.start, r.end = start, end
	r.setSpacersLocked()
}

// releaseWindowLocked returns every materialized node to the pool, keyed
// by the row slice the window was built against.
func (r *Renderer) releaseWindowLocked(rows []api.ClaimRecord) {
	it := r.window.Iterator()
	for it.HasNext() {
		i := int(it.Next())
		if i < len(rows) {
			r.surface.Release(rows[i].ID)
		}
	}
	r.window.Clear()
}

// materializeLocked paints the window for the current scroll position from
// scratch.
func (r *Renderer) materializeLocked() {
	start, end := r.windowForLocked(r.scrollTop)
	r.start, r.end = start, end
	if start < end {
		r.window.AddRange(uint64(start), uint64(end))
	}
	for i := start; i < end; i++ {
		r.surface.Acquire(r.rows[i].ID).Bind(i, r.rows[i])
	}
	r.setSpacersLocked()
}

// setSpacersLocked sizes the phantom regions so the scrollbar spans the
// full loaded content.
func (r *Renderer) setSpacersLocked() {
	top := r.start * r.cfg.RowHeight
	bottom := (len(r.rows) - r.end) * r.cfg.RowHeight
	if bottom < 0 {
		bottom = 0
	}
	r.surface.SetSpacers(top, bottom)
}

// maybeTriggerAppendLocked fires OnNeedMore when the distance from the
// scroll position to the end of loaded content drops under a threshold
// that grows with scroll velocity, so fast scrolling prefetches earlier.
func (r *Renderer) maybeTriggerAppendLocked() {
	if r.OnNeedMore == nil || len(r.rows) == 0 || len(r.rows) >= r.totalCount {
		return
	}
	contentHeight := len(r.rows) * r.cfg.RowHeight
	remaining := contentHeight - (r.scrollTop + r.cfg.ViewportHeight)

	threshold := r.cfg.ViewportHeight
	// Half a second of travel at the current velocity, capped at two
	// extra viewports.
	extra := int(r.velocityPxPerS / 2)
	if max := 2 * r.cfg.ViewportHeight; extra > max {
		extra = max
	}
	threshold += extra

	if remaining < threshold {
		r.OnNeedMore()
	}
}

// Window returns the current materialized range [start, end).
func (r *Renderer) Window() (start, end int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.start, r.end
}

// Destroy releases every node and detaches the renderer.
func (r *Renderer) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.releaseWindowLocked(r.rows)
	r.start, r.end = 0, 0
	r.rows = nil
	r.destroyed = true
}
