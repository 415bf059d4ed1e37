package remote

import (
	"sync"
	"time"

	"github.com/overseasops/claimgrid/api"
)

// RealtimeSource is the change-notification collaborator. Implementations
// push per-table change events; the engine only consumes them as
// cache-invalidation and conditional-refetch triggers.
type RealtimeSource interface {
	// Subscribe starts delivering change events for table. The returned
	// cancel function stops delivery and closes the channel.
	Subscribe(table string) (<-chan api.ChangeEvent, func(), error)
}

// Debouncer coalesces bursts of change events: events are accumulated and
// the flush callback fires once per quiet window with the whole batch.
// A realtime storm (bulk import, mass status update) then costs one
// invalidate+refetch instead of one per row.
type Debouncer struct {
	window time.Duration
	flush  func([]api.ChangeEvent)

	mu      sync.Mutex
	pending []api.ChangeEvent
	timer   *time.Timer
	closed  bool
}

// NewDebouncer creates a debouncer firing flush after window of quiet.
func NewDebouncer(window time.Duration, flush func([]api.ChangeEvent)) *Debouncer {
	if window <= 0 {
		window = 250 * time.Millisecond
	}
	return &Debouncer{window: window, flush: flush}
}

// Add queues one event and (re)arms the flush timer.
func (d *Debouncer) Add(ev api.ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending = append(d.pending, ev)
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.fire)
	} else {
		d.timer.Reset(d.window)
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.timer = nil
	closed := d.closed
	d.mu.Unlock()
	if closed || len(batch) == 0 {
		return
	}
	d.flush(batch)
}

// Flush delivers any pending batch immediately. Used by tests and teardown.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.fire()
}

// Close stops the debouncer. Pending events are dropped; a view being torn
// down has no use for them.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}
