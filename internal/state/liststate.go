// Package state holds the session-scoped view state: the list window and
// its filters, persisted preferences, subscription lifetimes, and the
// explicit view/edit state machine.
package state

import (
	"sync"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/query"
)

// ConnState is the connection indicator shown next to the list.
type ConnState int

const (
	ConnOK ConnState = iota
	// ConnDegraded means the last fetch fell back to cached or snapshot
	// data; the view is usable but possibly stale.
	ConnDegraded
)

// ListState is the mutable view state of the claims list. Created once per
// session; every filter, sort, and page interaction mutates it. Only page
// size and column visibility survive restarts (via Prefs); the rest is
// session-scoped by design.
//
// All mutation flows through the fetch coordinator's latest-id gate, so a
// stale network response can never overwrite newer state.
type ListState struct {
	mu sync.RWMutex

	page     int
	pageSize int
	total    int

	filters query.Filters
	sort    query.Sort

	rows    []api.ClaimRecord
	loading bool
	conn    ConnState
}

// NewListState starts at page 1 with the given page size and default sort.
func NewListState(pageSize int) *ListState {
	return &ListState{
		page:     1,
		pageSize: pageSize,
		filters:  query.Filters{Status: api.StatusAll, SearchMode: query.Fuzzy},
		sort:     query.DefaultSort(),
		conn:     ConnOK,
	}
}

// Snapshot returns a copy of the queryable dimensions: filters, sort,
// page, and page size.
func (l *ListState) Snapshot() (query.Filters, query.Sort, int, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filters, l.sort, l.page, l.pageSize
}

// Rows returns the currently loaded row window and the backend total.
func (l *ListState) Rows() ([]api.ClaimRecord, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rows, l.total
}

// SetRows replaces the loaded window and total count.
func (l *ListState) SetRows(rows []api.ClaimRecord, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = rows
	l.total = total
}

// AppendRows extends the loaded window (infinite-scroll append mode).
func (l *ListState) AppendRows(rows []api.ClaimRecord, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, rows...)
	l.total = total
}

// SetPage moves to a 1-based page number.
func (l *ListState) SetPage(page int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if page < 1 {
		page = 1
	}
	l.page = page
}

// SetPageSize changes the page size and resets to page 1.
func (l *ListState) SetPageSize(size int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pageSize = size
	l.page = 1
}

// SetFilters replaces the filter set and resets to page 1. A sort the user
// never explicitly chose also resets to the system default: an inherited
// default sort should not outlive the filters it was chosen under.
func (l *ListState) SetFilters(f query.Filters) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filters = f
	l.page = 1
	if !l.sort.UserChosen {
		l.sort = query.DefaultSort()
	}
}

// SetSort replaces the sort, marking it user-chosen, and resets to page 1.
func (l *ListState) SetSort(column string, desc bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sort = query.Sort{Column: column, Desc: desc, UserChosen: true}
	l.page = 1
}

// ResetFilters clears filters back to the defaults, keeping a user-chosen
// sort but dropping a system-default one.
func (l *ListState) ResetFilters() {
	l.SetFilters(query.Filters{Status: api.StatusAll, SearchMode: query.Fuzzy})
}

// Loading reports the loading flag.
func (l *ListState) Loading() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loading
}

// SetLoading sets the loading flag.
func (l *ListState) SetLoading(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = v
}

// Conn reports the connection indicator state.
func (l *ListState) Conn() ConnState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conn
}

// SetConn sets the connection indicator state.
func (l *ListState) SetConn(c ConnState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = c
}

// FindByOrderNo scans the loaded window for a record with the given order
// number, excluding the record with skipID. This is the submit-time
// fast-fail duplicate check; the backend's uniqueness constraint remains
// the actual guarantee.
func (l *ListState) FindByOrderNo(orderNo, skipID string) *api.ClaimRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.rows {
		if l.rows[i].OrderNo == orderNo && l.rows[i].ID != skipID {
			rec := l.rows[i]
			return &rec
		}
	}
	return nil
}

// UpdateRow replaces the row with rec.ID in the loaded window, if present.
func (l *ListState) UpdateRow(rec *api.ClaimRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.rows {
		if l.rows[i].ID == rec.ID {
			l.rows[i] = *rec
			return
		}
	}
}
