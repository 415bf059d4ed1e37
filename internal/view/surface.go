// Package view is the virtualized list renderer: it materializes only the
// rows intersecting the scroll viewport plus a buffer, recycles row nodes
// through a bounded pool, and patches incrementally when the window shifts.
package view

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/overseasops/claimgrid/api"
)

// RowNode is one reusable row element on a surface. Nodes are recycled:
// content is replaced in place, the node itself is not destroyed.
type RowNode interface {
	// Bind fills the node with a record at a logical list index.
	Bind(index int, rec api.ClaimRecord)
	// Blank clears the node while it sits in the pool.
	Blank()
}

// Surface is the render target. The browser DOM, a terminal grid, and the
// in-memory test surface all fit behind it.
type Surface interface {
	// Acquire returns the node bound to row id, creating or recycling one.
	Acquire(id string) RowNode
	// Release returns the node for id to the pool.
	Release(id string)
	// SetSpacers sets the heights, in pixels, of the phantom regions above
	// and below the materialized window so the scrollbar reflects the true
	// content height.
	SetSpacers(top, bottom int)
}

// memoryNode is a RowNode for tests and the text surface.
type memoryNode struct {
	index int
	rec   api.ClaimRecord
	bound bool
	binds int
}

func (n *memoryNode) Bind(index int, rec api.ClaimRecord) {
	n.index = index
	n.rec = rec
	n.bound = true
	n.binds++
}

func (n *memoryNode) Blank() {
	n.bound = false
	n.rec = api.ClaimRecord{}
}

// MemorySurface records node lifecycle for assertions and backs the plain
// text rendering used by the CLI. Pool size is bounded: released nodes
// beyond the cap are discarded instead of pooled.
type MemorySurface struct {
	mu      sync.Mutex
	nodes   map[string]*memoryNode // live, keyed by row id
	pool    []*memoryNode
	poolCap int

	topSpacer    int
	bottomSpacer int

	acquires int
	recycles int
}

// NewMemorySurface creates a surface with the given pool cap.
func NewMemorySurface(poolCap int) *MemorySurface {
	if poolCap <= 0 {
		poolCap = 64
	}
	return &MemorySurface{
		nodes:   make(map[string]*memoryNode),
		poolCap: poolCap,
	}
}

func (s *MemorySurface) Acquire(id string) RowNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[id]; ok {
		return n
	}
	var n *memoryNode
	if len(s.pool) > 0 {
		n = s.pool[len(s.pool)-1]
		s.pool = s.pool[:len(s.pool)-1]
		s.recycles++
	} else {
		n = &memoryNode{}
	}
	s.acquires++
	s.nodes[id] = n
	return n
}

func (s *MemorySurface) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	delete(s.nodes, id)
	n.Blank()
	if len(s.pool) < s.poolCap {
		s.pool = append(s.pool, n)
	}
}

func (s *MemorySurface) SetSpacers(top, bottom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topSpacer = top
	s.bottomSpacer = bottom
}

// Materialized returns the number of live row nodes.
func (s *MemorySurface) Materialized() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// Spacers returns the current spacer heights.
func (s *MemorySurface) Spacers() (top, bottom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topSpacer, s.bottomSpacer
}

// Binds returns the total Bind call count across live nodes. Tests use the
// delta to bound how many nodes a patch touched.
func (s *MemorySurface) Binds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.nodes {
		total += n.binds
	}
	for _, n := range s.pool {
		total += n.binds
	}
	return total
}

// Recycles returns how many acquisitions reused a pooled node.
func (s *MemorySurface) Recycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recycles
}

// Render writes the materialized rows in index order, with spacer markers,
// to w. The CLI's browse command uses this as its "paint".
func (s *MemorySurface) Render(w io.Writer) error {
	s.mu.Lock()
	type line struct {
		index int
		rec   api.ClaimRecord
	}
	lines := make([]line, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.bound {
			lines = append(lines, line{index: n.index, rec: n.rec})
		}
	}
	top, bottom := s.topSpacer, s.bottomSpacer
	s.mu.Unlock()

	sort.Slice(lines, func(i, j int) bool { return lines[i].index < lines[j].index })

	if top > 0 {
		if _, err := fmt.Fprintf(w, "  ... %dpx above ...\n", top); err != nil {
			return err
		}
	}
	for _, l := range lines {
		r := l.rec
		if _, err := fmt.Fprintf(w, "%5d  %-14s %-18s %-10s %-9s %8.2f %s  %s\n",
			l.index+1, r.OrderNo, r.CustomerName, r.Warehouse, r.Type, r.Amount, r.Currency, r.Status); err != nil {
			return err
		}
	}
	if bottom > 0 {
		if _, err := fmt.Fprintf(w, "  ... %dpx below ...\n", bottom); err != nil {
			return err
		}
	}
	return nil
}
