package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ohler55/ojg/oj"
	"github.com/overseasops/claimgrid/api"
)

const snapshotVersion = 1

// snapshotFile is the on-disk shape of the last-known-good dataset.
type snapshotFile struct {
	Version int               `json:"version"`
	SavedAt time.Time         `json:"saved_at"`
	Total   int               `json:"total"`
	Rows    []api.ClaimRecord `json:"rows"`
}

// Snapshot persists the last successfully fetched dataset so the list can
// degrade to stale-but-usable data when the backend is unreachable.
type Snapshot struct {
	path string

	mu     sync.Mutex
	cached *snapshotFile // loaded lazily, kept for repeated fallbacks
}

// NewSnapshot stores the snapshot at path.
func NewSnapshot(path string) *Snapshot {
	return &Snapshot{path: path}
}

// Save records rows and the backend total as the new last-known-good
// state. Write failures are returned but callers treat them as advisory,
// a snapshot that fails to persist only costs future fallback quality.
func (s *Snapshot) Save(rows []api.ClaimRecord, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := &snapshotFile{
		Version: snapshotVersion,
		SavedAt: time.Now(),
		Total:   total,
		Rows:    rows,
	}
	s.cached = file

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir snapshot dir: %w", err)
	}
	data, err := oj.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Window returns the [offset, offset+limit) slice of the snapshot plus the
// saved total. ok is false when no snapshot exists or the window is
// entirely beyond it.
func (s *Snapshot) Window(offset, limit int) (rows []api.ClaimRecord, total int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached == nil {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return nil, 0, false
		}
		var file snapshotFile
		if err := oj.Unmarshal(data, &file); err != nil || file.Version != snapshotVersion {
			return nil, 0, false
		}
		s.cached = &file
	}

	all := s.cached.Rows
	if offset >= len(all) {
		return nil, s.cached.Total, false
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	out := make([]api.ClaimRecord, end-offset)
	copy(out, all[offset:end])
	return out, s.cached.Total, true
}
