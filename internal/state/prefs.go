package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ohler55/ojg/oj"
	"github.com/ohler55/ojg/pretty"
)

// prefsVersion guards against future shape changes.
const prefsVersion = 1

// Prefs are the view settings that survive restarts: page size, column
// visibility, and the last active view. Everything else in ListState is
// deliberately session-scoped.
type Prefs struct {
	Version  int      `json:"version"`
	PageSize int      `json:"page_size,omitempty"`
	Columns  []string `json:"columns,omitempty"`
	LastView string   `json:"last_view,omitempty"`
}

// DefaultColumns is the visible-column set for a fresh install.
func DefaultColumns() []string {
	return []string{
		"order_no", "customer_name", "warehouse", "claim_type",
		"amount", "currency", "status", "submitted_at",
	}
}

// LoadPrefs reads prefs from path. A missing or unreadable file yields
// defaults: preferences are a convenience, never a failure source.
func LoadPrefs(path string) *Prefs {
	defaults := &Prefs{Version: prefsVersion, Columns: DefaultColumns()}
	data, err := os.ReadFile(path)
	if err != nil {
		return defaults
	}
	var p Prefs
	if err := oj.Unmarshal(data, &p); err != nil || p.Version != prefsVersion {
		return defaults
	}
	if len(p.Columns) == 0 {
		p.Columns = DefaultColumns()
	}
	return &p
}

// Save writes prefs atomically (temp file + rename).
func (p *Prefs) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir prefs dir: %w", err)
	}
	p.Version = prefsVersion
	data := pretty.JSON(p)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename prefs: %w", err)
	}
	return nil
}
