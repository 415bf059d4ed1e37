// Package config loads engine configuration from an HCL file, with
// package defaults for every knob so a zero-config run works against a
// local stub backend.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Defaults. Page sizes mirror the back office UI's fixed selector.
const (
	DefaultPageSize      = 20
	DefaultMemoryTTL     = 2 * time.Minute
	DefaultPersistentTTL = 15 * time.Minute
	DefaultMemoryCap     = 64
	DefaultPersistentCap = 256
	DefaultBufferRows    = 5
	DefaultFrameInterval = 16 * time.Millisecond
)

// Config is the root engine configuration.
type Config struct {
	Remote RemoteConfig `hcl:"remote,block"`
	Cache  CacheConfig  `hcl:"cache,block"`
	List   ListConfig   `hcl:"list,block"`

	// StatePath is the directory holding prefs, snapshot, and the cache DB.
	StatePath string `hcl:"state_path,optional"`
}

// RemoteConfig points the client at the hosted table API.
type RemoteConfig struct {
	BaseURL string `hcl:"base_url"`
	Table   string `hcl:"table,optional"`
	APIKey  string `hcl:"api_key,optional"`
}

// CacheConfig sizes the two cache tiers.
type CacheConfig struct {
	MemoryTTLSeconds     int `hcl:"memory_ttl_seconds,optional"`
	PersistentTTLSeconds int `hcl:"persistent_ttl_seconds,optional"`
	MemoryCap            int `hcl:"memory_cap,optional"`
	PersistentCap        int `hcl:"persistent_cap,optional"`
}

// ListConfig controls pagination and the virtualized view.
type ListConfig struct {
	PageSizes       []int `hcl:"page_sizes,optional"`
	DefaultPageSize int   `hcl:"default_page_size,optional"`
	BufferRows      int   `hcl:"buffer_rows,optional"`
}

// Default returns a configuration usable against a local stub backend.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL: "http://127.0.0.1:8787",
			Table:   "claims",
		},
		Cache: CacheConfig{
			MemoryTTLSeconds:     int(DefaultMemoryTTL / time.Second),
			PersistentTTLSeconds: int(DefaultPersistentTTL / time.Second),
			MemoryCap:            DefaultMemoryCap,
			PersistentCap:        DefaultPersistentCap,
		},
		List: ListConfig{
			PageSizes:       []int{10, 20, 50, 100},
			DefaultPageSize: DefaultPageSize,
			BufferRows:      DefaultBufferRows,
		},
		StatePath: defaultStatePath(),
	}
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claimgrid"
	}
	return filepath.Join(home, ".claimgrid")
}

// Load reads path and overlays it onto the defaults. A missing file is not
// an error, the defaults stand. A present file must define the remote,
// cache, and list blocks; attributes omitted inside them keep defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Cache.MemoryCap <= 0 || c.Cache.PersistentCap <= 0 {
		return fmt.Errorf("cache caps must be positive")
	}
	if len(c.List.PageSizes) == 0 {
		return fmt.Errorf("list.page_sizes must not be empty")
	}
	if !c.PageSizeAllowed(c.List.DefaultPageSize) {
		return fmt.Errorf("default_page_size %d not in page_sizes", c.List.DefaultPageSize)
	}
	return nil
}

// PageSizeAllowed reports whether n is one of the enumerated page sizes.
func (c *Config) PageSizeAllowed(n int) bool {
	for _, s := range c.List.PageSizes {
		if s == n {
			return true
		}
	}
	return false
}

// MemoryTTL returns the memory-tier TTL as a duration.
func (c *Config) MemoryTTL() time.Duration {
	return time.Duration(c.Cache.MemoryTTLSeconds) * time.Second
}

// PersistentTTL returns the persistent-tier TTL as a duration.
func (c *Config) PersistentTTL() time.Duration {
	return time.Duration(c.Cache.PersistentTTLSeconds) * time.Second
}

// CacheDBPath is the sqlite file backing the persistent cache tier.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.StatePath, "cache.db")
}

// PrefsPath is the persisted-preferences JSON file.
func (c *Config) PrefsPath() string {
	return filepath.Join(c.StatePath, "prefs.json")
}

// SnapshotPath is the last-known-good dataset snapshot file.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.StatePath, "snapshot.json")
}
