// Package risklimit implements the risk-limit cache: a TTL'd, on-disk
// JSON mapping from symbol to the exchange's tiered maintenance-margin
// table, used to bound leverage by position value.
package risklimit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// maxCacheFileBytes bounds how much of the cache file is ever read.
const maxCacheFileBytes = 10 * 1 << 20

// Tier is one maintenance-margin bracket. MaxValue is nil at the top
// tier: the highest bracket has no upper bound.
type Tier struct {
	MaxValue    *decimal.Decimal `json:"max_value"`
	MMRRate     decimal.Decimal  `json:"mmr_rate"`
	MMDeduction decimal.Decimal  `json:"mm_deduction"`
	IMRRate     decimal.Decimal  `json:"imr_rate"`
}

type cacheEntry struct {
	Tiers    []Tier    `json:"tiers"`
	CachedAt time.Time `json:"cached_at"`
}

// Fetcher retrieves a fresh tier table from the exchange on a cache miss
// or expiry. Implemented by the external gateway; nil disables refetch
// and Get returns only what's on disk.
type Fetcher interface {
	GetRiskLimit(symbol string) ([]Tier, error)
}

// Cache is a process-wide, file-backed, TTL'd risk-limit table.
type Cache struct {
	path    string
	ttl     time.Duration
	fetcher Fetcher

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// New constructs a Cache reading/writing path, refetching via fetcher
// (which may be nil) after ttl elapses. path must not be a symlink; this
// is enforced on every read and write.
func New(path string, ttl time.Duration, fetcher Fetcher) *Cache {
	return &Cache{path: path, ttl: ttl, fetcher: fetcher, entries: make(map[string]cacheEntry)}
}

// Get returns the tier table for symbol, preferring an unexpired
// in-memory/disk cache entry and falling back to Fetcher on a miss or
// expiry. Returns an error when the cache file cannot be read safely (for
// example a symlinked path) or written, or when there is neither a cached
// entry nor a successful fetch.
func (c *Cache) Get(symbol string) ([]Tier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.load(); err != nil {
		return nil, err
	}

	if entry, ok := c.entries[symbol]; ok && time.Since(entry.CachedAt) < c.ttl {
		return entry.Tiers, nil
	}

	if c.fetcher == nil {
		if entry, ok := c.entries[symbol]; ok {
			return entry.Tiers, nil // stale but better than nothing
		}
		return nil, fmt.Errorf("risklimit: no cached tiers for %s and no fetcher configured", symbol)
	}

	tiers, err := c.fetcher.GetRiskLimit(symbol)
	if err != nil {
		if entry, ok := c.entries[symbol]; ok {
			return entry.Tiers, nil // serve stale on fetch failure
		}
		return nil, fmt.Errorf("risklimit: fetch %s: %w", symbol, err)
	}

	c.entries[symbol] = cacheEntry{Tiers: tiers, CachedAt: time.Now()}
	return tiers, c.save()
}

// MaxLeverageForValue returns the initial-margin rate (IMRRate) of the
// lowest tier whose bracket still covers positionValue, i.e. the tier
// selection the exchange itself uses to determine margin requirements.
func (c *Cache) MaxLeverageForValue(symbol string, positionValue decimal.Decimal) (decimal.Decimal, error) {
	tiers, err := c.Get(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	for _, t := range tiers {
		if t.MaxValue == nil || positionValue.LessThanOrEqual(*t.MaxValue) {
			return t.IMRRate, nil
		}
	}
	return decimal.Zero, fmt.Errorf("risklimit: no tier covers value %s for %s", positionValue.String(), symbol)
}

// Refresh re-fetches every symbol currently held in the cache, satisfying
// core.IRiskLimitCache. It returns the first error encountered but still
// attempts every symbol.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	symbols := make([]string, 0, len(c.entries))
	for s := range c.entries {
		symbols = append(symbols, s)
	}
	c.mu.Unlock()

	var firstErr error
	for _, s := range symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.mu.Lock()
		if e, ok := c.entries[s]; ok {
			e.CachedAt = time.Time{}
			c.entries[s] = e
		}
		c.mu.Unlock()
		if _, err := c.Get(s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Cache) load() error {
	info, err := os.Lstat(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("risklimit: stat cache file: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("risklimit: cache path %s must not be a symlink", c.path)
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("risklimit: open cache file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxCacheFileBytes))
	if err != nil {
		return fmt.Errorf("risklimit: read cache file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var onDisk map[string]cacheEntry
	if err := json.Unmarshal(data, &onDisk); err != nil {
		// Corrupted cache reads as empty, not fatal.
		return nil
	}
	for k, v := range onDisk {
		if _, ok := c.entries[k]; !ok {
			c.entries[k] = v
		}
	}
	return nil
}

func (c *Cache) save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("risklimit: create cache dir: %w", err)
	}
	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("risklimit: marshal cache: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("risklimit: write temp cache file: %w", err)
	}
	return os.Rename(tmp, c.path)
}
