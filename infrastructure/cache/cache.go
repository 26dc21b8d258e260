// Package cache implements the two-tier (memory + disk) TTL cache that
// backs the Artifact Pipeline's version lookups and downloaded-file
// bookkeeping. The memory tier is a bounded LRU (hashicorp/golang-lru);
// the disk tier, when configured, persists one JSON file per key so
// version lookups survive a restart without re-hitting the network.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/serverforge/serverforge/internal/singleflight"
)

// Status is the three-way outcome of a cache lookup under TTL semantics.
type Status int

const (
	Miss Status = iota
	Hit
	Stale
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

type entry struct {
	Value  json.RawMessage `json:"value"`
	Expiry time.Time       `json:"expiry"`
}

// diskRecord is the version-tagged shape written to each per-key sidecar
// file. Bumping Version lets a future layout change invalidate silently
// instead of failing to unmarshal.
type diskRecord struct {
	Version int       `json:"version"`
	Value   json.RawMessage `json:"value"`
	Expiry  time.Time `json:"expiry"`
}

const diskRecordVersion = 1

// Config controls cache sizing and persistence.
type Config struct {
	MaxEntries int    // bounded LRU size for the memory tier
	DiskDir    string // optional: empty disables the disk tier
}

// Cache is the two-tier TTL cache. Values are stored as json.RawMessage and
// the caller's Get/fetch functions decode into a concrete type; this keeps a
// single cache instance usable for version lists, manifests, and whatever
// else the Artifact Pipeline needs to memoize.
type Cache struct {
	mu      sync.RWMutex
	mem     *lru.Cache[string, entry]
	diskDir string
	flights *singleflight.Group
}

// New creates a Cache. MaxEntries defaults to 500 if unset.
func New(cfg Config) (*Cache, error) {
	max := cfg.MaxEntries
	if max <= 0 {
		max = 500
	}
	mem, err := lru.New[string, entry](max)
	if err != nil {
		return nil, fmt.Errorf("cache: allocate memory tier: %w", err)
	}
	if cfg.DiskDir != "" {
		if err := os.MkdirAll(cfg.DiskDir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create disk tier dir: %w", err)
		}
	}
	return &Cache{
		mem:     mem,
		diskDir: cfg.DiskDir,
		flights: singleflight.New(),
	}, nil
}

func (c *Cache) diskPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.diskDir, hex.EncodeToString(sum[:])+".json")
}

// GetWithStatus returns Miss, Hit(raw), or Stale(raw) for key, checking the
// memory tier first and falling back to the disk tier (warming memory on a
// disk hit) if the disk tier is configured.
func (c *Cache) GetWithStatus(key string) (Status, json.RawMessage) {
	c.mu.RLock()
	e, ok := c.mem.Get(key)
	c.mu.RUnlock()

	if !ok && c.diskDir != "" {
		if loaded, found := c.readDisk(key); found {
			e = loaded
			ok = true
			c.mu.Lock()
			c.mem.Add(key, e)
			c.mu.Unlock()
		}
	}

	if !ok {
		return Miss, nil
	}
	if time.Now().Before(e.Expiry) {
		return Hit, e.Value
	}
	return Stale, e.Value
}

// Set stores value under key with the given ttl, writing through to the
// disk tier when configured. The last writer to a given key's file wins;
// concurrent writes are not otherwise coordinated (per-key filename
// uniqueness is what the spec asks the disk tier to rely on).
func (c *Cache) Set(key string, value json.RawMessage, ttl time.Duration) error {
	e := entry{Value: value, Expiry: time.Now().Add(ttl)}

	c.mu.Lock()
	c.mem.Add(key, e)
	c.mu.Unlock()

	if c.diskDir == "" {
		return nil
	}
	return c.writeDisk(key, e)
}

func (c *Cache) readDisk(key string) (entry, bool) {
	data, err := os.ReadFile(c.diskPath(key))
	if err != nil {
		return entry{}, false
	}
	var rec diskRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Version != diskRecordVersion {
		return entry{}, false
	}
	return entry{Value: rec.Value, Expiry: rec.Expiry}, true
}

func (c *Cache) writeDisk(key string, e entry) error {
	rec := diskRecord{Version: diskRecordVersion, Value: e.Value, Expiry: e.Expiry}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp := c.diskPath(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.diskPath(key))
}

// Fetcher produces a fresh value for a cache key.
type Fetcher func(ctx context.Context) (json.RawMessage, error)

// FetchWithCache implements the primitive the spec calls fetch_with_cache:
// a Hit returns its value directly; a Stale value is returned immediately
// while a best-effort background refresh runs through fetcher; a Miss runs
// fetcher inline, deduplicated across concurrent callers by key via
// singleflight, and populates the cache with the result. Fetcher failures
// never poison the cache — a failed refresh just leaves the existing entry
// (or absence of one) untouched.
func (c *Cache) FetchWithCache(ctx context.Context, key string, ttl time.Duration, fetcher Fetcher) (json.RawMessage, error) {
	status, value := c.GetWithStatus(key)

	switch status {
	case Hit:
		return value, nil
	case Stale:
		go func() {
			_, _ = c.flights.WaitOrExecute(key, func() error {
				fresh, err := fetcher(context.Background())
				if err != nil {
					return err
				}
				return c.Set(key, fresh, ttl)
			})
		}()
		return value, nil
	default: // Miss
		var fetchErr error
		var fresh json.RawMessage
		_, err := c.flights.WaitOrExecute(key, func() error {
			fresh, fetchErr = fetcher(ctx)
			if fetchErr != nil {
				return fetchErr
			}
			return c.Set(key, fresh, ttl)
		})
		if err != nil {
			return nil, err
		}
		if fetchErr != nil {
			return nil, fetchErr
		}
		if fresh == nil {
			// We waited for another caller's fetch; re-read what it set.
			if s, v := c.GetWithStatus(key); s != Miss {
				return v, nil
			}
			return nil, fmt.Errorf("cache: fetch for %q produced no value", key)
		}
		return fresh, nil
	}
}

// Invalidate removes key from both tiers.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	c.mem.Remove(key)
	c.mu.Unlock()

	if c.diskDir != "" {
		_ = os.Remove(c.diskPath(key))
	}
}

// Size returns the number of entries currently held in the memory tier.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mem.Len()
}
