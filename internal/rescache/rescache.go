// Package rescache is a disk-backed result cache with per-entry TTL.
// Keys are deterministic hashes of scope + query, so entries survive process
// restarts. A ttlcache hot layer sits in front of the disk store to keep
// repeated lookups within a run off the filesystem. I/O failures are treated
// as misses, never as errors the pipeline can see.
package rescache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
)

// DefaultTTL applies when Set is called with a zero TTL.
const DefaultTTL = 30 * time.Minute

type entry struct {
	ExpiresAt time.Time `json:"expires_at"`
	Value     []byte    `json:"value"`
}

// Recorder receives hit/miss signals. Satisfied by metrics.PrometheusRecorder.
type Recorder interface {
	CacheHit(scope string)
	CacheMiss(scope string)
}

// Cache is a scope+query keyed store. Concurrent sets to the same key are a
// benign race: both writers store the same value and last write wins.
type Cache struct {
	log      *slog.Logger
	dir      string
	ttl      time.Duration
	clock    clockwork.Clock
	recorder Recorder

	mu  sync.Mutex
	hot *ttlcache.Cache[string, entry]
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default entry TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock injects the clock used for expiry decisions.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithRecorder attaches a hit/miss recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) { c.recorder = r }
}

// New opens a cache rooted at dir, creating it if needed.
func New(log *slog.Logger, dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	c := &Cache{
		log:   log,
		dir:   dir,
		ttl:   DefaultTTL,
		clock: clockwork.NewRealClock(),
		hot:   ttlcache.New(ttlcache.WithTTL[string, entry](DefaultTTL)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key returns the stable hash for a scope + query pair.
func Key(scope, query string) string {
	h := sha256.Sum256([]byte(scope + "\x00" + query))
	return hex.EncodeToString(h[:])
}

// Get returns the cached value for scope+query, or ok=false on a miss.
// Expired entries are misses and are removed.
func (c *Cache) Get(scope, query string) ([]byte, bool) {
	key := Key(scope, query)
	now := c.clock.Now()

	if item := c.hot.Get(key); item != nil {
		e := item.Value()
		if now.Before(e.ExpiresAt) {
			c.hit(scope)
			return e.Value, true
		}
		c.hot.Delete(key)
	}

	e, err := c.readEntry(key)
	if err != nil {
		c.miss(scope)
		return nil, false
	}
	if !now.Before(e.ExpiresAt) {
		c.Delete(scope, query)
		c.miss(scope)
		return nil, false
	}
	c.hot.Set(key, e, time.Until(e.ExpiresAt))
	c.hit(scope)
	return e.Value, true
}

// Set stores value under scope+query for ttl (DefaultTTL when zero).
func (c *Cache) Set(scope, query string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := Key(scope, query)
	e := entry{ExpiresAt: c.clock.Now().Add(ttl), Value: value}
	c.hot.Set(key, e, ttl)
	if err := c.writeEntry(key, e); err != nil {
		// A write failure only costs a future cache miss.
		c.log.Warn("cache write failed", "scope", scope, "error", err)
	}
}

// Has reports whether a live entry exists for scope+query.
func (c *Cache) Has(scope, query string) bool {
	_, ok := c.Get(scope, query)
	return ok
}

// Delete removes the entry for scope+query if present.
func (c *Cache) Delete(scope, query string) {
	key := Key(scope, query)
	c.hot.Delete(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = os.Remove(c.path(key))
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.hot.DeleteAll()
	c.mu.Lock()
	defer c.mu.Unlock()
	names, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, de := range names {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, de.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", de.Name(), err)
		}
	}
	return nil
}

// Stats returns the number of entries on disk and their total size.
func (c *Cache) Stats() (entries int, bytes int64) {
	names, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, 0
	}
	for _, de := range names {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		entries++
		if info, err := de.Info(); err == nil {
			bytes += info.Size()
		}
	}
	return entries, bytes
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *Cache) readEntry(key string) (entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return entry{}, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return entry{}, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return e, nil
}

func (c *Cache) writeEntry(key string, e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(key))
}

func (c *Cache) hit(scope string) {
	if c.recorder != nil {
		c.recorder.CacheHit(scope)
	}
}

func (c *Cache) miss(scope string) {
	if c.recorder != nil {
		c.recorder.CacheMiss(scope)
	}
}
