package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// cacheEntry holds one encoded response. Responses are stored encoded so a
// hit always hands the caller a private copy.
type cacheEntry struct {
	body      []byte
	expiresAt time.Time
}

// resultCache is a TTL cache of analysis responses keyed by request digest.
// Analysis is deterministic apart from ids and timestamps, so identical
// requests can share a result until the pattern catalog changes.
type resultCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	gen     uint64 // bumped by purge
	ttl     time.Duration
	now     func() time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// requestKey is the hex SHA-256 of the request's JSON encoding.
func requestKey(req *tm.Request) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (c *resultCache) get(key string) (*tm.Response, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	var resp tm.Response
	if err := json.Unmarshal(e.body, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

// generation identifies the current catalog epoch. Capture it before an
// analysis reads the catalog and pass it to set.
func (c *resultCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// set stores resp unless a purge happened since gen was captured.
func (c *resultCache) set(key string, gen uint64, resp *tm.Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	c.entries[key] = &cacheEntry{body: b, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// purge drops every entry and starts a new generation.
func (c *resultCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.gen++
}

// evict removes expired entries and returns how many were dropped.
func (c *resultCache) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *resultCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
