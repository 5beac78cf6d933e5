// ABOUTME: In-memory take-once cache with TTL expiry and background sweep
// ABOUTME: Default ceremony store for single-process deployments

package challenge

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryCache is a thread-safe in-process Cache. Entries expire after the
// configured TTL; a background goroutine sweeps out expired entries so
// abandoned ceremonies do not accumulate.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	done    chan struct{}
	closed  bool
}

// NewMemoryCache creates a cache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Put stores ceremony state under key, replacing any previous entry.
func (c *MemoryCache) Put(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		data:    data,
		expires: time.Now().Add(c.ttl),
	}
	return nil
}

// Take removes and returns the entry for key. A second Take on the same
// key, or a Take after expiry, fails with ErrNoChallenge.
func (c *MemoryCache) Take(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, ErrNoChallenge
	}
	delete(c.entries, key)

	if time.Now().After(entry.expires) {
		return nil, ErrNoChallenge
	}
	return entry.data, nil
}

// sweep runs in a background goroutine, removing expired entries.
func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runSweep()
		case <-c.done:
			return
		}
	}
}

func (c *MemoryCache) runSweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
	return nil
}
