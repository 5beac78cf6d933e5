// ABOUTME: Tests for the in-memory take-once challenge cache
// ABOUTME: Covers consume-once semantics, expiry, and concurrent takes

package challenge

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryCache_PutAndTake(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	if err := c.Put(ctx, "key-1", []byte("state")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, err := c.Take(ctx, "key-1")
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if !bytes.Equal(data, []byte("state")) {
		t.Errorf("Take = %q, want %q", data, "state")
	}

	// Second take fails: the entry is gone
	if _, err := c.Take(ctx, "key-1"); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("second Take error = %v, want ErrNoChallenge", err)
	}
}

func TestMemoryCache_Expired(t *testing.T) {
	c := NewMemoryCache(-time.Second)
	defer c.Close()
	ctx := context.Background()

	if err := c.Put(ctx, "key-1", []byte("state")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := c.Take(ctx, "key-1"); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("Take error = %v, want ErrNoChallenge", err)
	}
}

func TestMemoryCache_UnknownKey(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()

	if _, err := c.Take(context.Background(), "nope"); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("Take error = %v, want ErrNoChallenge", err)
	}
}

func TestMemoryCache_ConcurrentTake(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	if err := c.Put(ctx, "key-1", []byte("state")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Take(ctx, "key-1"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("%d goroutines took the challenge, want exactly 1", wins.Load())
	}
}

func TestMemoryCache_RunSweep(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	if err := c.Put(ctx, "key-1", []byte("state")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	c.runSweep()

	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("sweep left %d entries, want 0", n)
	}
}

func TestMemoryCache_CloseTwice(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
