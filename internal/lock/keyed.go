package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Keyed is an in-process mutex per key. Entries are reference counted and
// removed once the last holder or waiter leaves.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyed returns an empty keyed mutex.
func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*keyedEntry)}
}

// WithLock runs fn while holding the mutex for key. The ttl is ignored; it
// exists so Keyed satisfies Guard.
func (k *Keyed) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	entry := k.acquireRef(key)
	defer k.releaseRef(key, entry)

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-entry.ch }()
	return fn(ctx)
}

func (k *Keyed) acquireRef(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (k *Keyed) releaseRef(key string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
}

// Size reports how many keys are currently tracked.
func (k *Keyed) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Chain acquires each guard in order and runs fn inside the innermost one.
type Chain []Guard

// WithLock implements Guard.
func (c Chain) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if len(c) == 0 {
		return fn(ctx)
	}
	head, rest := c[0], c[1:]
	if head == nil {
		return rest.WithLock(ctx, key, ttl, fn)
	}
	return head.WithLock(ctx, key, ttl, func(ctx context.Context) error {
		return rest.WithLock(ctx, key, ttl, fn)
	})
}
