// Package expect records state changes the engine is about to make so the
// echo notification those changes produce can be recognized and dropped.
//
// An expectation is keyed by (actorKey, pairKey) and holds the value the
// engine is writing. The first echo carrying the same value consumes it.
// An echo carrying a different value is a genuine external change and
// leaves the entry alone. Entries expire TTL after they are written, whether
// or not an echo arrived, which bounds how long a lost echo can suppress a
// real change.
package expect

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTTL is how long an expectation stays live.
const DefaultTTL = 30 * time.Second

// Clock supplies the current time. Tests inject a manual clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type entry struct {
	value     bool
	expiresAt time.Time
}

// actorEntries is the lazily created sub-map for one actor. dead is set
// when the sweeper unlinks an empty sub-map so a writer holding a stale
// pointer retries against the live one.
type actorEntries struct {
	mu      sync.Mutex
	entries map[string]entry
	dead    bool
}

// Cache is a concurrent per-actor expectation map. One Cache is used per
// side (game echoes and discord echoes are tracked separately).
//
// Thread-safety: all methods are safe for concurrent use. The top-level
// lock is held only to find or create an actor's sub-map; operations on
// different actors do not contend beyond that.
type Cache struct {
	name  string
	ttl   time.Duration
	clock Clock

	mu     sync.Mutex
	actors map[string]*actorEntries
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(clock Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New creates an empty cache. name is used in log lines ("game", "discord").
func New(name string, opts ...Option) *Cache {
	c := &Cache{
		name:   name,
		ttl:    DefaultTTL,
		clock:  systemClock{},
		actors: make(map[string]*actorEntries),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the cache label.
func (c *Cache) Name() string { return c.name }

// TTL returns the configured expectation lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) actor(actorKey string, create bool) *actorEntries {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.actors[actorKey]
	if a == nil && create {
		a = &actorEntries{entries: make(map[string]entry)}
		c.actors[actorKey] = a
	}
	return a
}

// Expect records that the engine is about to set (actorKey, pairKey) to
// value. A previous entry for the same key is replaced and its TTL restarts.
func (c *Cache) Expect(actorKey, pairKey string, value bool) {
	expiresAt := c.clock.Now().Add(c.ttl)
	for {
		a := c.actor(actorKey, true)
		a.mu.Lock()
		if a.dead {
			a.mu.Unlock()
			continue
		}
		a.entries[pairKey] = entry{value: value, expiresAt: expiresAt}
		a.mu.Unlock()
		return
	}
}

// ConsumeIfMatches reports whether a live expectation for (actorKey,
// pairKey) holds observed, deleting it if so. A non-matching entry is left
// in place. An expired entry is deleted and never matches.
func (c *Cache) ConsumeIfMatches(actorKey, pairKey string, observed bool) bool {
	a := c.actor(actorKey, false)
	if a == nil {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[pairKey]
	if !ok {
		return false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(a.entries, pairKey)
		return false
	}
	if e.value != observed {
		return false
	}
	delete(a.entries, pairKey)
	return true
}

// Rollback removes an expectation unconditionally. It is called when the
// mutation that created the entry failed.
func (c *Cache) Rollback(actorKey, pairKey string) {
	a := c.actor(actorKey, false)
	if a == nil {
		return
	}
	a.mu.Lock()
	delete(a.entries, pairKey)
	a.mu.Unlock()
}

// Peek returns the live expected value for (actorKey, pairKey), if any.
// It does not consume the entry.
func (c *Cache) Peek(actorKey, pairKey string) (value bool, ok bool) {
	a := c.actor(actorKey, false)
	if a == nil {
		return false, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	e, found := a.entries[pairKey]
	if !found || !c.clock.Now().Before(e.expiresAt) {
		return false, false
	}
	return e.value, true
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, a := range c.actors {
		a.mu.Lock()
		n += len(a.entries)
		a.mu.Unlock()
	}
	return n
}

// Sweep deletes expired entries and unlinks actors left empty.
// Returns the number of entries removed.
func (c *Cache) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, a := range c.actors {
		a.mu.Lock()
		for pk, e := range a.entries {
			if !now.Before(e.expiresAt) {
				delete(a.entries, pk)
				removed++
			}
		}
		if len(a.entries) == 0 {
			a.dead = true
			delete(c.actors, key)
		}
		a.mu.Unlock()
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				slog.Debug("expectation sweep", "cache", c.name, "expired", n)
			}
		}
	}
}
