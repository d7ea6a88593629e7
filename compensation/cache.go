package compensation

import (
	"sync"

	"github.com/warp/compensation-engine/generic"
)

// =============================================================================
// CACHE - Memoized results keyed by (instructor, period)
// =============================================================================
//
// There is no expiry. Entries stay valid until a mutation that can change an
// instructor's entitlement invalidates them, which is why every mutation path
// goes through Engine.RecordReassignment or an explicit Invalidate call.
// Passing days change nothing in the stores but do change which absences are
// chargeable, so the key carries the last chargeable date.
// Concurrent misses for one key may both compute; the last Put wins.

// CacheKey identifies one computation.
type CacheKey struct {
	Instructor InstructorID
	Period     generic.Period
	AsOf       generic.Date // min(period end, today)
}

// Cache is the memoization contract the engine depends on.
type Cache interface {
	Get(key CacheKey) (*Result, bool)
	Put(key CacheKey, result *Result)

	// InvalidateInstructor evicts every entry of id and returns how many.
	InvalidateInstructor(id InstructorID) int

	// InvalidateRange evicts every entry whose period overlaps period.
	InvalidateRange(period generic.Period) int

	InvalidateAll() int
}

// MemoryCache is a mutex-guarded map. Used as the shared tier of several
// TieredCaches, it also forwards every invalidation to their local tiers.
type MemoryCache struct {
	mu        sync.RWMutex
	entries   map[CacheKey]*Result
	followers []Cache
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[CacheKey]*Result)}
}

func (c *MemoryCache) Get(key CacheKey) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *MemoryCache) Put(key CacheKey, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = result
}

func (c *MemoryCache) InvalidateInstructor(id InstructorID) int {
	n := c.evict(func(k CacheKey) bool { return k.Instructor == id })
	for _, f := range c.followerList() {
		n += f.InvalidateInstructor(id)
	}
	return n
}

func (c *MemoryCache) InvalidateRange(period generic.Period) int {
	n := c.evict(func(k CacheKey) bool { return k.Period.Overlaps(period) })
	for _, f := range c.followerList() {
		n += f.InvalidateRange(period)
	}
	return n
}

func (c *MemoryCache) InvalidateAll() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[CacheKey]*Result)
	c.mu.Unlock()

	for _, f := range c.followerList() {
		n += f.InvalidateAll()
	}
	return n
}

// Follow registers a local tier that loses its entries whenever c loses
// them. Followers must not follow c back.
func (c *MemoryCache) Follow(local Cache) {
	if local == nil || local == Cache(c) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.followers = append(c.followers, local)
}

func (c *MemoryCache) followerList() []Cache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Cache(nil), c.followers...)
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) evict(match func(CacheKey) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// TieredCache layers an instance cache over a process-wide one. Reads try
// the local tier first and promote shared hits; writes and invalidations
// reach both tiers. A shared tier that accepts followers (MemoryCache does)
// also evicts from the local tiers of every other engine built on it, so an
// invalidation through one engine is seen by all of them.
type TieredCache struct {
	local  Cache
	shared Cache
}

// NewTieredCache composes local and shared. A nil shared tier is allowed.
func NewTieredCache(local, shared Cache) *TieredCache {
	if local == nil {
		local = NewMemoryCache()
	}
	if f, ok := shared.(follower); ok {
		f.Follow(local)
	}
	return &TieredCache{local: local, shared: shared}
}

type follower interface {
	Follow(local Cache)
}

func (t *TieredCache) Get(key CacheKey) (*Result, bool) {
	if r, ok := t.local.Get(key); ok {
		return r, true
	}
	if t.shared == nil {
		return nil, false
	}
	r, ok := t.shared.Get(key)
	if ok {
		t.local.Put(key, r)
	}
	return r, ok
}

func (t *TieredCache) Put(key CacheKey, result *Result) {
	t.local.Put(key, result)
	if t.shared != nil {
		t.shared.Put(key, result)
	}
}

func (t *TieredCache) InvalidateInstructor(id InstructorID) int {
	n := t.local.InvalidateInstructor(id)
	if t.shared != nil {
		n += t.shared.InvalidateInstructor(id)
	}
	return n
}

func (t *TieredCache) InvalidateRange(period generic.Period) int {
	n := t.local.InvalidateRange(period)
	if t.shared != nil {
		n += t.shared.InvalidateRange(period)
	}
	return n
}

func (t *TieredCache) InvalidateAll() int {
	n := t.local.InvalidateAll()
	if t.shared != nil {
		n += t.shared.InvalidateAll()
	}
	return n
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(CacheKey) (*Result, bool)          { return nil, false }
func (NopCache) Put(CacheKey, *Result)                 {}
func (NopCache) InvalidateInstructor(InstructorID) int { return 0 }
func (NopCache) InvalidateRange(generic.Period) int    { return 0 }
func (NopCache) InvalidateAll() int                    { return 0 }
