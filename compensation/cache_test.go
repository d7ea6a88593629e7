package compensation_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/generic"
)

func cacheKey(id compensation.InstructorID, p generic.Period) compensation.CacheKey {
	return compensation.CacheKey{Instructor: id, Period: p}
}

func TestMemoryCache_Invalidation(t *testing.T) {
	c := compensation.NewMemoryCache()
	may := generic.MonthPeriod(generic.NewDate(2025, time.May, 1))
	firstHalf := generic.Period{Start: apr(1), End: apr(15)}

	c.Put(cacheKey(insA, april()), &compensation.Result{})
	c.Put(cacheKey(insA, may), &compensation.Result{})
	c.Put(cacheKey(insB, firstHalf), &compensation.Result{})
	c.Put(cacheKey(insC, may), &compensation.Result{})
	require.Equal(t, 4, c.Len())

	// GIVEN: Entries for A (April, May), B (first half of April), C (May)
	// WHEN: Invalidating a range covering Apr 10 only
	// THEN: Every entry whose period includes Apr 10 goes, nothing else

	assert.Equal(t, 2, c.InvalidateRange(generic.Period{Start: apr(10), End: apr(10)}))
	_, ok := c.Get(cacheKey(insA, april()))
	assert.False(t, ok)
	_, ok = c.Get(cacheKey(insA, may))
	assert.True(t, ok)

	assert.Equal(t, 1, c.InvalidateInstructor(insA))
	assert.Equal(t, 0, c.InvalidateInstructor(insA))
	assert.Equal(t, 1, c.InvalidateAll())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := compensation.NewMemoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Put(cacheKey(insA, april()), &compensation.Result{StudentCount: i})
			c.Get(cacheKey(insA, april()))
			if i%10 == 0 {
				c.InvalidateInstructor(insA)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 1)
}

func TestTieredCache_PromotesSharedHits(t *testing.T) {
	local, shared := compensation.NewMemoryCache(), compensation.NewMemoryCache()
	tiered := compensation.NewTieredCache(local, shared)
	r := &compensation.Result{InstructorID: insA}

	shared.Put(cacheKey(insA, april()), r)

	got, ok := tiered.Get(cacheKey(insA, april()))
	require.True(t, ok)
	assert.Same(t, r, got)
	assert.Equal(t, 1, local.Len(), "shared hit is copied into the local tier")

	assert.Equal(t, 2, tiered.InvalidateInstructor(insA), "one entry per tier")
}

func TestTieredCache_SharedInvalidationReachesEveryLocalTier(t *testing.T) {
	shared := compensation.NewMemoryCache()
	localA, localB := compensation.NewMemoryCache(), compensation.NewMemoryCache()
	first := compensation.NewTieredCache(localA, shared)
	second := compensation.NewTieredCache(localB, shared)

	first.Put(cacheKey(insA, april()), &compensation.Result{})
	_, ok := second.Get(cacheKey(insA, april()))
	require.True(t, ok)
	require.Equal(t, 1, localB.Len())

	// GIVEN: The entry sits in both local tiers and the shared tier
	// WHEN: Invalidating through the first cache only
	// THEN: The second cache's local tier is emptied as well

	assert.Equal(t, 3, first.InvalidateInstructor(insA))
	_, ok = second.Get(cacheKey(insA, april()))
	assert.False(t, ok)

	second.Put(cacheKey(insB, april()), &compensation.Result{})
	first.InvalidateRange(generic.Period{Start: apr(3), End: apr(3)})
	assert.Equal(t, 0, localB.Len())

	second.Put(cacheKey(insB, april()), &compensation.Result{})
	first.InvalidateAll()
	assert.Equal(t, 0, localA.Len()+localB.Len()+shared.Len())
}

func TestTieredCache_WithoutSharedTier(t *testing.T) {
	tiered := compensation.NewTieredCache(nil, nil)
	tiered.Put(cacheKey(insA, april()), &compensation.Result{})

	_, ok := tiered.Get(cacheKey(insA, april()))
	assert.True(t, ok)
	_, ok = tiered.Get(cacheKey(insB, april()))
	assert.False(t, ok)
	assert.Equal(t, 1, tiered.InvalidateAll())
}

func TestNopCache(t *testing.T) {
	var c compensation.Cache = compensation.NopCache{}
	c.Put(cacheKey(insA, april()), &compensation.Result{})
	_, ok := c.Get(cacheKey(insA, april()))
	assert.False(t, ok)
}
