// ABOUTME: Tests for the event ID dedupe cache
// ABOUTME: Uses a controllable clock for TTL expiry, eviction and sweep behavior

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration, size int) (*Cache, *fakeClock) {
	clock := newFakeClock()
	return New(Options{TTL: ttl, MaxSize: size, Now: clock.Now}), clock
}

func TestCache_CheckAndMark(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)
	defer c.Close()

	assert.False(t, c.CheckAndMark("ev-1"), "first delivery is new")
	assert.True(t, c.CheckAndMark("ev-1"), "second delivery is a duplicate")
	assert.False(t, c.CheckAndMark("ev-2"))
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)
	defer c.Close()

	c.Mark("ev-1")
	assert.True(t, c.Seen("ev-1"))

	clock.Advance(59 * time.Second)
	assert.True(t, c.Seen("ev-1"))

	clock.Advance(time.Second)
	assert.False(t, c.Seen("ev-1"))
	assert.False(t, c.CheckAndMark("ev-1"), "expired key counts as new")
}

func TestCache_MarkRefreshes(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)
	defer c.Close()

	c.Mark("ev-1")
	clock.Advance(40 * time.Second)
	c.Mark("ev-1")
	clock.Advance(40 * time.Second)

	assert.True(t, c.Seen("ev-1"))
}

func TestCache_EvictsOldest(t *testing.T) {
	c, clock := newTestCache(time.Hour, 3)
	defer c.Close()

	for i := 1; i <= 3; i++ {
		c.Mark(fmt.Sprintf("ev-%d", i))
		clock.Advance(time.Second)
	}
	c.Mark("ev-1") // refresh moves it to the back
	c.Mark("ev-4")

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("ev-2"))
	assert.True(t, c.Seen("ev-1"))
	assert.True(t, c.Seen("ev-3"))
	assert.True(t, c.Seen("ev-4"))
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)
	defer c.Close()

	c.Mark("old")
	clock.Advance(30 * time.Second)
	c.Mark("new")
	clock.Advance(45 * time.Second)

	c.Sweep()

	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("new"))
}

func TestCache_Forget(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)
	defer c.Close()

	c.Mark("ev-1")
	c.Forget("ev-1")
	c.Forget("never-marked")

	assert.False(t, c.Seen("ev-1"))
	assert.Equal(t, 0, c.Len())
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxSize: 1})
	c.Close()
	c.Close()
}

func TestCache_ConcurrentCheckAndMark(t *testing.T) {
	c, _ := newTestCache(time.Minute, 100)
	defer c.Close()

	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.CheckAndMark("same-event") {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), firsts.Load())
}
