package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestCache_GetSetDelete(t *testing.T) {
	c := New[string, string](Config{Name: "names", MaxSize: 10})
	assert.Equal(t, "names", c.Name())

	c.Set("user:1", "Ada")
	v, found := c.Get("user:1")
	require.True(t, found)
	assert.Equal(t, "Ada", v)

	_, found = c.Get("user:2")
	assert.False(t, found)

	assert.True(t, c.Delete("user:1"))
	assert.False(t, c.Delete("user:1"))
	assert.Equal(t, 0, c.Len())

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
}

// 最久未使用的条目先被淘汰
func TestCache_LRUEviction(t *testing.T) {
	c := New[string, string](Config{MaxSize: 2})

	c.Set("category:1", "one")
	c.Set("category:2", "two")
	_, _ = c.Get("category:1")
	c.Set("category:3", "three")

	_, found := c.Get("category:2")
	assert.False(t, found)
	_, found = c.Get("category:1")
	assert.True(t, found)
	assert.Equal(t, int64(1), c.Stats().Evictions)
	assert.Equal(t, 2, c.Len())
}

// 读取不会延长寿命
func TestCache_TTLFromWrite(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, string](Config{TTL: time.Minute, Now: clock.Now})

	c.Set("k", "v")
	clock.Advance(40 * time.Second)
	_, found := c.Get("k")
	require.True(t, found)

	clock.Advance(30 * time.Second)
	_, found = c.Get("k")
	assert.False(t, found)
	assert.Equal(t, int64(1), c.Stats().Expires)
	assert.Equal(t, 0, c.Len())
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[string, string](Config{MaxSize: 10})
	calls := 0
	load := func() (string, error) {
		calls++
		return "Grace", nil
	}

	v, err := c.GetOrLoad("user:7", load)
	require.NoError(t, err)
	assert.Equal(t, "Grace", v)

	v, err = c.GetOrLoad("user:7", load)
	require.NoError(t, err)
	assert.Equal(t, "Grace", v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), c.Stats().Loads)

	t.Run("加载失败不缓存", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := c.GetOrLoad("user:8", func() (string, error) { return "", boom })
		assert.ErrorIs(t, err, boom)
		_, found := c.Get("user:8")
		assert.False(t, found)
	})
}

func TestCache_GetOrLoadCoalesces(t *testing.T) {
	c := New[string, string](Config{})
	var loads atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad("category:7", func() (string, error) {
				loads.Add(1)
				<-release
				return "Books", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "Books", v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[string, int](Config{MaxSize: 50})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%80)
				c.Set(key, g)
				_, _ = c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

func TestCache_Purge(t *testing.T) {
	c := New[string, int](Config{MaxSize: 4})
	c.Set("a", 1)
	_, _ = c.Get("a")
	c.Purge()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(1), c.Stats().Hits)
	_, found := c.Get("a")
	assert.False(t, found)
}
