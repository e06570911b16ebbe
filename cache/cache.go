// Package cache 关联实体显示名称的进程内缓存
//
// 解析器以 "类型:主键" 为键缓存查找结果，渲染同一份历史时不重复回查模型仓储。
// 条目数超过上限时淘汰最久未使用的条目；TTL 从写入时刻计算，读取不会延长寿命，
// 关联实体改名后最多 TTL 时长即可反映出来。
package cache

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config 缓存配置
type Config struct {
	// Name 用于日志
	Name string
	// MaxSize 条目上限，0 表示不限制
	MaxSize int
	// TTL 写入后的存活时间，0 表示永不过期
	TTL time.Duration
	// Now 时钟，默认 time.Now
	Now func() time.Time
}

// Stats 缓存统计
type Stats struct {
	Hits      int64
	Misses    int64
	Loads     int64
	Evictions int64
	Expires   int64
	Size      int
}

type entry[K ~string, V any] struct {
	key       K
	value     V
	writtenAt time.Time
	elem      *list.Element
}

// Cache LRU + TTL 缓存，并发安全
type Cache[K ~string, V any] struct {
	config Config

	mu    sync.Mutex
	items map[K]*entry[K, V]
	order *list.List // 最近使用的在前
	stats Stats

	flights singleflight.Group
}

// New 创建缓存
func New[K ~string, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Cache[K, V]{
		config: config,
		items:  make(map[K]*entry[K, V]),
		order:  list.New(),
	}
}

// Name 缓存名称
func (c *Cache[K, V]) Name() string { return c.config.Name }

// Get 读取未过期的值
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(key, true)
}

// lookupLocked count 为 false 时不计入命中统计（加载前的二次检查）
func (c *Cache[K, V]) lookupLocked(key K, count bool) (V, bool) {
	var zero V
	e, ok := c.items[key]
	if ok && c.expired(e) {
		c.removeLocked(e)
		c.stats.Expires++
		ok = false
	}
	if !ok {
		if count {
			c.stats.Misses++
		}
		return zero, false
	}
	c.order.MoveToFront(e.elem)
	if count {
		c.stats.Hits++
	}
	return e.value, true
}

// Set 写入值，已存在的键刷新写入时间
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.config.Now()
	if e, ok := c.items[key]; ok {
		e.value = value
		e.writtenAt = now
		c.order.MoveToFront(e.elem)
		return
	}
	if c.config.MaxSize > 0 && len(c.items) >= c.config.MaxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest.Value.(*entry[K, V]))
			c.stats.Evictions++
		}
	}
	e := &entry[K, V]{key: key, value: value, writtenAt: now}
	e.elem = c.order.PushFront(e)
	c.items[key] = e
}

// GetOrLoad 命中则返回缓存值，否则调用 load 并缓存结果；load 出错时不缓存
//
// 同一键的并发未命中只会执行一次 load，其余调用共享结果。
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.flights.Do(string(key), func() (any, error) {
		c.mu.Lock()
		cached, ok := c.lookupLocked(key, false)
		c.mu.Unlock()
		if ok {
			return cached, nil
		}

		loaded, err := load()
		if err != nil {
			return loaded, err
		}
		c.Set(key, loaded)
		c.mu.Lock()
		c.stats.Loads++
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Delete 删除条目，返回是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if ok {
		c.removeLocked(e)
	}
	return ok
}

// Purge 清空全部条目，统计保留
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*entry[K, V])
	c.order.Init()
}

// Len 当前条目数（包括尚未被访问到的过期条目）
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats 统计副本
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return c.config.TTL > 0 && c.config.Now().Sub(e.writtenAt) >= c.config.TTL
}

func (c *Cache[K, V]) removeLocked(e *entry[K, V]) {
	c.order.Remove(e.elem)
	delete(c.items, e.key)
}
