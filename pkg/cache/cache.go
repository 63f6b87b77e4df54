package cache

import (
	"context"
	"sync"
	"time"
)

// Cache 通用缓存接口
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Size() int
}

// InMemoryCache 内存缓存实现（过期项在写入时惰性清理）
type InMemoryCache[K comparable, V any] struct {
	items      map[K]*cacheItem[V]
	mu         sync.RWMutex
	defaultTTL time.Duration
	now        func() time.Time
}

// cacheItem 缓存项
type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// NewInMemoryCache 创建新的内存缓存
func NewInMemoryCache[K comparable, V any](defaultTTL time.Duration) *InMemoryCache[K, V] {
	return &InMemoryCache[K, V]{
		items:      make(map[K]*cacheItem[V]),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// WithClock 替换时钟（测试用）
func (c *InMemoryCache[K, V]) WithClock(now func() time.Time) *InMemoryCache[K, V] {
	c.now = now
	return c
}

// Get 获取缓存值
func (c *InMemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || !c.now().Before(item.expiresAt) {
		var zero V
		return zero, false
	}
	return item.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认 TTL
func (c *InMemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	for k, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, k)
		}
	}
	c.items[key] = &cacheItem[V]{
		value:     value,
		expiresAt: now.Add(ttl),
	}
}

// Delete 删除缓存项
func (c *InMemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Size 获取缓存大小
func (c *InMemoryCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// PriceFetcher 拉取一次外部参考价
type PriceFetcher func(ctx context.Context) (float64, error)

// Price 参考价快照
type Price struct {
	USD       float64
	FetchedAt time.Time
	Stale     bool // 本次拉取失败，返回的是上一次成功的值
}

// PriceCache 单资产参考价缓存。
// TTL 内的重复读取直接返回上次成功的值，不触发外部调用；
// 拉取失败时退回上次成功的值（标记 Stale）。
// 并发下可能重复拉取一次，结果幂等。
type PriceCache struct {
	fetch PriceFetcher
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	value     float64
	fetchedAt time.Time
	has       bool
}

// NewPriceCache 创建价格缓存
func NewPriceCache(fetch PriceFetcher, ttl time.Duration) *PriceCache {
	return &PriceCache{fetch: fetch, ttl: ttl, now: time.Now}
}

// WithClock 替换时钟（测试用）
func (pc *PriceCache) WithClock(now func() time.Time) *PriceCache {
	pc.now = now
	return pc
}

// Get 获取参考价；ok=false 表示从未成功拉取过
func (pc *PriceCache) Get(ctx context.Context) (Price, bool) {
	now := pc.now()

	pc.mu.Lock()
	if pc.has && now.Sub(pc.fetchedAt) <= pc.ttl {
		p := Price{USD: pc.value, FetchedAt: pc.fetchedAt}
		pc.mu.Unlock()
		return p, true
	}
	pc.mu.Unlock()

	v, err := pc.fetch(ctx)

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err != nil || v <= 0 {
		if !pc.has {
			return Price{}, false
		}
		return Price{USD: pc.value, FetchedAt: pc.fetchedAt, Stale: true}, true
	}
	pc.value = v
	pc.fetchedAt = now
	pc.has = true
	return Price{USD: v, FetchedAt: now}, true
}
