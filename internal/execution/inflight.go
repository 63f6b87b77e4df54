package execution

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// ErrDuplicateInFlight 表示同一账户仍有一笔交易决策在处理中（或在 TTL 窗口内）。
// 同一账户同时只能有一笔未完成交易，否则两笔交易会争用同一个 nonce。
var ErrDuplicateInFlight = fmt.Errorf("duplicate in-flight")

// InFlightGuard 账户级 in-flight 守卫。
//
// 正常路径由调用方在交易结束后 Release；TTL 只兜底处理调用方崩溃未释放的情况，
// 应大于一笔交易的最长处理时间（交易 deadline）。
type InFlightGuard struct {
	ttl    time.Duration
	now    func() time.Time
	shards []inFlightShard
}

type inFlightShard struct {
	mu sync.Mutex
	m  map[string]time.Time // key -> expiresAt
}

// NewInFlightGuard 创建守卫
func NewInFlightGuard(ttl time.Duration, shardCount int) *InFlightGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if shardCount <= 0 {
		shardCount = 16
	}
	shards := make([]inFlightShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]time.Time)
	}
	return &InFlightGuard{ttl: ttl, now: time.Now, shards: shards}
}

// WithClock 替换时钟（测试用）
func (g *InFlightGuard) WithClock(now func() time.Time) *InFlightGuard {
	g.now = now
	return g
}

// TryAcquire 尝试占用账户。成功返回 nil，已被占用返回 ErrDuplicateInFlight。
func (g *InFlightGuard) TryAcquire(account string) error {
	if g == nil {
		return nil
	}
	key := strings.ToLower(account)
	if key == "" {
		return nil
	}
	now := g.now()
	sh := g.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	// 惰性清理本 shard 的过期项
	for k, exp := range sh.m {
		if !exp.After(now) {
			delete(sh.m, k)
		}
	}

	if exp, ok := sh.m[key]; ok && exp.After(now) {
		return ErrDuplicateInFlight
	}
	sh.m[key] = now.Add(g.ttl)
	return nil
}

// Release 释放账户
func (g *InFlightGuard) Release(account string) {
	key := strings.ToLower(account)
	if g == nil || key == "" {
		return
	}
	sh := g.shard(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
}

// Busy 账户当前是否被占用
func (g *InFlightGuard) Busy(account string) bool {
	key := strings.ToLower(account)
	if g == nil || key == "" {
		return false
	}
	sh := g.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	exp, ok := sh.m[key]
	return ok && exp.After(g.now())
}

func (g *InFlightGuard) shard(key string) *inFlightShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	idx := int(h.Sum32() % uint32(len(g.shards)))
	return &g.shards[idx]
}
