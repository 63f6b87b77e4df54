package syncgroup

import (
	"sync"
)

// SyncGroup 包装 sync.WaitGroup，自动成对调用 Add/Done。
// 先 Add 注册函数，再 Run 一次性启动，最后 Wait。
type SyncGroup struct {
	wg sync.WaitGroup

	mu  sync.Mutex
	fns []func()
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 注册一个待启动的函数
func (g *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.fns = append(g.fns, fn)
	g.mu.Unlock()
}

// Run 启动所有已注册函数，并清空注册列表
func (g *SyncGroup) Run() {
	g.mu.Lock()
	fns := g.fns
	g.fns = nil
	g.mu.Unlock()

	for _, fn := range fns {
		g.wg.Add(1)
		go func(f func()) {
			defer g.wg.Done()
			f()
		}(fn)
	}
}

// Wait 等待所有已启动的函数返回
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}
