package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "shutdown")

// Handler 关闭处理函数
type Handler func(ctx context.Context)

type step struct {
	name    string
	handler Handler
}

// Manager 按注册顺序执行关闭步骤。
// 前一步未完成时不会开始下一步；ctx 到期后剩余步骤直接跳过。
type Manager struct {
	mu    sync.Mutex
	steps []step
}

// NewManager 创建关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册一个关闭步骤
func (m *Manager) OnShutdown(name string, handler Handler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step{name: name, handler: handler})
}

// Shutdown 顺序执行所有步骤（阻塞）。ctx 应带超时。
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	steps := append([]step(nil), m.steps...)
	m.mu.Unlock()

	if len(steps) == 0 {
		log.Info("没有注册的关闭步骤")
		return
	}
	log.Infof("开始优雅关闭，共 %d 步", len(steps))

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			log.Warnf("关闭超时，跳过剩余 %d 步: %v", len(steps)-i, err)
			return
		}
		start := time.Now()
		done := make(chan struct{})
		go func(h Handler) {
			defer close(done)
			h(ctx)
		}(s.handler)

		select {
		case <-done:
			log.Infof("[%d/%d] %s 完成 (%s)", i+1, len(steps), s.name, time.Since(start).Round(time.Millisecond))
		case <-ctx.Done():
			log.Warnf("[%d/%d] %s 超时: %v", i+1, len(steps), s.name, ctx.Err())
			return
		}
	}
	log.Info("所有关闭步骤已完成")
}
