package syncgroup

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncGroup_RunAndWait(t *testing.T) {
	var n int32
	g := NewSyncGroup()
	for i := 0; i < 5; i++ {
		g.Add(func() { atomic.AddInt32(&n, 1) })
	}
	g.Add(nil)
	g.Run()
	g.Wait()
	assert.Equal(t, int32(5), atomic.LoadInt32(&n))

	// 已启动的函数不会被再次运行
	g.Run()
	g.Wait()
	assert.Equal(t, int32(5), atomic.LoadInt32(&n))
}
