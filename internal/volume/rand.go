package volume

import (
	"math/rand"
	"sync"
	"time"
)

// Rand 调度器唯一的随机源：规模比例、时间抖动、队列洗牌、账户挑选都从这里取。
// *rand.Rand 直接满足该接口，测试可注入固定种子。
type Rand interface {
	Float64() float64
	Intn(n int) int
	Int63n(n int64) int64
	Shuffle(n int, swap func(i, j int))
}

// NewRand 创建带种子的随机源；seed 为 0 时使用当前时间
func NewRand(seed int64) Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func uniformFloat(r Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Float64()*(hi-lo)
}

// uniformDuration 在 [lo, hi] 内均匀取值（闭区间）
func uniformDuration(r Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r.Int63n(int64(hi-lo)+1))
}

// lockedRand 让多个 goroutine 共享同一个随机源；*rand.Rand 本身不是并发安全的
type lockedRand struct {
	mu sync.Mutex
	r  Rand
}

func newLockedRand(r Rand) *lockedRand {
	if lr, ok := r.(*lockedRand); ok {
		return lr
	}
	return &lockedRand{r: r}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Int63n(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Int63n(n)
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}
