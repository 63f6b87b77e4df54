package volume

import (
	"math/big"
	"sync"
	"time"

	"github.com/betbot/volbot/internal/execution"
	"github.com/betbot/volbot/pkg/cache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrNotEligible 账户或全局冷却尚未结束
var ErrNotEligible = errors.New("not eligible")

// AccountState 单个账户的调度状态，只在进程生命周期内存在，不落盘。
type AccountState struct {
	// EntryTime 最近一次买入时间；零值表示本会话内没有入场记录
	EntryTime time.Time
	// EntryPrice 参考入场价（权重 0.5 的移动平均，不是真实成本价）
	EntryPrice *float64

	MinHold time.Duration
	Timeout time.Duration

	BuyStreak  int
	SellStreak int

	NextEligible time.Time

	// SellCountSinceBuy 自上次买入以来的强制卖出次数
	SellCountSinceBuy int

	LastSellProceeds *big.Int
	LastSellTime     time.Time
}

// HasEntry 本会话内是否记录过入场
func (s AccountState) HasEntry() bool {
	return !s.EntryTime.IsZero()
}

// Timing 随机窗口与冷却配置
type Timing struct {
	HoldLo, HoldHi       time.Duration
	TimeoutLo, TimeoutHi time.Duration
	GapLo, GapHi         time.Duration
	GlobalCooldown       time.Duration
}

// SchedulerContext 调度器拥有的全部可变状态：账户状态表、全局冷却、动作队列、价格缓存。
// 所有读写都经过 mu，多个周期并发时资格判断与占用是原子的。
type SchedulerContext struct {
	mu         sync.Mutex
	states     map[common.Address]*AccountState
	order      []common.Address
	globalNext time.Time

	timing   Timing
	rnd      Rand
	now      func() time.Time
	queue    *ActionQueue
	prices   *cache.PriceCache
	inflight *execution.InFlightGuard
}

// NewSchedulerContext 为每个账户生成初始状态（持有/超时窗口各自随机）
func NewSchedulerContext(accounts []common.Address, timing Timing, rnd Rand, prices *cache.PriceCache, inflightTTL time.Duration) *SchedulerContext {
	lr := newLockedRand(rnd)
	sc := &SchedulerContext{
		states:   make(map[common.Address]*AccountState, len(accounts)),
		order:    append([]common.Address(nil), accounts...),
		timing:   timing,
		rnd:      lr,
		now:      time.Now,
		queue:    NewActionQueue(lr),
		prices:   prices,
		inflight: execution.NewInFlightGuard(inflightTTL, 16),
	}
	for _, a := range accounts {
		st := &AccountState{}
		sc.rerollWindows(st)
		sc.states[a] = st
	}
	return sc
}

// WithClock 替换时钟（测试用）
func (sc *SchedulerContext) WithClock(now func() time.Time) *SchedulerContext {
	sc.now = now
	sc.inflight.WithClock(now)
	return sc
}

// Now 当前时间
func (sc *SchedulerContext) Now() time.Time {
	return sc.now()
}

// Accounts 参与调度的账户，顺序固定
func (sc *SchedulerContext) Accounts() []common.Address {
	return sc.order
}

// Prices 参考价缓存
func (sc *SchedulerContext) Prices() *cache.PriceCache {
	return sc.prices
}

// Queue 共享动作队列（仅队列模式使用）
func (sc *SchedulerContext) Queue() *ActionQueue {
	return sc.queue
}

// State 返回账户状态快照
func (sc *SchedulerContext) State(a common.Address) (AccountState, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	st, ok := sc.states[a]
	if !ok {
		return AccountState{}, false
	}
	return *st, true
}

// GlobalNext 全局冷却结束时间
func (sc *SchedulerContext) GlobalNext() time.Time {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.globalNext
}

// CanAct now ≥ 账户闸门 且 now ≥ 全局闸门，且账户没有进行中的交易
func (sc *SchedulerContext) CanAct(a common.Address) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.canActLocked(a, sc.now()) && !sc.inflight.Busy(a.Hex())
}

func (sc *SchedulerContext) canActLocked(a common.Address, now time.Time) bool {
	st, ok := sc.states[a]
	if !ok {
		return false
	}
	return !now.Before(st.NextEligible) && !now.Before(sc.globalNext)
}

// Begin 原子地检查资格并占用账户。返回的 release 必须在交易结束后调用。
func (sc *SchedulerContext) Begin(a common.Address) (release func(), err error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.canActLocked(a, sc.now()) {
		return nil, ErrNotEligible
	}
	if err := sc.inflight.TryAcquire(a.Hex()); err != nil {
		return nil, err
	}
	return func() { sc.inflight.Release(a.Hex()) }, nil
}

// CommitBuy 记录一次成功买入。price 仅在非陈旧时参与入场价更新。
func (sc *SchedulerContext) CommitBuy(a common.Address, price cache.Price, havePrice bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	st, ok := sc.states[a]
	if !ok {
		return
	}
	now := sc.now()
	if havePrice && !price.Stale && price.USD > 0 {
		p := price.USD
		if st.EntryPrice != nil {
			p = (*st.EntryPrice + price.USD) / 2
		}
		st.EntryPrice = &p
	}
	st.EntryTime = now
	st.BuyStreak++
	st.SellStreak = 0
	st.SellCountSinceBuy = 0
	sc.afterActionLocked(st, now)
}

// CommitSell 记录一次成功卖出；forced 表示无账户可买时的强制卖出。
// 入场时间保留，下一波卖出仍以最近一次买入计时。
func (sc *SchedulerContext) CommitSell(a common.Address, proceeds *big.Int, forced bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	st, ok := sc.states[a]
	if !ok {
		return
	}
	now := sc.now()
	st.SellStreak++
	if st.BuyStreak > 0 {
		st.BuyStreak--
	}
	if forced {
		st.SellCountSinceBuy++
	}
	if proceeds != nil {
		st.LastSellProceeds = new(big.Int).Set(proceeds)
	}
	st.LastSellTime = now
	sc.afterActionLocked(st, now)
}

// afterActionLocked 成功动作后推进两道闸门并重新随机持有/超时窗口
func (sc *SchedulerContext) afterActionLocked(st *AccountState, now time.Time) {
	st.NextEligible = now.Add(uniformDuration(sc.rnd, sc.timing.GapLo, sc.timing.GapHi))
	sc.globalNext = now.Add(sc.timing.GlobalCooldown)
	sc.rerollWindows(st)
}

func (sc *SchedulerContext) rerollWindows(st *AccountState) {
	st.MinHold = uniformDuration(sc.rnd, sc.timing.HoldLo, sc.timing.HoldHi)
	st.Timeout = uniformDuration(sc.rnd, sc.timing.TimeoutLo, sc.timing.TimeoutHi)
}
