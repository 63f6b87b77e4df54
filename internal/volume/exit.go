package volume

import (
	"time"

	"github.com/betbot/volbot/pkg/cache"
)

// ExitReason 卖出触发原因
type ExitReason string

const (
	ExitNone    ExitReason = ""
	ExitProfit  ExitReason = "profit_target"
	ExitTimeout ExitReason = "timeout"
	ExitQueue   ExitReason = "queue"
	ExitForced  ExitReason = "forced"
)

// HoldElapsed 最短持有期是否已过；没有入场记录的账户视为已满足
func HoldElapsed(st AccountState, now time.Time) bool {
	if !st.HasEntry() {
		return true
	}
	return now.Sub(st.EntryTime) >= st.MinHold
}

// ExitDecision 在持有期已满足的前提下判断是否卖出。
// 止盈：价格 ≥ 入场价 × profitTarget（volumeMode 下关闭）；超时：持有时长 ≥ Timeout。
// 陈旧价格同样参与止盈判断，与缓存退回上次成功值的语义一致。
func ExitDecision(st AccountState, now time.Time, price cache.Price, havePrice bool, profitTarget float64, volumeMode bool) ExitReason {
	if !HoldElapsed(st, now) {
		return ExitNone
	}
	if !volumeMode && havePrice && st.EntryPrice != nil && price.USD >= *st.EntryPrice*profitTarget {
		return ExitProfit
	}
	if st.HasEntry() && now.Sub(st.EntryTime) >= st.Timeout {
		return ExitTimeout
	}
	return ExitNone
}

// MustBuy 连续卖出两次且连续买入不足两次时，强制下一次动作为买入
func MustBuy(st AccountState) bool {
	return st.SellStreak >= 2 && st.BuyStreak < 2
}
