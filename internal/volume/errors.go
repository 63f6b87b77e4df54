package volume

import (
	"errors"
	"time"
)

// 周期级错误类型：全部可恢复，不会让进程退出。
var (
	// ErrNoLiquidity 所有候选路径都没有正报价，交易在提交前放弃
	ErrNoLiquidity = errors.New("no liquidity")
	// ErrExecutionReverted 交易已上链但执行失败
	ErrExecutionReverted = errors.New("execution reverted")
	// ErrNetwork RPC/HTTP 失败或超时
	ErrNetwork = errors.New("network error")
	// ErrInsufficientFunds 扣除 gas 预留后规模不为正
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// ErrorKind 返回错误类型标签（日志与指标用）
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoLiquidity):
		return "no_liquidity"
	case errors.Is(err, ErrExecutionReverted):
		return "reverted"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "unknown"
	}
}

// BackoffPolicy 失败后下一轮前的固定等待，按错误类型区分。
// 失败不推进任何冷却闸门，只由这里的延迟避免紧密错误循环。
type BackoffPolicy struct {
	NoLiquidity       time.Duration
	Reverted          time.Duration
	Network           time.Duration
	InsufficientFunds time.Duration
	Default           time.Duration
}

// DefaultBackoff 所有可重试错误统一使用 d；余额不足静默跳过，不额外等待
func DefaultBackoff(d time.Duration) BackoffPolicy {
	return BackoffPolicy{
		NoLiquidity: d,
		Reverted:    d,
		Network:     d,
		Default:     d,
	}
}

// For 返回 err 对应的等待时间
func (p BackoffPolicy) For(err error) time.Duration {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNoLiquidity):
		return p.NoLiquidity
	case errors.Is(err, ErrExecutionReverted):
		return p.Reverted
	case errors.Is(err, ErrInsufficientFunds):
		return p.InsufficientFunds
	case errors.Is(err, ErrNetwork):
		return p.Network
	default:
		return p.Default
	}
}
