package chain

import (
	"context"
	"strings"

	"github.com/betbot/volbot/internal/volume"
	"github.com/ethereum/go-ethereum"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

// classify 把 RPC/节点错误归入调度器可识别的错误类型。已分类的错误原样返回。
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{volume.ErrNetwork, volume.ErrExecutionReverted, volume.ErrInsufficientFunds, volume.ErrNoLiquidity} {
		if errors.Is(err, known) {
			return err
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return errors.WithMessagef(volume.ErrNetwork, "%s: 熔断中: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errors.WithMessagef(volume.ErrNetwork, "%s: 超时: %v", op, err)
	case strings.Contains(msg, "insufficient funds"):
		return errors.WithMessagef(volume.ErrInsufficientFunds, "%s: %v", op, err)
	case strings.Contains(msg, "revert"):
		return errors.WithMessagef(volume.ErrExecutionReverted, "%s: %v", op, err)
	default:
		return errors.WithMessagef(volume.ErrNetwork, "%s: %v", op, err)
	}
}

// countsAsFailure 只有网络类错误计入熔断；合约回滚、余额不足说明节点是通的
func countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, ethereum.NotFound) {
		return false
	}
	return errors.Is(classify("", err), volume.ErrNetwork)
}

// isNonceError 节点拒绝 nonce，需要重新从链上同步
func isNonceError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "nonce too high") ||
		strings.Contains(msg, "already known") ||
		strings.Contains(msg, "replacement transaction underpriced")
}
