package volume

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Action 动作类型
type Action int

const (
	ActionBuy Action = iota
	ActionSell
)

func (a Action) String() string {
	if a == ActionSell {
		return "sell"
	}
	return "buy"
}

// TradeRequest 提交给执行器的交易意图
type TradeRequest struct {
	Account  common.Address
	Kind     Action
	AmountIn *big.Int
	MinOut   *big.Int
	Path     []common.Address
	Deadline time.Time // 绝对过期时间，由执行器保证
}

// TradeResult 执行结果；Realized 为按余额差计算的实际到账数量
type TradeResult struct {
	TxHash   common.Hash
	Realized *big.Int
}

// Quoter 路由报价（router.getAmountsOut）
type Quoter interface {
	Quote(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)
}

// Executor 交易执行器：签名、广播、等待回执
type Executor interface {
	Execute(ctx context.Context, req TradeRequest) (*TradeResult, error)
}

// Registry 账户集合与余额查询
type Registry interface {
	Accounts() []common.Address
	TokenBalance(ctx context.Context, account common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
}

// Routes 候选路径，按评估顺序排列（直连在前）
type Routes struct {
	Buy  [][]common.Address
	Sell [][]common.Address
}

// NewRoutes 由目标代币、包装原生币与中转资产生成直连 + 单跳中转两条路径
func NewRoutes(token, wrappedNative, routingAsset common.Address) Routes {
	return Routes{
		Buy: [][]common.Address{
			{wrappedNative, token},
			{wrappedNative, routingAsset, token},
		},
		Sell: [][]common.Address{
			{token, wrappedNative},
			{token, routingAsset, wrappedNative},
		},
	}
}
