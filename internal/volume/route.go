package volume

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Route 选中的路径与其报价
type Route struct {
	Path []common.Address
	Out  *big.Int
}

// BestQuote 依次评估所有候选路径，只有严格更大的报价才替换当前最优，
// 因此报价相同时保留先评估的路径（直连优先）。
// 单条路径报价失败视为该路径无报价；全部无正报价时返回 ErrNoLiquidity。
func BestQuote(ctx context.Context, q Quoter, amountIn *big.Int, candidates [][]common.Address) (Route, error) {
	best := Route{Out: new(big.Int)}
	for _, path := range candidates {
		out, err := q.Quote(ctx, amountIn, path)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "route",
				"hops":      len(path) - 1,
			}).Debugf("路径报价失败: %v", err)
			continue
		}
		if out != nil && out.Cmp(best.Out) > 0 {
			best = Route{Path: path, Out: out}
		}
	}
	if best.Out.Sign() <= 0 {
		return Route{}, ErrNoLiquidity
	}
	return best, nil
}
