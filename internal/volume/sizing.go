package volume

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// ReserveGasLimit 预留 gas 按两笔最坏情况交易估算（approve + swap）
	ReserveGasLimit uint64 = 200000

	reinvestMultiplier = 1.05
	reinvestCapOfSpend = 0.30
)

// forcedSellFractions 无账户可买时的强制卖出比例：第一次 40%，第二次 30%，之后不再强制
var forcedSellFractions = []float64{0.40, 0.30}

// mulFloor 返回 floor(x × f)
func mulFloor(x *big.Int, f float64) *big.Int {
	return decimal.NewFromBigInt(x, 0).Mul(decimal.NewFromFloat(f)).Floor().BigInt()
}

// GasReserve = 2 × gasLimit × gasPrice
func GasReserve(gasPrice *big.Int, gasLimit uint64) *big.Int {
	r := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	return r.Mul(r, big.NewInt(2))
}

// Spendable = balance − reserve，可能为负
func Spendable(balance, reserve *big.Int) *big.Int {
	return new(big.Int).Sub(balance, reserve)
}

// BuySize 按比例计算买入规模。
// 低于绝对下限时：可用余额足够则抬到下限，否则放弃（返回 0）。
func BuySize(spendable *big.Int, fraction float64, floor *big.Int) *big.Int {
	if spendable.Sign() <= 0 {
		return new(big.Int)
	}
	amount := mulFloor(spendable, fraction)
	return applyFloor(amount, spendable, floor)
}

// ReinvestSize 复投规模：上一笔卖出所得的 105%，不超过可用余额的 30%
func ReinvestSize(spendable, lastProceeds *big.Int, floor *big.Int) *big.Int {
	if spendable.Sign() <= 0 || lastProceeds == nil || lastProceeds.Sign() <= 0 {
		return new(big.Int)
	}
	amount := mulFloor(lastProceeds, reinvestMultiplier)
	if limit := mulFloor(spendable, reinvestCapOfSpend); amount.Cmp(limit) > 0 {
		amount = limit
	}
	return applyFloor(amount, spendable, floor)
}

func applyFloor(amount, spendable, floor *big.Int) *big.Int {
	if floor == nil || amount.Cmp(floor) >= 0 {
		return amount
	}
	if spendable.Cmp(floor) > 0 {
		return new(big.Int).Set(floor)
	}
	return new(big.Int)
}

// SellSize 按比例卖出代币余额，至少 1 个最小单位，且总会留下余量。
// 余额不足 2 个最小单位时返回 0（不卖）。
func SellSize(tokenBalance *big.Int, fraction float64) *big.Int {
	if tokenBalance == nil || tokenBalance.Cmp(big.NewInt(2)) < 0 {
		return new(big.Int)
	}
	amount := mulFloor(tokenBalance, fraction)
	if amount.Sign() <= 0 {
		amount = big.NewInt(1)
	}
	if maxSell := new(big.Int).Sub(tokenBalance, big.NewInt(1)); amount.Cmp(maxSell) > 0 {
		amount = maxSell
	}
	return amount
}

// ForcedSellFraction 第 count 次（从 0 开始）强制卖出的比例；ok=false 表示不再强制
func ForcedSellFraction(count int) (float64, bool) {
	if count < 0 || count >= len(forcedSellFractions) {
		return 0, false
	}
	return forcedSellFractions[count], true
}

// MinOut 计算最少到账：floor(best × slippage)；zero 策略直接返回 0
func MinOut(best *big.Int, slippage float64, zero bool) *big.Int {
	if zero || best == nil || best.Sign() <= 0 {
		return new(big.Int)
	}
	return mulFloor(best, slippage)
}

// FormatUnits 把最小单位转换为带 6 位小数的可读字符串
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).StringFixed(6)
}
