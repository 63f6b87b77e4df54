package volume

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
)

var (
	testToken   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testWrapped = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testRouting = common.HexToAddress("0x00000000000000000000000000000000000000cc")

	acctA = common.HexToAddress("0x0000000000000000000000000000000000000001")
	acctB = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func ether(f float64) *big.Int {
	return decimal.NewFromFloat(f).Shift(18).BigInt()
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.GWei))
}

func pathKey(path []common.Address) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = p.Hex()
	}
	return strings.Join(parts, ">")
}

// fixedRand 固定返回值，Shuffle 不改变顺序
type fixedRand struct {
	f float64
	i int
}

func (r fixedRand) Float64() float64            { return r.f }
func (r fixedRand) Intn(n int) int              { return r.i % n }
func (r fixedRand) Int63n(n int64) int64        { return 0 }
func (r fixedRand) Shuffle(int, func(i, j int)) {}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeQuoter struct {
	quotes map[string]*big.Int
	calls  int
}

func (q *fakeQuoter) Quote(_ context.Context, _ *big.Int, path []common.Address) (*big.Int, error) {
	q.calls++
	out, ok := q.quotes[pathKey(path)]
	if !ok {
		return nil, ErrNetwork
	}
	return new(big.Int).Set(out), nil
}

type fakeChain struct {
	mu     sync.Mutex
	native map[common.Address]*big.Int
	tokens map[common.Address]*big.Int

	// 每笔成功买入到账的代币、每笔卖出到账的原生币
	tokensPerBuy    *big.Int
	proceedsPerSell *big.Int

	execErr error
	reqs    []TradeRequest
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		native:          map[common.Address]*big.Int{},
		tokens:          map[common.Address]*big.Int{},
		tokensPerBuy:    ether(100),
		proceedsPerSell: ether(0.01),
	}
}

func (c *fakeChain) Accounts() []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]common.Address, 0, len(c.native))
	for a := range c.native {
		out = append(out, a)
	}
	return out
}

func (c *fakeChain) TokenBalance(_ context.Context, a common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.tokens[a]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (c *fakeChain) NativeBalance(_ context.Context, a common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.native[a]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (c *fakeChain) Execute(_ context.Context, req TradeRequest) (*TradeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	if c.execErr != nil {
		return nil, c.execErr
	}
	get := func(m map[common.Address]*big.Int) *big.Int {
		if m[req.Account] == nil {
			m[req.Account] = new(big.Int)
		}
		return m[req.Account]
	}
	res := &TradeResult{TxHash: common.BigToHash(big.NewInt(int64(len(c.reqs))))}
	if req.Kind == ActionBuy {
		get(c.native).Sub(get(c.native), req.AmountIn)
		get(c.tokens).Add(get(c.tokens), c.tokensPerBuy)
		res.Realized = new(big.Int).Set(c.tokensPerBuy)
	} else {
		get(c.tokens).Sub(get(c.tokens), req.AmountIn)
		get(c.native).Add(get(c.native), c.proceedsPerSell)
		res.Realized = new(big.Int).Set(c.proceedsPerSell)
	}
	return res, nil
}

func (c *fakeChain) requests() []TradeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TradeRequest(nil), c.reqs...)
}

type countingRecorder struct {
	ok, failed, skipped int
}

func (r *countingRecorder) TradeSucceeded(string, string) { r.ok++ }
func (r *countingRecorder) TradeFailed(string, string)    { r.failed++ }
func (r *countingRecorder) CycleSkipped(string)           { r.skipped++ }

var testTiming = Timing{
	HoldLo: 60 * time.Second, HoldHi: 60 * time.Second,
	TimeoutLo: 90 * time.Second, TimeoutHi: 90 * time.Second,
	GapLo: 10 * time.Second, GapHi: 10 * time.Second,
	GlobalCooldown: 5 * time.Second,
}

func testParams(mode string) Params {
	return Params{
		PositionPctMin:  0.02,
		PositionPctMax:  0.03,
		SellPctMin:      0.75,
		SellPctMax:      0.95,
		MinBuy:          ether(0.00005),
		GasPrice:        gwei(5),
		Slippage:        0.70,
		ProfitTarget:    1.15,
		Mode:            mode,
		Reinvest:        true,
		MonitorInterval: time.Second,
		Backoff:         DefaultBackoff(5 * time.Second),
		DeadlineWindow:  10 * time.Minute,
		TokenDecimals:   18,
		TokenSymbol:     "TKN",
	}
}

// defaultQuotes 直连报价低于中转报价
func defaultQuotes() *fakeQuoter {
	routes := NewRoutes(testToken, testWrapped, testRouting)
	return &fakeQuoter{quotes: map[string]*big.Int{
		pathKey(routes.Buy[0]):  big.NewInt(1000),
		pathKey(routes.Buy[1]):  big.NewInt(1200),
		pathKey(routes.Sell[0]): big.NewInt(999),
		pathKey(routes.Sell[1]): big.NewInt(500),
	}}
}
