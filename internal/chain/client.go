// Package chain 链上适配层：路由报价、余额查询、交易签名与广播。
// 所有 RPC 调用都经过限速器和熔断器，错误统一归类为调度器的错误类型。
package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/betbot/volbot/pkg/ratelimit"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Backend 用到的节点能力；*ethclient.Client 满足该接口
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Options 客户端参数
type Options struct {
	ChainID int64
	Token   common.Address
	Router  common.Address
	// RateLimit 每秒 RPC 请求数，<=0 不限速
	RateLimit int
	// BreakerFailures 连续多少次网络错误后熔断
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client 链上客户端
type Client struct {
	backend   Backend
	chainID   *big.Int
	token     common.Address
	router    common.Address
	routerABI abi.ABI
	erc20ABI  abi.ABI
	breaker   *gobreaker.CircuitBreaker
	limiter   ratelimit.RateLimiter
	log       *logrus.Entry
}

// Dial 连接 RPC 节点并确认链 ID。节点不可达或链 ID 不符时返回错误（启动期致命）。
func Dial(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "连接RPC节点失败")
	}
	id, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, errors.Wrap(err, "RPC节点不可达")
	}
	if opts.ChainID > 0 && id.Int64() != opts.ChainID {
		ec.Close()
		return nil, errors.Errorf("链ID不匹配: 期望 %d, 节点返回 %s", opts.ChainID, id)
	}
	opts.ChainID = id.Int64()
	return NewClient(ec, opts)
}

// NewClient 基于已有 Backend 创建客户端
func NewClient(backend Backend, opts Options) (*Client, error) {
	routerABI, erc20ABI, err := parseABIs()
	if err != nil {
		return nil, err
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	log := logrus.WithField("component", "chain")
	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rpc",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("RPC 熔断器状态变化: %s -> %s", from, to)
		},
	})
	return &Client{
		backend:   backend,
		chainID:   big.NewInt(opts.ChainID),
		token:     opts.Token,
		router:    opts.Router,
		routerABI: routerABI,
		erc20ABI:  erc20ABI,
		breaker:   breaker,
		limiter:   ratelimit.NewTokenBucket(opts.RateLimit, maxInt(opts.RateLimit, 1)),
		log:       log,
	}, nil
}

// ChainID 链 ID
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// BreakerState 熔断器当前状态
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// do 限速 → 熔断 → 调用 → 错误归类。ethereum.NotFound 原样返回，供轮询回执使用。
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !c.limiter.Allow() {
		if d := c.limiter.Delay(); d >= time.Second {
			c.log.Debugf("RPC 限速，等待 %s: op=%s", d.Round(time.Millisecond), op)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return classify(op, err)
		}
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, ethereum.NotFound) {
		return err
	}
	return classify(op, err)
}

func (c *Client) call(ctx context.Context, op string, to common.Address, data []byte) ([]byte, error) {
	var raw []byte
	err := c.do(ctx, op, func(ctx context.Context) error {
		var err error
		raw, err = c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return err
	})
	return raw, err
}

// Quote 路由报价：getAmountsOut 返回数组的最后一项
func (c *Client) Quote(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := c.routerABI.Pack(methodGetAmountsOut, amountIn, path)
	if err != nil {
		return nil, errors.Wrap(err, "打包getAmountsOut参数失败")
	}
	raw, err := c.call(ctx, methodGetAmountsOut, c.router, data)
	if err != nil {
		return nil, err
	}
	var amounts []*big.Int
	if err := c.routerABI.UnpackIntoInterface(&amounts, methodGetAmountsOut, raw); err != nil {
		return nil, errors.Wrap(err, "解析getAmountsOut返回失败")
	}
	if len(amounts) == 0 {
		return new(big.Int), nil
	}
	return amounts[len(amounts)-1], nil
}

// TokenBalance 代币余额
func (c *Client) TokenBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.uintCall(ctx, "balanceOf", account)
}

// Allowance 账户对路由的授权额度
func (c *Client) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.uintCall(ctx, "allowance", owner, c.router)
}

func (c *Client) uintCall(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	data, err := c.erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "打包%s参数失败", method)
	}
	raw, err := c.call(ctx, method, c.token, data)
	if err != nil {
		return nil, err
	}
	var out *big.Int
	if err := c.erc20ABI.UnpackIntoInterface(&out, method, raw); err != nil {
		return nil, errors.Wrapf(err, "解析%s返回失败", method)
	}
	return out, nil
}

// NativeBalance 原生币余额
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	var bal *big.Int
	err := c.do(ctx, "balance", func(ctx context.Context) error {
		var err error
		bal, err = c.backend.BalanceAt(ctx, account, nil)
		return err
	})
	return bal, err
}

// TokenMeta 代币精度与符号；查询失败时回退为 18 / "TOKEN"
func (c *Client) TokenMeta(ctx context.Context) (decimals int32, symbol string) {
	decimals, symbol = 18, "TOKEN"
	if data, err := c.erc20ABI.Pack("decimals"); err == nil {
		if raw, err := c.call(ctx, "decimals", c.token, data); err == nil {
			var d uint8
			if err := c.erc20ABI.UnpackIntoInterface(&d, "decimals", raw); err == nil {
				decimals = int32(d)
			}
		}
	}
	if data, err := c.erc20ABI.Pack("symbol"); err == nil {
		if raw, err := c.call(ctx, "symbol", c.token, data); err == nil {
			var s string
			if err := c.erc20ABI.UnpackIntoInterface(&s, "symbol", raw); err == nil && s != "" {
				symbol = s
			}
		}
	}
	return decimals, symbol
}

// VerifyToken 代币地址上必须有合约代码，且 balanceOf 可调用
func (c *Client) VerifyToken(ctx context.Context) error {
	var code []byte
	err := c.do(ctx, "code", func(ctx context.Context) error {
		var err error
		code, err = c.backend.CodeAt(ctx, c.token, nil)
		return err
	})
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return errors.Errorf("代币地址 %s 上没有合约代码", c.token.Hex())
	}
	if _, err := c.TokenBalance(ctx, common.Address{}); err != nil {
		return errors.Wrap(err, "代币合约不支持 balanceOf")
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
