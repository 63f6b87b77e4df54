package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/betbot/volbot/internal/volume"
	"github.com/betbot/volbot/internal/wallet"
	"github.com/betbot/volbot/pkg/cache"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// 各类交易的固定 gas 上限
const (
	ApproveGasLimit uint64 = 60000
	BuyGasLimit     uint64 = 150000
	SellGasLimit    uint64 = 180000
)

// maxUint256 无限授权额度
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Executor 交易执行器：签名、广播、等待回执，按余额差计算实际到账。
// 同一账户的交易串行提交，nonce 在本地维护，只在交易上链后递增。
type Executor struct {
	client   *Client
	keys     map[common.Address]*ecdsa.PrivateKey
	gasPrice *big.Int

	mu     sync.Mutex
	locks  map[common.Address]*sync.Mutex
	nonces map[common.Address]uint64

	// 已知授权额度，减少每次卖出前的 allowance 查询
	allowances *cache.InMemoryCache[common.Address, *big.Int]

	pollInterval time.Duration
}

// NewExecutor 创建执行器；gasPrice 为固定的最低 gas 价格
func NewExecutor(client *Client, accounts []wallet.Account, gasPrice *big.Int) *Executor {
	keys := make(map[common.Address]*ecdsa.PrivateKey, len(accounts))
	for _, a := range accounts {
		keys[a.Address] = a.Key
	}
	return &Executor{
		client:       client,
		keys:         keys,
		gasPrice:     new(big.Int).Set(gasPrice),
		locks:        make(map[common.Address]*sync.Mutex),
		nonces:       make(map[common.Address]uint64),
		allowances:   cache.NewInMemoryCache[common.Address, *big.Int](10 * time.Minute),
		pollInterval: time.Second,
	}
}

// WithPollInterval 回执轮询间隔（测试用）
func (e *Executor) WithPollInterval(d time.Duration) *Executor {
	e.pollInterval = d
	return e
}

func (e *Executor) accountLock(a common.Address) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[a]
	if !ok {
		l = &sync.Mutex{}
		e.locks[a] = l
	}
	return l
}

// Execute 提交一笔兑换并等待上链。req.Deadline 同时作为链上 deadline 和本地等待上限。
func (e *Executor) Execute(ctx context.Context, req volume.TradeRequest) (*volume.TradeResult, error) {
	key, ok := e.keys[req.Account]
	if !ok {
		return nil, errors.Errorf("账户 %s 没有签名私钥", req.Account.Hex())
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, volume.ErrInsufficientFunds
	}

	l := e.accountLock(req.Account)
	l.Lock()
	defer l.Unlock()

	ctx, cancel := context.WithDeadline(ctx, req.Deadline)
	defer cancel()

	if req.Kind == volume.ActionBuy {
		return e.buy(ctx, key, req)
	}
	return e.sell(ctx, key, req)
}

func (e *Executor) buy(ctx context.Context, key *ecdsa.PrivateKey, req volume.TradeRequest) (*volume.TradeResult, error) {
	data, err := e.client.routerABI.Pack(methodSwapETHIn, req.MinOut, req.Path, req.Account, big.NewInt(req.Deadline.Unix()))
	if err != nil {
		return nil, errors.Wrap(err, "打包买入参数失败")
	}
	before, err := e.client.TokenBalance(ctx, req.Account)
	if err != nil {
		return nil, err
	}
	hash, _, err := e.sendAndWait(ctx, key, req.Account, e.client.router, req.AmountIn, BuyGasLimit, data)
	if err != nil {
		return nil, err
	}
	after, err := e.client.TokenBalance(ctx, req.Account)
	if err != nil {
		return nil, err
	}
	got := new(big.Int).Sub(after, before)
	if got.Sign() <= 0 {
		// 转账税或反机器人机制吞掉了代币
		return nil, errors.WithMessagef(volume.ErrExecutionReverted, "买入已上链但代币余额未增加: tx=%s", hash.Hex())
	}
	return &volume.TradeResult{TxHash: hash, Realized: got}, nil
}

func (e *Executor) sell(ctx context.Context, key *ecdsa.PrivateKey, req volume.TradeRequest) (*volume.TradeResult, error) {
	if err := e.ensureAllowance(ctx, key, req.Account, req.AmountIn); err != nil {
		return nil, err
	}
	data, err := e.client.routerABI.Pack(methodSwapTokensIn, req.AmountIn, req.MinOut, req.Path, req.Account, big.NewInt(req.Deadline.Unix()))
	if err != nil {
		return nil, errors.Wrap(err, "打包卖出参数失败")
	}
	before, err := e.client.NativeBalance(ctx, req.Account)
	if err != nil {
		return nil, err
	}
	hash, receipt, err := e.sendAndWait(ctx, key, req.Account, e.client.router, new(big.Int), SellGasLimit, data)
	if err != nil {
		return nil, err
	}
	if cached, ok := e.allowances.Get(req.Account); ok {
		e.allowances.Set(req.Account, new(big.Int).Sub(cached, req.AmountIn), 0)
	}
	after, err := e.client.NativeBalance(ctx, req.Account)
	if err != nil {
		return nil, err
	}
	// 回执成功即视为成交；到账 = 余额差 + 本笔 gas 费
	gross := new(big.Int).Sub(after, before)
	gross.Add(gross, e.gasFee(receipt))
	if gross.Sign() < 0 {
		e.client.log.Warnf("卖出已上链但到账为负，按 0 计: account=%s tx=%s delta=%s", req.Account.Hex(), hash.Hex(), gross)
		gross = new(big.Int)
	}
	return &volume.TradeResult{TxHash: hash, Realized: gross}, nil
}

// gasFee 回执对应的 gas 费用；节点未返回实际价格时用下单价格
func (e *Executor) gasFee(receipt *ethtypes.Receipt) *big.Int {
	if receipt == nil {
		return new(big.Int)
	}
	price := e.gasPrice
	if receipt.EffectiveGasPrice != nil && receipt.EffectiveGasPrice.Sign() > 0 {
		price = receipt.EffectiveGasPrice
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price)
}

// ensureAllowance 授权不足时对路由做无限授权
func (e *Executor) ensureAllowance(ctx context.Context, key *ecdsa.PrivateKey, owner common.Address, needed *big.Int) error {
	if cached, ok := e.allowances.Get(owner); ok && cached.Cmp(needed) >= 0 {
		return nil
	}
	allowance, err := e.client.Allowance(ctx, owner)
	if err != nil {
		return err
	}
	if allowance.Cmp(needed) >= 0 {
		e.allowances.Set(owner, allowance, 0)
		return nil
	}
	data, err := e.client.erc20ABI.Pack("approve", e.client.router, maxUint256)
	if err != nil {
		return errors.Wrap(err, "打包approve参数失败")
	}
	hash, _, err := e.sendAndWait(ctx, key, owner, e.client.token, new(big.Int), ApproveGasLimit, data)
	if err != nil {
		return errors.WithMessage(err, "approve失败")
	}
	e.client.log.Infof("已授权路由: account=%s tx=%s", owner.Hex(), hash.Hex())
	e.allowances.Set(owner, new(big.Int).Set(maxUint256), 0)
	return nil
}

// sendAndWait 签名广播并等待回执。交易上链即消耗 nonce（无论成功与否）。
func (e *Executor) sendAndWait(ctx context.Context, key *ecdsa.PrivateKey, from, to common.Address, value *big.Int, gasLimit uint64, data []byte) (common.Hash, *ethtypes.Receipt, error) {
	nonce, err := e.nonce(ctx, from)
	if err != nil {
		return common.Hash{}, nil, err
	}
	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, e.gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(e.client.chainID), key)
	if err != nil {
		return common.Hash{}, nil, errors.Wrap(err, "签名交易失败")
	}

	err = e.client.do(ctx, "send", func(ctx context.Context) error {
		return e.client.backend.SendTransaction(ctx, signed)
	})
	if err != nil {
		if isNonceError(err) {
			e.resetNonce(from)
		}
		return common.Hash{}, nil, err
	}

	receipt, err := e.waitMined(ctx, signed.Hash())
	if err != nil {
		// 状态未知，下一笔交易从链上重新同步 nonce
		e.resetNonce(from)
		return signed.Hash(), nil, err
	}
	e.advanceNonce(from, nonce)
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return signed.Hash(), receipt, errors.WithMessagef(volume.ErrExecutionReverted, "交易回滚: tx=%s", signed.Hash().Hex())
	}
	return signed.Hash(), receipt, nil
}

func (e *Executor) waitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		var receipt *ethtypes.Receipt
		err := e.client.do(ctx, "receipt", func(ctx context.Context) error {
			var err error
			receipt, err = e.client.backend.TransactionReceipt(ctx, hash)
			return err
		})
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			e.client.log.Debugf("查询回执失败: tx=%s err=%v", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, classify("等待回执", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (e *Executor) nonce(ctx context.Context, a common.Address) (uint64, error) {
	e.mu.Lock()
	n, ok := e.nonces[a]
	e.mu.Unlock()
	if ok {
		return n, nil
	}
	err := e.client.do(ctx, "nonce", func(ctx context.Context) error {
		var err error
		n, err = e.client.backend.PendingNonceAt(ctx, a)
		return err
	})
	if err != nil {
		return 0, errors.WithMessage(err, "获取nonce失败")
	}
	e.mu.Lock()
	e.nonces[a] = n
	e.mu.Unlock()
	return n, nil
}

func (e *Executor) advanceNonce(a common.Address, used uint64) {
	e.mu.Lock()
	e.nonces[a] = used + 1
	e.mu.Unlock()
}

func (e *Executor) resetNonce(a common.Address) {
	e.mu.Lock()
	delete(e.nonces, a)
	e.mu.Unlock()
}
