package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

var (
	testRouter = common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	testToken  = common.HexToAddress("0xe08b716fffcc0410da0392500c6a88fe0accd819")
	testWBNB   = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	testUSDT   = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
)

// fakeBackend 内存里模拟路由与代币合约
type fakeBackend struct {
	mu        sync.Mutex
	chainID   *big.Int
	routerABI abi.ABI
	erc20ABI  abi.ABI

	code       []byte
	native     map[common.Address]*big.Int
	tokens     map[common.Address]*big.Int
	allowances map[common.Address]*big.Int
	amountsOut map[string][]*big.Int
	pending    map[common.Address]uint64

	// 每笔买入到账代币 / 每笔卖出到账原生币
	buyTokens  *big.Int
	sellNative *big.Int

	// 每笔交易实际消耗的 gas，>0 时按交易 gas 价格扣原生币
	gasUsed uint64

	callErr    error
	revertNext bool

	sent     []*ethtypes.Transaction
	receipts map[common.Hash]*ethtypes.Receipt
}

func newFakeBackend() *fakeBackend {
	r, e, err := parseABIs()
	if err != nil {
		panic(err)
	}
	return &fakeBackend{
		chainID:    big.NewInt(56),
		routerABI:  r,
		erc20ABI:   e,
		code:       []byte{0x60, 0x80},
		native:     map[common.Address]*big.Int{},
		tokens:     map[common.Address]*big.Int{},
		allowances: map[common.Address]*big.Int{},
		amountsOut: map[string][]*big.Int{},
		pending:    map[common.Address]uint64{},
		buyTokens:  big.NewInt(5000),
		sellNative: big.NewInt(3000),
		receipts:   map[common.Hash]*ethtypes.Receipt{},
	}
}

func pathKey(path []common.Address) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = p.Hex()
	}
	return strings.Join(parts, ">")
}

func bal(m map[common.Address]*big.Int, a common.Address) *big.Int {
	if m[a] == nil {
		m[a] = new(big.Int)
	}
	return m[a]
}

func (b *fakeBackend) method(data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("short calldata")
	}
	m, err := b.routerABI.MethodById(data[:4])
	if err != nil {
		m, err = b.erc20ABI.MethodById(data[:4])
		if err != nil {
			return nil, nil, err
		}
	}
	args, err := m.Inputs.Unpack(data[4:])
	return m, args, err
}

func (b *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.callErr != nil {
		return nil, b.callErr
	}
	m, args, err := b.method(call.Data)
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case methodGetAmountsOut:
		amounts, ok := b.amountsOut[pathKey(args[1].([]common.Address))]
		if !ok {
			return nil, errors.New("execution reverted: PancakeLibrary: INSUFFICIENT_LIQUIDITY")
		}
		return m.Outputs.Pack(amounts)
	case "balanceOf":
		return m.Outputs.Pack(new(big.Int).Set(bal(b.tokens, args[0].(common.Address))))
	case "allowance":
		return m.Outputs.Pack(new(big.Int).Set(bal(b.allowances, args[0].(common.Address))))
	case "decimals":
		return m.Outputs.Pack(uint8(9))
	case "symbol":
		return m.Outputs.Pack("TKN")
	}
	return nil, errors.Errorf("unexpected call %s", m.Name)
}

func (b *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return b.code, nil
}

func (b *fakeBackend) BalanceAt(_ context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(bal(b.native, a)), nil
}

func (b *fakeBackend) PendingNonceAt(_ context.Context, a common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[a], nil
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return b.chainID, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	from, err := ethtypes.Sender(ethtypes.NewEIP155Signer(b.chainID), tx)
	if err != nil {
		return err
	}
	b.sent = append(b.sent, tx)
	if b.gasUsed > 0 {
		fee := new(big.Int).Mul(new(big.Int).SetUint64(b.gasUsed), tx.GasPrice())
		bal(b.native, from).Sub(bal(b.native, from), fee)
	}
	status := ethtypes.ReceiptStatusSuccessful
	if b.revertNext {
		b.revertNext = false
		status = ethtypes.ReceiptStatusFailed
	} else {
		m, args, err := b.method(tx.Data())
		if err != nil {
			return err
		}
		switch m.Name {
		case methodSwapETHIn:
			bal(b.native, from).Sub(bal(b.native, from), tx.Value())
			bal(b.tokens, from).Add(bal(b.tokens, from), b.buyTokens)
		case methodSwapTokensIn:
			bal(b.tokens, from).Sub(bal(b.tokens, from), args[0].(*big.Int))
			bal(b.native, from).Add(bal(b.native, from), b.sellNative)
		case "approve":
			b.allowances[from] = new(big.Int).Set(args[1].(*big.Int))
		}
	}
	b.pending[from] = tx.Nonce() + 1
	b.receipts[tx.Hash()] = &ethtypes.Receipt{Status: status, TxHash: tx.Hash(), GasUsed: b.gasUsed}
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*ethtypes.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *fakeBackend) sentTxs() []*ethtypes.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*ethtypes.Transaction(nil), b.sent...)
}
