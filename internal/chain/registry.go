package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Registry 参与调度的账户集合，余额查询委托给链上客户端
type Registry struct {
	client   *Client
	accounts []common.Address
}

// NewRegistry 创建账户注册表；账户集合在进程生命周期内不变
func NewRegistry(client *Client, accounts []common.Address) *Registry {
	return &Registry{client: client, accounts: append([]common.Address(nil), accounts...)}
}

// Accounts 账户列表
func (r *Registry) Accounts() []common.Address {
	return r.accounts
}

// TokenBalance 代币余额
func (r *Registry) TokenBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return r.client.TokenBalance(ctx, account)
}

// NativeBalance 原生币余额
func (r *Registry) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return r.client.NativeBalance(ctx, account)
}
