package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
)

// RouterABI UniswapV2 风格路由（PancakeSwap V2）中用到的方法
const RouterABI = `[
	{
		"type": "function", "stateMutability": "payable",
		"name": "swapExactETHForTokensSupportingFeeOnTransferTokens",
		"inputs": [
			{"name": "amountOutMin", "type": "uint256"},
			{"name": "path", "type": "address[]"},
			{"name": "to", "type": "address"},
			{"name": "deadline", "type": "uint256"}
		],
		"outputs": []
	},
	{
		"type": "function", "stateMutability": "nonpayable",
		"name": "swapExactTokensForETHSupportingFeeOnTransferTokens",
		"inputs": [
			{"name": "amountIn", "type": "uint256"},
			{"name": "amountOutMin", "type": "uint256"},
			{"name": "path", "type": "address[]"},
			{"name": "to", "type": "address"},
			{"name": "deadline", "type": "uint256"}
		],
		"outputs": []
	},
	{
		"type": "function", "stateMutability": "view",
		"name": "getAmountsOut",
		"inputs": [
			{"name": "amountIn", "type": "uint256"},
			{"name": "path", "type": "address[]"}
		],
		"outputs": [{"name": "amounts", "type": "uint256[]"}]
	}
]`

// ERC20ABI 余额、授权与元数据
const ERC20ABI = `[
	{"type": "function", "stateMutability": "view", "name": "balanceOf",
	 "inputs": [{"name": "account", "type": "address"}], "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "stateMutability": "view", "name": "allowance",
	 "inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}],
	 "outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "stateMutability": "nonpayable", "name": "approve",
	 "inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}],
	 "outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "stateMutability": "view", "name": "decimals",
	 "inputs": [], "outputs": [{"name": "", "type": "uint8"}]},
	{"type": "function", "stateMutability": "view", "name": "symbol",
	 "inputs": [], "outputs": [{"name": "", "type": "string"}]}
]`

const (
	methodGetAmountsOut = "getAmountsOut"
	methodSwapETHIn     = "swapExactETHForTokensSupportingFeeOnTransferTokens"
	methodSwapTokensIn  = "swapExactTokensForETHSupportingFeeOnTransferTokens"
)

func parseABIs() (router abi.ABI, erc20 abi.ABI, err error) {
	router, err = abi.JSON(strings.NewReader(RouterABI))
	if err != nil {
		return router, erc20, errors.Wrap(err, "解析路由ABI失败")
	}
	erc20, err = abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return router, erc20, errors.Wrap(err, "解析ERC20 ABI失败")
	}
	return router, erc20, nil
}
