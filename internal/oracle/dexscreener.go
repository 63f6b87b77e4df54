// Package oracle 参考价来源。这里只负责单次拉取，缓存由调度器的 PriceCache 负责。
package oracle

import (
	"context"
	"time"

	"github.com/betbot/volbot/internal/volume"
	sdkhttp "github.com/betbot/volbot/pkg/sdk/http"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// DefaultDexScreenerURL DexScreener 公共 API
const DefaultDexScreenerURL = "https://api.dexscreener.com"

// ErrNoPrice 响应里没有可用的交易对价格
var ErrNoPrice = errors.New("no price")

type tokensResponse struct {
	Pairs []struct {
		ChainID  string `json:"chainId"`
		DexID    string `json:"dexId"`
		PriceUSD string `json:"priceUsd"`
	} `json:"pairs"`
}

// DexScreener 取代币第一个交易对的 USD 价格
type DexScreener struct {
	http  *sdkhttp.Client
	token common.Address
}

// NewDexScreener 创建价格源；baseURL 为空时使用公共 API
func NewDexScreener(baseURL string, token common.Address) *DexScreener {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	return &DexScreener{
		http:  sdkhttp.NewClient(baseURL, sdkhttp.Options{Timeout: 8 * time.Second, UserAgent: "volbot"}),
		token: token,
	}
}

// CurrentPrice 拉取当前 USD 价格
func (d *DexScreener) CurrentPrice(ctx context.Context) (float64, error) {
	var resp tokensResponse
	if err := d.http.GetJSON(ctx, "/latest/dex/tokens/"+d.token.Hex(), &resp); err != nil {
		return 0, errors.WithMessage(volume.ErrNetwork, err.Error())
	}
	if len(resp.Pairs) == 0 || resp.Pairs[0].PriceUSD == "" {
		return 0, ErrNoPrice
	}
	price, err := decimal.NewFromString(resp.Pairs[0].PriceUSD)
	if err != nil {
		return 0, errors.Wrap(err, "priceUsd 格式错误")
	}
	if !price.IsPositive() {
		return 0, ErrNoPrice
	}
	f, _ := price.Float64()
	return f, nil
}
