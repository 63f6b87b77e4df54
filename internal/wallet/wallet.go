// Package wallet 加载参与调度的账户：环境变量私钥、助记词派生、加密密钥库三种来源合并去重。
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/betbot/volbot/pkg/config"
	"github.com/betbot/volbot/pkg/secretstore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StorePrefix 密钥库中钱包私钥的键前缀
const StorePrefix = "wallet/"

// Account 一个可签名账户
type Account struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
	// Source 来源标签（日志用）：env:1、mnemonic:0、store:wallet/1
	Source string
}

// ParsePrivateKey 解析 hex 私钥（可带 0x 前缀）
func ParsePrivateKey(raw string) (*Account, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, errors.Wrap(err, "私钥格式错误")
	}
	return &Account{Address: crypto.PubkeyToAddress(key.PublicKey), Key: key}, nil
}

// Derive 从助记词按 base/index 派生 count 个账户
func Derive(mnemonic, base string, count int) ([]Account, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" || count <= 0 {
		return nil, nil
	}
	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, errors.Wrap(err, "助记词无效")
	}
	base = strings.TrimSuffix(strings.TrimSpace(base), "/")
	out := make([]Account, 0, count)
	for i := 0; i < count; i++ {
		path, err := hdwallet.ParseDerivationPath(fmt.Sprintf("%s/%d", base, i))
		if err != nil {
			return nil, errors.Wrap(err, "派生路径无效")
		}
		acct, err := w.Derive(path, false)
		if err != nil {
			return nil, errors.Wrapf(err, "派生第 %d 个账户失败", i)
		}
		key, err := w.PrivateKey(acct)
		if err != nil {
			return nil, errors.Wrapf(err, "读取第 %d 个私钥失败", i)
		}
		out = append(out, Account{Address: acct.Address, Key: key, Source: fmt.Sprintf("mnemonic:%d", i)})
	}
	return out, nil
}

// FromStore 读取密钥库中 StorePrefix 下的全部私钥
func FromStore(store *secretstore.Store) ([]Account, error) {
	kvs, err := store.ListPrefix(StorePrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(kvs))
	for _, kv := range kvs {
		a, err := ParsePrivateKey(kv.Value)
		if err != nil {
			logrus.WithField("component", "wallet").Warnf("密钥库条目无效，已跳过: key=%s err=%v", kv.Key, err)
			continue
		}
		a.Source = "store:" + kv.Key
		out = append(out, *a)
	}
	return out, nil
}

// ImportKeys 把私钥写入密钥库，返回写入条数
func ImportKeys(store *secretstore.Store, keys []string) (int, error) {
	n := 0
	for i, k := range keys {
		if _, err := ParsePrivateKey(k); err != nil {
			return n, errors.Wrapf(err, "第 %d 个私钥", i+1)
		}
		if err := store.SetString(fmt.Sprintf("%s%d", StorePrefix, i+1), strings.TrimSpace(k)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Load 按 env → 助记词 → 密钥库的顺序加载账户，按地址去重。
// 单个无效私钥只告警跳过；助记词或密钥库本身无法打开时返回错误。
func Load(cfg config.WalletsConfig) ([]Account, error) {
	log := logrus.WithField("component", "wallet")
	seen := make(map[common.Address]bool)
	var out []Account
	add := func(a Account) {
		if seen[a.Address] {
			return
		}
		seen[a.Address] = true
		out = append(out, a)
		log.Infof("账户已加载: %s (%s)", a.Address.Hex(), a.Source)
	}

	for i, pk := range cfg.PrivateKeys {
		a, err := ParsePrivateKey(pk)
		if err != nil {
			log.Warnf("第 %d 个私钥无效: %v", i+1, err)
			continue
		}
		a.Source = fmt.Sprintf("env:%d", i+1)
		add(*a)
	}

	derived, err := Derive(cfg.Mnemonic, cfg.DerivationBase, cfg.Count)
	if err != nil {
		return nil, err
	}
	for _, a := range derived {
		add(a)
	}

	if strings.TrimSpace(cfg.StorePath) != "" {
		key, err := secretstore.ParseKey(cfg.StoreKey)
		if err != nil {
			return nil, errors.Wrap(err, "密钥库加密密钥无效")
		}
		store, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.StorePath, EncryptionKey: key, ReadOnly: true})
		if err != nil {
			return nil, err
		}
		defer store.Close()
		stored, err := FromStore(store)
		if err != nil {
			return nil, err
		}
		for _, a := range stored {
			add(a)
		}
	}
	return out, nil
}

// Addresses 账户地址列表
func Addresses(accounts []Account) []common.Address {
	out := make([]common.Address, len(accounts))
	for i, a := range accounts {
		out[i] = a.Address
	}
	return out
}
