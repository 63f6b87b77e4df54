package wallet

import (
	"testing"

	"github.com/betbot/volbot/pkg/config"
	"github.com/betbot/volbot/pkg/secretstore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMnemonic = "test test test test test test test test test test test junk"
	key0         = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	key1         = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	addr0 = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	addr1 = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func TestParsePrivateKey(t *testing.T) {
	a, err := ParsePrivateKey(key0)
	require.NoError(t, err)
	assert.Equal(t, addr0, a.Address)

	a, err = ParsePrivateKey(key1)
	require.NoError(t, err)
	assert.Equal(t, addr1, a.Address)

	_, err = ParsePrivateKey("0x1234")
	assert.Error(t, err)
}

func TestDerive(t *testing.T) {
	accts, err := Derive(testMnemonic, "m/44'/60'/0'/0/", 2)
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.Equal(t, addr0, accts[0].Address)
	assert.Equal(t, addr1, accts[1].Address)

	none, err := Derive("", "m/44'/60'/0'/0", 3)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = Derive("not a mnemonic", "m/44'/60'/0'/0", 1)
	assert.Error(t, err)
}

func TestLoad_MergesAndDedupes(t *testing.T) {
	accts, err := Load(config.WalletsConfig{
		PrivateKeys:    []string{key0, "garbage"},
		Mnemonic:       testMnemonic,
		Count:          2,
		DerivationBase: "m/44'/60'/0'/0",
	})
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.Equal(t, "env:1", accts[0].Source)
	assert.Equal(t, "mnemonic:1", accts[1].Source)
	assert.Equal(t, []common.Address{addr0, addr1}, Addresses(accts))
}

func TestImportAndFromStore(t *testing.T) {
	store, err := secretstore.Open(secretstore.OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	n, err := ImportKeys(store, []string{key0, key1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, store.SetString(StorePrefix+"9", "broken"))

	accts, err := FromStore(store)
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.Equal(t, addr0, accts[0].Address)
	assert.Equal(t, "store:wallet/1", accts[0].Source)

	_, err = ImportKeys(store, []string{"nope"})
	assert.Error(t, err)
}
