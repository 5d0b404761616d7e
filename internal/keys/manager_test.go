package keys

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat's first default account.
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestManager(t *testing.T, passphrase string) *Manager {
	t.Helper()
	m, err := newManager(t.TempDir(), passphrase, keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	return m
}

func TestImportAndSign(t *testing.T) {
	m := newTestManager(t, "secret")

	addr, err := m.ImportPrivateKey(testKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), addr)

	again, err := m.ImportPrivateKey(testKey[2:])
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.Equal(t, []common.Address{addr}, m.Wallets())

	chainID := big.NewInt(31337)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     79,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &addr,
	})
	signed, err := m.SignTransaction(addr, tx, chainID)
	require.NoError(t, err)
	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, addr, from)

	_, err = m.SignTransaction(common.HexToAddress("0x01"), tx, chainID)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestCreateWalletAndStatus(t *testing.T) {
	m := newTestManager(t, "secret")
	addr, err := m.CreateWallet()
	require.NoError(t, err)
	assert.True(t, m.Has(addr))

	st := m.Status()
	assert.True(t, st.PassphraseSet)
	assert.Equal(t, []common.Address{addr}, st.Wallets)
}

func TestPassphraseRequired(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.CreateWallet()
	assert.ErrorIs(t, err, ErrNoPassphrase)
	_, err = m.ImportPrivateKey(testKey)
	assert.ErrorIs(t, err, ErrNoPassphrase)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = m.SignTransaction(crypto.PubkeyToAddress(key.PublicKey), types.NewTx(&types.LegacyTx{}), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNoPassphrase)

	_, err = NewManager(" ", "x")
	assert.Error(t, err)
}
