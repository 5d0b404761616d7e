// Package keys holds the sponsor wallet keys the node signs with.
package keys

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrWalletNotFound = errors.New("sponsor wallet not found")
	ErrNoPassphrase   = errors.New("keystore passphrase is empty")
)

// Manager is an encrypted keystore of sponsor wallets. It satisfies
// txbuilder.Signer.
type Manager struct {
	ks         *keystore.KeyStore
	passphrase string
	dir        string
}

func NewManager(dir string, passphrase string) (*Manager, error) {
	return newManager(dir, passphrase, keystore.StandardScryptN, keystore.StandardScryptP)
}

func newManager(dir, passphrase string, scryptN, scryptP int) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("keystore dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	ks := keystore.NewKeyStore(dir, scryptN, scryptP)
	return &Manager{ks: ks, passphrase: passphrase, dir: dir}, nil
}

func (m *Manager) CreateWallet() (common.Address, error) {
	if m.passphrase == "" {
		return common.Address{}, ErrNoPassphrase
	}
	acct, err := m.ks.NewAccount(m.passphrase)
	if err != nil {
		return common.Address{}, err
	}
	return acct.Address, nil
}

// ImportPrivateKey stores a hex encoded secp256k1 key, with or without the
// 0x prefix. Importing a key that is already present returns its address.
func (m *Manager) ImportPrivateKey(hexKey string) (common.Address, error) {
	if m.passphrase == "" {
		return common.Address{}, ErrNoPassphrase
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if m.Has(addr) {
		return addr, nil
	}
	acct, err := m.ks.ImportECDSA(key, m.passphrase)
	if err != nil {
		return common.Address{}, err
	}
	return acct.Address, nil
}

func (m *Manager) Wallets() []common.Address {
	acctList := m.ks.Accounts()
	out := make([]common.Address, 0, len(acctList))
	for _, acct := range acctList {
		out = append(out, acct.Address)
	}
	return out
}

func (m *Manager) Has(addr common.Address) bool {
	return m.ks.HasAddress(addr)
}

func (m *Manager) find(addr common.Address) (accounts.Account, error) {
	for _, acct := range m.ks.Accounts() {
		if acct.Address == addr {
			return acct, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("%w: %s", ErrWalletNotFound, addr.Hex())
}

func (m *Manager) SignTransaction(addr common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if m.passphrase == "" {
		return nil, ErrNoPassphrase
	}
	acct, err := m.find(addr)
	if err != nil {
		return nil, err
	}
	return m.ks.SignTxWithPassphrase(acct, m.passphrase, tx, chainID)
}

// Status is what the status API reports about the keystore. It never
// carries key material.
type Status struct {
	Dir           string           `json:"dir"`
	PassphraseSet bool             `json:"passphraseSet"`
	Wallets       []common.Address `json:"wallets"`
}

func (m *Manager) Status() Status {
	return Status{
		Dir:           filepath.Clean(m.dir),
		PassphraseSet: m.passphrase != "",
		Wallets:       m.Wallets(),
	}
}
