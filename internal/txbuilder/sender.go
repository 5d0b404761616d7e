package txbuilder

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

type Signer interface {
	SignTransaction(addr common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type SenderConfig struct {
	Contract        common.Address
	ApiCallGasLimit uint64
	Timeout         time.Duration
}

// Sender talks to the AirnodeRrp contract on behalf of sponsor wallets.
// Every RPC gets its own timeout.
type Sender struct {
	builder *Builder
	client  ChainClient
	signer  Signer
	cfg     SenderConfig
}

func NewSender(builder *Builder, client ChainClient, signer Signer, cfg SenderConfig) *Sender {
	if cfg.ApiCallGasLimit == 0 {
		cfg.ApiCallGasLimit = 500_000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Sender{builder: builder, client: client, signer: signer, cfg: cfg}
}

func (s *Sender) ApiCallGasLimit() uint64 {
	return s.cfg.ApiCallGasLimit
}

// StaticFulfill simulates fulfill from the sponsor wallet and reports
// whether the callback would succeed.
func (s *Sender) StaticFulfill(ctx context.Context, from common.Address, call FulfillCall) (bool, error) {
	data, err := PackFulfill(call)
	if err != nil {
		return false, err
	}
	msg := ethereum.CallMsg{From: from, To: &s.cfg.Contract, Gas: s.cfg.ApiCallGasLimit, Data: data}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	out, err := s.client.CallContract(ctx, msg, nil)
	if err != nil {
		return false, &StaticCallError{Err: err, CallMsg: msg}
	}
	ok, _, err := UnpackFulfillResult(out)
	if err != nil {
		return false, &StaticCallError{Err: err, CallMsg: msg}
	}
	return ok, nil
}

func (s *Sender) EstimateWithdrawalGas(ctx context.Context, from common.Address, call WithdrawalCall) (uint64, error) {
	data, err := PackFulfillWithdrawal(call)
	if err != nil {
		return 0, err
	}
	msg := ethereum.CallMsg{From: from, To: &s.cfg.Contract, Value: big.NewInt(1), Data: data}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	gas, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, &EstimateGasError{Err: err, CallMsg: msg}
	}
	return gas, nil
}

func (s *Sender) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	bal, err := s.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	return toUint256(bal)
}

// TransactionCount is the confirmed nonce of addr at the latest block.
func (s *Sender) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.client.NonceAt(ctx, addr, nil)
}

func (s *Sender) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.client.BlockNumber(ctx)
}

func (s *Sender) Fulfill(ctx context.Context, from common.Address, call FulfillCall, p BuildParams) (common.Hash, error) {
	data, err := PackFulfill(call)
	if err != nil {
		return common.Hash{}, err
	}
	return s.send(ctx, from, data, p)
}

func (s *Sender) Fail(ctx context.Context, from common.Address, call FailCall, p BuildParams) (common.Hash, error) {
	data, err := PackFail(call)
	if err != nil {
		return common.Hash{}, err
	}
	return s.send(ctx, from, data, p)
}

func (s *Sender) FulfillWithdrawal(ctx context.Context, from common.Address, call WithdrawalCall, p BuildParams) (common.Hash, error) {
	data, err := PackFulfillWithdrawal(call)
	if err != nil {
		return common.Hash{}, err
	}
	return s.send(ctx, from, data, p)
}

func (s *Sender) send(ctx context.Context, from common.Address, data []byte, p BuildParams) (common.Hash, error) {
	if s.signer == nil {
		return common.Hash{}, errors.New("signer is not configured")
	}
	tx, err := s.builder.Build(s.cfg.Contract, data, p)
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := s.signer.SignTransaction(from, tx, s.builder.ChainID)
	if err != nil {
		return common.Hash{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		// The node already has this exact transaction in its pool.
		if strings.Contains(err.Error(), "already known") {
			return signed.Hash(), nil
		}
		return common.Hash{}, &BroadcastError{Err: err, TxHash: signed.Hash(), Nonce: p.Nonce}
	}
	return signed.Hash(), nil
}
