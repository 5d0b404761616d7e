package txbuilder

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

type BuildParams struct {
	Nonce    uint64
	GasLimit uint64
	Gas      GasTarget
	Value    *uint256.Int
}

type Builder struct {
	ChainID *big.Int
}

func NewBuilder(chainID *big.Int) *Builder {
	return &Builder{ChainID: new(big.Int).Set(chainID)}
}

// Build returns an unsigned transaction, legacy or dynamic fee depending on
// the shape of p.Gas.
func (b *Builder) Build(to common.Address, data []byte, p BuildParams) (*types.Transaction, error) {
	if b.ChainID == nil {
		return nil, errors.New("chainID is required")
	}
	if p.GasLimit == 0 {
		return nil, errors.New("gasLimit is required")
	}
	value := new(big.Int)
	if p.Value != nil {
		value = p.Value.ToBig()
	}
	if p.Gas.IsFeeMarket() {
		if p.Gas.MaxPriorityFeePerGas == nil {
			return nil, errors.New("maxPriorityFeePerGas is required")
		}
		if p.Gas.MaxPriorityFeePerGas.Gt(p.Gas.MaxFeePerGas) {
			return nil, errors.New("maxPriorityFeePerGas exceeds maxFeePerGas")
		}
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   new(big.Int).Set(b.ChainID),
			Nonce:     p.Nonce,
			Gas:       p.GasLimit,
			GasFeeCap: p.Gas.MaxFeePerGas.ToBig(),
			GasTipCap: p.Gas.MaxPriorityFeePerGas.ToBig(),
			To:        &to,
			Value:     value,
			Data:      data,
		}), nil
	}
	if p.Gas.GasPrice == nil {
		return nil, errors.New("gasPrice is required")
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    p.Nonce,
		GasPrice: p.Gas.GasPrice.ToBig(),
		Gas:      p.GasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	}), nil
}
