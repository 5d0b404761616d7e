package txbuilder

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"rrpnode/internal/logs"
)

var ErrValueOverflow = errors.New("value overflows 256 bits")

// GasTarget is either a legacy GasPrice or a fee market pair. Exactly one
// of the two shapes is set.
type GasTarget struct {
	GasPrice             *uint256.Int `json:"gasPrice,omitempty"`
	MaxFeePerGas         *uint256.Int `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *uint256.Int `json:"maxPriorityFeePerGas,omitempty"`
}

func LegacyTarget(price *uint256.Int) GasTarget {
	return GasTarget{GasPrice: price.Clone()}
}

func FeeMarketTarget(maxFee, tip *uint256.Int) GasTarget {
	return GasTarget{MaxFeePerGas: maxFee.Clone(), MaxPriorityFeePerGas: tip.Clone()}
}

func (g GasTarget) IsFeeMarket() bool {
	return g.MaxFeePerGas != nil
}

// EffectivePrice is the highest per-gas price a transaction with this
// target can be charged.
func (g GasTarget) EffectivePrice() *uint256.Int {
	if g.IsFeeMarket() {
		return g.MaxFeePerGas.Clone()
	}
	if g.GasPrice == nil {
		return new(uint256.Int)
	}
	return g.GasPrice.Clone()
}

func (g GasTarget) LogValue() slog.Value {
	if g.IsFeeMarket() {
		return slog.GroupValue(
			slog.String("maxFeePerGas", g.MaxFeePerGas.Dec()),
			slog.String("maxPriorityFeePerGas", g.MaxPriorityFeePerGas.Dec()),
		)
	}
	return slog.GroupValue(slog.String("gasPrice", g.EffectivePrice().Dec()))
}

type GasOracleConfig struct {
	FeeMarket         bool
	BaseFeeMultiplier uint64
	MinPriorityFee    *uint256.Int
	Timeout           time.Duration
}

// GasOracle resolves the gas target used for one provider cycle. It never
// retries: a failed fetch means the cycle submits nothing.
type GasOracle struct {
	client ChainClient
	cfg    GasOracleConfig
}

func NewGasOracle(client ChainClient, cfg GasOracleConfig) *GasOracle {
	if cfg.BaseFeeMultiplier == 0 {
		cfg.BaseFeeMultiplier = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &GasOracle{client: client, cfg: cfg}
}

// Resolve returns nil when no target could be determined.
func (o *GasOracle) Resolve(ctx context.Context) (*GasTarget, []logs.PendingLog) {
	if o.cfg.FeeMarket {
		header, err := o.header(ctx)
		if err != nil {
			return nil, []logs.PendingLog{logs.Error("failed to fetch latest block header", err)}
		}
		if header != nil && header.BaseFee != nil {
			return o.feeMarket(ctx, header.BaseFee)
		}
	}
	return o.legacy(ctx)
}

func (o *GasOracle) header(ctx context.Context) (*types.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()
	return o.client.HeaderByNumber(ctx, nil)
}

func (o *GasOracle) feeMarket(ctx context.Context, baseFee *big.Int) (*GasTarget, []logs.PendingLog) {
	tctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	tipBig, err := o.client.SuggestGasTipCap(tctx)
	cancel()
	if err != nil {
		return nil, []logs.PendingLog{logs.Error("failed to fetch priority fee", err)}
	}
	base, err := toUint256(baseFee)
	if err != nil {
		return nil, []logs.PendingLog{logs.Error("base fee out of range", err)}
	}
	tip, err := toUint256(tipBig)
	if err != nil {
		return nil, []logs.PendingLog{logs.Error("priority fee out of range", err)}
	}
	if o.cfg.MinPriorityFee != nil && tip.Lt(o.cfg.MinPriorityFee) {
		tip = o.cfg.MinPriorityFee.Clone()
	}
	maxFee, overflow := new(uint256.Int).MulOverflow(base, uint256.NewInt(o.cfg.BaseFeeMultiplier))
	if !overflow {
		maxFee, overflow = maxFee.AddOverflow(maxFee, tip)
	}
	if overflow {
		return nil, []logs.PendingLog{logs.Error("max fee per gas out of range", ErrValueOverflow)}
	}
	target := FeeMarketTarget(maxFee, tip)
	return &target, []logs.PendingLog{logs.Info("resolved fee market gas target", slog.Any("gasTarget", target))}
}

func (o *GasOracle) legacy(ctx context.Context) (*GasTarget, []logs.PendingLog) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()
	priceBig, err := o.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, []logs.PendingLog{logs.Error("failed to fetch gas price", err)}
	}
	price, err := toUint256(priceBig)
	if err != nil {
		return nil, []logs.PendingLog{logs.Error("gas price out of range", err)}
	}
	target := LegacyTarget(price)
	return &target, []logs.PendingLog{logs.Info("resolved legacy gas target", slog.Any("gasTarget", target))}
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, errors.New("value is nil")
	}
	if v.Sign() < 0 {
		return nil, errors.New("value must be non-negative")
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrValueOverflow
	}
	return out, nil
}
