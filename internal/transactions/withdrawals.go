package transactions

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/holiman/uint256"

	"rrpnode/internal/logs"
	"rrpnode/internal/request"
	"rrpnode/internal/txbuilder"
)

var errNonPositiveValue = errors.New("withdrawal value is not positive")

type withdrawalRequest = request.Request[request.Withdrawal]

func (s *Submitter) submitWithdrawal(ctx context.Context, r withdrawalRequest, nonce uint64, gas txbuilder.GasTarget) (withdrawalRequest, bool, []logs.PendingLog) {
	call := txbuilder.WithdrawalCall{
		RequestID: r.ID,
		Airnode:   r.AirnodeAddress,
		Sponsor:   r.SponsorAddress,
	}
	estimate, err := s.chain.EstimateWithdrawalGas(ctx, r.SponsorWalletAddress, call)
	if err != nil {
		return r, false, []logs.PendingLog{logs.Error("failed to estimate withdrawal gas", err, requestAttrs(r)...)}
	}
	balance, err := s.chain.Balance(ctx, r.SponsorWalletAddress)
	if err != nil {
		return r, false, []logs.PendingLog{logs.Error("failed to fetch sponsor wallet balance", err, requestAttrs(r)...)}
	}

	gasLimit, value, err := withdrawalValue(balance, estimate, s.cfg.WithdrawalGasMargin, gas.EffectivePrice())
	if errors.Is(err, errNonPositiveValue) {
		return r, false, []logs.PendingLog{logs.Warn("sponsor wallet balance does not cover withdrawal gas, skipping",
			append(requestAttrs(r), slog.String("balance", balance.Dec()), slog.Uint64("gasLimit", gasLimit))...)}
	}
	if err != nil {
		return r, false, []logs.PendingLog{logs.Error("failed to compute withdrawal value", err, requestAttrs(r)...)}
	}

	params := txbuilder.BuildParams{Nonce: nonce, GasLimit: gasLimit, Gas: gas, Value: value}
	hash, err := s.chain.FulfillWithdrawal(ctx, r.SponsorWalletAddress, call, params)
	if err != nil {
		return r, false, []logs.PendingLog{logs.Error("failed to submit withdrawal transaction", err,
			append(requestAttrs(r), slog.Uint64("nonce", nonce))...)}
	}
	next, l := transition(r, request.Submitted{TxHash: hash})
	return next, true, append(l, logs.Info("submitted withdrawal transaction",
		append(requestAttrs(r), slog.Uint64("nonce", nonce), slog.String("value", value.Dec()), slog.String("txHash", hash.Hex()))...))
}

// withdrawalValue is balance - (estimate + margin) * price. The gas limit
// used for the transaction is estimate + margin.
func withdrawalValue(balance *uint256.Int, estimate, margin uint64, price *uint256.Int) (uint64, *uint256.Int, error) {
	if estimate > math.MaxUint64-margin {
		return 0, nil, txbuilder.ErrValueOverflow
	}
	gasLimit := estimate + margin
	cost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(gasLimit), price)
	if overflow {
		return gasLimit, nil, txbuilder.ErrValueOverflow
	}
	if !balance.Gt(cost) {
		return gasLimit, nil, errNonPositiveValue
	}
	return gasLimit, new(uint256.Int).Sub(balance, cost), nil
}
