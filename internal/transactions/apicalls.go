package transactions

import (
	"context"
	"log/slog"

	"rrpnode/internal/logs"
	"rrpnode/internal/request"
	"rrpnode/internal/txbuilder"
)

type apiCallRequest = request.Request[request.ApiCall]

// submitApiCall sends a fulfill transaction, or a fail transaction when the
// request errored upstream or the static fulfill reports the callback would
// fail. sent is false when no transaction left the node.
func (s *Submitter) submitApiCall(ctx context.Context, r apiCallRequest, nonce uint64, gas txbuilder.GasTarget) (apiCallRequest, bool, []logs.PendingLog) {
	params := txbuilder.BuildParams{Nonce: nonce, GasLimit: s.cfg.ApiCallGasLimit, Gas: gas}

	if errored, ok := r.Status.(request.Errored); ok {
		return s.fail(ctx, r, errored.Reason, params)
	}
	if r.Payload.Response == nil {
		return s.errorAndFail(ctx, r, request.ErrResponseValueNotFound, params)
	}

	call := txbuilder.FulfillCall{
		RequestID:      r.ID,
		Airnode:        r.AirnodeAddress,
		FulfillAddress: r.Payload.FulfillAddress,
		FunctionID:     r.Payload.FulfillFunctionID,
		Data:           r.Payload.Response.Value,
		Signature:      r.Payload.Response.Signature,
	}
	ok, err := s.chain.StaticFulfill(ctx, r.SponsorWalletAddress, call)
	if err != nil {
		return r, false, []logs.PendingLog{logs.Error("static fulfill call failed", err, requestAttrs(r)...)}
	}
	if !ok {
		return s.errorAndFail(ctx, r, request.ErrFulfillTransactionFailed, params)
	}

	hash, err := s.chain.Fulfill(ctx, r.SponsorWalletAddress, call, params)
	if err != nil {
		return r, false, []logs.PendingLog{logs.Error("failed to submit fulfill transaction", err,
			append(requestAttrs(r), slog.Uint64("nonce", nonce))...)}
	}
	next, l := transition(r, request.Submitted{TxHash: hash})
	return next, true, append(l, logs.Info("submitted fulfill transaction",
		append(requestAttrs(r), slog.Uint64("nonce", nonce), slog.String("txHash", hash.Hex()))...))
}

func (s *Submitter) errorAndFail(ctx context.Context, r apiCallRequest, reason request.ErrorMessage, params txbuilder.BuildParams) (apiCallRequest, bool, []logs.PendingLog) {
	errored, l := transition(r, request.Errored{Reason: reason})
	next, sent, more := s.fail(ctx, errored, reason, params)
	return next, sent, append(l, more...)
}

func (s *Submitter) fail(ctx context.Context, r apiCallRequest, reason request.ErrorMessage, params txbuilder.BuildParams) (apiCallRequest, bool, []logs.PendingLog) {
	call := txbuilder.FailCall{
		RequestID:      r.ID,
		Airnode:        r.AirnodeAddress,
		FulfillAddress: r.Payload.FulfillAddress,
		FunctionID:     r.Payload.FulfillFunctionID,
		ErrorMessage:   string(reason),
	}
	hash, err := s.chain.Fail(ctx, r.SponsorWalletAddress, call, params)
	if err != nil {
		return r, false, []logs.PendingLog{logs.Error("failed to submit fail transaction", err,
			append(requestAttrs(r), slog.Uint64("nonce", params.Nonce))...)}
	}
	next, l := transition(r, request.Submitted{TxHash: hash, FailReason: reason})
	return next, true, append(l, logs.Info("submitted fail transaction",
		append(requestAttrs(r), slog.Uint64("nonce", params.Nonce), slog.String("txHash", hash.Hex()), slog.String("reason", string(reason)))...))
}
