package transactions

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"rrpnode/internal/logs"
	"rrpnode/internal/request"
	"rrpnode/internal/txbuilder"
)

// Chain is what the submitter needs from the AirnodeRrp contract.
// *txbuilder.Sender implements it.
type Chain interface {
	StaticFulfill(ctx context.Context, from common.Address, call txbuilder.FulfillCall) (bool, error)
	EstimateWithdrawalGas(ctx context.Context, from common.Address, call txbuilder.WithdrawalCall) (uint64, error)
	Balance(ctx context.Context, addr common.Address) (*uint256.Int, error)
	Fulfill(ctx context.Context, from common.Address, call txbuilder.FulfillCall, p txbuilder.BuildParams) (common.Hash, error)
	Fail(ctx context.Context, from common.Address, call txbuilder.FailCall, p txbuilder.BuildParams) (common.Hash, error)
	FulfillWithdrawal(ctx context.Context, from common.Address, call txbuilder.WithdrawalCall, p txbuilder.BuildParams) (common.Hash, error)
}

type Config struct {
	ApiCallGasLimit       uint64
	WithdrawalGasMargin   uint64
	MaxRequestsPerSponsor int
	SponsorConcurrency    int
}

type Input struct {
	Requests          request.GroupedRequests
	GasTarget         *txbuilder.GasTarget
	TransactionCounts map[common.Address]uint64
}

type Submitter struct {
	chain Chain
	cfg   Config
}

func NewSubmitter(chain Chain, cfg Config) *Submitter {
	if cfg.ApiCallGasLimit == 0 {
		cfg.ApiCallGasLimit = 500_000
	}
	if cfg.WithdrawalGasMargin == 0 {
		cfg.WithdrawalGasMargin = 20_000
	}
	if cfg.SponsorConcurrency <= 0 {
		cfg.SponsorConcurrency = 8
	}
	return &Submitter{chain: chain, cfg: cfg}
}

// Submit returns a new GroupedRequests with nonces assigned and, when a gas
// target is available, one transaction sent per eligible request. The input
// is never modified. Per-request failures are reported as pending logs and
// never abort the batch.
func (s *Submitter) Submit(ctx context.Context, in Input) (request.GroupedRequests, []logs.PendingLog) {
	out := in.Requests.Clone()
	groups := out.BySponsor()

	var pending []logs.PendingLog
	ready := make([]bool, len(groups))
	for gi, g := range groups {
		base, ok := in.TransactionCounts[g.Sponsor]
		if !ok {
			pending = append(pending, logs.Warn("transaction count unavailable, skipping sponsor",
				slog.String("sponsorAddress", g.Sponsor.Hex())))
			continue
		}
		plan := planGroup(g.Entries, s.cfg.MaxRequestsPerSponsor)
		nonces := txbuilder.AssignNonces(base, plannedKinds(g.Entries, plan))
		applyNonces(&out, g.Entries, nonces)
		if in.GasTarget != nil {
			pending = append(pending, applyPlan(&out, g.Entries, plan)...)
		}
		ready[gi] = true
	}

	if in.GasTarget == nil {
		pending = append(pending, logs.Warn("no gas target, skipping transaction submission"))
		return out, pending
	}
	gas := *in.GasTarget

	groupLogs := make([][]logs.PendingLog, len(groups))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.SponsorConcurrency)
	for gi, g := range groups {
		if !ready[gi] {
			continue
		}
		gi, g := gi, g
		eg.Go(func() error {
			groupLogs[gi] = s.submitGroup(egCtx, &out, g, gas)
			return nil
		})
	}
	_ = eg.Wait()
	for _, l := range groupLogs {
		pending = append(pending, l...)
	}
	return out, pending
}

// submitGroup runs one sponsor's requests strictly in order. Groups touch
// disjoint indices of out, so they can run side by side.
//
// Once a request of the group fails to leave the node, later requests of the
// same sponsor keep their nonce and status and are retried next cycle. Sending
// them would leave a nonce gap that stalls every one of them in the mempool.
func (s *Submitter) submitGroup(ctx context.Context, out *request.GroupedRequests, g request.SponsorGroup, gas txbuilder.GasTarget) []logs.PendingLog {
	var (
		pending []logs.PendingLog
		gap     *uint64
	)
	for _, e := range g.Entries {
		switch e.Type {
		case request.TypeApiCall:
			r := out.ApiCalls[e.Index]
			nonce, ok := r.AssignedNonce()
			if !ok || !r.Eligible() {
				continue
			}
			if gap != nil {
				pending = append(pending, skippedAfterGap(r.ID, nonce, *gap))
				continue
			}
			next, sent, l := s.submitApiCall(ctx, r, nonce, gas)
			out.ApiCalls[e.Index] = next
			pending = append(pending, l...)
			if !sent {
				gap = &nonce
			}
		case request.TypeWithdrawal:
			r := out.Withdrawals[e.Index]
			nonce, ok := r.AssignedNonce()
			if !ok || !r.Eligible() {
				continue
			}
			if gap != nil {
				pending = append(pending, skippedAfterGap(r.ID, nonce, *gap))
				continue
			}
			next, sent, l := s.submitWithdrawal(ctx, r, nonce, gas)
			out.Withdrawals[e.Index] = next
			pending = append(pending, l...)
			if !sent {
				gap = &nonce
			}
		}
	}
	return pending
}

func skippedAfterGap(id common.Hash, nonce, gap uint64) logs.PendingLog {
	return logs.Info("not submitting, earlier nonce of sponsor was not used this cycle",
		slog.String("requestId", id.Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("unusedNonce", gap))
}

func applyNonces(out *request.GroupedRequests, entries []request.Entry, nonces []*uint64) {
	for i, e := range entries {
		if nonces[i] == nil {
			continue
		}
		switch e.Type {
		case request.TypeApiCall:
			out.ApiCalls[e.Index] = out.ApiCalls[e.Index].WithNonce(*nonces[i])
		case request.TypeWithdrawal:
			out.Withdrawals[e.Index] = out.Withdrawals[e.Index].WithNonce(*nonces[i])
		}
	}
}

func applyPlan(out *request.GroupedRequests, entries []request.Entry, plan []request.Status) []logs.PendingLog {
	var pending []logs.PendingLog
	for i, e := range entries {
		if plan[i] == nil {
			continue
		}
		var l []logs.PendingLog
		switch e.Type {
		case request.TypeApiCall:
			out.ApiCalls[e.Index], l = transition(out.ApiCalls[e.Index], plan[i])
		case request.TypeWithdrawal:
			out.Withdrawals[e.Index], l = transition(out.Withdrawals[e.Index], plan[i])
		}
		pending = append(pending, l...)
	}
	return pending
}

// transition applies next and describes the change. An illegal transition
// leaves the request as it was.
func transition[T request.Payload](r request.Request[T], next request.Status) (request.Request[T], []logs.PendingLog) {
	updated, err := r.Apply(next)
	if err != nil {
		return r, []logs.PendingLog{logs.Error("refusing status change", err, requestAttrs(r)...)}
	}
	attrs := append(requestAttrs(r), slog.String("status", next.Kind().String()))
	if reason, ok := updated.ErrorMessage(); ok {
		attrs = append(attrs, slog.String("reason", string(reason)))
	}
	level := logs.Info
	if next.Kind() == request.KindBlocked || next.Kind() == request.KindIgnored {
		level = logs.Warn
	}
	return updated, []logs.PendingLog{level("request status changed", attrs...)}
}

func requestAttrs[T request.Payload](r request.Request[T]) []slog.Attr {
	return []slog.Attr{
		slog.String("requestId", r.ID.Hex()),
		slog.String("type", r.Type().String()),
		slog.String("sponsorAddress", r.SponsorAddress.Hex()),
	}
}
