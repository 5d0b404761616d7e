package provider

import (
	"context"

	"golang.org/x/sync/errgroup"

	"rrpnode/internal/logs"
	"rrpnode/internal/request"
	"rrpnode/internal/transactions"
	"rrpnode/internal/txbuilder"
)

type GasResolver interface {
	Resolve(ctx context.Context) (*txbuilder.GasTarget, []logs.PendingLog)
}

type ApiResolver interface {
	Resolve(ctx context.Context, calls []request.Request[request.ApiCall]) ([]request.Request[request.ApiCall], []logs.PendingLog)
}

type Submitter interface {
	Submit(ctx context.Context, in transactions.Input) (request.GroupedRequests, []logs.PendingLog)
}

type Processor struct {
	gas       GasResolver
	api       ApiResolver
	submitter Submitter
}

// NewProcessor wires the cycle stages. api may be nil when requests arrive
// with their responses already attached.
func NewProcessor(gas GasResolver, api ApiResolver, submitter Submitter) *Processor {
	return &Processor{gas: gas, api: api, submitter: submitter}
}

// Process resolves the gas target and the API calls side by side, then
// hands both to the submitter. API resolution does not wait for the gas
// target: when gas cannot be resolved nothing is submitted, but the Errored
// and Blocked statuses set by the resolver are still part of the result.
func (p *Processor) Process(ctx context.Context, s State) (State, []logs.PendingLog) {
	var (
		gas      *txbuilder.GasTarget
		gasLogs  []logs.PendingLog
		apiCalls = s.Requests.ApiCalls
		apiLogs  []logs.PendingLog
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		gas, gasLogs = p.gas.Resolve(egCtx)
		return nil
	})
	if p.api != nil {
		eg.Go(func() error {
			apiCalls, apiLogs = p.api.Resolve(egCtx, s.Requests.ApiCalls)
			return nil
		})
	}
	_ = eg.Wait()

	resolved := request.GroupedRequests{ApiCalls: apiCalls, Withdrawals: s.Requests.Withdrawals}
	out, submitLogs := p.submitter.Submit(ctx, transactions.Input{
		Requests:          resolved,
		GasTarget:         gas,
		TransactionCounts: s.TransactionCountsBySponsor,
	})

	pending := make([]logs.PendingLog, 0, len(gasLogs)+len(apiLogs)+len(submitLogs))
	pending = append(pending, gasLogs...)
	pending = append(pending, apiLogs...)
	pending = append(pending, submitLogs...)
	return Aggregate(s, out, gas), pending
}
