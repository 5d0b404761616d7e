package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"rrpnode/internal/logs"
	"rrpnode/internal/metrics"
	"rrpnode/internal/request"
	"rrpnode/internal/worker"
)

// Runtime is everything a worker needs to run one provider's stages.
type Runtime struct {
	Reader            ChainReader
	Source            Source
	Processor         *Processor
	IgnoreAfterBlocks uint64
	Retry             RetryPolicy
	Logger            *slog.Logger
}

// Register installs the initializeProvider and processProviderRequests
// handlers. runtimes is keyed by State.Key. Logs are emitted where the
// stage runs; only the state travels back to the caller.
func Register(l *worker.Local, runtimes map[string]*Runtime) {
	l.Register(worker.FunctionInitializeProvider, handler(runtimes, func(ctx context.Context, rt *Runtime, s State) (State, error) {
		next, pending, err := Initialize(ctx, s, rt.Reader, rt.Source, rt.IgnoreAfterBlocks, rt.Retry)
		logs.Emit(ctx, rt.Logger, pending)
		return next, err
	}))
	l.Register(worker.FunctionProcessProviderRequests, handler(runtimes, func(ctx context.Context, rt *Runtime, s State) (State, error) {
		next, pending := rt.Processor.Process(ctx, s)
		logs.Emit(ctx, rt.Logger, pending)
		Observe(next)
		return next, nil
	}))
}

func handler(runtimes map[string]*Runtime, run func(context.Context, *Runtime, State) (State, error)) worker.Handler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var s State
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("decode provider state: %w", err)
		}
		rt, ok := runtimes[s.Key()]
		if !ok {
			return nil, fmt.Errorf("no runtime for provider %s", s.Key())
		}
		next, err := run(ctx, rt, s)
		if err != nil {
			return nil, err
		}
		return json.Marshal(next)
	}
}

// Observe publishes the end-of-cycle gauges for one provider.
func Observe(s State) {
	if s.GasTarget == nil {
		metrics.GasTargetMissing.WithLabelValues(s.ChainID, s.ProviderName).Inc()
	} else {
		f, _ := new(big.Float).SetInt(s.GasTarget.EffectivePrice().ToBig()).Float64()
		metrics.GasPriceWei.WithLabelValues(s.ChainID, s.ProviderName).Set(f)
	}

	counts := map[request.Type]map[request.Kind]int{
		request.TypeApiCall:    {},
		request.TypeWithdrawal: {},
	}
	for _, r := range s.Requests.ApiCalls {
		counts[request.TypeApiCall][r.Kind()]++
	}
	for _, r := range s.Requests.Withdrawals {
		counts[request.TypeWithdrawal][r.Kind()]++
	}
	for typ, byKind := range counts {
		for k := request.KindPending; k <= request.KindErrored; k++ {
			metrics.RequestsByStatus.WithLabelValues(s.ChainID, s.ProviderName, typ.String(), k.String()).Set(float64(byKind[k]))
		}
	}
}
