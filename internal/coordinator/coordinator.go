package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rrpnode/internal/metrics"
	"rrpnode/internal/provider"
	"rrpnode/internal/request"
	"rrpnode/internal/worker"
)

type Coordinator struct {
	invoker     worker.Invoker
	settings    Settings
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

func New(invoker worker.Invoker, settings Settings, concurrency int, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		invoker:     invoker,
		settings:    settings,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// RunCycle initializes and processes every provider through the worker
// invoker. A provider whose worker fails keeps the state it came in with.
func (c *Coordinator) RunCycle(ctx context.Context, providers []provider.State) State {
	start := c.now()
	state := NewState(c.settings, providers, start)
	logger := c.logger.With("coordinatorId", state.ID.String())
	logger.Info("coordinator cycle started", "providers", len(providers))

	results := make([]provider.State, len(providers))
	failed := make([]bool, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, p := range providers {
		i, p := i, p
		g.Go(func() error {
			next, err := c.runProvider(gctx, p)
			if err != nil {
				failed[i] = true
				metrics.ProviderErrors.WithLabelValues(p.ChainID, p.ProviderName).Inc()
				logger.Error("provider cycle failed", "chainId", p.ChainID, "provider", p.ProviderName, "error", err)
				results[i] = p
				return nil
			}
			results[i] = next
			return nil
		})
	}
	_ = g.Wait()

	state = state.WithProviders(results).Completed(c.now())

	outcome := "ok"
	for _, f := range failed {
		if f {
			outcome = "partial"
			break
		}
	}
	metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	metrics.CycleDuration.Observe(state.CompletedAt.Sub(start).Seconds())
	logger.Info("coordinator cycle finished",
		"outcome", outcome,
		"duration", state.CompletedAt.Sub(start).String(),
		requestTally(state.Providers))
	return state
}

func requestTally(providers []provider.State) slog.Attr {
	total := make(map[request.Kind]int)
	for _, p := range providers {
		for k, n := range p.Requests.CountByKind() {
			total[k] += n
		}
	}
	attrs := make([]any, 0, 2*len(total))
	for k := request.KindPending; k <= request.KindErrored; k++ {
		if total[k] > 0 {
			attrs = append(attrs, k.String(), total[k])
		}
	}
	return slog.Group("requests", attrs...)
}

func (c *Coordinator) runProvider(ctx context.Context, p provider.State) (provider.State, error) {
	initialized, err := worker.Call[provider.State, provider.State](ctx, c.invoker, worker.FunctionInitializeProvider, p.Identity())
	if err != nil {
		return p, fmt.Errorf("initialize provider: %w", err)
	}
	processed, err := worker.Call[provider.State, provider.State](ctx, c.invoker, worker.FunctionProcessProviderRequests, initialized)
	if err != nil {
		return p, fmt.Errorf("process provider requests: %w", err)
	}
	return processed, nil
}
