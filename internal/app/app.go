package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"rrpnode/internal/api"
	"rrpnode/internal/apicall"
	"rrpnode/internal/checkpoint"
	"rrpnode/internal/config"
	"rrpnode/internal/coordinator"
	"rrpnode/internal/evm"
	"rrpnode/internal/keys"
	"rrpnode/internal/provider"
	"rrpnode/internal/transactions"
	"rrpnode/internal/txbuilder"
	"rrpnode/internal/worker"
)

type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// node is everything Run needs once the chains are dialed.
type node struct {
	coordinator *coordinator.Coordinator
	providers   []provider.State
	server      *api.Server
	last        *api.LastCycle
	report      *Report
	checkpoint  *checkpoint.Store
	closers     []func()
}

func (a *App) Run(ctx context.Context) error {
	n, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range n.closers {
			c()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.server.Start(gctx)
	})
	g.Go(func() error {
		return a.loop(gctx, n)
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}

func (a *App) loop(ctx context.Context, n *node) error {
	ticker := time.NewTicker(a.cfg.Node.CycleInterval.Duration)
	defer ticker.Stop()
	for {
		st := n.coordinator.RunCycle(ctx, n.providers)
		n.last.Set(st)
		n.providers = st.Providers
		if err := n.report.Write(st); err != nil {
			a.logger.Error("cycle report write failed", "error", err)
		}
		if err := n.checkpoint.Save(cycleCheckpoint(st)); err != nil {
			a.logger.Error("checkpoint save failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
		}
	}
}

func (a *App) build(ctx context.Context) (*node, error) {
	cfg := a.cfg
	wallets, err := keys.NewManager(cfg.KeyStore.Dir, os.Getenv(cfg.KeyStore.PassphraseEnv))
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	if len(wallets.Wallets()) == 0 {
		a.logger.Warn("keystore has no sponsor wallets", "dir", cfg.KeyStore.Dir)
	}

	local := worker.NewLocal()
	invoker, err := worker.New(cfg, local)
	if err != nil {
		return nil, err
	}
	var executor apicall.Executor
	if cfg.ApiExecutor.URL != "" {
		local.Register(worker.FunctionCallApi, apicall.Handler(apicall.NewHTTPExecutor(
			cfg.ApiExecutor.URL, os.Getenv(cfg.ApiExecutor.AuthTokenEnv), cfg.Performance.RequestTimeout.Duration)))
		executor = apicall.NewWorkerExecutor(invoker)
	}

	n := &node{
		last:       &api.LastCycle{},
		report:     NewReport(cfg.Output.JSONLPath),
		checkpoint: checkpoint.New(cfg.Checkpoint.Path),
	}
	if prev, ok, err := n.checkpoint.Load(); err != nil {
		a.logger.Warn("checkpoint unreadable, starting fresh", "path", cfg.Checkpoint.Path, "error", err)
	} else if ok {
		a.logger.Info("resuming after previous cycle", "cycleId", prev.ID, "completedAt", prev.CompletedAt)
	}
	runtimes := make(map[string]*provider.Runtime)
	balances := make(map[string]api.BalanceReader)
	for _, chain := range cfg.Chains {
		names := make([]string, 0, len(chain.Providers))
		for name := range chain.Providers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			client, err := evm.Dial(ctx, chain.Providers[name].URL, chain.ID, chain.RateLimit.RPS, chain.RateLimit.Burst)
			if err != nil {
				return nil, fmt.Errorf("dial chain %s provider %s: %w", chain.ID, name, err)
			}
			n.closers = append(n.closers, client.Close)

			st := provider.New(chain.ID, name, chain.AirnodeRrpAddress())
			rt, sender, err := a.runtime(client, wallets, executor, chain, name)
			if err != nil {
				return nil, err
			}
			runtimes[st.Key()] = rt
			if _, ok := balances[chain.ID]; !ok {
				balances[chain.ID] = sender
			}
			n.providers = append(n.providers, st)
			a.logger.Info("provider ready", "chainId", chain.ID, "provider", name)
		}
	}
	provider.Register(local, runtimes)

	settings := coordinator.Settings{
		AirnodeAddress: cfg.AirnodeAddress(),
		Stage:          cfg.Node.Stage,
		CloudProvider:  cfg.Node.CloudProvider.Type,
	}
	n.coordinator = coordinator.New(invoker, settings, len(n.providers), a.logger)
	n.server = api.NewServer(cfg, a.logger, wallets, balances, n.last, worker.Serve(local))
	return n, nil
}

func (a *App) runtime(client txbuilder.ChainClient, signer txbuilder.Signer, executor apicall.Executor, chain config.Chain, name string) (*provider.Runtime, *txbuilder.Sender, error) {
	cfg := a.cfg
	sender, err := txbuilder.NewSenderFromConfig(client, signer, cfg, chain)
	if err != nil {
		return nil, nil, fmt.Errorf("chain %s: %w", chain.ID, err)
	}
	oracle, err := txbuilder.NewGasOracleFromConfig(client, cfg, chain)
	if err != nil {
		return nil, nil, fmt.Errorf("chain %s: %w", chain.ID, err)
	}
	// Authorization runs even without an executor; calls then proceed only
	// when they already carry a response.
	resolver := apicall.NewResolver(apicall.NewRequesterAuthorizer(chain.AuthorizedRequesters), executor, cfg.Performance.SponsorConcurrency)
	submitter := transactions.NewSubmitter(sender, transactions.Config{
		ApiCallGasLimit:       cfg.Tx.ApiCallGasLimit,
		WithdrawalGasMargin:   cfg.Tx.WithdrawalGasMargin,
		MaxRequestsPerSponsor: cfg.Tx.MaxRequestsPerSponsor,
		SponsorConcurrency:    cfg.Performance.SponsorConcurrency,
	})
	return &provider.Runtime{
		Reader:            sender,
		Source:            provider.FileSource{Path: chain.RequestsPath},
		Processor:         provider.NewProcessor(oracle, resolver, submitter),
		IgnoreAfterBlocks: chain.IgnoreAfterBlocks(),
		Retry: provider.RetryPolicy{
			Max:     cfg.Performance.RetryMax,
			Backoff: cfg.Performance.RetryBackoff.Duration,
		},
		Logger: a.logger.With("chainId", chain.ID, "provider", name),
	}, sender, nil
}

func cycleCheckpoint(st coordinator.State) checkpoint.Cycle {
	blocks := make(map[string]uint64, len(st.Providers))
	for _, p := range st.Providers {
		blocks[p.Key()] = p.CurrentBlock
	}
	return checkpoint.Cycle{ID: st.ID.String(), CompletedAt: st.CompletedAt, Blocks: blocks}
}
