package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"rrpnode/internal/logs"
	"rrpnode/internal/request"
	"rrpnode/internal/util"
)

type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionCount(ctx context.Context, addr common.Address) (uint64, error)
}

type RetryPolicy struct {
	Max     int
	Backoff time.Duration
}

// Initialize reads the current block, the decoded requests and the
// transaction count of every sponsor wallet. A sponsor whose count cannot be
// read is left out of the map and skipped by the submitter this cycle.
func Initialize(ctx context.Context, s State, reader ChainReader, src Source, ignoreAfterBlocks uint64, retry RetryPolicy) (State, []logs.PendingLog, error) {
	var block uint64
	err := util.Retry(ctx, retry.Max, retry.Backoff, func() error {
		var err error
		block, err = reader.BlockNumber(ctx)
		return giveUpOnCancel(err)
	})
	if err != nil {
		return s, nil, fmt.Errorf("fetch current block: %w", err)
	}

	grouped, err := src.Requests(ctx)
	if err != nil {
		return s, nil, fmt.Errorf("load requests: %w", err)
	}
	grouped = withBlockContext(grouped.Sorted(), block, ignoreAfterBlocks)

	var pending []logs.PendingLog
	counts := make(map[common.Address]uint64)
	for sponsor, wallet := range grouped.Sponsors() {
		var count uint64
		err := util.Retry(ctx, retry.Max, retry.Backoff, func() error {
			var err error
			count, err = reader.TransactionCount(ctx, wallet)
			return giveUpOnCancel(err)
		})
		if err != nil {
			pending = append(pending, logs.Error("failed to fetch sponsor wallet transaction count", err,
				slog.String("sponsorAddress", sponsor.Hex()),
				slog.String("sponsorWalletAddress", wallet.Hex())))
			continue
		}
		counts[sponsor] = count
	}

	pending = append(pending, logs.Info("provider initialized",
		slog.Uint64("currentBlock", block),
		slog.Int("apiCalls", len(grouped.ApiCalls)),
		slog.Int("withdrawals", len(grouped.Withdrawals)),
		slog.Int("sponsors", len(counts))))
	return s.WithChainData(block, grouped, counts), pending, nil
}

func giveUpOnCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return util.Permanent(err)
	}
	return err
}

func withBlockContext(g request.GroupedRequests, block, ignoreAfterBlocks uint64) request.GroupedRequests {
	for i := range g.ApiCalls {
		g.ApiCalls[i].Metadata.CurrentBlock = block
		g.ApiCalls[i].Metadata.IgnoreAfterBlocks = ignoreAfterBlocks
	}
	for i := range g.Withdrawals {
		g.Withdrawals[i].Metadata.CurrentBlock = block
		g.Withdrawals[i].Metadata.IgnoreAfterBlocks = ignoreAfterBlocks
	}
	return g
}
