package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"rrpnode/internal/config"
	"rrpnode/internal/evm"
	"rrpnode/internal/request"
	"rrpnode/internal/txbuilder"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	mode := flag.String("mode", "gas", "gas|wallet|calldata")
	chainID := flag.String("chain", "", "chain id (defaults to the first configured chain)")
	providerName := flag.String("provider", "", "provider name (defaults to the first provider of the chain)")
	wallet := flag.String("wallet", "", "sponsor wallet address (wallet mode)")

	kind := flag.String("kind", "fulfill", "fulfill|fail|withdrawal (calldata mode)")
	requestID := flag.String("request-id", "", "request id")
	sponsor := flag.String("sponsor", "", "sponsor address (withdrawal)")
	fulfillAddress := flag.String("fulfill-address", "", "fulfill address")
	functionID := flag.String("function-id", "", "fulfill function id, 4 bytes hex")
	data := flag.String("data", "0x", "encoded response value")
	signature := flag.String("signature", "0x", "response signature")
	errorMessage := flag.String("error-message", string(request.ErrApiCallFailed), "fail reason")

	debug := flag.Bool("debug", false, "enable debug logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	ctx := context.Background()

	if *mode == "calldata" {
		out, err := calldata(cfg, *kind, *requestID, *sponsor, *fulfillAddress, *functionID, *data, *signature, *errorMessage)
		if err != nil {
			logger.Error("calldata build failed", "error", err)
			os.Exit(1)
		}
		logger.Info("calldata", "kind", *kind, "selector", hexutil.Encode(out[:4]), "data", hexutil.Encode(out))
		return
	}

	chain, url, err := pickProvider(cfg, *chainID, *providerName)
	if err != nil {
		logger.Error("provider selection failed", "error", err)
		os.Exit(1)
	}
	client, err := evm.Dial(ctx, url, chain.ID, chain.RateLimit.RPS, chain.RateLimit.Burst)
	if err != nil {
		logger.Error("rpc dial failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	switch *mode {
	case "gas":
		oracle, err := txbuilder.NewGasOracleFromConfig(client, cfg, chain)
		if err != nil {
			logger.Error("gas oracle init failed", "error", err)
			os.Exit(1)
		}
		target, pending := oracle.Resolve(ctx)
		for _, p := range pending {
			logger.LogAttrs(ctx, p.Level, p.Message, p.Attrs...)
		}
		if target == nil {
			logger.Error("no gas target", "chainId", chain.ID)
			os.Exit(1)
		}
		logger.Info("gas target", "chainId", chain.ID, "target", target, "effectivePriceWei", target.EffectivePrice().Dec())
	case "wallet":
		addr, err := parseAddressRequired("wallet", *wallet)
		if err != nil {
			logger.Error("invalid wallet", "error", err)
			os.Exit(1)
		}
		sender, err := txbuilder.NewSenderFromConfig(client, nil, cfg, chain)
		if err != nil {
			logger.Error("sender init failed", "error", err)
			os.Exit(1)
		}
		nonce, err := sender.TransactionCount(ctx, addr)
		if err != nil {
			logger.Error("nonce fetch failed", "error", err)
			os.Exit(1)
		}
		balance, err := sender.Balance(ctx, addr)
		if err != nil {
			logger.Error("balance fetch failed", "error", err)
			os.Exit(1)
		}
		logger.Info("sponsor wallet", "chainId", chain.ID, "address", addr.Hex(), "nonce", nonce, "balanceWei", balance.Dec())
	default:
		logger.Error("unknown mode", "mode", *mode)
		os.Exit(1)
	}
}

func pickProvider(cfg *config.Config, chainID, name string) (config.Chain, string, error) {
	chain := cfg.Chains[0]
	if chainID != "" {
		c, ok := cfg.Chain(chainID)
		if !ok {
			return config.Chain{}, "", fmt.Errorf("chain %s not configured", chainID)
		}
		chain = c
	}
	if name == "" {
		names := make([]string, 0, len(chain.Providers))
		for n := range chain.Providers {
			names = append(names, n)
		}
		sort.Strings(names)
		name = names[0]
	}
	p, ok := chain.Providers[name]
	if !ok {
		return config.Chain{}, "", fmt.Errorf("provider %s not configured for chain %s", name, chain.ID)
	}
	return chain, p.URL, nil
}

func calldata(cfg *config.Config, kind, requestID, sponsor, fulfillAddress, functionID, data, signature, errorMessage string) ([]byte, error) {
	id, err := parseHashRequired("request-id", requestID)
	if err != nil {
		return nil, err
	}
	airnode := cfg.AirnodeAddress()

	switch strings.ToLower(kind) {
	case "withdrawal":
		sponsorAddr, err := parseAddressRequired("sponsor", sponsor)
		if err != nil {
			return nil, err
		}
		return txbuilder.PackFulfillWithdrawal(txbuilder.WithdrawalCall{RequestID: id, Airnode: airnode, Sponsor: sponsorAddr})
	case "fulfill", "fail":
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}

	to, err := parseAddressRequired("fulfill-address", fulfillAddress)
	if err != nil {
		return nil, err
	}
	var fn request.FunctionID
	if err := fn.UnmarshalText([]byte(functionID)); err != nil {
		return nil, fmt.Errorf("function-id: %w", err)
	}
	if strings.ToLower(kind) == "fail" {
		return txbuilder.PackFail(txbuilder.FailCall{
			RequestID: id, Airnode: airnode, FulfillAddress: to, FunctionID: fn, ErrorMessage: errorMessage,
		})
	}
	value, err := hexutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	return txbuilder.PackFulfill(txbuilder.FulfillCall{
		RequestID: id, Airnode: airnode, FulfillAddress: to, FunctionID: fn, Data: value, Signature: sig,
	})
}

func parseAddressRequired(name, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, errors.New(name + " is required")
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address", name)
	}
	return common.HexToAddress(value), nil
}

func parseHashRequired(name, value string) (common.Hash, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Hash{}, errors.New(name + " is required")
	}
	b, err := hexutil.Decode(value)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid %s", name)
	}
	return common.BytesToHash(b), nil
}
