package txbuilder

import (
	"fmt"

	"rrpnode/internal/config"
)

func NewGasOracleFromConfig(client ChainClient, cfg *config.Config, chain config.Chain) (*GasOracle, error) {
	minTip, err := ParseWei(cfg.Tx.MinPriorityFeeWei)
	if err != nil {
		return nil, fmt.Errorf("tx.min_priority_fee_wei: %w", err)
	}
	return NewGasOracle(client, GasOracleConfig{
		FeeMarket:         chain.FeeMarket,
		BaseFeeMultiplier: cfg.Tx.BaseFeeMultiplier,
		MinPriorityFee:    minTip,
		Timeout:           cfg.Performance.RequestTimeout.Duration,
	}), nil
}

func NewSenderFromConfig(client ChainClient, signer Signer, cfg *config.Config, chain config.Chain) (*Sender, error) {
	chainID, err := chain.ChainID()
	if err != nil {
		return nil, err
	}
	return NewSender(NewBuilder(chainID), client, signer, SenderConfig{
		Contract:        chain.AirnodeRrpAddress(),
		ApiCallGasLimit: cfg.Tx.ApiCallGasLimit,
		Timeout:         cfg.Performance.RequestTimeout.Duration,
	}), nil
}
