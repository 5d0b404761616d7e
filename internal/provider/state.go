package provider

import (
	"maps"

	"github.com/ethereum/go-ethereum/common"

	"rrpnode/internal/request"
	"rrpnode/internal/txbuilder"
)

// State is one provider's working state for a single cycle. It is rebuilt
// from chain reads every cycle and only ever replaced, never edited.
type State struct {
	ChainID                    string                    `json:"chainId"`
	ProviderName               string                    `json:"providerName"`
	ContractAddress            common.Address            `json:"contractAddress"`
	CurrentBlock               uint64                    `json:"currentBlock"`
	Requests                   request.GroupedRequests   `json:"requests"`
	GasTarget                  *txbuilder.GasTarget      `json:"gasTarget"`
	TransactionCountsBySponsor map[common.Address]uint64 `json:"transactionCountsBySponsorAddress"`
}

func New(chainID, providerName string, contract common.Address) State {
	return State{
		ChainID:                    chainID,
		ProviderName:               providerName,
		ContractAddress:            contract,
		TransactionCountsBySponsor: map[common.Address]uint64{},
	}
}

func (s State) Key() string {
	return s.ChainID + "/" + s.ProviderName
}

func (s State) Clone() State {
	out := s
	out.Requests = s.Requests.Clone()
	out.GasTarget = cloneGasTarget(s.GasTarget)
	out.TransactionCountsBySponsor = maps.Clone(s.TransactionCountsBySponsor)
	if out.TransactionCountsBySponsor == nil {
		out.TransactionCountsBySponsor = map[common.Address]uint64{}
	}
	return out
}

// Identity keeps only what identifies the provider, dropping everything a
// cycle produced.
func (s State) Identity() State {
	return New(s.ChainID, s.ProviderName, s.ContractAddress)
}

// WithChainData returns the state after the cycle's chain reads.
func (s State) WithChainData(block uint64, requests request.GroupedRequests, counts map[common.Address]uint64) State {
	next := s.Clone()
	next.CurrentBlock = block
	next.Requests = requests.Clone()
	next.GasTarget = nil
	next.TransactionCountsBySponsor = maps.Clone(counts)
	if next.TransactionCountsBySponsor == nil {
		next.TransactionCountsBySponsor = map[common.Address]uint64{}
	}
	return next
}

// Aggregate folds the submitter's output and the resolved gas target, which
// may be nil, back into the provider state.
func Aggregate(s State, requests request.GroupedRequests, gas *txbuilder.GasTarget) State {
	next := s.Clone()
	next.Requests = requests.Clone()
	next.GasTarget = cloneGasTarget(gas)
	return next
}

func cloneGasTarget(g *txbuilder.GasTarget) *txbuilder.GasTarget {
	if g == nil {
		return nil
	}
	out := txbuilder.GasTarget{}
	if g.GasPrice != nil {
		out.GasPrice = g.GasPrice.Clone()
	}
	if g.MaxFeePerGas != nil {
		out.MaxFeePerGas = g.MaxFeePerGas.Clone()
	}
	if g.MaxPriorityFeePerGas != nil {
		out.MaxPriorityFeePerGas = g.MaxPriorityFeePerGas.Clone()
	}
	return &out
}
