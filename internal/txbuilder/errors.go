package txbuilder

import (
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type EstimateGasError struct {
	Err     error
	CallMsg ethereum.CallMsg
}

func (e *EstimateGasError) Error() string {
	if e == nil || e.Err == nil {
		return "estimate gas failed"
	}
	return "estimate gas failed: " + e.Err.Error()
}

func (e *EstimateGasError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StaticCallError means the simulated call could not be made, not that the
// callback would fail.
type StaticCallError struct {
	Err     error
	CallMsg ethereum.CallMsg
}

func (e *StaticCallError) Error() string {
	if e == nil || e.Err == nil {
		return "static call failed"
	}
	return "static call failed: " + e.Err.Error()
}

func (e *StaticCallError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type BroadcastError struct {
	Err    error
	TxHash common.Hash
	Nonce  uint64
}

func (e *BroadcastError) Error() string {
	if e == nil || e.Err == nil {
		return "broadcast failed"
	}
	return fmt.Sprintf("broadcast of %s (nonce %d) failed: %v", e.TxHash.Hex(), e.Nonce, e.Err)
}

func (e *BroadcastError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
