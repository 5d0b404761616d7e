package txbuilder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const airnodeRrpABI = `[
  {"type":"function","name":"fulfill","stateMutability":"nonpayable",
   "inputs":[
     {"name":"requestId","type":"bytes32"},
     {"name":"airnode","type":"address"},
     {"name":"fulfillAddress","type":"address"},
     {"name":"fulfillFunctionId","type":"bytes4"},
     {"name":"data","type":"bytes"},
     {"name":"signature","type":"bytes"}],
   "outputs":[
     {"name":"callSuccess","type":"bool"},
     {"name":"callData","type":"bytes"}]},
  {"type":"function","name":"fail","stateMutability":"nonpayable",
   "inputs":[
     {"name":"requestId","type":"bytes32"},
     {"name":"airnode","type":"address"},
     {"name":"fulfillAddress","type":"address"},
     {"name":"fulfillFunctionId","type":"bytes4"},
     {"name":"errorMessage","type":"string"}],
   "outputs":[]},
  {"type":"function","name":"fulfillWithdrawal","stateMutability":"payable",
   "inputs":[
     {"name":"requestId","type":"bytes32"},
     {"name":"airnode","type":"address"},
     {"name":"sponsor","type":"address"}],
   "outputs":[]}
]`

var rrpABI = mustParseABI(airnodeRrpABI)

type FulfillCall struct {
	RequestID      common.Hash
	Airnode        common.Address
	FulfillAddress common.Address
	FunctionID     [4]byte
	Data           []byte
	Signature      []byte
}

type FailCall struct {
	RequestID      common.Hash
	Airnode        common.Address
	FulfillAddress common.Address
	FunctionID     [4]byte
	ErrorMessage   string
}

type WithdrawalCall struct {
	RequestID common.Hash
	Airnode   common.Address
	Sponsor   common.Address
}

func PackFulfill(c FulfillCall) ([]byte, error) {
	data, err := rrpABI.Pack("fulfill", [32]byte(c.RequestID), c.Airnode, c.FulfillAddress, c.FunctionID, c.Data, c.Signature)
	if err != nil {
		return nil, fmt.Errorf("pack fulfill: %w", err)
	}
	return data, nil
}

func PackFail(c FailCall) ([]byte, error) {
	data, err := rrpABI.Pack("fail", [32]byte(c.RequestID), c.Airnode, c.FulfillAddress, c.FunctionID, c.ErrorMessage)
	if err != nil {
		return nil, fmt.Errorf("pack fail: %w", err)
	}
	return data, nil
}

func PackFulfillWithdrawal(c WithdrawalCall) ([]byte, error) {
	data, err := rrpABI.Pack("fulfillWithdrawal", [32]byte(c.RequestID), c.Airnode, c.Sponsor)
	if err != nil {
		return nil, fmt.Errorf("pack fulfillWithdrawal: %w", err)
	}
	return data, nil
}

// UnpackFulfillResult decodes the return data of a static fulfill call.
func UnpackFulfillResult(out []byte) (bool, []byte, error) {
	values, err := rrpABI.Unpack("fulfill", out)
	if err != nil {
		return false, nil, fmt.Errorf("unpack fulfill: %w", err)
	}
	if len(values) != 2 {
		return false, nil, errors.New("unexpected fulfill return values")
	}
	ok, isBool := values[0].(bool)
	callData, isBytes := values[1].([]byte)
	if !isBool || !isBytes {
		return false, nil, errors.New("unexpected fulfill return types")
	}
	return ok, callData, nil
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
