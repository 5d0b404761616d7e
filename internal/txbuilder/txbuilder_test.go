package txbuilder

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"rrpnode/internal/request"
	"rrpnode/internal/txbuilder/mocks"
)

var (
	contract  = common.HexToAddress("0x197F3826040dF832481f835652c290aC7c41f073")
	airnode   = common.HexToAddress("0xA30CA71Ba54E83127214D3271aEA8F5D6bD4Dace")
	fulfiller = common.HexToAddress("0x2222222222222222222222222222222222222222")
	requestID = common.HexToHash("0x894580d6cffd205170373f9b95adfe58b65d63f273bb9945e81fa5f0d7901ffe")
)

func TestPackFulfillArgumentOrder(t *testing.T) {
	call := FulfillCall{
		RequestID:      requestID,
		Airnode:        airnode,
		FulfillAddress: fulfiller,
		FunctionID:     [4]byte{0x48, 0xa4, 0x15, 0x7c},
		Data:           hexutil.MustDecode("0x000000000000000000000000000000000000000000000000000000000001252b"),
		Signature:      []byte{0x01, 0x02},
	}
	data, err := PackFulfill(call)
	require.NoError(t, err)
	require.Equal(t, rrpABI.Methods["fulfill"].ID, data[:4])

	args, err := rrpABI.Methods["fulfill"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, args, 6)
	assert.Equal(t, [32]byte(requestID), args[0])
	assert.Equal(t, airnode, args[1])
	assert.Equal(t, fulfiller, args[2])
	assert.Equal(t, [4]byte{0x48, 0xa4, 0x15, 0x7c}, args[3])
	assert.Equal(t, call.Data, args[4])
	assert.Equal(t, call.Signature, args[5])
}

func TestPackFailAndWithdrawal(t *testing.T) {
	data, err := PackFail(FailCall{
		RequestID:      requestID,
		Airnode:        airnode,
		FulfillAddress: fulfiller,
		ErrorMessage:   string(request.ErrApiCallFailed),
	})
	require.NoError(t, err)
	args, err := rrpABI.Methods["fail"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, string(request.ErrApiCallFailed), args[4])

	sponsor := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data, err = PackFulfillWithdrawal(WithdrawalCall{RequestID: requestID, Airnode: airnode, Sponsor: sponsor})
	require.NoError(t, err)
	assert.Equal(t, rrpABI.Methods["fulfillWithdrawal"].ID, data[:4])
	args, err = rrpABI.Methods["fulfillWithdrawal"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, sponsor, args[2])
}

func TestAssignNonces(t *testing.T) {
	kinds := []request.Kind{
		request.KindPending,
		request.KindFulfilled,
		request.KindErrored,
		request.KindIgnored,
		request.KindPending,
		request.KindBlocked,
	}
	got := AssignNonces(79, kinds)
	want := []any{uint64(79), nil, uint64(80), nil, uint64(81), nil}
	for i := range kinds {
		if want[i] == nil {
			assert.Nil(t, got[i], "index %d", i)
			continue
		}
		require.NotNil(t, got[i], "index %d", i)
		assert.Equal(t, want[i], *got[i], "index %d", i)
	}

	again := AssignNonces(79, kinds)
	for i := range got {
		assert.Equal(t, got[i] == nil, again[i] == nil)
		if got[i] != nil {
			assert.Equal(t, *got[i], *again[i])
		}
	}
}

func TestBuildLegacyAndDynamic(t *testing.T) {
	b := NewBuilder(big.NewInt(31337))

	tx, err := b.Build(contract, []byte{0x01}, BuildParams{
		Nonce:    212,
		GasLimit: 70_000,
		Gas:      LegacyTarget(uint256.NewInt(1000)),
		Value:    uint256.NewInt(180_000_000),
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, uint64(212), tx.Nonce())
	assert.Equal(t, int64(1000), tx.GasPrice().Int64())
	assert.Equal(t, int64(180_000_000), tx.Value().Int64())

	tx, err = b.Build(contract, nil, BuildParams{
		Nonce:    1,
		GasLimit: 500_000,
		Gas:      FeeMarketTarget(uint256.NewInt(2000), uint256.NewInt(100)),
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, int64(2000), tx.GasFeeCap().Int64())
	assert.Equal(t, int64(100), tx.GasTipCap().Int64())
	assert.Equal(t, int64(0), tx.Value().Int64())

	_, err = b.Build(contract, nil, BuildParams{Gas: LegacyTarget(uint256.NewInt(1))})
	require.Error(t, err)
	_, err = b.Build(contract, nil, BuildParams{GasLimit: 1, Gas: FeeMarketTarget(uint256.NewInt(1), uint256.NewInt(2))})
	require.Error(t, err)
}

func TestGasOracleLegacy(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockChainClient(ctrl)
	client.EXPECT().SuggestGasPrice(gomock.Any()).Return(big.NewInt(1000), nil)

	target, pending := NewGasOracle(client, GasOracleConfig{}).Resolve(context.Background())
	require.NotNil(t, target)
	assert.False(t, target.IsFeeMarket())
	assert.Equal(t, uint64(1000), target.EffectivePrice().Uint64())
	require.Len(t, pending, 1)
}

func TestGasOracleFeeMarket(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockChainClient(ctrl)
	client.EXPECT().HeaderByNumber(gomock.Any(), gomock.Nil()).Return(&types.Header{BaseFee: big.NewInt(100)}, nil)
	client.EXPECT().SuggestGasTipCap(gomock.Any()).Return(big.NewInt(5), nil)

	oracle := NewGasOracle(client, GasOracleConfig{
		FeeMarket:         true,
		BaseFeeMultiplier: 2,
		MinPriorityFee:    uint256.NewInt(10),
	})
	target, _ := oracle.Resolve(context.Background())
	require.NotNil(t, target)
	require.True(t, target.IsFeeMarket())
	// tip raised to the floor, max fee = 100*2 + 10
	assert.Equal(t, uint64(10), target.MaxPriorityFeePerGas.Uint64())
	assert.Equal(t, uint64(210), target.MaxFeePerGas.Uint64())
	assert.Equal(t, uint64(210), target.EffectivePrice().Uint64())
}

func TestGasOracleFallsBackToLegacyWithoutBaseFee(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockChainClient(ctrl)
	client.EXPECT().HeaderByNumber(gomock.Any(), gomock.Nil()).Return(&types.Header{}, nil)
	client.EXPECT().SuggestGasPrice(gomock.Any()).Return(big.NewInt(7), nil)

	target, _ := NewGasOracle(client, GasOracleConfig{FeeMarket: true}).Resolve(context.Background())
	require.NotNil(t, target)
	assert.False(t, target.IsFeeMarket())
	assert.Equal(t, uint64(7), target.GasPrice.Uint64())
}

func TestGasOracleFailureIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockChainClient(ctrl)
	client.EXPECT().SuggestGasPrice(gomock.Any()).Return(nil, errors.New("timeout")).Times(1)

	target, pending := NewGasOracle(client, GasOracleConfig{}).Resolve(context.Background())
	assert.Nil(t, target)
	require.Len(t, pending, 1)
	assert.EqualError(t, pending[0].Err, "timeout")
}

func TestParseWei(t *testing.T) {
	v, err := ParseWei("3120000000")
	require.NoError(t, err)
	assert.Equal(t, uint64(3_120_000_000), v.Uint64())

	v, err = ParseWei("0x00ff")
	require.NoError(t, err)
	assert.Equal(t, uint64(255), v.Uint64())

	v, err = ParseWei("0x0")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = ParseWei("-1")
	require.Error(t, err)
	_, err = ParseWei("")
	require.Error(t, err)
}

type keySigner struct {
	key *ecdsa.PrivateKey
}

func (s keySigner) SignTransaction(_ common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

func newTestSender(t *testing.T, client ChainClient) (*Sender, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	s := NewSender(NewBuilder(big.NewInt(31337)), client, keySigner{key}, SenderConfig{Contract: contract})
	return s, from
}

func TestSenderStaticFulfill(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockChainClient(ctrl)
	s, from := newTestSender(t, client)

	out, err := rrpABI.Methods["fulfill"].Outputs.Pack(false, []byte("reverted"))
	require.NoError(t, err)
	client.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Nil()).
		DoAndReturn(func(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			assert.Equal(t, from, msg.From)
			assert.Equal(t, uint64(500_000), msg.Gas)
			return out, nil
		})

	ok, err := s.StaticFulfill(context.Background(), from, FulfillCall{RequestID: requestID})
	require.NoError(t, err)
	assert.False(t, ok)

	client.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Nil()).Return(nil, errors.New("connection refused"))
	_, err = s.StaticFulfill(context.Background(), from, FulfillCall{RequestID: requestID})
	var staticErr *StaticCallError
	require.ErrorAs(t, err, &staticErr)
}

func TestSenderBroadcast(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockChainClient(ctrl)
	s, from := newTestSender(t, client)

	var sent *types.Transaction
	client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx *types.Transaction) error {
			sent = tx
			return nil
		})
	hash, err := s.FulfillWithdrawal(context.Background(), from, WithdrawalCall{RequestID: requestID, Airnode: airnode}, BuildParams{
		Nonce:    212,
		GasLimit: 70_000,
		Gas:      LegacyTarget(uint256.NewInt(1000)),
		Value:    uint256.NewInt(180_000_000),
	})
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, sent.Hash(), hash)
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), sent)
	require.NoError(t, err)
	assert.Equal(t, from, sender)

	client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).Return(errors.New("already known"))
	hash, err = s.Fail(context.Background(), from, FailCall{RequestID: requestID}, BuildParams{
		Nonce: 3, GasLimit: 500_000, Gas: LegacyTarget(uint256.NewInt(1000)),
	})
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).Return(errors.New("insufficient funds"))
	_, err = s.Fulfill(context.Background(), from, FulfillCall{RequestID: requestID}, BuildParams{
		Nonce: 4, GasLimit: 500_000, Gas: LegacyTarget(uint256.NewInt(1000)),
	})
	var broadcastErr *BroadcastError
	require.ErrorAs(t, err, &broadcastErr)
	assert.Equal(t, uint64(4), broadcastErr.Nonce)
}

func TestSenderBalanceAndEstimate(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockChainClient(ctrl)
	s, from := newTestSender(t, client)

	client.EXPECT().BalanceAt(gomock.Any(), from, gomock.Nil()).Return(big.NewInt(250_000_000), nil)
	bal, err := s.Balance(context.Background(), from)
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000_000), bal.Uint64())

	client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(0), errors.New("execution reverted"))
	_, err = s.EstimateWithdrawalGas(context.Background(), from, WithdrawalCall{RequestID: requestID})
	var estErr *EstimateGasError
	require.ErrorAs(t, err, &estErr)
	assert.Equal(t, from, estErr.CallMsg.From)
}
