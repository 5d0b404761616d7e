package transactions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rrpnode/internal/request"
	"rrpnode/internal/txbuilder"
)

var (
	airnode        = common.HexToAddress("0xA30CA71Ba54E83127214D3271aEA8F5D6bD4Dace")
	sponsorA       = common.HexToAddress("0x69e2B095fbAc6C3f9E528Ef21882b86BF1595181")
	sponsorB       = common.HexToAddress("0x99bd3a5A045066F1CEf37A0A952DFa87Af9D898E")
	walletA        = common.HexToAddress("0xA5A5A5A5A5A5A5A5A5A5A5A5A5A5A5A5A5A5A5A5")
	walletB        = common.HexToAddress("0xB5B5B5B5B5B5B5B5B5B5B5B5B5B5B5B5B5B5B5B5")
	fulfillHash    = common.HexToHash("0xad33fe94de7294c6ab461325828276185dff6fed92c54b15ac039c6160d2bac3")
	withdrawalHash = common.HexToHash("0xb1b2b3b4b5b6b7b8b9b0b1b2b3b4b5b6b7b8b9b0b1b2b3b4b5b6b7b8b9b0b1b2")
)

type sentTx struct {
	method string
	from   common.Address
	id     common.Hash
	params txbuilder.BuildParams
	reason string
}

type fakeChain struct {
	mu sync.Mutex

	staticOK   map[common.Hash]bool
	staticErr  error
	estimate   uint64
	balance    *uint256.Int
	sendErr    map[common.Hash]error
	hashFor    func(method string, id common.Hash) common.Hash
	sent       []sentTx
	staticSeen []common.Hash
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		staticOK: map[common.Hash]bool{},
		sendErr:  map[common.Hash]error{},
		estimate: 50_000,
		balance:  uint256.NewInt(250_000_000),
		hashFor: func(method string, id common.Hash) common.Hash {
			if method == "fulfillWithdrawal" {
				return withdrawalHash
			}
			return fulfillHash
		},
	}
}

func (c *fakeChain) StaticFulfill(_ context.Context, _ common.Address, call txbuilder.FulfillCall) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staticSeen = append(c.staticSeen, call.RequestID)
	if c.staticErr != nil {
		return false, c.staticErr
	}
	ok, set := c.staticOK[call.RequestID]
	return ok || !set, nil
}

func (c *fakeChain) EstimateWithdrawalGas(context.Context, common.Address, txbuilder.WithdrawalCall) (uint64, error) {
	return c.estimate, nil
}

func (c *fakeChain) Balance(context.Context, common.Address) (*uint256.Int, error) {
	return c.balance.Clone(), nil
}

func (c *fakeChain) record(method string, from common.Address, id common.Hash, p txbuilder.BuildParams, reason string) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sendErr[id]; err != nil {
		return common.Hash{}, err
	}
	c.sent = append(c.sent, sentTx{method: method, from: from, id: id, params: p, reason: reason})
	return c.hashFor(method, id), nil
}

func (c *fakeChain) Fulfill(_ context.Context, from common.Address, call txbuilder.FulfillCall, p txbuilder.BuildParams) (common.Hash, error) {
	return c.record("fulfill", from, call.RequestID, p, "")
}

func (c *fakeChain) Fail(_ context.Context, from common.Address, call txbuilder.FailCall, p txbuilder.BuildParams) (common.Hash, error) {
	return c.record("fail", from, call.RequestID, p, call.ErrorMessage)
}

func (c *fakeChain) FulfillWithdrawal(_ context.Context, from common.Address, call txbuilder.WithdrawalCall, p txbuilder.BuildParams) (common.Hash, error) {
	return c.record("fulfillWithdrawal", from, call.RequestID, p, "")
}

func (c *fakeChain) sentFor(id common.Hash) []sentTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentTx
	for _, s := range c.sent {
		if s.id == id {
			out = append(out, s)
		}
	}
	return out
}

func apiCall(id byte, sponsor, wallet common.Address, block uint64, logIndex uint) request.Request[request.ApiCall] {
	return request.Request[request.ApiCall]{
		ID:                   common.BytesToHash([]byte{id}),
		AirnodeAddress:       airnode,
		SponsorAddress:       sponsor,
		SponsorWalletAddress: wallet,
		Status:               request.Pending{},
		Metadata:             request.Metadata{BlockNumber: block, LogIndex: logIndex, CurrentBlock: block + 1, IgnoreAfterBlocks: 20},
		Payload: request.ApiCall{
			Type:              request.CallTypeFull,
			FulfillAddress:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
			FulfillFunctionID: request.FunctionID{0x48, 0xa4, 0x15, 0x7c},
			Response: &request.ApiResponse{
				Value:     common.LeftPadBytes([]byte{0x01, 0x25, 0x2b}, 32),
				Signature: []byte{0xde, 0xad},
			},
		},
	}
}

func withdrawal(id byte, sponsor, wallet common.Address, block uint64, logIndex uint) request.Request[request.Withdrawal] {
	return request.Request[request.Withdrawal]{
		ID:                   common.BytesToHash([]byte{id}),
		AirnodeAddress:       airnode,
		SponsorAddress:       sponsor,
		SponsorWalletAddress: wallet,
		Status:               request.Pending{},
		Metadata:             request.Metadata{BlockNumber: block, LogIndex: logIndex, CurrentBlock: block + 1, IgnoreAfterBlocks: 20},
	}
}

func legacyGas(price uint64) *txbuilder.GasTarget {
	g := txbuilder.LegacyTarget(uint256.NewInt(price))
	return &g
}

func nonceOf[T request.Payload](t *testing.T, r request.Request[T]) uint64 {
	t.Helper()
	n, ok := r.AssignedNonce()
	require.True(t, ok, "request %s has no nonce", r.ID.Hex())
	return n
}

func TestSubmitApiCallAndWithdrawal(t *testing.T) {
	chain := newFakeChain()
	s := NewSubmitter(chain, Config{})
	in := Input{
		Requests: request.GroupedRequests{
			ApiCalls:    []request.Request[request.ApiCall]{apiCall(1, sponsorA, walletA, 100, 0)},
			Withdrawals: []request.Request[request.Withdrawal]{withdrawal(2, sponsorB, walletB, 101, 0)},
		},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{sponsorA: 79, sponsorB: 212},
	}

	out, pending := s.Submit(context.Background(), in)
	require.NotEmpty(t, pending)

	api := out.ApiCalls[0]
	assert.Equal(t, request.KindSubmitted, api.Kind())
	assert.Equal(t, uint64(79), nonceOf(t, api))
	f, ok := api.Fulfillment()
	require.True(t, ok)
	assert.Equal(t, fulfillHash, f.Hash)

	w := out.Withdrawals[0]
	assert.Equal(t, request.KindSubmitted, w.Kind())
	assert.Equal(t, uint64(212), nonceOf(t, w))
	f, ok = w.Fulfillment()
	require.True(t, ok)
	assert.Equal(t, withdrawalHash, f.Hash)

	fulfills := chain.sentFor(api.ID)
	require.Len(t, fulfills, 1)
	assert.Equal(t, "fulfill", fulfills[0].method)
	assert.Equal(t, walletA, fulfills[0].from)
	assert.Equal(t, uint64(500_000), fulfills[0].params.GasLimit)
	assert.Equal(t, uint64(1000), fulfills[0].params.Gas.GasPrice.Uint64())

	withdrawals := chain.sentFor(w.ID)
	require.Len(t, withdrawals, 1)
	assert.Equal(t, "fulfillWithdrawal", withdrawals[0].method)
	assert.Equal(t, walletB, withdrawals[0].from)
	assert.Equal(t, uint64(70_000), withdrawals[0].params.GasLimit)
	assert.Equal(t, uint64(180_000_000), withdrawals[0].params.Value.Uint64())
	assert.Equal(t, uint64(212), withdrawals[0].params.Nonce)

	// input untouched
	assert.Equal(t, request.KindPending, in.Requests.ApiCalls[0].Kind())
	assert.Nil(t, in.Requests.ApiCalls[0].Nonce)
	assert.Nil(t, in.Requests.Withdrawals[0].Nonce)
}

func TestSubmitWithoutGasTargetOnlyAssignsNonces(t *testing.T) {
	chain := newFakeChain()
	s := NewSubmitter(chain, Config{MaxRequestsPerSponsor: 1})
	in := Input{
		Requests: request.GroupedRequests{
			ApiCalls: []request.Request[request.ApiCall]{
				apiCall(1, sponsorA, walletA, 100, 0),
				apiCall(2, sponsorA, walletA, 100, 1),
			},
		},
		TransactionCounts: map[common.Address]uint64{sponsorA: 79},
	}

	out, pending := s.Submit(context.Background(), in)
	require.NotEmpty(t, pending)
	assert.Empty(t, chain.sent)
	assert.Empty(t, chain.staticSeen)

	assert.Equal(t, uint64(79), nonceOf(t, out.ApiCalls[0]))
	for i := range out.ApiCalls {
		assert.Equal(t, request.KindPending, out.ApiCalls[i].Kind())
		_, ok := out.ApiCalls[i].Fulfillment()
		assert.False(t, ok)
	}
}

func TestBlockingPropagatesWithinSponsor(t *testing.T) {
	chain := newFakeChain()
	s := NewSubmitter(chain, Config{MaxRequestsPerSponsor: 1})
	in := Input{
		Requests: request.GroupedRequests{
			ApiCalls: []request.Request[request.ApiCall]{
				apiCall(1, sponsorA, walletA, 100, 0),
				apiCall(2, sponsorA, walletA, 100, 1),
				apiCall(3, sponsorA, walletA, 102, 0),
				apiCall(4, sponsorB, walletB, 100, 2),
			},
		},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{sponsorA: 5, sponsorB: 9},
	}

	out, _ := s.Submit(context.Background(), in)

	assert.Equal(t, request.KindSubmitted, out.ApiCalls[0].Kind())
	assert.Equal(t, uint64(5), nonceOf(t, out.ApiCalls[0]))

	assert.Equal(t, request.Blocked{Reason: request.ErrSponsorRequestLimitExceeded}, out.ApiCalls[1].Status)
	assert.Equal(t, request.Blocked{Reason: request.ErrBlockedByEarlierRequest}, out.ApiCalls[2].Status)
	assert.Nil(t, out.ApiCalls[1].Nonce)
	assert.Nil(t, out.ApiCalls[2].Nonce)
	assert.Empty(t, chain.sentFor(out.ApiCalls[1].ID))
	assert.Empty(t, chain.sentFor(out.ApiCalls[2].ID))

	// other sponsors are unaffected
	assert.Equal(t, request.KindSubmitted, out.ApiCalls[3].Kind())
	assert.Equal(t, uint64(9), nonceOf(t, out.ApiCalls[3]))
}

func TestUpstreamBlockedHoldsBackLaterRequests(t *testing.T) {
	chain := newFakeChain()
	s := NewSubmitter(chain, Config{})
	first := apiCall(1, sponsorA, walletA, 100, 0)
	first.Status = request.Blocked{Reason: request.ErrResponsePending}
	in := Input{
		Requests: request.GroupedRequests{
			ApiCalls: []request.Request[request.ApiCall]{first, apiCall(2, sponsorA, walletA, 101, 0)},
		},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{sponsorA: 3},
	}

	out, _ := s.Submit(context.Background(), in)
	assert.Equal(t, first, out.ApiCalls[0])
	assert.Equal(t, request.Blocked{Reason: request.ErrBlockedByEarlierRequest}, out.ApiCalls[1].Status)
	assert.Empty(t, chain.sent)
}

func TestStaleBlockedRequestIsIgnored(t *testing.T) {
	chain := newFakeChain()
	s := NewSubmitter(chain, Config{})
	stale := apiCall(1, sponsorA, walletA, 100, 0)
	stale.Status = request.Blocked{Reason: request.ErrResponsePending}
	stale.Metadata.CurrentBlock = 130
	in := Input{
		Requests: request.GroupedRequests{
			ApiCalls: []request.Request[request.ApiCall]{stale, apiCall(2, sponsorA, walletA, 101, 0)},
		},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{sponsorA: 3},
	}

	out, _ := s.Submit(context.Background(), in)
	assert.Equal(t, request.Ignored{Reason: request.ErrBlockedTooLong}, out.ApiCalls[0].Status)
	assert.Equal(t, request.KindSubmitted, out.ApiCalls[1].Kind())
	assert.Equal(t, uint64(3), nonceOf(t, out.ApiCalls[1]))
}

func TestPendingWithdrawalBlocksLaterApiCalls(t *testing.T) {
	chain := newFakeChain()
	s := NewSubmitter(chain, Config{})
	in := Input{
		Requests: request.GroupedRequests{
			ApiCalls:    []request.Request[request.ApiCall]{apiCall(1, sponsorA, walletA, 105, 0)},
			Withdrawals: []request.Request[request.Withdrawal]{withdrawal(2, sponsorA, walletA, 100, 0)},
		},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{sponsorA: 10},
	}

	out, _ := s.Submit(context.Background(), in)
	assert.Equal(t, request.KindSubmitted, out.Withdrawals[0].Kind())
	assert.Equal(t, uint64(10), nonceOf(t, out.Withdrawals[0]))
	assert.Equal(t, request.Blocked{Reason: request.ErrPendingWithdrawal}, out.ApiCalls[0].Status)
}

func TestErroredRequestIsFailedOnChain(t *testing.T) {
	chain := newFakeChain()
	s := NewSubmitter(chain, Config{})
	errored := apiCall(1, sponsorA, walletA, 100, 0)
	errored.Status = request.Errored{Reason: request.ErrApiCallFailed}
	errored.Payload.Response = nil
	in := Input{
		Requests:          request.GroupedRequests{ApiCalls: []request.Request[request.ApiCall]{errored}},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{sponsorA: 1},
	}

	out, _ := s.Submit(context.Background(), in)
	assert.Equal(t, request.Submitted{TxHash: fulfillHash, FailReason: request.ErrApiCallFailed}, out.ApiCalls[0].Status)
	sent := chain.sentFor(errored.ID)
	require.Len(t, sent, 1)
	assert.Equal(t, "fail", sent[0].method)
	assert.Equal(t, string(request.ErrApiCallFailed), sent[0].reason)
	assert.Empty(t, chain.staticSeen)
}

func TestFailedStaticCallSendsFail(t *testing.T) {
	chain := newFakeChain()
	r := apiCall(1, sponsorA, walletA, 100, 0)
	chain.staticOK[r.ID] = false
	s := NewSubmitter(chain, Config{})

	out, _ := s.Submit(context.Background(), Input{
		Requests:          request.GroupedRequests{ApiCalls: []request.Request[request.ApiCall]{r}},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{sponsorA: 1},
	})
	assert.Equal(t, request.Submitted{TxHash: fulfillHash, FailReason: request.ErrFulfillTransactionFailed}, out.ApiCalls[0].Status)
	sent := chain.sentFor(r.ID)
	require.Len(t, sent, 1)
	assert.Equal(t, "fail", sent[0].method)
}

func TestStaticCallErrorLeavesRequestUnchanged(t *testing.T) {
	chain := newFakeChain()
	chain.staticErr = errors.New("connection reset")
	s := NewSubmitter(chain, Config{})
	r := apiCall(1, sponsorA, walletA, 100, 0)

	out, pending := s.Submit(context.Background(), Input{
		Requests:          request.GroupedRequests{ApiCalls: []request.Request[request.ApiCall]{r}},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{sponsorA: 1},
	})
	assert.Equal(t, request.KindPending, out.ApiCalls[0].Kind())
	assert.Empty(t, chain.sent)
	var found bool
	for _, p := range pending {
		if p.Err != nil && p.Err.Error() == "connection reset" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBroadcastFailureDoesNotAbortOtherSponsors(t *testing.T) {
	chain := newFakeChain()
	bad := apiCall(1, sponsorA, walletA, 100, 0)
	later := apiCall(2, sponsorA, walletA, 101, 0)
	other := apiCall(3, sponsorB, walletB, 100, 1)
	chain.sendErr[bad.ID] = errors.New("nonce too low")
	s := NewSubmitter(chain, Config{})

	out, _ := s.Submit(context.Background(), Input{
		Requests:          request.GroupedRequests{ApiCalls: []request.Request[request.ApiCall]{bad, later, other}},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{sponsorA: 1, sponsorB: 1},
	})
	assert.Equal(t, request.KindPending, out.ApiCalls[0].Kind())
	// the later request would leave a nonce gap, so it waits for the next cycle
	assert.Equal(t, request.KindPending, out.ApiCalls[1].Kind())
	assert.Equal(t, uint64(2), nonceOf(t, out.ApiCalls[1]))
	assert.Empty(t, chain.sentFor(later.ID))
	assert.Equal(t, request.KindSubmitted, out.ApiCalls[2].Kind())
}

func TestWithdrawalSkippedWhenBalanceTooLow(t *testing.T) {
	chain := newFakeChain()
	chain.balance = uint256.NewInt(70_000 * 1000)
	s := NewSubmitter(chain, Config{})
	w := withdrawal(1, sponsorA, walletA, 100, 0)

	out, pending := s.Submit(context.Background(), Input{
		Requests:          request.GroupedRequests{Withdrawals: []request.Request[request.Withdrawal]{w}},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{sponsorA: 1},
	})
	assert.Equal(t, request.KindPending, out.Withdrawals[0].Kind())
	assert.Empty(t, chain.sent)
	require.NotEmpty(t, pending)
}

func TestFulfilledAndIgnoredPassThrough(t *testing.T) {
	chain := newFakeChain()
	s := NewSubmitter(chain, Config{})
	done := apiCall(1, sponsorA, walletA, 100, 0)
	done.Status = request.Fulfilled{}
	ignored := apiCall(2, sponsorA, walletA, 100, 1)
	ignored.Status = request.Ignored{Reason: request.ErrBlockedTooLong}
	fresh := apiCall(3, sponsorA, walletA, 100, 2)

	out, _ := s.Submit(context.Background(), Input{
		Requests:          request.GroupedRequests{ApiCalls: []request.Request[request.ApiCall]{done, ignored, fresh}},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{sponsorA: 40},
	})
	assert.Equal(t, done, out.ApiCalls[0])
	assert.Equal(t, ignored, out.ApiCalls[1])
	assert.Equal(t, uint64(40), nonceOf(t, out.ApiCalls[2]))
	assert.Len(t, chain.sent, 1)
}

func TestMissingTransactionCountSkipsSponsor(t *testing.T) {
	chain := newFakeChain()
	s := NewSubmitter(chain, Config{})
	r := apiCall(1, sponsorA, walletA, 100, 0)

	out, _ := s.Submit(context.Background(), Input{
		Requests:          request.GroupedRequests{ApiCalls: []request.Request[request.ApiCall]{r}},
		GasTarget:         legacyGas(1000),
		TransactionCounts: map[common.Address]uint64{},
	})
	assert.Equal(t, r, out.ApiCalls[0])
	assert.Empty(t, chain.sent)
}

func TestWithdrawalValue(t *testing.T) {
	gasLimit, value, err := withdrawalValue(uint256.NewInt(250_000_000), 50_000, 20_000, uint256.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(70_000), gasLimit)
	assert.Equal(t, uint64(180_000_000), value.Uint64())

	_, _, err = withdrawalValue(uint256.NewInt(70_000_000), 50_000, 20_000, uint256.NewInt(1000))
	assert.ErrorIs(t, err, errNonPositiveValue)

	huge := new(uint256.Int).SetAllOne()
	_, _, err = withdrawalValue(huge, 50_000, 20_000, huge)
	assert.ErrorIs(t, err, txbuilder.ErrValueOverflow)
}
