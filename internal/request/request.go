package request

import (
	"cmp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type Type int

const (
	TypeApiCall Type = iota
	TypeWithdrawal
)

func (t Type) String() string {
	switch t {
	case TypeApiCall:
		return "api_call"
	case TypeWithdrawal:
		return "withdrawal"
	default:
		return "unknown"
	}
}

type CallType string

const (
	CallTypeTemplate CallType = "template"
	CallTypeFull     CallType = "full"
)

// Metadata describes the on-chain event a request was discovered from.
type Metadata struct {
	OriginAddress     common.Address `json:"originAddress"`
	BlockNumber       uint64         `json:"blockNumber"`
	LogIndex          uint           `json:"logIndex"`
	CurrentBlock      uint64         `json:"currentBlock"`
	IgnoreAfterBlocks uint64         `json:"ignoreAfterBlocks"`
	TransactionHash   common.Hash    `json:"transactionHash"`
}

// Compare orders metadata by discovery: block number, then log index.
func (m Metadata) Compare(o Metadata) int {
	if c := cmp.Compare(m.BlockNumber, o.BlockNumber); c != 0 {
		return c
	}
	return cmp.Compare(m.LogIndex, o.LogIndex)
}

func (m Metadata) BlocksSince() uint64 {
	if m.CurrentBlock <= m.BlockNumber {
		return 0
	}
	return m.CurrentBlock - m.BlockNumber
}

// Stale reports whether a request from this event has waited long enough
// that it should be ignored rather than keep blocking its sponsor.
func (m Metadata) Stale() bool {
	return m.IgnoreAfterBlocks > 0 && m.BlocksSince() >= m.IgnoreAfterBlocks
}

// FunctionID is a 4 byte contract function selector.
type FunctionID [4]byte

func (f FunctionID) MarshalText() ([]byte, error) {
	return hexutil.Bytes(f[:]).MarshalText()
}

func (f *FunctionID) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("FunctionID", input, f[:])
}

func (f FunctionID) Hex() string {
	return hexutil.Encode(f[:])
}

type ApiResponse struct {
	Value     hexutil.Bytes `json:"value"`
	Signature hexutil.Bytes `json:"signature"`
}

type ApiCall struct {
	RequestCount      string            `json:"requestCount"`
	ChainID           string            `json:"chainId"`
	RequesterAddress  common.Address    `json:"requesterAddress"`
	TemplateID        *common.Hash      `json:"templateId,omitempty"`
	EndpointID        *common.Hash      `json:"endpointId,omitempty"`
	FulfillAddress    common.Address    `json:"fulfillAddress"`
	FulfillFunctionID FunctionID        `json:"fulfillFunctionId"`
	EncodedParameters hexutil.Bytes     `json:"encodedParameters"`
	Parameters        map[string]string `json:"parameters,omitempty"`
	Response          *ApiResponse      `json:"response,omitempty"`
	Type              CallType          `json:"type"`
}

type Withdrawal struct{}

type Payload interface {
	ApiCall | Withdrawal
}

type Fulfillment struct {
	Hash common.Hash `json:"hash"`
}

// Request is a value object: every state change returns a new Request and
// leaves the receiver untouched.
type Request[T Payload] struct {
	ID                   common.Hash
	AirnodeAddress       common.Address
	SponsorAddress       common.Address
	SponsorWalletAddress common.Address
	Status               Status
	Nonce                *uint64
	Metadata             Metadata
	Payload              T
}

func (r Request[T]) Type() Type {
	switch any(r.Payload).(type) {
	case Withdrawal:
		return TypeWithdrawal
	default:
		return TypeApiCall
	}
}

// Kind returns the status kind, treating an unset status as pending.
func (r Request[T]) Kind() Kind {
	if r.Status == nil {
		return KindPending
	}
	return r.Status.Kind()
}

// Eligible reports whether the request still needs a transaction this cycle.
func (r Request[T]) Eligible() bool {
	k := r.Kind()
	return k == KindPending || k == KindErrored
}

func (r Request[T]) Fulfillment() (Fulfillment, bool) {
	switch s := r.Status.(type) {
	case Submitted:
		return Fulfillment{Hash: s.TxHash}, true
	case Fulfilled:
		if s.TxHash != (common.Hash{}) {
			return Fulfillment{Hash: s.TxHash}, true
		}
	}
	return Fulfillment{}, false
}

func (r Request[T]) ErrorMessage() (ErrorMessage, bool) {
	switch s := r.Status.(type) {
	case Ignored:
		return s.Reason, true
	case Blocked:
		return s.Reason, true
	case Errored:
		return s.Reason, true
	}
	return "", false
}

func (r Request[T]) AssignedNonce() (uint64, bool) {
	if r.Nonce == nil {
		return 0, false
	}
	return *r.Nonce, true
}

func (r Request[T]) WithNonce(nonce uint64) Request[T] {
	n := nonce
	r.Nonce = &n
	return r
}

// Apply moves the request to next if the transition is legal.
func (r Request[T]) Apply(next Status) (Request[T], error) {
	if err := checkTransition(r.Kind(), next); err != nil {
		return r, err
	}
	r.Status = next
	return r, nil
}
