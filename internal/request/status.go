package request

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrIllegalTransition = errors.New("illegal status transition")

type Kind int

const (
	KindPending Kind = iota
	KindFulfilled
	KindSubmitted
	KindIgnored
	KindBlocked
	KindErrored
)

var kindNames = [...]string{
	KindPending:   "Pending",
	KindFulfilled: "Fulfilled",
	KindSubmitted: "Submitted",
	KindIgnored:   "Ignored",
	KindBlocked:   "Blocked",
	KindErrored:   "Errored",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown request status %q", s)
}

// Status is one of Pending, Fulfilled, Submitted, Ignored, Blocked or Errored.
// Each variant carries only the fields that are valid for it.
type Status interface {
	Kind() Kind
	isStatus()
}

// Pending requests are valid and waiting to be processed.
type Pending struct{}

// Fulfilled requests were finalized by a previous cycle. TxHash is the zero
// hash when the source did not report the fulfilling transaction.
type Fulfilled struct {
	TxHash common.Hash
}

// Submitted requests had a transaction broadcast this cycle. FailReason is
// set when that transaction was a fail() call rather than a fulfillment.
type Submitted struct {
	TxHash     common.Hash
	FailReason ErrorMessage
}

// Ignored requests are permanently invalid and do not affect their siblings.
type Ignored struct {
	Reason ErrorMessage
}

// Blocked requests are valid but cannot be processed this cycle. Every later
// request of the same sponsor is deferred with them.
type Blocked struct {
	Reason ErrorMessage
}

// Errored requests are valid but cannot be fulfilled and must be failed on chain.
type Errored struct {
	Reason ErrorMessage
}

func (Pending) Kind() Kind   { return KindPending }
func (Fulfilled) Kind() Kind { return KindFulfilled }
func (Submitted) Kind() Kind { return KindSubmitted }
func (Ignored) Kind() Kind   { return KindIgnored }
func (Blocked) Kind() Kind   { return KindBlocked }
func (Errored) Kind() Kind   { return KindErrored }

func (Pending) isStatus()   {}
func (Fulfilled) isStatus() {}
func (Submitted) isStatus() {}
func (Ignored) isStatus()   {}
func (Blocked) isStatus()   {}
func (Errored) isStatus()   {}

var transitions = map[Kind][]Kind{
	KindPending: {KindIgnored, KindBlocked, KindErrored, KindSubmitted},
	KindErrored: {KindIgnored, KindBlocked, KindSubmitted},
	KindBlocked: {KindIgnored},
}

// CanTransition reports whether a request in status from may move to to.
// Fulfilled, Submitted and Ignored are final for the cycle.
func CanTransition(from, to Kind) bool {
	for _, k := range transitions[from] {
		if k == to {
			return true
		}
	}
	return false
}

func checkTransition(from Kind, next Status) error {
	if next == nil {
		return fmt.Errorf("%w: %s -> <nil>", ErrIllegalTransition, from)
	}
	if !CanTransition(from, next.Kind()) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, next.Kind())
	}
	return nil
}
