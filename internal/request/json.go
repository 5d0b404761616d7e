package request

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type wireRequest[T Payload] struct {
	ID                   common.Hash    `json:"id"`
	AirnodeAddress       common.Address `json:"airnodeAddress"`
	SponsorAddress       common.Address `json:"sponsorAddress"`
	SponsorWalletAddress common.Address `json:"sponsorWalletAddress"`
	Status               string         `json:"status"`
	ErrorMessage         ErrorMessage   `json:"errorMessage,omitempty"`
	FailReason           ErrorMessage   `json:"failReason,omitempty"`
	Fulfillment          *Fulfillment   `json:"fulfillment,omitempty"`
	Nonce                *uint64        `json:"nonce,omitempty"`
	Metadata             Metadata       `json:"metadata"`
	Payload              T              `json:"payload"`
}

func (r Request[T]) MarshalJSON() ([]byte, error) {
	w := wireRequest[T]{
		ID:                   r.ID,
		AirnodeAddress:       r.AirnodeAddress,
		SponsorAddress:       r.SponsorAddress,
		SponsorWalletAddress: r.SponsorWalletAddress,
		Status:               r.Kind().String(),
		Nonce:                r.Nonce,
		Metadata:             r.Metadata,
		Payload:              r.Payload,
	}
	if msg, ok := r.ErrorMessage(); ok {
		w.ErrorMessage = msg
	}
	if f, ok := r.Fulfillment(); ok {
		w.Fulfillment = &f
	}
	if s, ok := r.Status.(Submitted); ok {
		w.FailReason = s.FailReason
	}
	return json.Marshal(w)
}

func (r *Request[T]) UnmarshalJSON(input []byte) error {
	var w wireRequest[T]
	if err := json.Unmarshal(input, &w); err != nil {
		return err
	}
	status, err := decodeStatus(w.Status, w.ErrorMessage, w.FailReason, w.Fulfillment)
	if err != nil {
		return fmt.Errorf("request %s: %w", w.ID.Hex(), err)
	}
	*r = Request[T]{
		ID:                   w.ID,
		AirnodeAddress:       w.AirnodeAddress,
		SponsorAddress:       w.SponsorAddress,
		SponsorWalletAddress: w.SponsorWalletAddress,
		Status:               status,
		Nonce:                w.Nonce,
		Metadata:             w.Metadata,
		Payload:              w.Payload,
	}
	return nil
}

func decodeStatus(name string, msg, failReason ErrorMessage, f *Fulfillment) (Status, error) {
	if name == "" {
		return Pending{}, nil
	}
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindPending:
		return Pending{}, nil
	case KindFulfilled:
		if f != nil {
			return Fulfilled{TxHash: f.Hash}, nil
		}
		return Fulfilled{}, nil
	case KindSubmitted:
		if f == nil {
			return nil, errors.New("submitted request without fulfillment")
		}
		return Submitted{TxHash: f.Hash, FailReason: failReason}, nil
	case KindIgnored:
		return Ignored{Reason: msg}, nil
	case KindBlocked:
		return Blocked{Reason: msg}, nil
	default:
		return Errored{Reason: msg}, nil
	}
}
