// Package worker runs node functions either in process or in a cloud
// function. Callers only see Invoker and never which variant is active.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type FunctionName string

const (
	FunctionInitializeProvider      FunctionName = "initializeProvider"
	FunctionProcessProviderRequests FunctionName = "processProviderRequests"
	FunctionCallApi                 FunctionName = "callApi"
)

var ErrUnknownFunction = errors.New("unknown worker function")

type Invoker interface {
	Invoke(ctx context.Context, fn FunctionName, payload []byte) ([]byte, error)
}

// Envelope is the body exchanged with remote workers.
type Envelope struct {
	FunctionName FunctionName    `json:"functionName"`
	Payload      json.RawMessage `json:"payload"`
}

type Response struct {
	Ok       bool            `json:"ok"`
	Data     json.RawMessage `json:"data,omitempty"`
	ErrorLog string          `json:"errorLog,omitempty"`
}

// Call marshals in, invokes fn and decodes the result into Out.
func Call[In, Out any](ctx context.Context, inv Invoker, fn FunctionName, in In) (Out, error) {
	var out Out
	payload, err := json.Marshal(in)
	if err != nil {
		return out, fmt.Errorf("encode %s payload: %w", fn, err)
	}
	raw, err := inv.Invoke(ctx, fn, payload)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s result: %w", fn, err)
	}
	return out, nil
}
