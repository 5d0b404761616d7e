package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"rrpnode/internal/coordinator"
	"rrpnode/internal/provider"
	"rrpnode/internal/request"
)

// Outcome is one line of the cycle report.
type Outcome struct {
	CycleID      string         `json:"cycleId"`
	At           time.Time      `json:"at"`
	ChainID      string         `json:"chainId"`
	Provider     string         `json:"provider"`
	Type         string         `json:"type"`
	RequestID    common.Hash    `json:"requestId"`
	Sponsor      common.Address `json:"sponsorAddress"`
	Status       string         `json:"status"`
	Nonce        *uint64        `json:"nonce,omitempty"`
	TxHash       *common.Hash   `json:"txHash,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

func Outcomes(st coordinator.State) []Outcome {
	var out []Outcome
	for _, p := range st.Providers {
		for _, r := range p.Requests.ApiCalls {
			out = append(out, outcome(st, p, r))
		}
		for _, r := range p.Requests.Withdrawals {
			out = append(out, outcome(st, p, r))
		}
	}
	return out
}

func outcome[T request.Payload](st coordinator.State, p provider.State, r request.Request[T]) Outcome {
	o := Outcome{
		CycleID:      st.ID.String(),
		At:           st.CompletedAt,
		ChainID:      p.ChainID,
		Provider:     p.ProviderName,
		Type:         r.Type().String(),
		RequestID:    r.ID,
		Sponsor:      r.SponsorAddress,
		Status:       r.Kind().String(),
	}
	if n, ok := r.AssignedNonce(); ok {
		o.Nonce = &n
	}
	if msg, ok := r.ErrorMessage(); ok {
		o.ErrorMessage = string(msg)
	}
	if s, ok := r.Status.(request.Submitted); ok && s.FailReason != "" {
		o.ErrorMessage = string(s.FailReason)
	}
	if f, ok := r.Fulfillment(); ok {
		h := f.Hash
		o.TxHash = &h
	}
	return o
}

// Report appends cycle outcomes as JSON lines. Path "-" writes to stdout.
type Report struct {
	path string
}

func NewReport(path string) *Report {
	return &Report{path: path}
}

func (r *Report) Write(st coordinator.State) error {
	if r.path == "" {
		return nil
	}
	var file *os.File
	if r.path == "-" {
		file = os.Stdout
	} else {
		dir := filepath.Dir(r.path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		file = f
		defer f.Close()
	}

	enc := json.NewEncoder(file)
	enc.SetEscapeHTML(false)
	for _, o := range Outcomes(st) {
		if err := enc.Encode(o); err != nil {
			return err
		}
	}
	return nil
}
