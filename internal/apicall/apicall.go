// Package apicall resolves API call requests before submission: it checks
// authorization and fetches the signed API response for each pending call.
package apicall

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"rrpnode/internal/logs"
	"rrpnode/internal/request"
)

type Authorizer interface {
	Authorized(ctx context.Context, r request.Request[request.ApiCall]) (bool, error)
}

// Result holds either a response or the reason the API call failed.
type Result struct {
	Response     *request.ApiResponse `json:"response,omitempty"`
	ErrorMessage string               `json:"errorMessage,omitempty"`
}

type Executor interface {
	Execute(ctx context.Context, r request.Request[request.ApiCall]) (Result, error)
}

// RequesterAuthorizer allows requests from a fixed set of requesters. An
// empty set allows everyone.
type RequesterAuthorizer struct {
	allowed map[common.Address]struct{}
}

func NewRequesterAuthorizer(requesters []string) *RequesterAuthorizer {
	a := &RequesterAuthorizer{allowed: make(map[common.Address]struct{})}
	for _, r := range requesters {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		a.allowed[common.HexToAddress(r)] = struct{}{}
	}
	return a
}

func (a *RequesterAuthorizer) Authorized(_ context.Context, r request.Request[request.ApiCall]) (bool, error) {
	if len(a.allowed) == 0 {
		return true, nil
	}
	_, ok := a.allowed[r.Payload.RequesterAddress]
	return ok, nil
}

type Resolver struct {
	auth        Authorizer
	exec        Executor
	concurrency int
}

// NewResolver builds a resolver. exec may be nil, in which case only
// requests that already carry a response can proceed.
func NewResolver(auth Authorizer, exec Executor, concurrency int) *Resolver {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Resolver{auth: auth, exec: exec, concurrency: concurrency}
}

// Resolve returns a copy of calls where every pending call either carries a
// response or has moved to Errored or Blocked.
func (res *Resolver) Resolve(ctx context.Context, calls []request.Request[request.ApiCall]) ([]request.Request[request.ApiCall], []logs.PendingLog) {
	out := make([]request.Request[request.ApiCall], len(calls))
	copy(out, calls)
	perCall := make([][]logs.PendingLog, len(calls))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(res.concurrency)
	for i := range out {
		if out[i].Kind() != request.KindPending {
			continue
		}
		i := i
		eg.Go(func() error {
			out[i], perCall[i] = res.resolveOne(egCtx, out[i])
			return nil
		})
	}
	_ = eg.Wait()

	var pending []logs.PendingLog
	for _, l := range perCall {
		pending = append(pending, l...)
	}
	return out, pending
}

func (res *Resolver) resolveOne(ctx context.Context, r request.Request[request.ApiCall]) (request.Request[request.ApiCall], []logs.PendingLog) {
	if len(r.Payload.EncodedParameters) > 0 && r.Payload.Parameters == nil {
		return set(r, request.Errored{Reason: request.ErrRequestParameterDecodingFailed}, nil)
	}

	if res.auth != nil {
		ok, err := res.auth.Authorized(ctx, r)
		if err != nil {
			return set(r, request.Blocked{Reason: request.ErrAuthorizationNotFound}, err)
		}
		if !ok {
			return set(r, request.Errored{Reason: request.ErrUnauthorized}, nil)
		}
	}

	if r.Payload.Response != nil {
		return r, nil
	}
	if res.exec == nil {
		return set(r, request.Blocked{Reason: request.ErrResponsePending}, nil)
	}
	result, err := res.exec.Execute(ctx, r)
	if err != nil {
		return set(r, request.Blocked{Reason: request.ErrResponsePending}, err)
	}
	if result.ErrorMessage != "" {
		next, l := set(r, request.Errored{Reason: request.ErrApiCallFailed}, nil)
		return next, append(l, logs.Warn("API call failed",
			slog.String("requestId", r.ID.Hex()), slog.String("detail", result.ErrorMessage)))
	}
	if result.Response == nil || len(result.Response.Value) == 0 {
		return set(r, request.Errored{Reason: request.ErrResponseValueNotFound}, nil)
	}
	resp := *result.Response
	r.Payload.Response = &resp
	return r, []logs.PendingLog{logs.Debug("API call succeeded", slog.String("requestId", r.ID.Hex()))}
}

func set(r request.Request[request.ApiCall], next request.Status, cause error) (request.Request[request.ApiCall], []logs.PendingLog) {
	attrs := []slog.Attr{slog.String("requestId", r.ID.Hex()), slog.String("status", next.Kind().String())}
	updated, err := r.Apply(next)
	if err != nil {
		return r, []logs.PendingLog{logs.Error("refusing status change", err, attrs...)}
	}
	if reason, ok := updated.ErrorMessage(); ok {
		attrs = append(attrs, slog.String("reason", string(reason)))
	}
	if cause != nil {
		return updated, []logs.PendingLog{logs.Error("API call request held back", cause, attrs...)}
	}
	return updated, []logs.PendingLog{logs.Info("API call request status changed", attrs...)}
}
