package evm

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"rrpnode/internal/metrics"
)

// Limiter is a token bucket shared by every RPC call to one chain.
type Limiter struct {
	limiter *rate.Limiter
	chainID string
}

func NewLimiter(rps float64, burst int, chainID string) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		chainID: chainID,
	}
}

// Wait consumes exactly one token, blocking until it is available or ctx
// is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	r := l.limiter.Reserve()
	if !r.OK() {
		return errors.New("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.RPCRateLimitWaits.WithLabelValues(l.chainID).Inc()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func recordCall(chainID, method string, err error) {
	metrics.RPCCallsTotal.WithLabelValues(chainID, method, classify(err)).Inc()
}

func classify(err error) string {
	if err == nil {
		return "ok"
	}
	lower := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(lower, "timeout"):
		return "timeout"
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		return "rate_limited"
	case strings.Contains(lower, "execution reverted"):
		return "reverted"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "eof"):
		return "network_error"
	default:
		return "client_error"
	}
}
