package worker

import (
	"context"
	"fmt"
	"sync"

	"rrpnode/internal/metrics"
)

type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Local runs registered handlers in the current process.
type Local struct {
	mu       sync.RWMutex
	handlers map[FunctionName]Handler
}

func NewLocal() *Local {
	return &Local{handlers: make(map[FunctionName]Handler)}
}

func (l *Local) Register(fn FunctionName, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[fn] = h
}

func (l *Local) Invoke(ctx context.Context, fn FunctionName, payload []byte) ([]byte, error) {
	l.mu.RLock()
	h, ok := l.handlers[fn]
	l.mu.RUnlock()
	if !ok {
		metrics.WorkerInvocations.WithLabelValues("local", string(fn), "unknown").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, fn)
	}
	out, err := h(ctx, payload)
	metrics.WorkerInvocations.WithLabelValues("local", string(fn), outcome(err)).Inc()
	return out, err
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
