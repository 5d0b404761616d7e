package apicall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rrpnode/internal/request"
	"rrpnode/internal/worker"
)

// WorkerExecutor runs each API call through the callApi worker function.
type WorkerExecutor struct {
	invoker worker.Invoker
}

func NewWorkerExecutor(inv worker.Invoker) *WorkerExecutor {
	return &WorkerExecutor{invoker: inv}
}

func (e *WorkerExecutor) Execute(ctx context.Context, r request.Request[request.ApiCall]) (Result, error) {
	return worker.Call[request.Request[request.ApiCall], Result](ctx, e.invoker, worker.FunctionCallApi, r)
}

// HTTPExecutor posts the request to an external adapter that performs the
// API call and signs the response.
type HTTPExecutor struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPExecutor(url, token string, timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

func (e *HTTPExecutor) Execute(ctx context.Context, r request.Request[request.ApiCall]) (Result, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode >= 500 {
		return Result{}, fmt.Errorf("api executor status %d", resp.StatusCode)
	}
	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("decode api executor response: %w", err)
	}
	if resp.StatusCode/100 != 2 && out.ErrorMessage == "" {
		out.ErrorMessage = fmt.Sprintf("api executor status %d", resp.StatusCode)
	}
	return out, nil
}

// Handler adapts an Executor to the callApi worker function.
func Handler(exec Executor) worker.Handler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var r request.Request[request.ApiCall]
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode callApi payload: %w", err)
		}
		result, err := exec.Execute(ctx, r)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
}
