package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"rrpnode/internal/metrics"
)

const maxResponseBytes = 16 << 20

type remote struct {
	cloud  string
	url    string
	client *http.Client
	auth   func(*http.Request)
}

func (r *remote) invoke(ctx context.Context, fn FunctionName, payload []byte) ([]byte, error) {
	out, err := r.do(ctx, fn, payload)
	metrics.WorkerInvocations.WithLabelValues(r.cloud, string(fn), outcome(err)).Inc()
	return out, err
}

func (r *remote) do(ctx context.Context, fn FunctionName, payload []byte) ([]byte, error) {
	body, err := json.Marshal(Envelope{FunctionName: fn, Payload: payload})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.auth != nil {
		r.auth(req)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", fn, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("invoke %s: status %d", fn, resp.StatusCode)
	}
	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invoke %s: decode response: %w", fn, err)
	}
	if !out.Ok {
		if out.ErrorLog == "" {
			return nil, fmt.Errorf("invoke %s: worker reported failure", fn)
		}
		return nil, fmt.Errorf("invoke %s: %w", fn, errors.New(out.ErrorLog))
	}
	return out.Data, nil
}

// AwsLambda invokes functions behind a Lambda function URL or API gateway.
type AwsLambda struct {
	remote
	Region string
}

func NewAwsLambda(url, region, apiKey string, timeout time.Duration) *AwsLambda {
	return &AwsLambda{
		remote: remote{
			cloud:  "aws",
			url:    url,
			client: &http.Client{Timeout: timeout},
			auth: func(req *http.Request) {
				if apiKey != "" {
					req.Header.Set("x-api-key", apiKey)
				}
			},
		},
		Region: region,
	}
}

func (a *AwsLambda) Invoke(ctx context.Context, fn FunctionName, payload []byte) ([]byte, error) {
	return a.invoke(ctx, fn, payload)
}

// GcpFunction invokes an HTTP triggered Cloud Function.
type GcpFunction struct {
	remote
	ProjectID string
}

func NewGcpFunction(url, projectID, idToken string, timeout time.Duration) *GcpFunction {
	return &GcpFunction{
		remote: remote{
			cloud:  "gcp",
			url:    url,
			client: &http.Client{Timeout: timeout},
			auth: func(req *http.Request) {
				if idToken != "" {
					req.Header.Set("Authorization", "Bearer "+idToken)
				}
			},
		},
		ProjectID: projectID,
	}
}

func (g *GcpFunction) Invoke(ctx context.Context, fn FunctionName, payload []byte) ([]byte, error) {
	return g.invoke(ctx, fn, payload)
}

// Serve exposes the handlers of l in the remote worker format, so the
// same binary can run as the cloud side of AwsLambda or GcpFunction.
func Serve(l *Local) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var env Envelope
		if err := json.NewDecoder(io.LimitReader(r.Body, maxResponseBytes)).Decode(&env); err != nil {
			writeResponse(w, http.StatusBadRequest, Response{ErrorLog: "invalid request body"})
			return
		}
		out, err := l.Invoke(r.Context(), env.FunctionName, env.Payload)
		if errors.Is(err, ErrUnknownFunction) {
			writeResponse(w, http.StatusNotFound, Response{ErrorLog: err.Error()})
			return
		}
		if err != nil {
			writeResponse(w, http.StatusOK, Response{ErrorLog: err.Error()})
			return
		}
		writeResponse(w, http.StatusOK, Response{Ok: true, Data: out})
	})
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
