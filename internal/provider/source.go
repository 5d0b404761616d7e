package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"rrpnode/internal/request"
)

// Source supplies the decoded requests of one chain. Discovery itself
// happens elsewhere.
type Source interface {
	Requests(ctx context.Context) (request.GroupedRequests, error)
}

// FileSource reads a GroupedRequests JSON document written by the discovery
// process. A missing file means there is nothing to do.
type FileSource struct {
	Path string
}

func (f FileSource) Requests(_ context.Context) (request.GroupedRequests, error) {
	if f.Path == "" {
		return request.GroupedRequests{}, nil
	}
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return request.GroupedRequests{}, nil
	}
	if err != nil {
		return request.GroupedRequests{}, err
	}
	var g request.GroupedRequests
	if err := json.Unmarshal(b, &g); err != nil {
		return request.GroupedRequests{}, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return g, nil
}
