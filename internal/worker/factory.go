package worker

import (
	"fmt"
	"os"

	"rrpnode/internal/config"
)

// New picks the invoker for the configured cloud provider. local is used
// as is for the local provider.
func New(cfg *config.Config, local *Local) (Invoker, error) {
	cp := cfg.Node.CloudProvider
	token := ""
	if cp.AuthTokenEnv != "" {
		token = os.Getenv(cp.AuthTokenEnv)
	}
	timeout := cfg.Node.CycleInterval.Duration
	switch cp.Type {
	case config.CloudLocal:
		return local, nil
	case config.CloudAWS:
		return NewAwsLambda(cp.URL, cp.Region, token, timeout), nil
	case config.CloudGCP:
		return NewGcpFunction(cp.URL, cp.ProjectID, token, timeout), nil
	default:
		return nil, fmt.Errorf("unknown cloud provider %q", cp.Type)
	}
}
