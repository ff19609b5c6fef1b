package sandbox

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/patchpilot/patchpilot/internal/config"
)

// NewFactory selects the environment backing from configuration. When the
// preferred backend cannot be set up, the configured fallback backend is
// tried once; the decision is made here at process start, never per request.
func NewFactory(cfg config.SandboxConfig, logger *zap.Logger) (Factory, error) {
	primary := Kind(strings.ToLower(strings.TrimSpace(cfg.Backend)))

	factory, err := buildFactory(primary, cfg)
	if err == nil {
		return factory, nil
	}

	fallback := Kind(strings.ToLower(strings.TrimSpace(cfg.FallbackBackend)))
	if fallback == "" {
		return nil, err
	}

	logger.Warn("sandbox backend unavailable, using fallback",
		zap.String("backend", string(primary)),
		zap.String("fallback", string(fallback)),
		zap.Error(err))

	factory, fbErr := buildFactory(fallback, cfg)
	if fbErr != nil {
		return nil, fmt.Errorf("fallback backend %s also unavailable: %w (primary: %v)", fallback, fbErr, err)
	}
	return factory, nil
}

func buildFactory(kind Kind, cfg config.SandboxConfig) (Factory, error) {
	switch kind {
	case KindCloud:
		if strings.TrimSpace(cfg.RunnerURL) == "" {
			return nil, &ProvisioningError{Backend: string(KindCloud), Err: fmt.Errorf("runner_url is not configured")}
		}
		return &CloudFactory{
			BaseURL:        cfg.RunnerURL,
			Token:          cfg.RunnerToken,
			Lease:          cfg.Lease(),
			CommandTimeout: cfg.CommandTimeout(),
		}, nil
	case KindLocal:
		return &LocalFactory{
			Root:           cfg.WorkDir,
			Lease:          cfg.Lease(),
			CommandTimeout: cfg.CommandTimeout(),
		}, nil
	default:
		return nil, &ProvisioningError{Backend: string(kind), Err: fmt.Errorf("unknown backend")}
	}
}
