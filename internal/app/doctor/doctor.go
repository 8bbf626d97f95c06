package doctor

import (
	"context"
	"fmt"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/sandbox"
)

// ServiceConfig is the configuration for the doctor service.
type ServiceConfig struct {
	Engine sandbox.Engine
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service runs the engine preflight checks.
type Service struct {
	engine sandbox.Engine
	logger log.Logger
}

// NewService creates a new doctor service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		engine: cfg.Engine,
		logger: cfg.Logger,
	}, nil
}

// Run runs the checks and returns the results. It fails only when a check
// has error status, warnings are fine.
func (s *Service) Run(ctx context.Context) ([]model.CheckResult, error) {
	results := s.engine.Check(ctx)

	if model.HasErrors(results) {
		return results, fmt.Errorf("preflight checks failed")
	}

	return results, nil
}
