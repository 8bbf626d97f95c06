package remove

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/sandbox"
	"github.com/slok/agentbox/internal/storage"
)

// ServiceConfig is the configuration for the remove service.
type ServiceConfig struct {
	Repository storage.Repository
	Engine     sandbox.Engine
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service removes a terminal task and its leftover sandbox.
type Service struct {
	repo   storage.Repository
	engine sandbox.Engine
	logger log.Logger
}

// NewService creates a new remove service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		engine: cfg.Engine,
		logger: cfg.Logger,
	}, nil
}

// Request represents the remove request parameters.
type Request struct {
	// TaskID is the task identifier.
	TaskID string
	// Force removes the task even if it is not terminal.
	Force bool
}

// Run deletes the task record and removes its sandbox if one is still
// around (kept alive or orphaned by a crash).
func (s *Service) Run(ctx context.Context, req Request) error {
	s.logger.Debugf("removing task: %s", req.TaskID)

	task, err := s.repo.GetTask(ctx, req.TaskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("task not found: %s: %w", req.TaskID, model.ErrNotFound)
		}
		return fmt.Errorf("could not get task: %w", err)
	}

	if !task.Status.IsTerminal() && !req.Force {
		return fmt.Errorf("cannot remove task: still %s (use force to override): %w", task.Status, model.ErrNotValid)
	}

	if task.SandboxID != "" {
		if err := s.engine.Remove(ctx, task.SandboxID); err != nil {
			s.logger.Warningf("Could not remove sandbox %s: %s", task.SandboxID, err)
		}
	}

	if err := s.repo.DeleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("could not delete task: %w", err)
	}

	s.logger.Infof("Removed task: %s", task.ID)
	return nil
}
