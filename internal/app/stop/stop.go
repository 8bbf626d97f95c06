package stop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/sandbox"
	"github.com/slok/agentbox/internal/storage"
	"github.com/slok/agentbox/internal/taskstate"
)

// ServiceConfig is the configuration for the stop service.
type ServiceConfig struct {
	Repository storage.Repository
	Machine    *taskstate.Machine
	Engine     sandbox.Engine
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Machine == nil {
		return fmt.Errorf("state machine is required")
	}

	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service requests cancellation of a task. The orchestrator observes the
// stopped status at its next poll point, so the only cancellation API is
// the status transition itself.
type Service struct {
	repo    storage.Repository
	machine *taskstate.Machine
	engine  sandbox.Engine
	logger  log.Logger
}

// NewService creates a new stop service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:    cfg.Repository,
		machine: cfg.Machine,
		engine:  cfg.Engine,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the stop request parameters.
type Request struct {
	// TaskID is the task identifier.
	TaskID string
}

// liveRunWindow is how recent the task heartbeat must be for a run to be
// considered alive. Live runs heartbeat on every agent event, so anything
// older means no orchestrator is driving the task anymore.
const liveRunWindow = 2 * time.Minute

// Run flips the task to stopped. A live run picks the cancellation up at
// its next poll point and tears its own sandbox down; only when no run is
// alive (e.g. the process crashed) is the stored sandbox stopped best
// effort so nothing keeps running.
func (s *Service) Run(ctx context.Context, req Request) (*model.Task, error) {
	s.logger.Debugf("stopping task: %s", req.TaskID)

	task, err := s.repo.GetTask(ctx, req.TaskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("task not found: %s: %w", req.TaskID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get task: %w", err)
	}

	if task.Status.IsTerminal() {
		return nil, fmt.Errorf("cannot stop task: already %s: %w", task.Status, model.ErrNotValid)
	}

	if err := s.machine.Transition(ctx, task.ID, model.TaskStatusStopped, "Task stopped by external request"); err != nil {
		return nil, fmt.Errorf("could not stop task: %w", err)
	}

	live := time.Since(task.LastHeartbeat) < liveRunWindow
	if task.SandboxID != "" && !task.KeepSandboxAlive && !live {
		if err := s.engine.Stop(ctx, task.SandboxID); err != nil {
			s.logger.Warningf("Could not stop sandbox %s: %s", task.SandboxID, err)
		}
	}

	stopped, err := s.repo.GetTask(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}

	s.logger.Infof("Stopped task: %s", task.ID)
	return stopped, nil
}
