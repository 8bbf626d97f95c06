package run

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/orchestrator"
	"github.com/slok/agentbox/internal/storage"
)

// ServiceConfig is the configuration for the run service.
type ServiceConfig struct {
	Repository   storage.Repository
	Orchestrator *orchestrator.Orchestrator
	Logger       log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Orchestrator == nil {
		return fmt.Errorf("orchestrator is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service creates a task and executes it end to end.
type Service struct {
	repo   storage.Repository
	orch   *orchestrator.Orchestrator
	logger log.Logger
}

// NewService creates a new run service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		orch:   cfg.Orchestrator,
		logger: cfg.Logger,
	}, nil
}

// Request represents the run request parameters.
type Request struct {
	Config      model.TaskConfig
	Credentials model.Credentials
}

// Run creates the task record and drives it to a terminal state. The
// returned task is the final stored record.
func (s *Service) Run(ctx context.Context, req Request) (*model.Task, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task config: %w", err)
	}

	budget := req.Config.BudgetMinutes
	if budget == 0 {
		budget = model.DefaultBudgetMinutes
	}

	now := time.Now().UTC()
	task := model.Task{
		ID:               ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Instruction:      req.Config.Instruction,
		Repo:             req.Config.Repo,
		AgentType:        req.Config.AgentType,
		Model:            req.Config.Model,
		BudgetMinutes:    budget,
		Status:           model.TaskStatusPending,
		KeepSandboxAlive: req.Config.KeepSandboxAlive,
		CreatedAt:        now,
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("could not create task: %w", err)
	}

	s.logger.Infof("Created task %s, executing", task.ID)

	if err := s.orch.Run(ctx, task.ID, req.Credentials); err != nil {
		return nil, fmt.Errorf("could not execute task: %w", err)
	}

	final, err := s.repo.GetTask(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}

	return final, nil
}
