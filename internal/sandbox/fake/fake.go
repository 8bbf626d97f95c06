package fake

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
)

// ExecFunc simulates a command execution inside a fake sandbox.
type ExecFunc func(ctx context.Context, id string, command []string, opts model.ExecOpts) (*model.ExecResult, error)

// EngineConfig is the configuration for the fake engine.
type EngineConfig struct {
	// ExecFunc is called for every Exec. When nil every command succeeds
	// with exit code 0.
	ExecFunc ExecFunc
	Logger   log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.ExecFunc == nil {
		c.ExecFunc = func(ctx context.Context, id string, command []string, opts model.ExecOpts) (*model.ExecResult, error) {
			return &model.ExecResult{ExitCode: 0}, nil
		}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sandbox.Fake"})
	return nil
}

// Engine is a fake implementation of the sandbox.Engine interface.
// It simulates sandbox lifecycle without creating real containers.
type Engine struct {
	sandboxes map[string]*model.Sandbox
	execFunc  ExecFunc
	mu        sync.RWMutex
	logger    log.Logger
}

// NewEngine creates a new fake engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		sandboxes: make(map[string]*model.Sandbox),
		execFunc:  cfg.ExecFunc,
		logger:    cfg.Logger,
	}, nil
}

// Check always passes.
func (e *Engine) Check(ctx context.Context) []model.CheckResult {
	return []model.CheckResult{
		{ID: "fake_engine", Message: "Fake engine has no requirements", Status: model.CheckStatusOK},
	}
}

// Provision creates a new fake sandbox.
func (e *Engine) Provision(ctx context.Context, cfg model.SandboxConfig) (*model.Sandbox, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sandbox config: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()

	now := time.Now().UTC()
	sandbox := &model.Sandbox{
		ID:        id,
		TaskID:    cfg.TaskID,
		Status:    model.SandboxStatusRunning, // Fake engine goes directly to running.
		Config:    cfg,
		CreatedAt: now,
		StartedAt: &now,
	}

	e.sandboxes[id] = sandbox
	e.logger.Infof("Provisioned fake sandbox: %s (task: %s)", id, cfg.TaskID)

	return sandbox, nil
}

// Exec executes a command through the configured ExecFunc.
func (e *Engine) Exec(ctx context.Context, id string, command []string, opts model.ExecOpts) (*model.ExecResult, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("command cannot be empty: %w", model.ErrNotValid)
	}

	e.mu.RLock()
	sandbox, ok := e.sandboxes[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sandbox %s: %w", id, model.ErrNotFound)
	}
	if sandbox.Status != model.SandboxStatusRunning {
		return nil, fmt.Errorf("sandbox %s is not running: %w", id, model.ErrNotValid)
	}

	return e.execFunc(ctx, id, command, opts)
}

// Stop stops a fake sandbox.
func (e *Engine) Stop(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sandbox, ok := e.sandboxes[id]
	if !ok {
		return fmt.Errorf("sandbox %s: %w", id, model.ErrNotFound)
	}

	if sandbox.Status == model.SandboxStatusStopped {
		e.logger.Debugf("Sandbox %s is already stopped", id)
		return nil // Idempotent.
	}

	now := time.Now().UTC()
	sandbox.Status = model.SandboxStatusStopped
	sandbox.StoppedAt = &now

	e.logger.Infof("Stopped fake sandbox: %s", id)
	return nil
}

// Remove removes a fake sandbox.
func (e *Engine) Remove(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sandboxes[id]; !ok {
		// Idempotent, like removing an already removed container.
		e.logger.Debugf("Sandbox %s already removed", id)
		return nil
	}

	delete(e.sandboxes, id)
	e.logger.Infof("Removed fake sandbox: %s", id)
	return nil
}

// Sandbox returns the stored fake sandbox, for test assertions.
func (e *Engine) Sandbox(id string) (*model.Sandbox, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.sandboxes[id]
	if !ok {
		return nil, false
	}
	sCopy := *s
	return &sCopy, true
}
