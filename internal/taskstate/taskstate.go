// Package taskstate implements the authoritative task state machine.
//
// Transitions are monotonic: once a task reaches a terminal status
// (completed, error or stopped) any later transition is a silent no-op.
// That guarantee is what makes the orchestrator/supervisor race harmless:
// the first writer of a terminal status wins and the loser's write does
// nothing.
package taskstate

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage"
	"github.com/slok/agentbox/internal/tasklog"
)

// MachineConfig is the configuration for the state machine.
type MachineConfig struct {
	Repository  storage.Repository
	LogRecorder *tasklog.Recorder
	Logger      log.Logger
}

func (c *MachineConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.LogRecorder == nil {
		return fmt.Errorf("log recorder is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "taskstate.Machine"})
	return nil
}

// Machine drives task status transitions against the persisted record.
type Machine struct {
	repo   storage.Repository
	logRec *tasklog.Recorder
	logger log.Logger
}

// NewMachine creates a new state machine.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Machine{
		repo:   cfg.Repository,
		logRec: cfg.LogRecorder,
		logger: cfg.Logger,
	}, nil
}

// IsTerminal returns true if the task's stored status is terminal.
func (m *Machine) IsTerminal(ctx context.Context, taskID string) (bool, error) {
	task, err := m.repo.GetTask(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("could not get task: %w", err)
	}
	return task.Status.IsTerminal(), nil
}

// IsStopped is a point-in-time read used as the cooperative cancellation
// signal: external actors request cancellation by transitioning the task to
// stopped, the orchestrator polls this at its suspension points.
func (m *Machine) IsStopped(ctx context.Context, taskID string) (bool, error) {
	task, err := m.repo.GetTask(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("could not get task: %w", err)
	}
	return task.Status == model.TaskStatusStopped, nil
}

// Transition moves the task to the given status. It is a no-op (not an
// error) if the stored status is already terminal, so late racing writers
// are harmless. When detail is non-empty one log entry summarizing the new
// state is appended.
func (m *Machine) Transition(ctx context.Context, taskID string, status model.TaskStatus, detail string) error {
	task, err := m.repo.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}

	if task.Status.IsTerminal() {
		m.logger.Debugf("Ignoring transition of task %s to %s: already %s", taskID, status, task.Status)
		return nil
	}

	task.Status = status
	if status == model.TaskStatusError {
		task.ErrorDetail = detail
	}
	if status.IsTerminal() {
		now := time.Now().UTC()
		task.CompletedAt = &now
	}
	if status == model.TaskStatusCompleted {
		task.Progress = 100
	}

	if err := m.repo.UpdateTask(ctx, *task); err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	if detail != "" {
		m.logRec.Append(ctx, taskID, entryTypeForStatus(status), detail, nil)
	}

	m.logger.Debugf("Task %s transitioned to %s", taskID, status)
	return nil
}

func entryTypeForStatus(status model.TaskStatus) model.LogEntryType {
	switch status {
	case model.TaskStatusCompleted:
		return model.LogEntrySuccess
	case model.TaskStatusError:
		return model.LogEntryError
	default:
		return model.LogEntryInfo
	}
}
