package lib

import (
	"context"
	"fmt"

	"github.com/slok/agentbox/internal/agent"
	"github.com/slok/agentbox/internal/app/list"
	"github.com/slok/agentbox/internal/app/remove"
	apprun "github.com/slok/agentbox/internal/app/run"
	"github.com/slok/agentbox/internal/app/status"
	"github.com/slok/agentbox/internal/app/stop"
	"github.com/slok/agentbox/internal/git"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/orchestrator"
	"github.com/slok/agentbox/internal/tasklog"
	"github.com/slok/agentbox/internal/taskstate"
)

// RunTask creates a task and drives it to a terminal state. The call blocks
// until the task finishes, times out or the context is cancelled.
//
// The returned task is the final stored record, including its progress log.
// A task that ends in [TaskStatusError] or [TaskStatusStopped] is returned
// without error, inspect its Status and ErrorDetail.
//
// Returns [ErrNotValid] if the options are invalid.
func (c *Client) RunTask(ctx context.Context, opts RunTaskOpts) (*Task, error) {
	agentType := opts.Agent
	if agentType == "" {
		agentType = AgentClaude
	}

	image := opts.Image
	if image == "" {
		image = c.image
	}

	eng, err := c.newEngine()
	if err != nil {
		return nil, mapError(fmt.Errorf("could not create engine: %w", err))
	}

	recorder, err := tasklog.NewRecorder(tasklog.RecorderConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create log recorder: %w", err)
	}

	machine, err := taskstate.NewMachine(taskstate.MachineConfig{
		Repository:  c.repo,
		LogRecorder: recorder,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create state machine: %w", err)
	}

	registry, err := agent.NewRegistry(agent.RegistryConfig{
		Engine: eng,
		Logger: c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create agent registry: %w", err)
	}

	publisher, err := git.NewExecPublisher(git.ExecPublisherConfig{
		Engine: eng,
		Logger: c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create git publisher: %w", err)
	}

	coordinator, err := orchestrator.NewCoordinator(orchestrator.CoordinatorConfig{
		Engine:      eng,
		Registry:    registry,
		Publisher:   publisher,
		Machine:     machine,
		LogRecorder: recorder,
		Image:       image,
		Env:         opts.Env,
		MCPServers:  opts.MCPServers,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create sandbox coordinator: %w", err)
	}

	supervisor, err := orchestrator.NewSupervisor(orchestrator.SupervisorConfig{
		Repository:  c.repo,
		Machine:     machine,
		LogRecorder: recorder,
		Coordinator: coordinator,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create supervisor: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Repository:  c.repo,
		Machine:     machine,
		Coordinator: coordinator,
		Supervisor:  supervisor,
		LogRecorder: recorder,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create orchestrator: %w", err)
	}

	svc, err := apprun.NewService(apprun.ServiceConfig{
		Repository:   c.repo,
		Orchestrator: orch,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	task, err := svc.Run(ctx, apprun.Request{
		Config: model.TaskConfig{
			Instruction:      opts.Instruction,
			Repo:             opts.Repo,
			AgentType:        string(agentType),
			Model:            opts.Model,
			BudgetMinutes:    opts.BudgetMinutes,
			KeepSandboxAlive: opts.KeepSandbox,
		},
		Credentials: model.Credentials{
			AgentAPIKey: opts.AgentAPIKey,
			RepoToken:   opts.RepoToken,
		},
	})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalTask(*task)
	return &result, nil
}

// GetTask returns a task by ID, including its progress log and sub-agents.
//
// Returns [ErrNotFound] if the task does not exist.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	svc, err := status.NewService(status.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	task, err := svc.Run(ctx, status.Request{TaskID: taskID})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalTask(*task)
	return &result, nil
}

// ListTasks returns tasks, newest first. Pass nil opts to list all tasks.
func (c *Client) ListTasks(ctx context.Context, opts *ListTasksOpts) ([]Task, error) {
	svc, err := list.NewService(list.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	tasks, err := svc.Run(ctx, list.Request{
		StatusFilter: toInternalStatusFilter(opts),
	})
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalTaskList(tasks), nil
}

// TaskLogs returns the progress log of a task.
//
// Returns [ErrNotFound] if the task does not exist.
func (c *Client) TaskLogs(ctx context.Context, taskID string) ([]LogEntry, error) {
	task, err := c.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return task.Log, nil
}

// StopTask stops a running task. The task transitions to [TaskStatusStopped]
// and its sandbox is torn down best effort.
//
// Returns [ErrNotFound] if the task does not exist, or [ErrNotValid] if the
// task already finished.
func (c *Client) StopTask(ctx context.Context, taskID string) (*Task, error) {
	eng, err := c.newEngine()
	if err != nil {
		return nil, mapError(fmt.Errorf("could not create engine: %w", err))
	}

	recorder, err := tasklog.NewRecorder(tasklog.RecorderConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create log recorder: %w", err)
	}

	machine, err := taskstate.NewMachine(taskstate.MachineConfig{
		Repository:  c.repo,
		LogRecorder: recorder,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create state machine: %w", err)
	}

	svc, err := stop.NewService(stop.ServiceConfig{
		Repository: c.repo,
		Machine:    machine,
		Engine:     eng,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	task, err := svc.Run(ctx, stop.Request{TaskID: taskID})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalTask(*task)
	return &result, nil
}

// RemoveTask deletes a task record and removes its sandbox.
//
// A task that has not finished is only removed when force is true.
//
// Returns [ErrNotFound] if the task does not exist, or [ErrNotValid] if the
// task is still running and force is false.
func (c *Client) RemoveTask(ctx context.Context, taskID string, force bool) error {
	eng, err := c.newEngine()
	if err != nil {
		return mapError(fmt.Errorf("could not create engine: %w", err))
	}

	svc, err := remove.NewService(remove.ServiceConfig{
		Repository: c.repo,
		Engine:     eng,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	err = svc.Run(ctx, remove.Request{
		TaskID: taskID,
		Force:  force,
	})
	if err != nil {
		return mapError(err)
	}

	return nil
}
