// Package orchestrator drives one task end to end: sandbox provisioning,
// repository checkout, agent execution, branch publication and teardown,
// raced by a heartbeat-aware timeout supervisor.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/run"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage"
	"github.com/slok/agentbox/internal/taskstate"
	"github.com/slok/agentbox/internal/tasklog"
)

// Config is the configuration for the orchestrator.
type Config struct {
	Repository  storage.Repository
	Machine     *taskstate.Machine
	Coordinator *Coordinator
	Supervisor  *Supervisor
	LogRecorder *tasklog.Recorder
	Logger      log.Logger
}

func (c *Config) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Machine == nil {
		return fmt.Errorf("state machine is required")
	}
	if c.Coordinator == nil {
		return fmt.Errorf("coordinator is required")
	}
	if c.Supervisor == nil {
		return fmt.Errorf("supervisor is required")
	}
	if c.LogRecorder == nil {
		return fmt.Errorf("log recorder is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.Orchestrator"})
	return nil
}

// Orchestrator executes tasks. Cancellation is cooperative: an external
// actor transitions the task to stopped and the orchestrator exits at its
// next poll point, cleaning up whatever it already provisioned.
type Orchestrator struct {
	repo    storage.Repository
	machine *taskstate.Machine
	coord   *Coordinator
	sup     *Supervisor
	logRec  *tasklog.Recorder
	logger  log.Logger
}

// New creates a new orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Orchestrator{
		repo:    cfg.Repository,
		machine: cfg.Machine,
		coord:   cfg.Coordinator,
		sup:     cfg.Supervisor,
		logRec:  cfg.LogRecorder,
		logger:  cfg.Logger,
	}, nil
}

// Run executes the task with the supervisor racing it. Both actors talk
// only through the persisted task record, the first writer of a terminal
// status wins and the loser's write is a no-op.
func (o *Orchestrator) Run(ctx context.Context, taskID string, creds model.Credentials) error {
	start := time.Now()

	var g run.Group

	{
		execCtx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return o.Execute(execCtx, taskID, creds)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	{
		supCtx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return o.sup.Supervise(supCtx, taskID, start)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	err := g.Run()
	if err != nil && err != ErrTimeout {
		return err
	}

	return nil
}

// Execute runs the task sequence once. Every failure path lands the task
// in a terminal status with a human-readable explanation in its log.
func (o *Orchestrator) Execute(ctx context.Context, taskID string, creds model.Credentials) error {
	logger := o.logger.WithCtxValues(ctx).WithValues(log.Kv{"task-id": taskID})

	task, err := o.repo.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}

	// Validation failures terminate before any sandbox exists.
	if err := o.validate(task, creds); err != nil {
		return o.fail(ctx, taskID, fmt.Sprintf("Invalid task: %s", err))
	}

	// Poll point: before provisioning.
	if stopped, err := o.machine.IsStopped(ctx, taskID); err != nil {
		return fmt.Errorf("could not check cancellation: %w", err)
	} else if stopped {
		logger.Infof("Task already stopped, nothing to do")
		return nil
	}

	if err := o.machine.Transition(ctx, taskID, model.TaskStatusProcessing, "Task started"); err != nil {
		return fmt.Errorf("could not transition to processing: %w", err)
	}

	created, err := o.coord.Create(ctx, task)
	if err != nil {
		return o.fail(ctx, taskID, fmt.Sprintf("Could not provision sandbox: %s", err))
	}
	if created.Cancelled {
		logger.Infof("Task stopped during provisioning")
		o.logRec.Append(ctx, taskID, model.LogEntryInfo, "Task stopped before execution, sandbox released", nil)
		return nil
	}
	sandboxID := created.Sandbox.ID

	if err := o.record(ctx, taskID, func(t *model.Task) { t.SandboxID = sandboxID }); err != nil {
		return o.failWithTeardown(ctx, taskID, sandboxID, false, fmt.Sprintf("Could not record sandbox: %s", err))
	}

	// Poll point: after provisioning, before agent execution.
	if stopped, err := o.machine.IsStopped(ctx, taskID); err != nil {
		return fmt.Errorf("could not check cancellation: %w", err)
	} else if stopped {
		logger.Infof("Task stopped before agent execution")
		o.logRec.Append(ctx, taskID, model.LogEntryInfo, "Task stopped before agent execution, sandbox released", nil)
		return o.teardown(ctx, taskID, sandboxID, false)
	}

	if err := o.coord.CloneRepo(ctx, task, sandboxID, creds); err != nil {
		return o.failWithTeardown(ctx, taskID, sandboxID, task.KeepSandboxAlive, fmt.Sprintf("Could not clone repository: %s", err))
	}

	res, err := o.coord.ExecuteAgent(ctx, task, sandboxID, creds)
	if err != nil {
		return o.failWithTeardown(ctx, taskID, sandboxID, task.KeepSandboxAlive, fmt.Sprintf("Agent execution failed: %s", err))
	}
	if !res.Success {
		return o.failWithTeardown(ctx, taskID, sandboxID, task.KeepSandboxAlive, fmt.Sprintf("Agent reported failure: %s", res.ErrorDetail))
	}

	if res.ResponseText != "" {
		o.logRec.Append(ctx, taskID, model.LogEntryInfo, res.ResponseText, &model.AgentSource{Name: task.AgentType})
	}

	// Poll point: after agent execution, before publication.
	if stopped, err := o.machine.IsStopped(ctx, taskID); err != nil {
		return fmt.Errorf("could not check cancellation: %w", err)
	} else if stopped {
		logger.Infof("Task stopped after agent execution")
		o.logRec.Append(ctx, taskID, model.LogEntryInfo, "Task stopped before publication, sandbox released", nil)
		return o.teardown(ctx, taskID, sandboxID, false)
	}

	branch := branchName(taskID)
	task.Branch = branch
	if err := o.record(ctx, taskID, func(t *model.Task) { t.Branch = branch }); err != nil {
		return o.failWithTeardown(ctx, taskID, sandboxID, task.KeepSandboxAlive, fmt.Sprintf("Could not record branch: %s", err))
	}

	// A push failure fails the task even though the agent succeeded,
	// unpublished work has no value to the caller.
	if pushFailed, err := o.coord.Publish(ctx, task, sandboxID, creds); pushFailed {
		return o.failWithTeardown(ctx, taskID, sandboxID, task.KeepSandboxAlive, fmt.Sprintf("Could not publish branch %s: %s", branch, err))
	}

	if err := o.machine.Transition(ctx, taskID, model.TaskStatusCompleted, fmt.Sprintf("Task completed, branch %s published", branch)); err != nil {
		return fmt.Errorf("could not transition to completed: %w", err)
	}

	return o.teardown(ctx, taskID, sandboxID, task.KeepSandboxAlive)
}

func (o *Orchestrator) validate(task *model.Task, creds model.Credentials) error {
	cfg := model.TaskConfig{
		Instruction:   task.Instruction,
		Repo:          task.Repo,
		AgentType:     task.AgentType,
		Model:         task.Model,
		BudgetMinutes: task.BudgetMinutes,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if creds.AgentAPIKey == "" && task.AgentType != model.AgentTypeFake {
		return fmt.Errorf("agent API key is required: %w", model.ErrNotValid)
	}
	return nil
}

// fail lands the task in error. If the task already reached a terminal
// status (a stop or a supervisor timeout won the race) the transition is a
// no-op and the run ends quietly.
func (o *Orchestrator) fail(ctx context.Context, taskID, detail string) error {
	if err := o.machine.Transition(ctx, taskID, model.TaskStatusError, detail); err != nil {
		return fmt.Errorf("could not transition to error: %w", err)
	}
	return nil
}

func (o *Orchestrator) failWithTeardown(ctx context.Context, taskID, sandboxID string, keepAlive bool, detail string) error {
	err := o.fail(ctx, taskID, detail)
	if tErr := o.teardown(ctx, taskID, sandboxID, keepAlive); tErr != nil && err == nil {
		err = tErr
	}
	return err
}

func (o *Orchestrator) teardown(ctx context.Context, taskID, sandboxID string, keepAlive bool) error {
	// Teardown must not die with the run's context.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}

	if err := o.coord.Teardown(ctx, sandboxID, keepAlive); err != nil {
		o.logger.Warningf("Could not tear down sandbox %s of task %s: %s", sandboxID, taskID, err)
	}
	return nil
}

// record is a read-modify-write on the task, used for the fields only the
// orchestrator writes (sandbox ID, branch).
func (o *Orchestrator) record(ctx context.Context, taskID string, fn func(t *model.Task)) error {
	task, err := o.repo.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}
	fn(task)
	if err := o.repo.UpdateTask(ctx, *task); err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}
	return nil
}

func branchName(taskID string) string {
	return "agentbox/" + strings.ToLower(taskID)
}
