package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage"
	"github.com/slok/agentbox/internal/taskstate"
	"github.com/slok/agentbox/internal/tasklog"
)

// ErrTimeout is returned by the supervisor when it declares a task timed
// out, so the composed run group aborts the executor.
var ErrTimeout = errors.New("task timed out")

// SupervisorConfig is the configuration for the timeout supervisor.
type SupervisorConfig struct {
	Repository  storage.Repository
	Machine     *taskstate.Machine
	LogRecorder *tasklog.Recorder
	Coordinator *Coordinator
	// Interval is the tick period. Defaults to 30s.
	Interval time.Duration
	// Grace is the heartbeat grace period G. While the task has active
	// sub-agents and a heartbeat fresher than G, termination is pushed out
	// to at most budget+G. Defaults to 5m. It is a flat window, it does not
	// scale with the budget.
	Grace time.Duration
	// WarnWindow is how long before the budget the one-time warning fires.
	// Defaults to 60s.
	WarnWindow time.Duration
	// Now is the clock, for tests.
	Now    func() time.Time
	Logger log.Logger
}

func (c *SupervisorConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Machine == nil {
		return fmt.Errorf("state machine is required")
	}
	if c.LogRecorder == nil {
		return fmt.Errorf("log recorder is required")
	}
	if c.Coordinator == nil {
		return fmt.Errorf("coordinator is required")
	}
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
	if c.Grace == 0 {
		c.Grace = 5 * time.Minute
	}
	if c.WarnWindow == 0 {
		c.WarnWindow = time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.Supervisor"})
	return nil
}

// Supervisor enforces the task duration budget. It races the executor for
// one task and talks to it only through the persisted task record, so the
// pair stays correct even across processes.
type Supervisor struct {
	repo     storage.Repository
	machine  *taskstate.Machine
	logRec   *tasklog.Recorder
	coord    *Coordinator
	interval time.Duration
	grace    time.Duration
	warnWin  time.Duration
	now      func() time.Time
	logger   log.Logger
}

// NewSupervisor creates a new supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Supervisor{
		repo:     cfg.Repository,
		machine:  cfg.Machine,
		logRec:   cfg.LogRecorder,
		coord:    cfg.Coordinator,
		interval: cfg.Interval,
		grace:    cfg.Grace,
		warnWin:  cfg.WarnWindow,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}, nil
}

// Supervise ticks until the task reaches a terminal state, the context is
// cancelled, or a timeout is declared. On timeout it transitions the task
// to error, tears the sandbox down and returns ErrTimeout.
func (s *Supervisor) Supervise(ctx context.Context, taskID string, start time.Time) error {
	logger := s.logger.WithCtxValues(ctx).WithValues(log.Kv{"task-id": taskID})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var warned, extensionLogged bool

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		task, err := s.repo.GetTask(ctx, taskID)
		if err != nil {
			logger.Warningf("Could not read task: %s", err)
			continue
		}

		if task.Status.IsTerminal() {
			return nil
		}

		now := s.now()
		elapsed := now.Sub(start)
		budget := budgetDuration(task)

		if elapsed < budget {
			if elapsed >= budget-s.warnWin && !warned {
				warned = true
				msg := fmt.Sprintf("Task is approaching its %s budget", budget)
				if active := task.ActiveSubAgent(now); active != nil {
					msg = fmt.Sprintf("%s (sub-agent %q still active)", msg, active.Name)
				}
				logger.Warningf("%s", msg)
				s.logRec.AppendSystem(ctx, taskID, model.LogEntryInfo, msg)
			}
			continue
		}

		// Over budget. Fresh heartbeat plus active sub-agents buys a grace
		// extension, up to the absolute ceiling budget+grace.
		heartbeatAge := now.Sub(task.LastHeartbeat)
		if elapsed < budget+s.grace && task.HasActiveSubAgents(now) && heartbeatAge < s.grace {
			if !extensionLogged {
				extensionLogged = true
				logger.Infof("Budget exceeded but sub-agents are active, extending up to %s", s.grace)
				s.logRec.AppendSystem(ctx, taskID, model.LogEntryInfo, "Budget exceeded, grace extension in effect while sub-agents are active")
			}
			continue
		}

		// Mandatory re-read: a concurrent completion must win over a
		// spurious timeout.
		terminal, err := s.machine.IsTerminal(ctx, taskID)
		if err != nil {
			logger.Warningf("Could not re-read task status: %s", err)
			continue
		}
		if terminal {
			return nil
		}

		detail := fmt.Sprintf("Task timed out after %s (budget %s, heartbeat age %s)", elapsed.Round(time.Second), budget, heartbeatAge.Round(time.Second))
		logger.Errorf("%s", detail)

		if err := s.machine.Transition(ctx, taskID, model.TaskStatusError, detail); err != nil {
			logger.Errorf("Could not transition task to error: %s", err)
		}

		if err := s.coord.Teardown(ctx, task.SandboxID, task.KeepSandboxAlive); err != nil {
			logger.Warningf("Could not tear down sandbox %s: %s", task.SandboxID, err)
		}

		return ErrTimeout
	}
}

func budgetDuration(task *model.Task) time.Duration {
	minutes := task.BudgetMinutes
	if minutes <= 0 {
		minutes = model.DefaultBudgetMinutes
	}
	return time.Duration(minutes) * time.Minute
}
