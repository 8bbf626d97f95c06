// Package tasklog implements the append-only progress log of a task and the
// sub-agent activity tracking built on top of it.
//
// Every operation is a read-modify-write against the single task record and
// also refreshes the task heartbeat. Failures never propagate: losing a log
// line is acceptable, failing a task because the log store hiccuped is not.
package tasklog

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage"
)

// RecorderConfig is the configuration for the recorder.
type RecorderConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *RecorderConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "tasklog.Recorder"})
	return nil
}

// Recorder appends progress events to a task.
type Recorder struct {
	repo    storage.Repository
	logger  log.Logger
	dropped atomic.Uint64
}

// NewRecorder creates a new recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Recorder{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Dropped returns how many log operations were swallowed because the store
// rejected them.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Append appends a redacted log entry to the task and refreshes its heartbeat.
func (r *Recorder) Append(ctx context.Context, taskID string, t model.LogEntryType, msg string, src *model.AgentSource) {
	r.mutate(ctx, taskID, func(task *model.Task) {
		appendEntry(task, t, msg, src)
	})
}

// AppendSystem appends a log entry without refreshing the task heartbeat.
// Supervisor bookkeeping uses it so its own writes don't count as agent
// liveness.
func (r *Recorder) AppendSystem(ctx context.Context, taskID string, t model.LogEntryType, msg string) {
	r.mutateOpts(ctx, taskID, false, func(task *model.Task) {
		appendEntry(task, t, msg, nil)
	})
}

// AppendProgress combines a numeric progress update with a log entry.
func (r *Recorder) AppendProgress(ctx context.Context, taskID string, percent int, msg string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	r.mutate(ctx, taskID, func(task *model.Task) {
		task.Progress = percent
		appendEntry(task, model.LogEntryInfo, msg, nil)
	})
}

// Heartbeat refreshes the task heartbeat without appending a log entry.
func (r *Recorder) Heartbeat(ctx context.Context, taskID string) {
	r.mutate(ctx, taskID, func(task *model.Task) {})
}

// StartSubAgent records a new sub-agent activity in "starting" state and
// returns its ID. The returned ID is valid even if the write was dropped.
func (r *Recorder) StartSubAgent(ctx context.Context, taskID, name, description, parentAgent string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()

	r.mutate(ctx, taskID, func(task *model.Task) {
		task.SubAgents = append(task.SubAgents, model.SubAgent{
			ID:          id,
			Name:        name,
			Status:      model.SubAgentStatusStarting,
			Description: description,
			StartedAt:   time.Now().UTC(),
		})
		task.CurrentSubAgent = name

		appendEntry(task, model.LogEntrySubAgent, fmt.Sprintf("Sub-agent %q started", name), &model.AgentSource{
			Name:        name,
			IsSubAgent:  true,
			ParentAgent: parentAgent,
			SubAgentID:  id,
		})
	})

	return id
}

// MarkSubAgentRunning moves a sub-agent from starting to running.
func (r *Recorder) MarkSubAgentRunning(ctx context.Context, taskID, subAgentID string) {
	r.mutate(ctx, taskID, func(task *model.Task) {
		for i := range task.SubAgents {
			if task.SubAgents[i].ID == subAgentID {
				task.SubAgents[i].Status = model.SubAgentStatusRunning
				return
			}
		}
	})
}

// CompleteSubAgent moves a sub-agent to its terminal state. The record is
// retained for audit, never deleted.
func (r *Recorder) CompleteSubAgent(ctx context.Context, taskID, subAgentID string, success bool) {
	r.mutate(ctx, taskID, func(task *model.Task) {
		now := time.Now().UTC()
		for i := range task.SubAgents {
			sa := &task.SubAgents[i]
			if sa.ID != subAgentID {
				continue
			}

			if success {
				sa.Status = model.SubAgentStatusCompleted
			} else {
				sa.Status = model.SubAgentStatusError
			}
			sa.CompletedAt = &now

			appendEntry(task, model.LogEntrySubAgent, fmt.Sprintf("Sub-agent %q finished (success: %t)", sa.Name, success), &model.AgentSource{
				Name:       sa.Name,
				IsSubAgent: true,
				SubAgentID: sa.ID,
			})
			break
		}

		// Recompute the active sub-agent name from the stored list.
		task.CurrentSubAgent = ""
		if active := task.ActiveSubAgent(now); active != nil {
			task.CurrentSubAgent = active.Name
		}
	})
}

// mutate runs a read-modify-write cycle on the task record, refreshing the
// heartbeat. Errors are swallowed and only counted.
func (r *Recorder) mutate(ctx context.Context, taskID string, fn func(task *model.Task)) {
	r.mutateOpts(ctx, taskID, true, fn)
}

func (r *Recorder) mutateOpts(ctx context.Context, taskID string, heartbeat bool, fn func(task *model.Task)) {
	task, err := r.repo.GetTask(ctx, taskID)
	if err != nil {
		r.drop(taskID, err)
		return
	}

	fn(task)
	if heartbeat {
		task.LastHeartbeat = time.Now().UTC()
	}

	if err := r.repo.UpdateTask(ctx, *task); err != nil {
		r.drop(taskID, err)
	}
}

func (r *Recorder) drop(taskID string, err error) {
	r.dropped.Add(1)
	r.logger.Debugf("Dropped log operation for task %s: %s", taskID, err)
}

func appendEntry(task *model.Task, t model.LogEntryType, msg string, src *model.AgentSource) {
	task.Log = append(task.Log, model.LogEntry{
		Type:      t,
		Message:   Redact(msg),
		Timestamp: time.Now().UTC(),
		Source:    src,
	})
}
