package lib

import (
	"errors"
	"time"

	"github.com/slok/agentbox/internal/model"
)

// EngineType identifies the sandbox engine implementation.
type EngineType string

const (
	// EngineDocker runs each task inside an ephemeral Docker container.
	// Requires a reachable Docker daemon.
	EngineDocker EngineType = "docker"

	// EngineFake uses an in-memory simulation (no real containers).
	// Use this for unit testing without infrastructure dependencies.
	EngineFake EngineType = "fake"
)

// AgentType identifies the AI coding agent backend used for a task.
type AgentType string

const (
	// AgentClaude runs tasks with the Claude Code CLI.
	AgentClaude AgentType = "claude"
	// AgentCodex runs tasks with the Codex CLI.
	AgentCodex AgentType = "codex"
	// AgentOpencode runs tasks with the opencode CLI.
	AgentOpencode AgentType = "opencode"
	// AgentFake simulates an agent run without invoking any real tool.
	// Use this for testing the task pipeline.
	AgentFake AgentType = "fake"
)

// TaskStatus represents the lifecycle state of a task.
//
// The lifecycle is strictly monotonic:
//
//	pending -> processing -> completed | error | stopped
//
// A terminal status is never overwritten.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is created but not yet executing.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusProcessing indicates the task is executing.
	TaskStatusProcessing TaskStatus = "processing"
	// TaskStatusCompleted indicates the task finished and its branch was pushed.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusError indicates the task failed.
	TaskStatusError TaskStatus = "error"
	// TaskStatusStopped indicates the task was stopped by an external request.
	TaskStatusStopped TaskStatus = "stopped"
)

// Sentinel errors returned by the SDK. Inspect with [errors.Is].
var (
	// ErrNotFound means the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists means a resource with the same ID already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid means the input or the requested operation is invalid.
	ErrNotValid = errors.New("not valid")
)

// Task represents a task returned by the SDK.
//
// This is a read-only snapshot of the task state at the time of the API call.
// Use [Client.GetTask] to get the latest state.
type Task struct {
	// ID is the unique identifier (ULID) assigned at creation.
	ID string
	// Instruction is the natural language instruction given to the agent.
	Instruction string
	// Repo is the git repository URL the task works on.
	Repo string
	// Agent is the agent backend type.
	Agent AgentType
	// Model is the model override passed to the agent. Empty means the
	// agent's default.
	Model string
	// BudgetMinutes is the task duration budget.
	BudgetMinutes int
	// Status is the current lifecycle state.
	Status TaskStatus
	// Progress is the completion estimate in percent (0-100).
	Progress int
	// Log is the append-only progress log.
	Log []LogEntry
	// SubAgents are the sub-agent activities observed during execution.
	SubAgents []SubAgent
	// CurrentSubAgent is the name of the sub-agent currently running, if any.
	CurrentSubAgent string
	// ErrorDetail describes why the task failed. Empty unless Status is error.
	ErrorDetail string
	// Branch is the git branch the task result was pushed to.
	Branch string
	// SandboxID identifies the sandbox the task ran in.
	SandboxID string
	// KeepSandboxAlive indicates the sandbox is kept after the task finishes.
	KeepSandboxAlive bool
	// CreatedAt is when the task was created.
	CreatedAt time.Time
	// UpdatedAt is when the task record was last written.
	UpdatedAt time.Time
	// CompletedAt is when the task reached a terminal status. Nil while running.
	CompletedAt *time.Time
}

// LogEntryType is the type tag of a progress log entry.
type LogEntryType string

const (
	LogEntryInfo     LogEntryType = "info"
	LogEntryCommand  LogEntryType = "command"
	LogEntryError    LogEntryType = "error"
	LogEntrySuccess  LogEntryType = "success"
	LogEntrySubAgent LogEntryType = "subagent"
)

// AgentSource identifies which agent produced a log entry.
type AgentSource struct {
	// Name is the agent or sub-agent name.
	Name string
	// IsSubAgent is true when the entry came from a sub-agent.
	IsSubAgent bool
	// ParentAgent is the parent agent name for sub-agent entries.
	ParentAgent string
	// SubAgentID is the sub-agent identifier for sub-agent entries.
	SubAgentID string
}

// LogEntry is an immutable record from a task's progress log.
type LogEntry struct {
	// Type is the entry type tag.
	Type LogEntryType
	// Message is the entry text. Credentials are redacted before storage.
	Message string
	// Timestamp is when the entry was appended.
	Timestamp time.Time
	// Source identifies the producing agent. Nil for orchestrator entries.
	Source *AgentSource
}

// SubAgentStatus represents the state of a sub-agent activity.
type SubAgentStatus string

const (
	// SubAgentStatusStarting indicates the sub-agent was announced but has
	// not reported progress yet.
	SubAgentStatusStarting SubAgentStatus = "starting"
	// SubAgentStatusRunning indicates the sub-agent is working.
	SubAgentStatusRunning SubAgentStatus = "running"
	// SubAgentStatusCompleted indicates the sub-agent finished successfully.
	SubAgentStatusCompleted SubAgentStatus = "completed"
	// SubAgentStatusFailed indicates the sub-agent finished with an error.
	SubAgentStatusFailed SubAgentStatus = "failed"
)

// SubAgent represents a sub-agent activity observed during a task run.
type SubAgent struct {
	// ID is the sub-agent identifier.
	ID string
	// Name is the sub-agent name reported by the agent.
	Name string
	// Status is the sub-agent state.
	Status SubAgentStatus
	// Description is what the sub-agent was asked to do.
	Description string
	// StartedAt is when the sub-agent was announced.
	StartedAt time.Time
	// CompletedAt is when the sub-agent finished. Nil while active.
	CompletedAt *time.Time
}

// RunTaskOpts configures a task run.
//
// Instruction and Repo are required. Agent defaults to [AgentClaude].
type RunTaskOpts struct {
	// Instruction is the natural language instruction for the agent (required).
	Instruction string
	// Repo is the git repository URL to work on (required).
	Repo string
	// Agent selects the agent backend. Default: [AgentClaude].
	Agent AgentType
	// Model overrides the agent's default model.
	Model string
	// BudgetMinutes is the task duration budget. Default: 30.
	BudgetMinutes int
	// KeepSandbox keeps the sandbox alive after the task finishes.
	KeepSandbox bool
	// Image overrides the workspace container image.
	Image string
	// Env contains extra environment variables injected into the sandbox.
	Env map[string]string
	// MCPServers are optional MCP server addresses handed to agents that
	// support them.
	MCPServers []string
	// AgentAPIKey is the API key for the agent backend. Required unless
	// Agent is [AgentFake].
	AgentAPIKey string
	// RepoToken is the token used to clone and push the repository.
	RepoToken string
}

// ListTasksOpts configures task listing.
//
// Pass nil to [Client.ListTasks] to list all tasks.
type ListTasksOpts struct {
	// Status filters tasks by status. Nil means all statuses.
	Status *TaskStatus
}

// CheckStatus represents the status of a preflight check.
type CheckStatus string

const (
	// CheckStatusOK indicates the check passed.
	CheckStatusOK CheckStatus = "ok"
	// CheckStatusWarning indicates the check passed with a warning.
	CheckStatusWarning CheckStatus = "warning"
	// CheckStatusError indicates the check failed.
	CheckStatusError CheckStatus = "error"
)

// CheckResult represents the result of a single preflight check.
type CheckResult struct {
	// ID is a unique identifier for the check (e.g. "docker_available").
	ID string
	// Message is a human-readable description of the result.
	Message string
	// Status is the check status.
	Status CheckStatus
}

// --- Internal conversion helpers ---

func fromInternalTask(t model.Task) Task {
	task := Task{
		ID:               t.ID,
		Instruction:      t.Instruction,
		Repo:             t.Repo,
		Agent:            AgentType(t.AgentType),
		Model:            t.Model,
		BudgetMinutes:    t.BudgetMinutes,
		Status:           TaskStatus(t.Status),
		Progress:         t.Progress,
		CurrentSubAgent:  t.CurrentSubAgent,
		ErrorDetail:      t.ErrorDetail,
		Branch:           t.Branch,
		SandboxID:        t.SandboxID,
		KeepSandboxAlive: t.KeepSandboxAlive,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		CompletedAt:      t.CompletedAt,
	}

	task.Log = make([]LogEntry, len(t.Log))
	for i, e := range t.Log {
		entry := LogEntry{
			Type:      LogEntryType(e.Type),
			Message:   e.Message,
			Timestamp: e.Timestamp,
		}
		if e.Source != nil {
			entry.Source = &AgentSource{
				Name:        e.Source.Name,
				IsSubAgent:  e.Source.IsSubAgent,
				ParentAgent: e.Source.ParentAgent,
				SubAgentID:  e.Source.SubAgentID,
			}
		}
		task.Log[i] = entry
	}

	task.SubAgents = make([]SubAgent, len(t.SubAgents))
	for i, sa := range t.SubAgents {
		task.SubAgents[i] = SubAgent{
			ID:          sa.ID,
			Name:        sa.Name,
			Status:      SubAgentStatus(sa.Status),
			Description: sa.Description,
			StartedAt:   sa.StartedAt,
			CompletedAt: sa.CompletedAt,
		}
	}

	return task
}

func fromInternalTaskList(ts []model.Task) []Task {
	result := make([]Task, len(ts))
	for i, t := range ts {
		result[i] = fromInternalTask(t)
	}
	return result
}

func toInternalStatusFilter(opts *ListTasksOpts) *model.TaskStatus {
	if opts == nil || opts.Status == nil {
		return nil
	}
	s := model.TaskStatus(*opts.Status)
	return &s
}

func fromInternalCheckResults(results []model.CheckResult) []CheckResult {
	out := make([]CheckResult, len(results))
	for i, r := range results {
		out[i] = CheckResult{
			ID:      r.ID,
			Message: r.Message,
			Status:  CheckStatus(r.Status),
		}
	}
	return out
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case isInternalError(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case isInternalError(err, model.ErrAlreadyExists):
		return joinErrors(err, ErrAlreadyExists)
	case isInternalError(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	default:
		return err
	}
}

func isInternalError(err, target error) bool {
	for {
		if err == target {
			return true
		}
		unwrapped := unwrapSingle(err)
		if unwrapped == nil {
			return false
		}
		err = unwrapped
	}
}

func unwrapSingle(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
