package model

import (
	"fmt"
	"regexp"
	"time"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been created but not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusProcessing indicates the task is being executed.
	TaskStatusProcessing TaskStatus = "processing"
	// TaskStatusCompleted indicates the task finished and its branch was published.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusError indicates the task failed.
	TaskStatusError TaskStatus = "error"
	// TaskStatusStopped indicates the task was cancelled by an external request.
	TaskStatusStopped TaskStatus = "stopped"
)

// IsTerminal returns true for statuses that admit no further transition.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError || s == TaskStatusStopped
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
	Name        string
	IsSubAgent  bool
	ParentAgent string
	SubAgentID  string
}

// LogEntry is an immutable record appended to a task's progress log.
// Entries are never edited or removed; ordering is the append order.
type LogEntry struct {
	Type      LogEntryType
	Message   string
	Timestamp time.Time
	Source    *AgentSource
}

// SubAgentStatus represents the state of a sub-agent activity.
type SubAgentStatus string

const (
	SubAgentStatusStarting  SubAgentStatus = "starting"
	SubAgentStatusRunning   SubAgentStatus = "running"
	SubAgentStatusCompleted SubAgentStatus = "completed"
	SubAgentStatusError     SubAgentStatus = "error"
)

// SubAgent is a named, independently tracked unit of work spawned by the
// primary agent. Records are retained after completion for audit purposes.
type SubAgent struct {
	ID          string
	Name        string
	Status      SubAgentStatus
	Description string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// SubAgentStartingGrace is how long a sub-agent stuck in "starting" still
// counts as alive. After this window it is no evidence of liveness even if
// it never explicitly failed.
const SubAgentStartingGrace = 5 * time.Minute

// Alive returns true if the sub-agent counts as evidence of liveness at
// the given instant.
func (s SubAgent) Alive(now time.Time) bool {
	switch s.Status {
	case SubAgentStatusRunning:
		return true
	case SubAgentStatusStarting:
		return now.Sub(s.StartedAt) < SubAgentStartingGrace
	default:
		return false
	}
}

// Task is one end-to-end request to apply an instruction to a repository
// via an agent.
type Task struct {
	ID            string
	Instruction   string
	Repo          string
	AgentType     string
	Model         string
	BudgetMinutes int

	Status        TaskStatus
	Progress      int
	Log           []LogEntry
	SubAgents     []SubAgent
	LastHeartbeat time.Time

	CurrentSubAgent string
	ErrorDetail     string
	Branch          string
	SandboxID       string

	KeepSandboxAlive bool

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// HasActiveSubAgents reports whether any sub-agent counts as alive at the
// given instant. It is recomputed from the stored list on every call, never
// cached, so it cannot drift from the record.
func (t *Task) HasActiveSubAgents(now time.Time) bool {
	for _, sa := range t.SubAgents {
		if sa.Alive(now) {
			return true
		}
	}
	return false
}

// ActiveSubAgent returns the most recently started alive sub-agent, or nil
// if there is none.
func (t *Task) ActiveSubAgent(now time.Time) *SubAgent {
	var active *SubAgent
	for i := range t.SubAgents {
		sa := &t.SubAgents[i]
		if !sa.Alive(now) {
			continue
		}
		if active == nil || sa.StartedAt.After(active.StartedAt) {
			active = sa
		}
	}
	return active
}

// TaskConfig is the caller-supplied configuration for creating a task.
type TaskConfig struct {
	Instruction   string
	Repo          string
	AgentType     string
	Model         string
	BudgetMinutes int

	KeepSandboxAlive bool
}

// DefaultBudgetMinutes is the task duration budget applied when the caller
// doesn't set one.
const DefaultBudgetMinutes = 30

// repoRegexp matches https and ssh git repository references.
var repoRegexp = regexp.MustCompile(`^(https://[\w.\-]+/[\w.\-~]+/[\w.\-~]+(\.git)?|git@[\w.\-]+:[\w.\-~]+/[\w.\-~]+(\.git)?|ssh://git@[\w.\-]+/[\w.\-~]+/[\w.\-~]+(\.git)?)$`)

// Validate validates the task configuration.
func (c *TaskConfig) Validate() error {
	if c.Instruction == "" {
		return fmt.Errorf("instruction is required: %w", ErrNotValid)
	}

	if c.Repo == "" {
		return fmt.Errorf("repository is required: %w", ErrNotValid)
	}
	if !repoRegexp.MatchString(c.Repo) {
		return fmt.Errorf("malformed repository reference %q: %w", c.Repo, ErrNotValid)
	}

	if c.AgentType == "" {
		return fmt.Errorf("agent type is required: %w", ErrNotValid)
	}

	if c.BudgetMinutes < 0 {
		return fmt.Errorf("budget minutes must not be negative: %w", ErrNotValid)
	}

	return nil
}
