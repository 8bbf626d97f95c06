package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/agentbox/internal/model"
)

// JSONPrinter prints task information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents a task in the list output (subset of fields).
type listItem struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	AgentType string    `json:"agent_type"`
	Branch    string    `json:"branch,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// statusOutput represents the full task status output.
type statusOutput struct {
	ID              string           `json:"id"`
	Instruction     string           `json:"instruction"`
	Repo            string           `json:"repo"`
	AgentType       string           `json:"agent_type"`
	Model           string           `json:"model,omitempty"`
	BudgetMinutes   int              `json:"budget_minutes"`
	Status          string           `json:"status"`
	Progress        int              `json:"progress"`
	CurrentSubAgent string           `json:"current_sub_agent,omitempty"`
	SubAgents       []subAgentOutput `json:"sub_agents,omitempty"`
	ErrorDetail     string           `json:"error_detail,omitempty"`
	Branch          string           `json:"branch,omitempty"`
	SandboxID       string           `json:"sandbox_id,omitempty"`
	LastHeartbeat   *time.Time       `json:"last_heartbeat,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

type subAgentOutput struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Description string     `json:"description,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type logEntryOutput struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

type checkOutput struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintList prints tasks in JSON format with a subset of fields.
func (j *JSONPrinter) PrintList(tasks []model.Task) error {
	items := make([]listItem, len(tasks))
	for i, task := range tasks {
		items[i] = listItem{
			ID:        task.ID,
			Status:    string(task.Status),
			Progress:  task.Progress,
			AgentType: task.AgentType,
			Branch:    task.Branch,
			CreatedAt: task.CreatedAt.UTC(),
		}
	}

	return j.encode(items)
}

// PrintStatus prints detailed task status in JSON format.
func (j *JSONPrinter) PrintStatus(task model.Task) error {
	output := statusOutput{
		ID:              task.ID,
		Instruction:     task.Instruction,
		Repo:            task.Repo,
		AgentType:       task.AgentType,
		Model:           task.Model,
		BudgetMinutes:   task.BudgetMinutes,
		Status:          string(task.Status),
		Progress:        task.Progress,
		CurrentSubAgent: task.CurrentSubAgent,
		ErrorDetail:     task.ErrorDetail,
		Branch:          task.Branch,
		SandboxID:       task.SandboxID,
		CreatedAt:       task.CreatedAt.UTC(),
	}

	if !task.LastHeartbeat.IsZero() {
		utcTime := task.LastHeartbeat.UTC()
		output.LastHeartbeat = &utcTime
	}
	if task.CompletedAt != nil {
		utcTime := task.CompletedAt.UTC()
		output.CompletedAt = &utcTime
	}

	for _, sa := range task.SubAgents {
		out := subAgentOutput{
			ID:          sa.ID,
			Name:        sa.Name,
			Status:      string(sa.Status),
			Description: sa.Description,
			StartedAt:   sa.StartedAt.UTC(),
		}
		if sa.CompletedAt != nil {
			utcTime := sa.CompletedAt.UTC()
			out.CompletedAt = &utcTime
		}
		output.SubAgents = append(output.SubAgents, out)
	}

	return j.encode(output)
}

// PrintLogs prints the task's progress log in JSON format.
func (j *JSONPrinter) PrintLogs(task model.Task) error {
	entries := make([]logEntryOutput, len(task.Log))
	for i, entry := range task.Log {
		source := ""
		if entry.Source != nil {
			source = entry.Source.Name
		}
		entries[i] = logEntryOutput{
			Type:      string(entry.Type),
			Message:   entry.Message,
			Timestamp: entry.Timestamp.UTC(),
			Source:    source,
		}
	}

	return j.encode(entries)
}

// PrintChecks prints preflight check results in JSON format.
func (j *JSONPrinter) PrintChecks(results []model.CheckResult) error {
	items := make([]checkOutput, len(results))
	for i, r := range results {
		items[i] = checkOutput{
			ID:      r.ID,
			Status:  string(r.Status),
			Message: r.Message,
		}
	}

	return j.encode(items)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v interface{}) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
