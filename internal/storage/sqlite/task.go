package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slok/agentbox/internal/model"
)

const taskColumns = `
	id, instruction, repo, agent_type, model, budget_minutes,
	status, progress, log_entries, sub_agents, last_heartbeat,
	current_sub_agent, error_detail, branch, sandbox_id,
	keep_sandbox_alive, created_at, updated_at, completed_at
`

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	logJSON, subAgentsJSON, err := marshalTaskLists(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.Instruction,
		t.Repo,
		t.AgentType,
		t.Model,
		t.BudgetMinutes,
		t.Status,
		t.Progress,
		logJSON,
		subAgentsJSON,
		unixOrNil(t.LastHeartbeat),
		t.CurrentSubAgent,
		t.ErrorDetail,
		t.Branch,
		t.SandboxID,
		boolToInt(t.KeepSandboxAlive),
		t.CreatedAt.Unix(),
		t.UpdatedAt.Unix(),
		unixPtr(t.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("task with id %s: %w", t.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert task: %w", err)
	}

	r.logger.Debugf("Created task in repository: %s", t.ID)
	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get task: %w", err)
	}

	return t, nil
}

// ListTasks returns all tasks ordered by creation time, newest first.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate tasks: %w", err)
	}

	return tasks, nil
}

// statusDowngrade is true when the stored status is terminal and the
// incoming one is not. The SET expressions below read the pre-update row,
// so a stale snapshot never moves a finished task back to processing.
const statusDowngrade = `(status IN ('completed', 'error', 'stopped') AND ? NOT IN ('completed', 'error', 'stopped'))`

// UpdateTask updates an existing task, last write wins per field except
// for status, error_detail and completed_at, which never downgrade from a
// terminal state.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	logJSON, subAgentsJSON, err := marshalTaskLists(t)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks SET
			instruction = ?, repo = ?, agent_type = ?, model = ?, budget_minutes = ?,
			status = CASE WHEN ` + statusDowngrade + ` THEN status ELSE ? END,
			progress = ?, log_entries = ?, sub_agents = ?, last_heartbeat = ?,
			current_sub_agent = ?,
			error_detail = CASE WHEN ` + statusDowngrade + ` THEN error_detail ELSE ? END,
			branch = ?, sandbox_id = ?, keep_sandbox_alive = ?, updated_at = ?,
			completed_at = CASE WHEN ` + statusDowngrade + ` THEN completed_at ELSE ? END
		WHERE id = ?
	`

	res, err := r.db.ExecContext(
		ctx,
		query,
		t.Instruction,
		t.Repo,
		t.AgentType,
		t.Model,
		t.BudgetMinutes,
		string(t.Status),
		t.Status,
		t.Progress,
		logJSON,
		subAgentsJSON,
		unixOrNil(t.LastHeartbeat),
		t.CurrentSubAgent,
		string(t.Status),
		t.ErrorDetail,
		t.Branch,
		t.SandboxID,
		boolToInt(t.KeepSandboxAlive),
		time.Now().UTC().Unix(),
		string(t.Status),
		unixPtr(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated task in repository: %s", t.ID)
	return nil
}

// DeleteTask deletes a task by ID.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted task from repository: %s", id)
	return nil
}

// jsonLogEntry is the persisted form of a log entry.
type jsonLogEntry struct {
	Type      string           `json:"type"`
	Message   string           `json:"message"`
	Timestamp int64            `json:"timestamp"`
	Source    *jsonAgentSource `json:"source,omitempty"`
}

type jsonAgentSource struct {
	Name        string `json:"name"`
	IsSubAgent  bool   `json:"is_sub_agent"`
	ParentAgent string `json:"parent_agent,omitempty"`
	SubAgentID  string `json:"sub_agent_id,omitempty"`
}

// jsonSubAgent is the persisted form of a sub-agent activity.
type jsonSubAgent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt *int64 `json:"completed_at,omitempty"`
}

func marshalTaskLists(t model.Task) (logJSON string, subAgentsJSON string, err error) {
	jl := make([]jsonLogEntry, 0, len(t.Log))
	for _, e := range t.Log {
		je := jsonLogEntry{
			Type:      string(e.Type),
			Message:   e.Message,
			Timestamp: e.Timestamp.Unix(),
		}
		if e.Source != nil {
			je.Source = &jsonAgentSource{
				Name:        e.Source.Name,
				IsSubAgent:  e.Source.IsSubAgent,
				ParentAgent: e.Source.ParentAgent,
				SubAgentID:  e.Source.SubAgentID,
			}
		}
		jl = append(jl, je)
	}

	js := make([]jsonSubAgent, 0, len(t.SubAgents))
	for _, sa := range t.SubAgents {
		jsa := jsonSubAgent{
			ID:          sa.ID,
			Name:        sa.Name,
			Status:      string(sa.Status),
			Description: sa.Description,
			StartedAt:   sa.StartedAt.Unix(),
		}
		if sa.CompletedAt != nil {
			u := sa.CompletedAt.Unix()
			jsa.CompletedAt = &u
		}
		js = append(js, jsa)
	}

	lb, err := json.Marshal(jl)
	if err != nil {
		return "", "", fmt.Errorf("could not marshal log entries: %w", err)
	}
	sb, err := json.Marshal(js)
	if err != nil {
		return "", "", fmt.Errorf("could not marshal sub-agents: %w", err)
	}

	return string(lb), string(sb), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t               model.Task
		logJSON         string
		subAgentsJSON   string
		lastHeartbeat   sql.NullInt64
		keepAlive       int
		createdAt       int64
		updatedAt       int64
		completedAtUnix sql.NullInt64
	)

	err := row.Scan(
		&t.ID,
		&t.Instruction,
		&t.Repo,
		&t.AgentType,
		&t.Model,
		&t.BudgetMinutes,
		&t.Status,
		&t.Progress,
		&logJSON,
		&subAgentsJSON,
		&lastHeartbeat,
		&t.CurrentSubAgent,
		&t.ErrorDetail,
		&t.Branch,
		&t.SandboxID,
		&keepAlive,
		&createdAt,
		&updatedAt,
		&completedAtUnix,
	)
	if err != nil {
		return nil, err
	}

	var jl []jsonLogEntry
	if err := json.Unmarshal([]byte(logJSON), &jl); err != nil {
		return nil, fmt.Errorf("could not unmarshal log entries: %w", err)
	}
	for _, je := range jl {
		e := model.LogEntry{
			Type:      model.LogEntryType(je.Type),
			Message:   je.Message,
			Timestamp: time.Unix(je.Timestamp, 0).UTC(),
		}
		if je.Source != nil {
			e.Source = &model.AgentSource{
				Name:        je.Source.Name,
				IsSubAgent:  je.Source.IsSubAgent,
				ParentAgent: je.Source.ParentAgent,
				SubAgentID:  je.Source.SubAgentID,
			}
		}
		t.Log = append(t.Log, e)
	}

	var js []jsonSubAgent
	if err := json.Unmarshal([]byte(subAgentsJSON), &js); err != nil {
		return nil, fmt.Errorf("could not unmarshal sub-agents: %w", err)
	}
	for _, jsa := range js {
		sa := model.SubAgent{
			ID:          jsa.ID,
			Name:        jsa.Name,
			Status:      model.SubAgentStatus(jsa.Status),
			Description: jsa.Description,
			StartedAt:   time.Unix(jsa.StartedAt, 0).UTC(),
		}
		if jsa.CompletedAt != nil {
			ct := time.Unix(*jsa.CompletedAt, 0).UTC()
			sa.CompletedAt = &ct
		}
		t.SubAgents = append(t.SubAgents, sa)
	}

	if lastHeartbeat.Valid {
		t.LastHeartbeat = time.Unix(lastHeartbeat.Int64, 0).UTC()
	}
	t.KeepSandboxAlive = keepAlive != 0
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if completedAtUnix.Valid {
		ct := time.Unix(completedAtUnix.Int64, 0).UTC()
		t.CompletedAt = &ct
	}

	return &t, nil
}

func unixOrNil(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	u := t.Unix()
	return &u
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
