package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage/sqlite"
)

func newTestRepository(t *testing.T) *sqlite.Repository {
	t.Helper()

	repo, err := sqlite.NewRepository(context.TODO(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "agentbox.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func testTask(id string) model.Task {
	now := time.Now().UTC().Truncate(time.Second)
	return model.Task{
		ID:            id,
		Instruction:   "Add a health endpoint",
		Repo:          "https://github.com/slok/agentbox-demo",
		AgentType:     model.AgentTypeClaude,
		Model:         "opus",
		BudgetMinutes: 30,
		Status:        model.TaskStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestRepositoryTaskRoundTrip(t *testing.T) {
	repo := newTestRepository(t)

	now := time.Now().UTC().Truncate(time.Second)
	completed := now.Add(time.Minute)

	task := testTask("01HRW9YZTEST000000000001")
	task.Status = model.TaskStatusCompleted
	task.Progress = 100
	task.Branch = "agentbox/01hrw9yztest000000000001"
	task.SandboxID = "01HRW9YZSBOX000000000001"
	task.LastHeartbeat = now
	task.CompletedAt = &completed
	task.KeepSandboxAlive = true
	task.Log = []model.LogEntry{
		{Type: model.LogEntryInfo, Message: "Starting task", Timestamp: now},
		{
			Type:      model.LogEntrySubAgent,
			Message:   "Sub-agent explorer started",
			Timestamp: now,
			Source:    &model.AgentSource{Name: "explorer", IsSubAgent: true, ParentAgent: "claude", SubAgentID: "sa1"},
		},
	}
	task.SubAgents = []model.SubAgent{
		{ID: "sa1", Name: "explorer", Status: model.SubAgentStatusCompleted, Description: "Explore the repo", StartedAt: now, CompletedAt: &completed},
	}

	require.NoError(t, repo.CreateTask(context.TODO(), task))

	got, err := repo.GetTask(context.TODO(), task.ID)
	require.NoError(t, err)

	assert.Equal(t, task.Instruction, got.Instruction)
	assert.Equal(t, task.Status, got.Status)
	assert.Equal(t, task.Progress, got.Progress)
	assert.Equal(t, task.Branch, got.Branch)
	assert.Equal(t, task.SandboxID, got.SandboxID)
	assert.True(t, got.KeepSandboxAlive)
	assert.Equal(t, now, got.LastHeartbeat)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, completed, *got.CompletedAt)

	require.Len(t, got.Log, 2)
	assert.Equal(t, task.Log[0].Message, got.Log[0].Message)
	require.NotNil(t, got.Log[1].Source)
	assert.Equal(t, "explorer", got.Log[1].Source.Name)
	assert.True(t, got.Log[1].Source.IsSubAgent)

	require.Len(t, got.SubAgents, 1)
	assert.Equal(t, model.SubAgentStatusCompleted, got.SubAgents[0].Status)
	require.NotNil(t, got.SubAgents[0].CompletedAt)
}

func TestRepositoryTaskErrors(t *testing.T) {
	repo := newTestRepository(t)

	task := testTask("01HRW9YZTEST000000000001")
	require.NoError(t, repo.CreateTask(context.TODO(), task))

	// Duplicated IDs are rejected.
	err := repo.CreateTask(context.TODO(), task)
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	// Missing tasks.
	_, err = repo.GetTask(context.TODO(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	missing := testTask("missing")
	err = repo.UpdateTask(context.TODO(), missing)
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = repo.DeleteTask(context.TODO(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRepositoryTaskUpdateAppendsLog(t *testing.T) {
	repo := newTestRepository(t)

	task := testTask("01HRW9YZTEST000000000001")
	require.NoError(t, repo.CreateTask(context.TODO(), task))

	// Read-modify-write like the progress log does.
	got, err := repo.GetTask(context.TODO(), task.ID)
	require.NoError(t, err)

	got.Status = model.TaskStatusProcessing
	got.Log = append(got.Log, model.LogEntry{Type: model.LogEntryCommand, Message: "git clone", Timestamp: time.Now().UTC()})
	require.NoError(t, repo.UpdateTask(context.TODO(), *got))

	got2, err := repo.GetTask(context.TODO(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusProcessing, got2.Status)
	require.Len(t, got2.Log, 1)
	assert.Equal(t, model.LogEntryCommand, got2.Log[0].Type)
}

func TestRepositoryTaskUpdateKeepsTerminalStatus(t *testing.T) {
	repo := newTestRepository(t)

	task := testTask("01HRW9YZTEST000000000001")
	task.Status = model.TaskStatusProcessing
	require.NoError(t, repo.CreateTask(context.TODO(), task))

	// Snapshot taken while the task was still live.
	stale, err := repo.GetTask(context.TODO(), task.ID)
	require.NoError(t, err)

	completedAt := time.Now().UTC().Truncate(time.Second)
	task.Status = model.TaskStatusStopped
	task.CompletedAt = &completedAt
	require.NoError(t, repo.UpdateTask(context.TODO(), task))

	// Writing the stale snapshot back keeps its log entry but never
	// resurrects a live status.
	stale.Log = append(stale.Log, model.LogEntry{Type: model.LogEntryInfo, Message: "Agent output", Timestamp: completedAt})
	require.NoError(t, repo.UpdateTask(context.TODO(), *stale))

	got, err := repo.GetTask(context.TODO(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusStopped, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, completedAt, *got.CompletedAt)
	require.Len(t, got.Log, 1)
	assert.Equal(t, "Agent output", got.Log[0].Message)
}

func TestRepositoryTaskList(t *testing.T) {
	repo := newTestRepository(t)

	t1 := testTask("01HRW9YZTEST000000000001")
	t1.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	t2 := testTask("01HRW9YZTEST000000000002")
	require.NoError(t, repo.CreateTask(context.TODO(), t1))
	require.NoError(t, repo.CreateTask(context.TODO(), t2))

	tasks, err := repo.ListTasks(context.TODO())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, t2.ID, tasks[0].ID) // Newest first.
}
